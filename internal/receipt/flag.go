package receipt

// Kind classifies a flag
type Kind string

const (
	KindError   Kind = "ERROR"
	KindWarning Kind = "WARNING"
	KindInfo    Kind = "INFO"
)

// Severity grades how much a flag should worry a reviewer
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Flag codes. These are part of the public result format and must stay stable.
const (
	CodeOCRFailed             = "OCR_FAILED"
	CodeInsufficientText      = "INSUFFICIENT_TEXT"
	CodeSlowProcessing        = "SLOW_PROCESSING"
	CodeInsufficientPatterns  = "INSUFFICIENT_RECEIPT_PATTERNS"
	CodeNoCurrencySymbol      = "NO_CURRENCY_SYMBOL"
	CodeNoMerchantName        = "NO_MERCHANT_NAME"
	CodeNoAmount              = "NO_AMOUNT"
	CodeDuplicateReceipt      = "DUPLICATE_RECEIPT"
	CodeUniqueReceipt         = "UNIQUE_RECEIPT"
	CodeHashCalculationFailed = "HASH_CALCULATION_FAILED"
	CodeMerchantMismatch      = "MERCHANT_MISMATCH"
	CodeAmountMismatch        = "AMOUNT_MISMATCH"
	CodeDateMismatch          = "DATE_MISMATCH"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeLargeAmount           = "LARGE_AMOUNT"
	CodeRoundAmount           = "ROUND_AMOUNT"
	CodeFutureDate            = "FUTURE_DATE"
	CodeOldDate               = "OLD_DATE"
	CodeValidationError       = "VALIDATION_ERROR"
)

// Flag is a single finding attached to a validation run
type Flag struct {
	Kind     Kind     `json:"type"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Error builds an ERROR flag
func Error(code, message string, severity Severity) Flag {
	return Flag{Kind: KindError, Code: code, Message: message, Severity: severity}
}

// Warning builds a WARNING flag
func Warning(code, message string, severity Severity) Flag {
	return Flag{Kind: KindWarning, Code: code, Message: message, Severity: severity}
}

// Info builds an INFO flag
func Info(code, message string) Flag {
	return Flag{Kind: KindInfo, Code: code, Message: message, Severity: SeverityLow}
}
