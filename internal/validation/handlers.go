package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-validator/internal/receipt"
)

// maxFormMemory is the part of a multipart upload kept in memory; the rest spills to disk
const maxFormMemory = 32 << 20

const msgTooLarge = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// validateForm is the multipart form accepted by POST /api/receipts/validate
type validateForm struct {
	Merchant    string `form:"merchant" validate:"required,max=200"`
	Amount      string `form:"amount" validate:"required,numeric"`
	Date        string `form:"date" validate:"required,datetime=2006-01-02"`
	Category    string `form:"category" validate:"max=100"`
	Description string `form:"description" validate:"max=2000"`
	ImageURL    string `form:"image_url" validate:"omitempty,url"`
}

var formMessages = map[string]string{
	"required": "is required",
	"numeric":  "must be a number",
	"datetime": "must be a date in YYYY-MM-DD format",
	"url":      "must be a valid URL",
	"max":      "is too long",
}

// formErrors converts validator errors into per-field messages
func formErrors(err error) []map[string]string {
	errList := make([]map[string]string, 0)

	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		for _, e := range validationErr {
			msg, ok := formMessages[e.Tag()]
			if !ok {
				msg = "is invalid"
			}
			errList = append(errList, map[string]string{e.Field(): msg})
		}
	}
	return errList
}

type errorResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Details []map[string]string `json:"details,omitempty"`
}

type validateResponse struct {
	Success    bool            `json:"success"`
	Validation *receipt.Result `json:"validation"`
}

type statusResponse struct {
	Message  string   `json:"message"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string, details []map[string]string) {
	writeJSON(w, code, errorResponse{Success: false, Error: message, Details: details})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus describes the validation service
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Message:  "Receipt validation service is running",
		Version:  s.version,
		Features: []string{"OCR validation", "Duplicate detection", "Pattern matching"},
	})
}

// handleValidate validates an uploaded receipt against the submitted metadata
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, receipt.MaxImageSize+(1<<20))
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			msg = msgTooLarge
		}
		writeError(w, http.StatusBadRequest, msg, nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := validateForm{
		Merchant:    strings.TrimSpace(r.FormValue("merchant")),
		Amount:      strings.TrimSpace(r.FormValue("amount")),
		Date:        strings.TrimSpace(r.FormValue("date")),
		Category:    strings.TrimSpace(r.FormValue("category")),
		Description: strings.TrimSpace(r.FormValue("description")),
		ImageURL:    strings.TrimSpace(r.FormValue("image_url")),
	}
	if err := s.validate.Struct(form); err != nil {
		slog.Warn("Validation failed", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request", formErrors(err))
		return
	}

	img, err := readImage(r)
	if err != nil {
		slog.Error("Error reading image", "error", err)
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	img.URI = form.ImageURL

	in, err := form.input(img)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", nil)
		return
	}

	result, err := s.service.Validate(r.Context(), in)
	if errors.Is(err, ErrNoImage) {
		writeError(w, http.StatusBadRequest, "An image file or image_url is required", nil)
		return
	}
	if err != nil {
		slog.Error("Error validating receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to validate receipt", nil)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{Success: true, Validation: result})
}

// readImage returns the uploaded file, or an empty image when none was sent
func readImage(r *http.Request) (receipt.Image, error) {
	f, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return receipt.Image{}, nil
	}
	if err != nil {
		return receipt.Image{}, fmt.Errorf("reading image: %w", err)
	}
	defer f.Close()

	if header.Size > receipt.MaxImageSize {
		return receipt.Image{}, errors.New(msgTooLarge)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return receipt.Image{}, fmt.Errorf("reading image data: %w", err)
	}

	return receipt.Image{Data: data, ContentType: uploadContentType(header.Header.Get("Content-Type"), header.Filename)}, nil
}

// uploadContentType falls back to the file extension when the part has no type
func uploadContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// input converts a validated form into a pipeline input
func (f validateForm) input(img receipt.Image) (receipt.Input, error) {
	amount, err := decimal.NewFromString(f.Amount)
	if err != nil {
		return receipt.Input{}, fmt.Errorf("parsing amount: %w", err)
	}
	date, err := time.Parse(time.DateOnly, f.Date)
	if err != nil {
		return receipt.Input{}, fmt.Errorf("parsing date: %w", err)
	}

	return receipt.Input{
		Merchant:    f.Merchant,
		Amount:      amount,
		Date:        date,
		Category:    f.Category,
		Description: f.Description,
		Image:       img,
	}, nil
}
