package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
)

// config holds the parsed command line and environment settings
type config struct {
	Port int

	Recognizer    string
	TesseractLang string
	TesseractPool int
	TesseractPSM  int
	GeminiKey     string
	GeminiModel   string
	OllamaURL     string
	OllamaModel   string

	RecognitionTimeout time.Duration
	SlowRecognition    time.Duration

	Fingerprint    string
	DuplicateStore string
	DuplicateSize  int
	DuplicateTTL   time.Duration
	DBPath         string
	DatabaseURL    string

	ImageDir string
	AuthUser string
	AuthPass string

	LogLevel  string
	LogFormat string

	ShowVersion bool
}

// parseConfig parses args and RECEIPT_VALIDATOR_* environment variables.
// The flag set is returned so callers can print usage on error.
func parseConfig(args []string) (*config, *ff.FlagSet, error) {
	fs := ff.NewFlagSet("receipt-validator")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		recognizer    = fs.StringLong("recognizer", "tesseract", "Recognizer: 'tesseract', 'gemini' or 'ollama'")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract recognition language")
		tesseractPool = fs.IntLong("tesseract-pool", 2, "Maximum concurrent Tesseract engines")
		tesseractPSM  = fs.IntLong("tesseract-psm", 0, "Tesseract page segmentation mode (0 keeps the engine default)")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		recTimeout    = fs.DurationLong("recognition-timeout", 30*time.Second, "Timeout for a single recognition call")
		slowRec       = fs.DurationLong("slow-recognition", 10*time.Second, "Recognition time that raises a slow processing warning")
		fingerprint   = fs.StringLong("fingerprint", "exact", "Duplicate fingerprint: 'exact' or 'perceptual'")
		dupStore      = fs.StringLong("duplicate-store", "memory", "Duplicate store: 'memory', 'bolt' or 'postgres'")
		dupSize       = fs.IntLong("duplicate-size", 10000, "Maximum fingerprints kept by the memory store")
		dupTTL        = fs.DurationLong("duplicate-ttl", 720*time.Hour, "How long a fingerprint is remembered (0 keeps it forever)")
		dbPath        = fs.StringLong("db", "receipt-validator.db", "Database file path for the bolt store")
		databaseURL   = fs.StringLong("database-url", "", "Postgres connection URL for the postgres store")
		imageDir      = fs.StringLong("image-dir", ".", "Base directory for relative and file:// image URIs")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat     = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("RECEIPT_VALIDATOR"),
	); err != nil {
		return nil, fs, err
	}

	cfg := &config{
		Port:               *port,
		Recognizer:         strings.ToLower(*recognizer),
		TesseractLang:      *tesseractLang,
		TesseractPool:      *tesseractPool,
		TesseractPSM:       *tesseractPSM,
		GeminiKey:          *geminiKey,
		GeminiModel:        *geminiModel,
		OllamaURL:          *ollamaURL,
		OllamaModel:        *ollamaModel,
		RecognitionTimeout: *recTimeout,
		SlowRecognition:    *slowRec,
		Fingerprint:        strings.ToLower(*fingerprint),
		DuplicateStore:     strings.ToLower(*dupStore),
		DuplicateSize:      *dupSize,
		DuplicateTTL:       *dupTTL,
		DBPath:             *dbPath,
		DatabaseURL:        *databaseURL,
		ImageDir:           *imageDir,
		AuthUser:           *authUser,
		AuthPass:           *authPass,
		LogLevel:           *logLevel,
		LogFormat:          strings.ToLower(*logFormat),
		ShowVersion:        *showVersion,
	}
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.ShowVersion {
		return cfg, fs, nil
	}
	return cfg, fs, cfg.validate()
}

func (c *config) validate() error {
	var errs []error

	switch c.Recognizer {
	case "tesseract":
		if c.TesseractPool < 1 {
			errs = append(errs, fmt.Errorf("tesseract-pool must be positive, got %d", c.TesseractPool))
		}
	case "gemini":
		if c.GeminiKey == "" {
			errs = append(errs, errors.New("gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable"))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("invalid recognizer %q, valid: tesseract, gemini or ollama", c.Recognizer))
	}

	switch c.Fingerprint {
	case "exact", "perceptual":
	default:
		errs = append(errs, fmt.Errorf("invalid fingerprint %q, valid: exact or perceptual", c.Fingerprint))
	}

	switch c.DuplicateStore {
	case "memory":
		if c.DuplicateSize < 1 {
			errs = append(errs, fmt.Errorf("duplicate-size must be positive, got %d", c.DuplicateSize))
		}
	case "bolt":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database-url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid duplicate-store %q, valid: memory, bolt or postgres", c.DuplicateStore))
	}

	if c.DuplicateTTL < 0 {
		errs = append(errs, errors.New("duplicate-ttl cannot be negative"))
	}
	if c.RecognitionTimeout < 0 || c.SlowRecognition < 0 {
		errs = append(errs, errors.New("recognition durations cannot be negative"))
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log-format %q, valid: text or json", c.LogFormat))
	}

	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log-level %q: %w", s, err)
	}
	return level, nil
}

// newLogger builds the process logger from the configured level and format
func newLogger(w io.Writer, cfg *config) *slog.Logger {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
