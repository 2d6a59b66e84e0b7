package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-validator/internal/duplicate"
	"github.com/zombor/receipt-validator/internal/receipt"
	"github.com/zombor/receipt-validator/internal/recognition"
	"github.com/zombor/receipt-validator/internal/recognition/tesseract"
	"github.com/zombor/receipt-validator/internal/validation"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const (
	shutdownTimeout = 15 * time.Second
	pruneInterval   = time.Hour
)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	cfg, flags, err := parseConfig(os.Args[1:])
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.SetDefault(newLogger(os.Stderr, cfg))

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return err
	}
	defer recognizer.Close()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	detector := duplicate.NewDetector(newFingerprinter(cfg), store)
	defer detector.Close()

	if pruner, ok := store.(*duplicate.BoltStore); ok && cfg.DuplicateTTL > 0 {
		go prune(ctx, pruner)
	}

	slog.Info("Initializing image loader...", "dir", cfg.ImageDir)
	loader, err := receipt.NewImageLoader(cfg.ImageDir)
	if err != nil {
		return fmt.Errorf("initializing image loader: %w", err)
	}

	service := validation.NewService(recognizer, detector, loader, validation.Options{
		RecognitionTimeout: cfg.RecognitionTimeout,
		SlowRecognition:    cfg.SlowRecognition,
	})

	basicAuth := validation.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	}
	server := validation.NewServer(service, basicAuth, version)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if cfg.AuthUser != "" || cfg.AuthPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func newRecognizer(cfg *config) (recognition.Recognizer, error) {
	switch cfg.Recognizer {
	case "gemini":
		slog.Info("Initializing Gemini recognizer...", "model", cfg.GeminiModel)
		r, err := recognition.NewGemini(cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return r, nil
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		r, err := recognition.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return r, nil
	default:
		slog.Info("Initializing Tesseract recognizer...", "lang", cfg.TesseractLang, "pool", cfg.TesseractPool)
		return tesseract.New(tesseract.Config{
			Languages:   []string{cfg.TesseractLang},
			PageSegMode: cfg.TesseractPSM,
			Size:        cfg.TesseractPool,
		}), nil
	}
}

func newFingerprinter(cfg *config) duplicate.Fingerprinter {
	if cfg.Fingerprint == "perceptual" {
		return duplicate.PerceptualFingerprint{}
	}
	return duplicate.ContentFingerprint{}
}

func newStore(ctx context.Context, cfg *config) (duplicate.Store, error) {
	switch cfg.DuplicateStore {
	case "bolt":
		slog.Info("Initializing bolt duplicate store...", "path", cfg.DBPath, "ttl", cfg.DuplicateTTL)
		s, err := duplicate.NewBoltStore(cfg.DBPath, cfg.DuplicateTTL)
		if err != nil {
			return nil, fmt.Errorf("initializing bolt store: %w", err)
		}
		return s, nil
	case "postgres":
		slog.Info("Initializing postgres duplicate store...", "ttl", cfg.DuplicateTTL)
		s, err := duplicate.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.DuplicateTTL)
		if err != nil {
			return nil, fmt.Errorf("initializing postgres store: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("creating postgres schema: %w", err)
		}
		return s, nil
	default:
		slog.Info("Initializing memory duplicate store...", "size", cfg.DuplicateSize, "ttl", cfg.DuplicateTTL)
		return duplicate.NewMemoryStore(cfg.DuplicateSize, cfg.DuplicateTTL), nil
	}
}

// prune removes expired fingerprints from the bolt store until ctx ends
func prune(ctx context.Context, store *duplicate.BoltStore) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx)
			if err != nil {
				slog.Warn("Failed to prune fingerprints", "error", err)
				continue
			}
			slog.Debug("Pruned fingerprints", "removed", n)
		}
	}
}
