package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/throw-if-null/rexec/internal/config"
	"github.com/throw-if-null/rexec/internal/gen"
	"github.com/throw-if-null/rexec/internal/loop"
	"github.com/throw-if-null/rexec/internal/sandbox"
	"github.com/throw-if-null/rexec/internal/server"
	"github.com/throw-if-null/rexec/internal/store"
	"github.com/throw-if-null/rexec/internal/telemetry"
	"github.com/throw-if-null/rexec/internal/version"

	_ "modernc.org/sqlite"
)

func main() {
	// .env is optional; the environment wins either way.
	_ = godotenv.Load()

	root, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to resolve working directory: %v", err)
	}

	res := config.Load(root)
	if res.ParseError != nil {
		log.Fatalf("failed to load %s: %v", res.Path, res.ParseError)
	}
	cfg := res.Config
	if res.Found {
		log.Printf("loaded config from %s", res.Path)
	}

	ctx := context.Background()
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "rexecd",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		log.Printf("telemetry disabled: %v", err)
	} else {
		defer func() { _ = shutdown(ctx) }()
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Printf("GEMINI_API_KEY not set; code generation will fail until it is configured")
	}

	dbPath, err := ensureDBPath(root)
	if err != nil {
		log.Fatalf("failed to prepare db path: %v", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("failed to open sqlite db: %v", err)
	}
	defer db.Close()

	st := store.New(db)
	if err := st.Init(); err != nil {
		log.Fatalf("failed to init schema: %v", err)
	}

	g := gen.NewGemini(gen.GeminiConfig{
		APIKey:          apiKey,
		Model:           cfg.Generator.Model,
		BaseURL:         cfg.Generator.BaseURL,
		MaxOutputTokens: cfg.Generator.MaxOutputTokens,
		Timeout:         time.Duration(cfg.Generator.TimeoutMS) * time.Millisecond,
	})
	runner := sandbox.NewInterpreter(
		cfg.Sandbox.Interpreter,
		time.Duration(cfg.Sandbox.TimeoutSeconds)*time.Second,
		cfg.Sandbox.ScratchDir,
	)

	srv := server.NewServer(loop.New(g, runner), st, cfg.Loop.MaxAttempts, cfg.Loop.AttemptCap, apiKey != "")
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("rexecd %s (%s) listening on http://%s", version.Version, version.Commit, addr)
	log.Fatal(http.ListenAndServe(addr, srv.Handler()))
}

func ensureDBPath(root string) (string, error) {
	dir := filepath.Join(root, ".rexec")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "rexec.db"), nil
}
