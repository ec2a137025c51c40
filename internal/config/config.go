package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/throw-if-null/rexec/internal/api"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Generator GeneratorConfig `toml:"generator"`
	Sandbox   SandboxConfig   `toml:"sandbox"`
	Loop      LoopConfig      `toml:"loop"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type GeneratorConfig struct {
	Model           string `toml:"model"`
	BaseURL         string `toml:"base_url"`
	MaxOutputTokens int    `toml:"max_output_tokens"`
	TimeoutMS       int    `toml:"timeout_ms"`
}

type SandboxConfig struct {
	// Interpreter is the argv prefix the code file is appended to,
	// e.g. ["python3"].
	Interpreter    []string `toml:"interpreter"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	ScratchDir     string   `toml:"scratch_dir"`
}

type LoopConfig struct {
	// MaxAttempts is the default budget when a request does not set one.
	MaxAttempts int `toml:"max_attempts"`
	// AttemptCap bounds what callers may request.
	AttemptCap int `toml:"attempt_cap"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
}

func Default() Config {
	return Config{
		Server:    ServerConfig{Host: api.DefaultHost, Port: api.DefaultPort},
		Generator: GeneratorConfig{Model: "gemini-1.5-flash", MaxOutputTokens: 2048, TimeoutMS: 60000},
		Sandbox:   SandboxConfig{Interpreter: []string{"python3"}, TimeoutSeconds: 10},
		Loop:      LoopConfig{MaxAttempts: 5, AttemptCap: 20},
	}
}

var ErrInvalid = errors.New("invalid config")

type LoadResult struct {
	Config     Config
	Found      bool
	Path       string
	ParseError error
}

// Load reads .rexec/config.toml under root, merging any values found onto
// the defaults. A missing file is not an error.
func Load(root string) LoadResult {
	res := LoadResult{Config: Default()}
	path := filepath.Join(root, ".rexec", "config.toml")
	res.Path = path

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res
		}
		res.ParseError = err
		return res
	}

	res.Found = true
	var parsed Config
	if err := toml.Unmarshal(b, &parsed); err != nil {
		res.ParseError = fmt.Errorf("%w: %v", ErrInvalid, err)
		return res
	}

	res.Config = merge(Default(), parsed)
	return res
}

func merge(def Config, cfg Config) Config {
	// Server
	if cfg.Server.Host != "" {
		def.Server.Host = cfg.Server.Host
	}
	if cfg.Server.Port != 0 {
		def.Server.Port = cfg.Server.Port
	}
	// Generator
	if cfg.Generator.Model != "" {
		def.Generator.Model = cfg.Generator.Model
	}
	if cfg.Generator.BaseURL != "" {
		def.Generator.BaseURL = cfg.Generator.BaseURL
	}
	if cfg.Generator.MaxOutputTokens != 0 {
		def.Generator.MaxOutputTokens = cfg.Generator.MaxOutputTokens
	}
	if cfg.Generator.TimeoutMS != 0 {
		def.Generator.TimeoutMS = cfg.Generator.TimeoutMS
	}
	// Sandbox
	if len(cfg.Sandbox.Interpreter) != 0 {
		def.Sandbox.Interpreter = cfg.Sandbox.Interpreter
	}
	if cfg.Sandbox.TimeoutSeconds != 0 {
		def.Sandbox.TimeoutSeconds = cfg.Sandbox.TimeoutSeconds
	}
	if cfg.Sandbox.ScratchDir != "" {
		def.Sandbox.ScratchDir = cfg.Sandbox.ScratchDir
	}
	// Loop
	if cfg.Loop.MaxAttempts != 0 {
		def.Loop.MaxAttempts = cfg.Loop.MaxAttempts
	}
	if cfg.Loop.AttemptCap != 0 {
		def.Loop.AttemptCap = cfg.Loop.AttemptCap
	}
	// Telemetry
	if cfg.Telemetry.OTLPEndpoint != "" {
		def.Telemetry.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.Insecure {
		def.Telemetry.Insecure = true
	}
	return def
}
