package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-fmu/abi"
	"github.com/wippyai/wasm-fmu/engine"
)

// EnvPrefix scopes the environment variables read by the shared library.
const EnvPrefix = "WASMFMU"

// Settings is the process configuration of the shared library.
type Settings struct {
	Teardown         engine.TeardownPolicy
	MemoryLimitPages uint32
	// LogLevel is a zap level name; empty disables logging.
	LogLevel string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("teardown", "never")
	v.SetDefault("memory_limit_pages", "0")
	v.SetDefault("log_level", "")
	return v
}

// loadSettings reads WASMFMU_TEARDOWN, WASMFMU_MEMORY_LIMIT_PAGES and WASMFMU_LOG_LEVEL.
func loadSettings(v *viper.Viper) (Settings, error) {
	teardown, err := engine.ParseTeardownPolicy(v.GetString("teardown"))
	if err != nil {
		return Settings{}, fmt.Errorf("%s_TEARDOWN: %w", EnvPrefix, err)
	}

	var pages uint64
	if raw := strings.TrimSpace(v.GetString("memory_limit_pages")); raw != "" {
		pages, err = strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return Settings{}, fmt.Errorf("%s_MEMORY_LIMIT_PAGES: %w", EnvPrefix, err)
		}
		if pages > 65536 {
			return Settings{}, fmt.Errorf("%s_MEMORY_LIMIT_PAGES: %d exceeds 65536 pages", EnvPrefix, pages)
		}
	}

	level := strings.TrimSpace(v.GetString("log_level"))
	if level != "" {
		if _, err := zap.ParseAtomicLevel(level); err != nil {
			return Settings{}, fmt.Errorf("%s_LOG_LEVEL: %w", EnvPrefix, err)
		}
	}

	return Settings{
		Teardown:         teardown,
		MemoryLimitPages: uint32(pages),
		LogLevel:         level,
	}, nil
}

// newLogger builds a JSON logger writing to stderr.
func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		return zap.NewNop(), nil
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func (s Settings) options(logger *zap.Logger) abi.Options {
	return abi.Options{
		Engine: engine.Config{
			Teardown:         s.Teardown,
			MemoryLimitPages: s.MemoryLimitPages,
		},
		Logger: logger.Named("fmi2wasm"),
	}
}
