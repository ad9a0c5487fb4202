package chunkhouse

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Options configures a World. Zero limits mean unlimited.
type Options struct {
	EntitiesPerChunk       int            `toml:"entities_per_chunk" yaml:"entities_per_chunk"`
	ChunkMemoryLimit       int            `toml:"chunk_memory_limit" yaml:"chunk_memory_limit"`
	BookkeepingMemoryLimit int            `toml:"bookkeeping_memory_limit" yaml:"bookkeeping_memory_limit"`
	ExpectedChunkGroups    int            `toml:"expected_chunk_groups" yaml:"expected_chunk_groups"`
	MaxSharedValues        int            `toml:"max_shared_values" yaml:"max_shared_values"`
	Logging                LoggingOptions `toml:"logging" yaml:"logging"`
}

type LoggingOptions struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "json" or "console"
}

func DefaultOptions() Options {
	return Options{
		EntitiesPerChunk:    128,
		ExpectedChunkGroups: 8,
		Logging: LoggingOptions{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadOptions reads options from a TOML or YAML file, chosen by extension.
// Fields missing from the file keep their defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read options %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &opts)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &opts)
	default:
		return opts, fmt.Errorf("options %s: unsupported format %q", path, filepath.Ext(path))
	}
	if err != nil {
		return opts, fmt.Errorf("parse options %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("options %s: %w", path, err)
	}
	return opts, nil
}

func (o Options) Validate() error {
	var errs []error
	if o.EntitiesPerChunk < 1 {
		errs = append(errs, fmt.Errorf("entities_per_chunk must be positive, got %d", o.EntitiesPerChunk))
	}
	if o.ChunkMemoryLimit < 0 {
		errs = append(errs, fmt.Errorf("chunk_memory_limit must not be negative, got %d", o.ChunkMemoryLimit))
	}
	if o.BookkeepingMemoryLimit < 0 {
		errs = append(errs, fmt.Errorf("bookkeeping_memory_limit must not be negative, got %d", o.BookkeepingMemoryLimit))
	}
	if o.ExpectedChunkGroups < 0 {
		errs = append(errs, fmt.Errorf("expected_chunk_groups must not be negative, got %d", o.ExpectedChunkGroups))
	}
	if o.MaxSharedValues < 0 {
		errs = append(errs, fmt.Errorf("max_shared_values must not be negative, got %d", o.MaxSharedValues))
	}
	return errors.Join(errs...)
}

// NewLogger builds a zap logger: json selects the production encoder, anything
// else a compact console encoder.
func (o LoggingOptions) NewLogger() (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(o.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if o.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
