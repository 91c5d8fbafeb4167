// Package core implements the core functionality for pipwright that is shared across all components.
package core

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// LogOptions controls how the global logger is built.
type LogOptions struct {
	Pretty  bool   // human-readable colored output instead of JSON
	Verbose bool   // debug level instead of info
	LogFile string // optional file to tee log output into
}

// Init initializes zap's global logger.
// After calling this, we use zap.L() directly. JSON output goes to stderr so
// the journal picks it up; when LogFile is set the same lines are also
// appended there (the manifest variant keeps its log beside the venv).
func Init(opts LogOptions) error {
	var config zap.Config

	if opts.Pretty {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	if opts.LogFile != "" {
		config.OutputPaths = append(config.OutputPaths, opts.LogFile)
	}

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// StderrIsTerminal reports whether stderr is attached to a terminal.
// Used to pick pretty output when no explicit log format is forced.
func StderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// LogDeferredError runs a deferred cleanup func and logs its error, if any.
// Useful for defer statements where the error has nowhere else to go.
func LogDeferredError(f func() error) {
	if err := f(); err != nil {
		zap.L().Debug("Deferred cleanup failed", zap.Error(err))
	}
}
