// Copyright 2025 Certen Protocol
//
// Package logx configures structured logging shared by the Store and
// Block Producer processes. Every package gets its own component logger
// rather than writing through a single unnamed logger.
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls the global logger created by Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the package-level Logger. It must be called once at
// process startup before any Component logger is derived.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// Component returns a child logger tagged with the given component name,
// e.g. logx.Component("mempool").
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithBlock tags a logger with the block number it concerns.
func WithBlock(l zerolog.Logger, blockNum uint32) zerolog.Logger {
	return l.With().Uint32("block_num", blockNum).Logger()
}

func init() {
	// Safe default so packages imported for tests without calling Init
	// still log somewhere sane instead of panicking on a zero Logger.
	Init(Config{Level: InfoLevel, JSONOutput: true})
}
