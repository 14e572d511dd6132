/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process. levelOverride, when it names
// a valid zerolog level, replaces the environment default. taps receive
// the raw JSON lines.
func Setup(environment, levelOverride string, taps ...io.Writer) zerolog.Logger {
	return SetupWithWriter(environment, levelOverride, os.Stdout, taps...)
}

// SetupWithWriter configures zerolog writing to out. Development gets the
// human-readable console writer; everything else logs JSON.
func SetupWithWriter(environment, levelOverride string, out io.Writer, taps ...io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}
	if levelOverride != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(levelOverride)); err == nil {
			level = parsed
		}
	}

	writer := out
	if environment == "development" {
		writer = zerolog.ConsoleWriter{Out: out}
	}
	if len(taps) > 0 {
		writer = zerolog.MultiLevelWriter(append([]io.Writer{writer}, taps...)...)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
