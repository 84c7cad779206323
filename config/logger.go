// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/natefinch/lumberjack"
)

// Log type constants
const (
	LogTypeConsole = "console"
	LogTypeFile    = "file"
)

// LoggerSettings selects where the daemon log goes.  File logs are
// rotated by size.
type LoggerSettings struct {
	LogType    string `validate:"required,oneof=console file"`
	FilePath   string `validate:"required_if=LogType file"`
	MaxSize    int    `validate:"omitempty,min=1,max=1024"` // megabytes
	MaxBackups int    `validate:"omitempty,min=1,max=100"`
	MaxAge     int    `validate:"omitempty,min=1,max=365"` // days
}

// Validate checks that all fields in LoggerSettings are valid.
func (s *LoggerSettings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed for LoggerSettings: %w", err)
	}
	return nil
}

// Writer returns the destination for log output.
func (s *LoggerSettings) Writer() (io.Writer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.LogType {
	case LogTypeFile:
		return &lumberjack.Logger{
			Filename:   s.FilePath,
			MaxSize:    s.MaxSize,
			MaxBackups: s.MaxBackups,
			MaxAge:     s.MaxAge,
		}, nil
	default:
		return os.Stderr, nil
	}
}
