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

// Package config reads the environment the botbot processes are
// configured with, and the daemon's own log settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Environment variable names.
const (
	EnvStorageURL       = "STORAGE_URL"
	EnvQueueURL         = "REDIS_PLUGIN_QUEUE_URL"
	EnvScriptName       = "FORCE_SCRIPT_NAME"
	EnvUseForwardedHost = "USE_X_FORWARDED_HOST"
	EnvLang             = "LANG"
	EnvUser             = "BOTVISOR_USER"
)

const (
	DefaultLang = "en_US.UTF-8"
	DefaultUser = "www-data"
)

var ErrMissing = errors.New("required setting missing")

// Settings is the deployment environment.  StorageURL and QueueURL are
// consumed by the bot and plugin processes; ScriptName and
// UseForwardedHost describe how the web process (and the botvisor API)
// sits behind a reverse proxy.
type Settings struct {
	StorageURL       string `validate:"omitempty,dsn"`
	QueueURL         string `validate:"omitempty,dsn"`
	ScriptName       string `validate:"omitempty,startswith=/"`
	UseForwardedHost bool
	Lang             string `validate:"required"`
	User             string
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ParseBool accepts the spellings used in both Go and Django settings
// files, "True" and "False" included.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "", "0", "f", "false", "n", "no", "off", "none":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// Load reads settings using lookup.  A nil lookup uses os.LookupEnv.
func Load(lookup LookupFunc) (*Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	s := &Settings{
		StorageURL: get(EnvStorageURL),
		QueueURL:   get(EnvQueueURL),
		ScriptName: get(EnvScriptName),
		Lang:       get(EnvLang),
		User:       get(EnvUser),
	}
	if s.Lang == "" {
		s.Lang = DefaultLang
	}
	if s.User == "" {
		s.User = DefaultUser
	}
	if v := get(EnvUseForwardedHost); v != "" {
		b, e := ParseBool(v)
		if e != nil {
			return nil, fmt.Errorf("%s: %w", EnvUseForwardedHost, e)
		}
		s.UseForwardedHost = b
	}
	// "/" alone means the root, and a trailing slash would double up
	// when paths are appended.
	s.ScriptName = strings.TrimRight(s.ScriptName, "/")
	if e := s.Validate(); e != nil {
		return nil, e
	}
	return s, nil
}

// FromEnv is Load(os.LookupEnv).
func FromEnv() (*Settings, error) {
	return Load(os.LookupEnv)
}

// validDSN accepts scheme://rest connection strings that parse as URLs.
// The validator's own url tag insists on a host, which rules out
// sqlite:///path and sqlite://:memory:, so sqlite paths are checked
// separately.
func validDSN(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	scheme, rest, ok := strings.Cut(v, "://")
	if !ok || rest == "" {
		return false
	}
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		return rest == ":memory:" || strings.HasPrefix(rest, "/")
	}
	u, err := url.Parse(v)
	return err == nil && strings.EqualFold(u.Scheme, scheme)
}

// Validate checks that all fields in Settings are valid.
func (s *Settings) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("dsn", validDSN); err != nil {
		return err
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed for Settings: %w", err)
	}
	return nil
}

// RequireBot returns an error unless everything the bot and plugin
// processes need is set.
func (s *Settings) RequireBot() error {
	var missing []string
	if s.StorageURL == "" {
		missing = append(missing, EnvStorageURL)
	}
	if s.QueueURL == "" {
		missing = append(missing, EnvQueueURL)
	}
	if len(missing) != 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// BotEnv returns the environment for the bot and plugin processes.
func (s *Settings) BotEnv() []string {
	env := []string{EnvLang + "=" + s.Lang}
	if s.StorageURL != "" {
		env = append(env, EnvStorageURL+"="+s.StorageURL)
	}
	if s.QueueURL != "" {
		env = append(env, EnvQueueURL+"="+s.QueueURL)
	}
	return env
}

// WebEnv returns the environment for the web process.  The boolean is
// spelled the way a Django settings module expects.
func (s *Settings) WebEnv() []string {
	env := []string{EnvLang + "=" + s.Lang}
	if s.StorageURL != "" {
		env = append(env, EnvStorageURL+"="+s.StorageURL)
	}
	if s.ScriptName != "" {
		env = append(env, EnvScriptName+"="+s.ScriptName)
	}
	env = append(env, EnvUseForwardedHost+"="+pythonBool(s.UseForwardedHost))
	return env
}
