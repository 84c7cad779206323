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
	"os"
	"path/filepath"
	"testing"

	"github.com/natefinch/lumberjack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vals map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load(env(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultLang, s.Lang)
	assert.Equal(t, DefaultUser, s.User)
	assert.Empty(t, s.StorageURL)
	assert.False(t, s.UseForwardedHost)
	assert.ErrorIs(t, s.RequireBot(), ErrMissing)
}

func TestLoadFull(t *testing.T) {
	s, err := Load(env(map[string]string{
		EnvStorageURL:       "postgres://botbot:secret@db/botbot",
		EnvQueueURL:         "redis://localhost:6379/0",
		EnvScriptName:       "/botbot/",
		EnvUseForwardedHost: "True",
		EnvLang:             "de_DE.UTF-8",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/botbot", s.ScriptName)
	assert.True(t, s.UseForwardedHost)
	assert.Equal(t, "de_DE.UTF-8", s.Lang)
	assert.NoError(t, s.RequireBot())

	assert.Equal(t, []string{
		"LANG=de_DE.UTF-8",
		"STORAGE_URL=postgres://botbot:secret@db/botbot",
		"REDIS_PLUGIN_QUEUE_URL=redis://localhost:6379/0",
	}, s.BotEnv())
	assert.Equal(t, []string{
		"LANG=de_DE.UTF-8",
		"STORAGE_URL=postgres://botbot:secret@db/botbot",
		"FORCE_SCRIPT_NAME=/botbot",
		"USE_X_FORWARDED_HOST=True",
	}, s.WebEnv())
}

func TestLoadSqlite(t *testing.T) {
	for _, dsn := range []string{"sqlite:///var/lib/botbot.db", "sqlite://:memory:"} {
		s, err := Load(env(map[string]string{EnvStorageURL: dsn}))
		require.NoError(t, err, dsn)
		assert.Equal(t, dsn, s.StorageURL)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad bool":        {EnvUseForwardedHost: "maybe"},
		"no scheme":       {EnvStorageURL: "localhost/botbot"},
		"bad queue":       {EnvQueueURL: "redis:"},
		"bad port":        {EnvStorageURL: "postgres://h:notaport/db"},
		"bad escape":      {EnvQueueURL: "redis://localhost:6379/%zz"},
		"relative sqlite": {EnvStorageURL: "sqlite://botbot.db"},
		"relative prefix": {EnvScriptName: "botbot"},
	}
	for name, vals := range cases {
		_, err := Load(env(vals))
		assert.Error(t, err, name)
	}
}

func TestRootScriptName(t *testing.T) {
	s, err := Load(env(map[string]string{EnvScriptName: "/"}))
	require.NoError(t, err)
	assert.Empty(t, s.ScriptName)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "True", "YES", "on"} {
		b, err := ParseBool(v)
		require.NoError(t, err)
		assert.True(t, b, v)
	}
	for _, v := range []string{"0", "false", "False", "no", "None", ""} {
		b, err := ParseBool(v)
		require.NoError(t, err)
		assert.False(t, b, v)
	}
	_, err := ParseBool("sometimes")
	assert.Error(t, err)
}

func TestLoggerSettings(t *testing.T) {
	w, err := (&LoggerSettings{LogType: LogTypeConsole}).Writer()
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)

	_, err = (&LoggerSettings{LogType: LogTypeFile}).Writer()
	assert.Error(t, err, "file logger needs a path")

	_, err = (&LoggerSettings{LogType: "syslog"}).Writer()
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "botvisord.log")
	w, err = (&LoggerSettings{
		LogType:    LogTypeFile,
		FilePath:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
	}).Writer()
	require.NoError(t, err)
	lj, ok := w.(*lumberjack.Logger)
	require.True(t, ok)
	_, err = lj.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, lj.Close())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(b))
}
