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

package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botbotme/botvisor"
	"github.com/botbotme/botvisor/config"
	"github.com/botbotme/botvisor/stack"
)

const jsonManifest = `{
	"name": "irc",
	"description": "irc bridge",
	"command": ["/usr/bin/irc-bridge", "-v"],
	"restart": true,
	"enable": true
}`

const confManifest = `description "plugin worker"
start on startup and started storage
stop on shutdown
respawn
setuid www-data
env LANG=en_US.UTF-8
exec python manage.py run_plugins
`

func writeFile(t *testing.T, path, text string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
}

func names(m *botvisor.Manager) []string {
	svcs, _, _ := m.Services()
	var res []string
	for _, s := range svcs {
		res = append(res, s.Name())
	}
	return res
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "services", "irc.json"), jsonManifest)
	writeFile(t, filepath.Join(dir, "services", "plugins.conf"), confManifest)
	writeFile(t, filepath.Join(dir, "services", "broken.json"), `{"name": "x", "bogus": 1}`)
	writeFile(t, filepath.Join(dir, "services", "README"), "ignored")

	m := botvisor.NewManager("load-test")
	defer m.Shutdown()
	assert.Equal(t, 2, loadDir(m, dir))
	assert.Equal(t, []string{"irc", "plugins"}, names(m))

	svc, err := m.FindService("plugins")
	require.NoError(t, err)
	assert.Equal(t, []string{"storage"}, svc.Depends())
	assert.True(t, svc.AutoStart())

	// Loading again skips services that exist.
	assert.Equal(t, 0, loadDir(m, dir))
}

func TestLoadDirMissing(t *testing.T) {
	m := botvisor.NewManager("load-test")
	defer m.Shutdown()
	assert.Equal(t, 0, loadDir(m, t.TempDir()))
}

// lookup serves a fixed environment to config.Load.
func lookup(env map[string]string) config.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestExport(t *testing.T) {
	settings, err := config.Load(lookup(map[string]string{
		config.EnvStorageURL: "sqlite:///var/lib/botbot/botbot.db",
		config.EnvQueueURL:   "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	for _, format := range []string{formatUpstart, formatJson} {
		dir := t.TempDir()
		files, err := export(filepath.Join(dir, "services"), format, settings, stack.Options{})
		require.NoError(t, err, format)
		assert.Len(t, files, 3, format)

		m := botvisor.NewManager("export-test")
		assert.Equal(t, 3, loadDir(m, dir), format)
		assert.ElementsMatch(t, []string{"web", "plugins", "bot"}, names(m), format)

		svc, err := m.FindService("bot")
		require.NoError(t, err)
		assert.Equal(t, []string{"storage", "queue"}, svc.Depends(), format)
		assert.True(t, svc.AutoStart(), format)
		m.Shutdown()
	}

	_, err = export(t.TempDir(), "yaml", settings, stack.Options{})
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	t.Setenv(config.EnvStorageURL, "")
	t.Setenv(config.EnvQueueURL, "")
	dir := t.TempDir()

	// The bot cannot run without its stores, so there is nothing to
	// export either.
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"export", dir})
	assert.ErrorIs(t, cmd.Execute(), config.ErrMissing)

	t.Setenv(config.EnvStorageURL, "postgres://botbot@localhost/botbot")
	t.Setenv(config.EnvQueueURL, "redis://localhost:6379/0")

	cmd = newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--user", "botbot", "export", dir})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 3, strings.Count(out.String(), "\n"))

	b, err := os.ReadFile(filepath.Join(dir, "bot.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "setuid botbot\n")
	assert.Contains(t, string(b), "start on startup\n")
}

func TestReadAuth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "htpasswd")
	writeFile(t, path, "admin:$2a$04$abcdefghijklmnopqrstuu\n")
	user, hash, err := readAuth(path)
	require.NoError(t, err)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "$2a$04$abcdefghijklmnopqrstuu", string(hash))

	writeFile(t, path, "nocolon\n")
	_, _, err = readAuth(path)
	assert.Error(t, err)
}

func TestSetup(t *testing.T) {
	settings, err := config.Load(lookup(map[string]string{
		config.EnvStorageURL: "sqlite://:memory:",
		config.EnvQueueURL:   "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "services", "irc.json"), jsonManifest)

	df := &daemonFlags{
		name:  "setup-test",
		dir:   dir,
		stack: true,
		log:   config.LoggerSettings{LogType: config.LogTypeConsole},
	}
	m, err := setup(df, settings, stack.Options{})
	require.NoError(t, err)
	defer m.Shutdown()
	assert.Equal(t, []string{"storage:sqlite", "queue:redis", "web", "plugins", "bot", "irc"}, names(m))

	df.stack = false
	m2, err := setup(df, settings, stack.Options{})
	require.NoError(t, err)
	defer m2.Shutdown()
	assert.Equal(t, []string{"storage:sqlite", "queue:redis", "irc"}, names(m2))

	df.stack = true
	_, err = setup(df, &config.Settings{Lang: config.DefaultLang}, stack.Options{})
	assert.ErrorIs(t, err, config.ErrMissing)
	df.stack = false

	df.log.LogType = "syslog"
	_, err = setup(df, settings, stack.Options{})
	assert.Error(t, err)
}
