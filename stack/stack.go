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

// Package stack describes the three botbot processes as process
// manifests: the wsgi web application, the plugin worker and the chat
// bot.  Each starts on startup, stops on shutdown, respawns when it
// exits, and runs unprivileged with a UTF-8 locale.
package stack

import (
	"fmt"

	"github.com/botbotme/botvisor"
	"github.com/botbotme/botvisor/backend"
	"github.com/botbotme/botvisor/config"
)

// Job names.
const (
	Web     = "web"
	Plugins = "plugins"
	Bot     = "bot"
)

const DefaultAddr = "127.0.0.1:8000"

// Options overrides the commands and account of the stack.  Zero values
// select the defaults.
type Options struct {
	User      string
	Group     string
	Directory string
	Addr      string
	Web       []string
	Plugins   []string
	Bot       []string
}

func (o Options) webCommand() []string {
	if len(o.Web) != 0 {
		return o.Web
	}
	addr := o.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return []string{"uwsgi", "--http-socket", addr,
		"--module", "botbot.wsgi:application", "--master"}
}

func (o Options) pluginsCommand() []string {
	if len(o.Plugins) != 0 {
		return o.Plugins
	}
	return []string{"python", "manage.py", "run_plugins"}
}

func (o Options) botCommand() []string {
	if len(o.Bot) != 0 {
		return o.Bot
	}
	return []string{"botbot-bot"}
}

func base(name, desc string, cmd []string, s *config.Settings, o Options) botvisor.ProcessManifest {
	user := o.User
	if user == "" {
		user = s.User
	}
	if user == "" {
		user = config.DefaultUser
	}
	return botvisor.ProcessManifest{
		Name:           name,
		Description:    desc,
		Command:        append([]string{}, cmd...),
		Directory:      o.Directory,
		User:           user,
		Group:          o.Group,
		Restart:        true,
		FailOnExit:     true,
		RateLimit:      -1,
		Enable:         true,
		StopOnShutdown: true,
	}
}

// Manifests returns the manifests for web, plugins and bot, in that
// order.  The bot and plugin worker cannot run without both stores, so
// STORAGE_URL and REDIS_PLUGIN_QUEUE_URL are required, and the jobs
// depend on the storage and queue services that watch them.
func Manifests(s *config.Settings, o Options) ([]botvisor.ProcessManifest, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.RequireBot(); err != nil {
		return nil, err
	}

	web := base(Web, "botbot web application", o.webCommand(), s, o)
	web.Env = s.WebEnv()
	web.Depends = []string{backend.StorageName}

	plugins := base(Plugins, "botbot plugin worker", o.pluginsCommand(), s, o)
	plugins.Env = s.BotEnv()
	plugins.Depends = []string{backend.StorageName, backend.QueueName}

	bot := base(Bot, "botbot chat bot", o.botCommand(), s, o)
	bot.Env = s.BotEnv()
	bot.Depends = []string{backend.StorageName, backend.QueueName}

	res := []botvisor.ProcessManifest{web, plugins, bot}
	for i := range res {
		if err := res[i].Validate(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Backends returns services for the configured stores.
func Backends(s *config.Settings) ([]*botvisor.Service, error) {
	var svcs []*botvisor.Service
	if s.StorageURL != "" {
		svc, err := backend.NewStorage(s.StorageURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.EnvStorageURL, err)
		}
		svcs = append(svcs, svc)
	}
	if s.QueueURL != "" {
		svc, err := backend.NewQueue(s.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.EnvQueueURL, err)
		}
		svcs = append(svcs, svc)
	}
	return svcs, nil
}

// Services builds the stores and the three processes, ready to be added
// to a manager.
func Services(s *config.Settings, o Options) ([]*botvisor.Service, error) {
	svcs, err := Backends(s)
	if err != nil {
		return nil, err
	}
	manifests, err := Manifests(s, o)
	if err != nil {
		return nil, err
	}
	for _, m := range manifests {
		svc, err := botvisor.NewProcessFromManifest(m)
		if err != nil {
			return nil, err
		}
		svcs = append(svcs, svc)
	}
	return svcs, nil
}
