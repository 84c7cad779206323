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

// Command botvisord supervises the botbot processes and serves the
// control API.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/botbotme/botvisor/config"
	"github.com/botbotme/botvisor/stack"
)

// stackFlags holds the flags that shape the default job set.
type stackFlags struct {
	user    string
	group   string
	dir     string
	addr    string
	web     string
	plugins string
	bot     string
}

func (f *stackFlags) register(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVar(&f.user, "user", "", "account the processes run as (default $BOTVISOR_USER or www-data)")
	fs.StringVar(&f.group, "group", "", "group the processes run as")
	fs.StringVar(&f.dir, "chdir", "", "working directory of the processes")
	fs.StringVar(&f.addr, "web-addr", stack.DefaultAddr, "address the wsgi server binds")
	fs.StringVar(&f.web, "web-cmd", "", "command line of the web process")
	fs.StringVar(&f.plugins, "plugins-cmd", "", "command line of the plugin worker")
	fs.StringVar(&f.bot, "bot-cmd", "", "command line of the bot")
}

func (f *stackFlags) options() stack.Options {
	return stack.Options{
		User:      f.user,
		Group:     f.group,
		Directory: f.dir,
		Addr:      f.addr,
		Web:       splitCommand(f.web),
		Plugins:   splitCommand(f.plugins),
		Bot:       splitCommand(f.bot),
	}
}

func newRootCmd() *cobra.Command {
	sf := &stackFlags{}
	df := &daemonFlags{
		log: config.LoggerSettings{LogType: config.LogTypeConsole},
	}
	root := &cobra.Command{
		Use:   "botvisord",
		Short: "Supervise the botbot web, plugin and bot processes",
		Long: `botvisord starts the botbot processes at startup, respawns them when
they exit, runs them as an unprivileged user, and stops them on shutdown.

Process manifests are read from DIR/services, as JSON (*.json) or as
upstart jobs (*.conf).  With --stack the web, plugins and bot jobs are
built in.  The following environment variables are used:
- STORAGE_URL             database the processes use
- REDIS_PLUGIN_QUEUE_URL  queue between the bot and the plugins
- FORCE_SCRIPT_NAME       path prefix the API is served under
- USE_X_FORWARDED_HOST    trust X-Forwarded-Host from the proxy
- LANG                    locale of the processes (default en_US.UTF-8)`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), df, sf.options())
		},
	}
	sf.register(root)
	df.register(root)
	root.AddCommand(newExportCmd(sf))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
