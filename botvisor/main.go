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

// Command botvisor is the client for botvisord.  Without a subcommand
// it starts the full screen status display.
//
// The flags are
//
//	-a <address>	- the botvisord URL, including any FORCE_SCRIPT_NAME
//			  prefix; default is http://127.0.0.1:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	services            - list all services
//	status [<svc> ...]  - show status for the named services (or all)
//	info <svc>          - show more detailed service info
//	enable  <svc>       - enable the named service
//	disable <svc>       - disable the named service
//	restart <svc>       - restart the named service
//	clear <svc>         - clear the named service
//	log [<svc>]         - show the log of a service, or of botvisord
//	ui                  - full screen status display
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/botbotme/botvisor/botvisor/util"
	"github.com/botbotme/botvisor/rest"
)

const defaultAddr = "http://127.0.0.1:8321"

type clientFlags struct {
	addr string
	auth string
}

func (f *clientFlags) client() (*rest.Client, error) {
	client := rest.NewClient(nil, f.addr)
	if f.auth != "" {
		user, pass, ok := strings.Cut(f.auth, ":")
		if !ok {
			return nil, errors.New("bad user:pass supplied")
		}
		client.SetAuth(user, pass)
	}
	return client, nil
}

// action is a subcommand taking exactly one service name.
func action(use, short string, f *clientFlags, do func(*rest.Client, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <service>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, e := f.client()
			if e != nil {
				return e
			}
			return do(c, cmd.Context(), args[0])
		},
	}
}

func newServicesCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List all services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, e := f.client()
			if e != nil {
				return e
			}
			names, e := c.Services(cmd.Context())
			if e != nil {
				return e
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newStatusCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [<service> ...]",
		Short: "Show the status of services",
		RunE: func(cmd *cobra.Command, names []string) error {
			c, e := f.client()
			if e != nil {
				return e
			}
			ctx := cmd.Context()
			if len(names) == 0 {
				if names, e = c.Services(ctx); e != nil {
					return e
				}
			}
			infos := []*rest.ServiceInfo{}
			for _, n := range names {
				info, e := c.GetService(ctx, n)
				if e != nil {
					log.Printf("Failed: %s: %v", n, e)
					continue
				}
				infos = append(infos, info)
			}
			util.SortServices(infos)
			now := time.Now()
			for _, info := range infos {
				fmt.Fprintln(cmd.OutOrStdout(), util.StatusLine(info, now))
			}
			return nil
		},
	}
}

func newInfoCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <service>",
		Short: "Show detailed service information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, e := f.client()
			if e != nil {
				return e
			}
			s, e := c.GetService(cmd.Context(), args[0])
			if e != nil {
				return e
			}
			for _, line := range util.InfoLines(s) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newLogCmd(f *clientFlags) *cobra.Command {
	var size int
	var page int
	cmd := &cobra.Command{
		Use:   "log [<service>]",
		Short: "Show the log of a service, or of botvisord",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, e := f.client()
			if e != nil {
				return e
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			var li *rest.LogInfo
			if size > 0 {
				li, e = c.LogPage(cmd.Context(), name, page, size)
			} else {
				li, e = c.GetLog(cmd.Context(), name)
			}
			if e != nil {
				return e
			}
			for _, r := range li.Records {
				fmt.Fprintln(cmd.OutOrStdout(), util.LogLine(r))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&size, "size", "s", 0, "records per page (0 for the whole log)")
	cmd.Flags().IntVarP(&page, "page", "p", 0, "page to show, with --size (0 for the latest)")
	return cmd
}

func newUICmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Full screen status display",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, e := f.client()
			if e != nil {
				return e
			}
			return doUI(c, f.addr)
		},
	}
}

func newRootCmd() *cobra.Command {
	f := &clientFlags{}
	ui := newUICmd(f)
	root := &cobra.Command{
		Use:          "botvisor",
		Short:        "Control the botbot processes supervised by botvisord",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         ui.RunE,
	}
	fs := root.PersistentFlags()
	fs.StringVarP(&f.addr, "addr", "a", defaultAddr, "botvisord address")
	fs.StringVarP(&f.auth, "user", "u", "", "user:pass authentication")

	root.AddCommand(
		newServicesCmd(f),
		newStatusCmd(f),
		newInfoCmd(f),
		action("enable", "Enable a service", f, (*rest.Client).EnableService),
		action("disable", "Disable a service", f, (*rest.Client).DisableService),
		action("restart", "Restart a service", f, (*rest.Client).RestartService),
		action("clear", "Clear a failed service", f, (*rest.Client).ClearService),
		newLogCmd(f),
		ui,
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("Failed: %v", err)
	}
}
