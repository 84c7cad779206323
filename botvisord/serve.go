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
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/botbotme/botvisor"
	"github.com/botbotme/botvisor/config"
	"github.com/botbotme/botvisor/proxy"
	"github.com/botbotme/botvisor/rest"
	"github.com/botbotme/botvisor/stack"
)

type daemonFlags struct {
	addr     string
	dir      string
	name     string
	enable   bool
	stack    bool
	maxConns int
	authFile string
	log      config.LoggerSettings
}

func (f *daemonFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.addr, "addr", "a", "127.0.0.1:8321", "listen address")
	fs.StringVarP(&f.dir, "dir", "d", ".", "manifest directory")
	fs.StringVarP(&f.name, "name", "n", "botvisord", "botvisor name")
	fs.BoolVarP(&f.enable, "enable", "e", false, "enable all services, not just those started on startup")
	fs.BoolVar(&f.stack, "stack", false, "supervise the built in web, plugins and bot jobs")
	fs.IntVar(&f.maxConns, "max-conns", 64, "maximum concurrent API connections (0 for no limit)")
	fs.StringVar(&f.authFile, "auth-file", "", "file holding user:bcrypt-hash for API basic auth")
	fs.StringVar(&f.log.LogType, "log-type", f.log.LogType, "log destination: console or file")
	fs.StringVar(&f.log.FilePath, "log-file", "", "log file path, for --log-type file")
	fs.IntVar(&f.log.MaxSize, "log-max-size", 0, "megabytes before the log file is rotated")
	fs.IntVar(&f.log.MaxBackups, "log-max-backups", 0, "rotated log files to keep")
	fs.IntVar(&f.log.MaxAge, "log-max-age", 0, "days to keep rotated log files")
}

func splitCommand(s string) []string {
	return strings.Fields(s)
}

// readAuth reads an htpasswd style user:hash line.
func readAuth(path string) (string, []byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	line, _, _ := strings.Cut(string(b), "\n")
	user, hash, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok || user == "" || hash == "" {
		return "", nil, fmt.Errorf("%s: expected user:hash", path)
	}
	return user, []byte(hash), nil
}

// setup builds the manager and its services without starting anything.
func setup(df *daemonFlags, settings *config.Settings, opts stack.Options) (*botvisor.Manager, error) {
	w, err := df.log.Writer()
	if err != nil {
		return nil, err
	}
	m := botvisor.NewManager(df.name)
	m.SetLogWriter(w)
	m.StopMonitoring()

	var svcs []*botvisor.Service
	if df.stack {
		svcs, err = stack.Services(settings, opts)
	} else {
		svcs, err = stack.Backends(settings)
	}
	if err != nil {
		m.Shutdown()
		return nil, err
	}
	for _, svc := range svcs {
		m.AddService(svc)
	}
	loadDir(m, df.dir)
	return m, nil
}

func serve(ctx context.Context, df *daemonFlags, opts stack.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, err := config.FromEnv()
	if err != nil {
		return err
	}
	m, err := setup(df, settings, opts)
	if err != nil {
		return err
	}

	h := rest.NewHandler(m, proxy.Settings{
		ScriptName:       settings.ScriptName,
		UseForwardedHost: settings.UseForwardedHost,
	})
	if df.authFile != "" {
		user, hash, err := readAuth(df.authFile)
		if err == nil {
			err = h.SetAuth(user, hash)
		}
		if err != nil {
			m.Shutdown()
			return err
		}
	}

	ln, err := net.Listen("tcp", df.addr)
	if err != nil {
		m.Shutdown()
		return err
	}
	if df.maxConns > 0 {
		ln = netutil.LimitListener(ln, df.maxConns)
	}

	if df.enable {
		svcs, _, _ := m.Services()
		for _, s := range svcs {
			if err := s.Enable(); err != nil {
				log.Printf("Failed to enable %s: %v", s.Name(), err)
			}
		}
	} else if err := m.EnableAutoStart(); err != nil {
		log.Printf("Failed to enable services: %v", err)
	}
	m.StartMonitoring()

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(ln)
	}()

	// Shut down cleanly on the usual termination signals.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(sctx)
	m.Shutdown()
	return err
}
