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

// Package backend provides services that stand for the stores the
// botbot processes rely on: the database named by STORAGE_URL and the
// Redis queue named by REDIS_PLUGIN_QUEUE_URL.  They run nothing; they
// are "running" while the store answers a ping.  Jobs that declare a
// dependency on "storage" or "queue" therefore only start once the
// store is reachable, and are stopped if it goes away.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/botbotme/botvisor"
)

// Service base names.  Processes depend on these.
const (
	StorageName = "storage"
	QueueName   = "queue"
)

// DefaultTimeout bounds every connection attempt and ping.
const DefaultTimeout = 5 * time.Second

var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// pinger is the store specific part of a backend.
type pinger interface {
	open(ctx context.Context) error
	ping(ctx context.Context) error
	close() error
}

// backend is a botvisor.Provider around a pinger.
type backend struct {
	name    string
	desc    string
	store   pinger
	timeout time.Duration
	logger  *log.Logger
	open    bool
	lock    sync.Mutex
}

func (b *backend) Name() string        { return b.name }
func (b *backend) Description() string { return b.desc }
func (b *backend) Provides() []string  { return nil }
func (b *backend) Depends() []string   { return nil }
func (b *backend) Conflicts() []string { return nil }

func (b *backend) Start() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.store.open(ctx); err != nil {
		return err
	}
	if err := b.store.ping(ctx); err != nil {
		b.store.close()
		return err
	}
	b.open = true
	b.logger.Printf("Connected to %s", b.desc)
	return nil
}

func (b *backend) Stop() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.open {
		return
	}
	if err := b.store.close(); err != nil {
		b.logger.Printf("Close failed: %v", err)
	}
	b.open = false
}

func (b *backend) Check() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.open {
		return botvisor.ErrNotRunning
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.store.ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", b.name, err)
	}
	return nil
}

func (b *backend) Property(n botvisor.PropertyName) (interface{}, error) {
	switch n {
	case botvisor.PropLogger:
		return b.logger, nil
	}
	return nil, botvisor.ErrBadPropName
}

func (b *backend) SetProperty(n botvisor.PropertyName, v interface{}) error {
	switch n {
	case botvisor.PropLogger:
		if v, ok := v.(*log.Logger); ok {
			b.logger = v
			return nil
		}
		return botvisor.ErrBadPropType
	case botvisor.PropNotify:
		// Failures are found by the monitor's periodic checks.
		return nil
	}
	return botvisor.ErrBadPropName
}

func newBackend(name, rawURL string, store pinger) *botvisor.Service {
	desc := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		desc = u.Redacted()
	}
	b := &backend{
		name:    name,
		desc:    desc,
		store:   store,
		timeout: DefaultTimeout,
		logger:  log.New(io.Discard, "", 0),
	}
	svc := botvisor.NewService(b)
	// A store that comes back is picked up by self-healing.
	svc.SetProperty(botvisor.PropRestart, true)
	svc.SetProperty(botvisor.PropAutoStart, true)
	return svc
}

func scheme(rawURL string) string {
	s, _, _ := strings.Cut(rawURL, "://")
	return strings.ToLower(s)
}
