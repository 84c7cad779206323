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

package backend

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/botbotme/botvisor"
)

type queue struct {
	opts   *redis.Options
	client *redis.Client
}

func (q *queue) open(ctx context.Context) error {
	q.client = redis.NewClient(q.opts)
	return nil
}

func (q *queue) ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *queue) close() error {
	if q.client == nil {
		return nil
	}
	err := q.client.Close()
	q.client = nil
	return err
}

// NewQueue returns a service named queue:redis that is running while
// the Redis server at rawURL answers PING.
func NewQueue(rawURL string) (*botvisor.Service, error) {
	switch s := scheme(rawURL); s {
	case "redis", "rediss", "unix":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = DefaultTimeout
	opts.MaxRetries = -1
	return newBackend(QueueName+":redis", rawURL, &queue{opts: opts}), nil
}
