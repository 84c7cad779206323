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

// Package botvisor supervises the processes that make up a botbot
// deployment: the wsgi web application, the plugin worker, and the chat
// bot.  It plays the role the upstart jobs play in a classic install,
// but runs as an ordinary daemon owned by the deployment.
//
// Each process is a Service backed by a Provider.  Services declare
// dependencies on one another, and on the backing stores (see the
// backend package), so that the bot and plugin worker do not start until
// the database named by STORAGE_URL and the queue named by
// REDIS_PLUGIN_QUEUE_URL are reachable.  A service marked for restart is
// respawned when its process exits, subject to an optional start rate
// limit.
//
// A Manager may be exposed through Go's HTTP handler framework (see the
// rest package), so it can be controlled remotely or embedded in an
// existing server.
package botvisor
