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

// Package upstart reads and writes upstart job files, the format the
// classic botbot deployment used for its web, plugins and bot jobs, and
// converts them to botvisor process manifests.
//
// A typical job looks like:
//
//	description "botbot chat bot"
//	start on startup
//	stop on shutdown
//	respawn
//	setuid www-data
//	env LANG=en_US.UTF-8
//	env STORAGE_URL=postgres://botbot@localhost/botbot
//	exec /srv/botbot/bin/botbot-bot
//
// Only the stanzas that have a meaning under botvisor are interpreted.
// Stanzas that only make sense to init are accepted and recorded in
// Job.Ignored; anything else is an error.
package upstart
