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

package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/botbotme/botvisor/rest"
)

func TestKeyMarkup(t *testing.T) {
	assert.Equal(t, "[%AQ%N] Quit [%AH%N] Help",
		keyMarkup([]string{"[Q] Quit", "[H] Help"}))
	assert.Equal(t, "100%% [%AX%N]", keyMarkup([]string{"100%", "[X]"}))
	assert.Equal(t, "", keyMarkup(nil))
}

func TestEscapeMarkup(t *testing.T) {
	assert.Equal(t, "50%% done", escapeMarkup("50% done"))
	assert.Equal(t, "plain", escapeMarkup("plain"))
}

func TestPrompt(t *testing.T) {
	assert.Equal(t, "bob_            ", prompt([]rune("bob"), true))
	assert.Equal(t, "bob             ", prompt([]rune("bob"), false))

	assert.Equal(t, "<mnopqrstuvwxyz_",
		prompt([]rune("abcdefghijklmnopqrstuvwxyz"), true))
}

func TestServiceKeys(t *testing.T) {
	base := []string{"[Q] Quit"}
	assert.Equal(t, []string{"[Q] Quit", "[E] Enable"},
		ServiceKeys(base, &rest.ServiceInfo{}))
	assert.Equal(t, []string{"[Q] Quit", "[D] Disable", "[R] Restart"},
		ServiceKeys(base, &rest.ServiceInfo{Enabled: true, Running: true}))
	assert.Equal(t, []string{"[Q] Quit", "[D] Disable", "[C] Clear", "[R] Restart"},
		ServiceKeys(base, &rest.ServiceInfo{Enabled: true, Failed: true}))
}
