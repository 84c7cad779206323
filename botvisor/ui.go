//go:build !plan9

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
	"github.com/botbotme/botvisor/botvisor/ui"
	"github.com/botbotme/botvisor/rest"
)

func doUI(client *rest.Client, url string) error {
	app := ui.NewApp(client, url)
	return app.Run()
}

/*
   Our screen has the following appearance:

    http://127.0.0.1:8321/                                   Botvisor v1.0
    3 Services  1 Faulted  2 Running  0 Standby  0 Disabled
   ____________________________________________________________________________
   bot                  failed        0:00:04   Failed: exit status 1
   plugins              running       1:10:32   Started: Enabled service
   web                  running       1:10:32   Started: Enabled service
   ____________________________________________________________________________
   [Q] Quit [H] Help [I] Info [L] Log [D] Disable [C] Clear [R] Restart
*/
