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
	"sync"

	"github.com/gdamore/tcell/v2/views"

	"github.com/botbotme/botvisor/rest"
)

// Panel wraps views.Panel with a title bar on top, a status line below
// it, and a key bar at the bottom.  Every screen of the App is one.
type Panel struct {
	tb   *TitleBar
	sb   *StatusBar
	kb   *KeyBar
	once sync.Once
	app  *App

	views.Panel
}

func (p *Panel) SetTitle(title string) {
	p.tb.SetCenter(title)
}

func (p *Panel) SetKeys(words []string) {
	p.kb.SetKeys(words)
}

func (p *Panel) SetStatus(status string) {
	p.sb.SetText(status)
}

func (p *Panel) SetGood() {
	p.sb.SetGood()
}

func (p *Panel) SetNormal() {
	p.sb.SetNormal()
}

func (p *Panel) SetWarn() {
	p.sb.SetWarn()
}

func (p *Panel) SetError() {
	p.sb.SetError()
}

// SetServiceStyle colors the status line for the state of a service.
func (p *Panel) SetServiceStyle(s *rest.ServiceInfo) {
	switch {
	case !s.Enabled:
		p.SetNormal()
	case s.Failed:
		p.SetError()
	case s.Running:
		p.SetGood()
	default:
		p.SetWarn()
	}
}

// ServiceKeys returns the key bar words for actions valid on s.
func ServiceKeys(words []string, s *rest.ServiceInfo) []string {
	if !s.Enabled {
		return append(words, "[E] Enable")
	}
	words = append(words, "[D] Disable")
	if s.Failed {
		words = append(words, "[C] Clear")
	}
	return append(words, "[R] Restart")
}

// handleServiceKey performs the action bound to r on s, reporting
// whether the key was used.
func (p *Panel) handleServiceKey(r rune, s *rest.ServiceInfo) bool {
	if s == nil {
		return false
	}
	app := p.app
	switch r {
	case 'I', 'i':
		app.ShowInfo(s.Name)
	case 'L', 'l':
		app.ShowLog(s.Name)
	case 'R', 'r':
		if !s.Enabled {
			return false
		}
		app.RestartService(s.Name)
	case 'E', 'e':
		if s.Enabled {
			return false
		}
		app.EnableService(s.Name)
	case 'D', 'd':
		if !s.Enabled {
			return false
		}
		app.DisableService(s.Name)
	case 'C', 'c':
		if !s.Failed {
			return false
		}
		app.ClearService(s.Name)
	default:
		return false
	}
	return true
}

func (p *Panel) Init(app *App) {
	p.once.Do(func() {
		p.app = app

		p.tb = NewTitleBar()
		p.tb.SetRight(app.GetAppName())
		p.tb.SetCenter(" ")

		p.kb = NewKeyBar()

		p.sb = NewStatusBar()

		p.Panel.SetTitle(p.tb)
		p.Panel.SetMenu(p.sb)
		p.Panel.SetStatus(p.kb)
	})
}

func (p *Panel) App() *App {
	return p.app
}
