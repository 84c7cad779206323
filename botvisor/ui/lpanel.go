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
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/botbotme/botvisor/botvisor/util"
	"github.com/botbotme/botvisor/rest"
)

// LogPanel follows the log of one service, or the botvisord log when no
// service is named.
type LogPanel struct {
	text *views.TextArea
	info *rest.ServiceInfo
	name string
	last *rest.LogInfo

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}

	p.Panel.Init(app)

	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				return true
			}
			if p.handleServiceKey(ev.Rune(), p.info) {
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *LogPanel) SetName(name string) {
	p.name = name
	p.info = nil
	p.last = nil
	p.text.SetLines(nil)
	if name == "" {
		p.SetTitle("Botvisor log")
	} else {
		p.SetTitle("Log for " + name)
	}
}

// update refreshes the content from the App.  It runs on the
// application goroutine, as part of Draw.
func (p *LogPanel) update() {
	var svcinfo *rest.ServiceInfo
	var e1 error
	if p.name != "" {
		svcinfo, e1 = p.App().GetItem(p.name)
	}
	loginfo, e2 := p.App().GetLog(p.name)
	p.info = svcinfo

	words := []string{"[ESC] Main", "[H] Help"}

	if (svcinfo == nil && p.name != "") || loginfo == nil {
		e := e2
		if e == nil {
			e = e1
		}
		if e != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", e))
			p.SetError()
		} else {
			p.SetStatus("Loading...")
			p.SetNormal()
		}
		p.SetKeys(words)
		return
	}

	p.SetStatus(fmt.Sprintf("%d records", len(loginfo.Records)))
	if svcinfo != nil {
		p.SetServiceStyle(svcinfo)
	} else {
		p.SetNormal()
	}

	if loginfo != p.last {
		p.last = loginfo
		lines := make([]string, 0, len(loginfo.Records))
		for _, r := range loginfo.Records {
			lines = append(lines, util.LogLine(r))
		}
		p.text.SetLines(lines)
		// Keep the newest records in view.
		p.text.SetCursor(0, len(lines)-1)
	}

	if svcinfo != nil {
		words = append(words, "[I] Info")
		words = ServiceKeys(words, svcinfo)
	}
	p.SetKeys(words)
}
