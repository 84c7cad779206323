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

// Package ui is the full screen status display of the botvisor command.
// It follows botvisord with long polls, so changes show up as they
// happen rather than on a refresh timer.
package ui

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/botbotme/botvisor/botvisor/util"
	"github.com/botbotme/botvisor/rest"
)

const appName = "Botvisor v1.0"

var errNotFound = errors.New("Service not found")

type App struct {
	app       *views.Application
	view      views.View
	panel     views.Widget
	info      *InfoPanel
	help      *HelpPanel
	log       *LogPanel
	main      *MainPanel
	auth      *AuthPanel
	client    *rest.Client
	logger    *log.Logger
	err       error
	items     []*rest.ServiceInfo
	logName   string
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc
	ctx       context.Context
	cancel    context.CancelFunc
	once      sync.Once
	mx        sync.Mutex

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(name string) {
	a.info.SetName(name)
	a.show(a.info)
}

// ShowLog shows the log of the named service, or the botvisord log if
// name is empty.  The previous log watcher, if any, is cancelled.
func (a *App) ShowLog(name string) {
	if a.logCancel != nil {
		a.logCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.mx.Lock()
	a.logInfo = nil
	a.logErr = nil
	a.logName = name
	a.mx.Unlock()
	a.logCancel = cancel
	a.log.SetName(name)
	go a.refreshLog(ctx, name)

	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

func (a *App) ShowAuth() {
	a.auth.ResetFields()
	a.show(a.auth)
}

// SetUserPassword changes the credentials used for every request.
func (a *App) SetUserPassword(user, pass string) {
	a.client.SetAuth(user, pass)
	a.mx.Lock()
	a.err = nil
	a.mx.Unlock()
}

// do runs an action in the background, so the UI does not block on the
// network.  Failures are reported through the log.
func (a *App) do(verb, name string, fn func(context.Context, string) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
		defer cancel()
		if e := fn(ctx, name); e != nil {
			a.Logf("Failed to %s %s: %v", verb, name, e)
		}
	}()
}

func (a *App) DisableService(name string) {
	a.do("disable", name, a.client.DisableService)
}

func (a *App) EnableService(name string) {
	a.do("enable", name, a.client.EnableService)
}

func (a *App) ClearService(name string) {
	a.do("clear", name, a.client.ClearService)
}

func (a *App) RestartService(name string) {
	a.do("restart", name, a.client.RestartService)
}

func (a *App) Quit() {
	a.cancel()
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetClient() *rest.Client {
	return a.client
}

func (a *App) GetAppName() string {
	return appName
}

func NewApp(client *rest.Client, url string) *App {
	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, url)
	app.auth = NewAuthPanel(app, url)
	app.panel = app.main
	return app
}

func (a *App) getItems(ctx context.Context) ([]*rest.ServiceInfo, error) {
	names, e := a.client.Services(ctx)
	if e != nil {
		return nil, e
	}
	items := make([]*rest.ServiceInfo, 0, len(names))
	for _, n := range names {
		item, e := a.client.GetService(ctx, n)
		if e == nil {
			items = append(items, item)
		}
	}
	util.SortServices(items)
	return items, nil
}

// refresh keeps the app items current.
func (a *App) refresh() {
	var info *rest.ManagerInfo
	for {
		items, e := a.getItems(a.ctx)

		a.mx.Lock()
		a.items = items
		a.err = e
		a.mx.Unlock()
		a.app.Update()
		if e == nil {
			var ni *rest.ManagerInfo
			if ni, e = a.client.Watch(a.ctx, info); e == nil {
				info = ni
			}
		}
		if a.ctx.Err() != nil {
			return
		}
		if e != nil {
			info = nil
			time.Sleep(2 * time.Second)
		}
	}
}

func (a *App) refreshLog(ctx context.Context, name string) {
	info, e := a.client.GetLog(ctx, name)

	for {
		a.mx.Lock()
		if a.logName == name {
			a.logInfo = info
			a.logErr = e
		}
		a.mx.Unlock()
		a.app.Update()
		if ctx.Err() != nil {
			return
		}
		if e != nil {
			time.Sleep(2 * time.Second)
			info, e = a.client.GetLog(ctx, name)
			continue
		}
		info, e = a.client.WatchLog(ctx, name, info)
	}
}

func (a *App) GetItems() ([]*rest.ServiceInfo, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.items, a.err
}

func (a *App) GetItem(name string) (*rest.ServiceInfo, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	for _, i := range a.items {
		if i.Name == name {
			return i, nil
		}
	}
	return nil, errNotFound
}

func (a *App) GetLog(name string) (*rest.LogInfo, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.logName == name {
		return a.logInfo, a.logErr
	}
	return nil, nil
}

// Run takes over the terminal until the user quits.
func (a *App) Run() error {
	a.Logf("Starting up user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	a.once.Do(func() {
		go a.refresh()
		go func() {
			// Durations on screen tick once a second.
			t := time.NewTicker(time.Second)
			defer t.Stop()
			for {
				select {
				case <-a.ctx.Done():
					return
				case <-t.C:
					a.app.Update()
				}
			}
		}()
	})
	e := a.app.Run()
	a.cancel()
	return e
}
