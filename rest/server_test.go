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

package rest

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/botbotme/botvisor"
	"github.com/botbotme/botvisor/proxy"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (int, error) {
	tl.t.Log(strings.Trim(string(p), "\n"))
	return len(p), nil
}

// stub is a provider that always starts and stays healthy.
type stub struct {
	name      string
	conflicts []string
	logger    *log.Logger
}

func (s *stub) Name() string        { return s.name }
func (s *stub) Description() string { return "stub " + s.name }
func (s *stub) Provides() []string  { return nil }
func (s *stub) Depends() []string   { return nil }
func (s *stub) Conflicts() []string { return s.conflicts }
func (s *stub) Start() error        { return nil }
func (s *stub) Stop()               {}
func (s *stub) Check() error        { return nil }

func (s *stub) Property(n botvisor.PropertyName) (interface{}, error) {
	return nil, botvisor.ErrBadPropName
}

func (s *stub) SetProperty(n botvisor.PropertyName, v interface{}) error {
	if l, ok := v.(*log.Logger); ok && n == botvisor.PropLogger {
		s.logger = l
	}
	return nil
}

func WithServer(t *testing.T, px proxy.Settings, f func(*botvisor.Manager, *Handler, string)) func() {
	return func() {
		m := botvisor.NewManager("rest-test")
		m.SetLogWriter(&testLog{t})
		m.AddService(botvisor.NewService(&stub{name: "web"}))
		m.AddService(botvisor.NewService(&stub{name: "bot"}))
		m.AddService(botvisor.NewService(&stub{name: "other", conflicts: []string{"bot"}}))
		h := NewHandler(m, px)
		srv := httptest.NewServer(h)
		Reset(func() {
			srv.Close()
			m.Shutdown()
		})
		f(m, h, srv.URL)
	}
}

func TestRestServices(t *testing.T) {
	px := proxy.Settings{ScriptName: "/botvisor"}
	Convey("Given a manager served below /botvisor", t, WithServer(t, px, func(m *botvisor.Manager, h *Handler, base string) {
		c := NewClient(nil, base+"/botvisor/")
		ctx := context.Background()

		Convey("Manager info is available", func() {
			mi, err := c.Info(ctx)
			So(err, ShouldBeNil)
			So(mi.Name, ShouldEqual, "rest-test")
			So(mi.Id, ShouldEqual, m.GetInfo().Id)
			So(mi.URL, ShouldEqual, base+"/botvisor/")
			So(mi.Etag(), ShouldNotBeBlank)

			Convey("And is revalidated from the cache", func() {
				mi2, err := c.Info(ctx)
				So(err, ShouldBeNil)
				So(mi2, ShouldEqual, mi)
			})
		})

		Convey("Services are listed in order", func() {
			names, err := c.Services(ctx)
			So(err, ShouldBeNil)
			So(names, ShouldResemble, []string{"web", "bot", "other"})
		})

		Convey("A service carries its external url", func() {
			si, err := c.GetService(ctx, "web")
			So(err, ShouldBeNil)
			So(si.Name, ShouldEqual, "web")
			So(si.Enabled, ShouldBeFalse)
			So(si.URL, ShouldEqual, base+"/botvisor/services/web")
		})

		Convey("Enabling starts the service", func() {
			So(c.EnableService(ctx, "web"), ShouldBeNil)
			si, err := c.GetService(ctx, "web")
			So(err, ShouldBeNil)
			So(si.Enabled, ShouldBeTrue)
			So(si.Running, ShouldBeTrue)
			So(si.Starts, ShouldEqual, 1)

			So(c.RestartService(ctx, "web"), ShouldBeNil)
			So(c.ClearService(ctx, "web"), ShouldBeNil)
			So(c.DisableService(ctx, "web"), ShouldBeNil)
			si, err = c.GetService(ctx, "web")
			So(err, ShouldBeNil)
			So(si.Running, ShouldBeFalse)
		})

		Convey("Conflicting services are refused", func() {
			So(c.EnableService(ctx, "bot"), ShouldBeNil)
			err := c.EnableService(ctx, "other")
			var re *Error
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("Unknown services are not found", func() {
			_, err := c.GetService(ctx, "nope")
			var re *Error
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
			So(re.Message, ShouldEqual, "Service not found")
		})

		Convey("Paths outside the prefix are not served", func() {
			res, err := http.Get(base + "/elsewhere/services")
			So(err, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	}))
}

func TestRestConditional(t *testing.T) {
	Convey("Given a manager", t, WithServer(t, proxy.Settings{}, func(m *botvisor.Manager, h *Handler, base string) {
		res, err := http.Get(base + "/services/web")
		So(err, ShouldBeNil)
		res.Body.Close()
		tag := res.Header.Get("Etag")
		So(tag, ShouldNotBeBlank)

		Convey("A matching If-None-Match yields 304", func() {
			req, _ := http.NewRequest("GET", base+"/services/web", nil)
			req.Header.Set("If-None-Match", tag)
			res, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotModified)
		})

		Convey("A change gives a new Etag", func() {
			svc, _ := m.FindService("web")
			So(svc.Enable(), ShouldBeNil)
			req, _ := http.NewRequest("GET", base+"/services/web", nil)
			req.Header.Set("If-None-Match", tag)
			res, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(res.Header.Get("Etag"), ShouldNotEqual, tag)
		})
	}))
}

func TestRestWatch(t *testing.T) {
	Convey("Given a client", t, WithServer(t, proxy.Settings{}, func(m *botvisor.Manager, h *Handler, base string) {
		c := NewClient(nil, base)
		ctx := context.Background()
		si, err := c.GetService(ctx, "bot")
		So(err, ShouldBeNil)

		Convey("WatchService returns when the service changes", func() {
			go func() {
				time.Sleep(100 * time.Millisecond)
				svc, _ := m.FindService("bot")
				svc.Enable()
			}()
			start := time.Now()
			si2, err := c.WatchService(ctx, "bot", si)
			So(err, ShouldBeNil)
			So(si2.Enabled, ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, 2*time.Second)
		})

		Convey("WatchService returns the old value on timeout", func() {
			c.PollTime = time.Second
			si2, err := c.WatchService(ctx, "bot", si)
			So(err, ShouldBeNil)
			So(si2, ShouldEqual, si)
		})

		Convey("Watch follows the manager serial", func() {
			mi, err := c.Info(ctx)
			So(err, ShouldBeNil)
			go func() {
				time.Sleep(100 * time.Millisecond)
				svc, _ := m.FindService("web")
				svc.Enable()
			}()
			mi2, err := c.Watch(ctx, mi)
			So(err, ShouldBeNil)
			So(mi2.Serial, ShouldBeGreaterThan, mi.Serial)
		})

		Convey("Watches stop with the context", func() {
			ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			_, err := c.WatchService(ctx, "bot", si)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})

		Convey("WatchLog returns new records", func() {
			li, err := c.GetLog(ctx, "bot")
			So(err, ShouldBeNil)
			go func() {
				time.Sleep(100 * time.Millisecond)
				svc, _ := m.FindService("bot")
				svc.Enable()
			}()
			li2, err := c.WatchLog(ctx, "bot", li)
			So(err, ShouldBeNil)
			So(len(li2.Records), ShouldBeGreaterThan, len(li.Records))
		})
	}))
}

func TestRestLogPages(t *testing.T) {
	Convey("Given a service with some log records", t, WithServer(t, proxy.Settings{}, func(m *botvisor.Manager, h *Handler, base string) {
		svc, _ := m.FindService("web")
		So(svc.Enable(), ShouldBeNil)
		So(svc.Restart(), ShouldBeNil)
		recs, _ := svc.GetLog(-1)
		So(len(recs), ShouldBeGreaterThan, 2)

		c := NewClient(nil, base)
		ctx := context.Background()

		Convey("The first page links forward", func() {
			li, err := c.LogPage(ctx, "web", 1, 1)
			So(err, ShouldBeNil)
			So(len(li.Records), ShouldEqual, 1)
			So(li.Records[0].Text, ShouldEqual, recs[0].Text)
			So(li.Prev, ShouldBeBlank)
			So(li.Next, ShouldEqual, base+"/services/web/log?page=2&size=1")
		})

		Convey("The default page is the last", func() {
			li, err := c.LogPage(ctx, "web", 0, 1)
			So(err, ShouldBeNil)
			So(li.Records[0].Text, ShouldEqual, recs[len(recs)-1].Text)
			So(li.Next, ShouldBeBlank)
			So(li.Prev, ShouldNotBeBlank)
		})

		Convey("The Link header is set", func() {
			res, err := http.Get(base + "/log?page=1&size=1")
			So(err, ShouldBeNil)
			res.Body.Close()
			So(res.Header.Get("Link"), ShouldContainSubstring, `rel="next"`)
		})

		Convey("Bad pages are rejected", func() {
			_, err := c.LogPage(ctx, "web", 1000, 1)
			var re *Error
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
		})
	}))
}

func TestRestAuth(t *testing.T) {
	Convey("Given a server requiring a password", t, WithServer(t, proxy.Settings{}, func(m *botvisor.Manager, h *Handler, base string) {
		hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
		So(err, ShouldBeNil)
		So(h.SetAuth("admin", hash), ShouldBeNil)
		ctx := context.Background()

		Convey("Anonymous requests are refused", func() {
			_, err := NewClient(nil, base).Services(ctx)
			var re *Error
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("A wrong password is refused", func() {
			c := NewClient(nil, base)
			c.SetAuth("admin", "guess")
			_, err := c.Services(ctx)
			So(err, ShouldNotBeNil)
		})

		Convey("The right password is accepted", func() {
			c := NewClient(nil, base)
			c.SetAuth("admin", "sekrit")
			names, err := c.Services(ctx)
			So(err, ShouldBeNil)
			So(len(names), ShouldEqual, 3)
		})

		Convey("A bad hash is rejected", func() {
			So(h.SetAuth("admin", []byte("plain")), ShouldNotBeNil)
		})
	}))
}

func TestRestMetrics(t *testing.T) {
	Convey("Given a running service", t, WithServer(t, proxy.Settings{}, func(m *botvisor.Manager, h *Handler, base string) {
		svc, _ := m.FindService("web")
		So(svc.Enable(), ShouldBeNil)

		res, err := http.Get(base + "/metrics")
		So(err, ShouldBeNil)
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		So(res.StatusCode, ShouldEqual, http.StatusOK)
		So(string(body), ShouldContainSubstring,
			`botvisor_service_running{manager="rest-test",service="web"} 1`)
		So(string(body), ShouldContainSubstring,
			`botvisor_service_running{manager="rest-test",service="bot"} 0`)
		So(string(body), ShouldContainSubstring,
			`botvisor_manager_services{manager="rest-test"}`)
		So(string(body), ShouldNotContainSubstring, "botvisor_manager_serial")
	}))
}
