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

package botvisor

import (
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	tl.t.Log(strings.Trim(string(p), "\n"))
	return len(p), nil
}

// testS is an in-memory provider whose health can be toggled.
type testS struct {
	name      string
	failed    bool
	started   bool
	provides  []string
	depends   []string
	conflicts []string
	logger    *log.Logger
	notify    func()
	sync.Mutex
}

func (s *testS) Name() string {
	return s.name
}

func (s *testS) Description() string {
	return "Test Service"
}

func (s *testS) Start() error {
	s.Lock()
	defer s.Unlock()
	if s.failed {
		return errors.New("Injected failure")
	}
	s.started = true
	return nil
}

func (s *testS) Stop() {
	s.Lock()
	s.started = false
	s.Unlock()
}

func (s *testS) Check() error {
	s.Lock()
	defer s.Unlock()
	if s.failed {
		return errors.New("Test service failure")
	}
	return nil
}

func (s *testS) Provides() []string {
	return s.provides
}

func (s *testS) Depends() []string {
	return s.depends
}

func (s *testS) Conflicts() []string {
	return s.conflicts
}

func (s *testS) SetProperty(n PropertyName, v interface{}) error {
	switch n {
	case PropLogger:
		if v, ok := v.(*log.Logger); ok {
			s.logger = v
			return nil
		}
		return ErrBadPropType
	case PropNotify:
		if v, ok := v.(func()); ok {
			s.notify = v
			return nil
		}
		return ErrBadPropType
	default:
		return ErrBadPropName
	}
}

func (s *testS) Property(n PropertyName) (interface{}, error) {
	switch n {
	case PropLogger:
		return s.logger, nil
	default:
		return nil, ErrBadPropName
	}
}

func (s *testS) inject() {
	s.Lock()
	s.logger.Printf("Injecting failure on %s", s.name)
	s.failed = true
	if s.notify != nil {
		s.notify()
	}
	s.Unlock()
}

func (s *testS) clear() {
	s.Lock()
	s.logger.Printf("Clearing failure on %s", s.name)
	s.failed = false
	if s.notify != nil {
		s.notify()
	}
	s.Unlock()
}

// eventually polls cond for up to a second.  Notifications are
// delivered on other goroutines, so state settles asynchronously.
func eventually(cond func() bool) bool {
	for i := 0; i < 100; i++ {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond * 10)
	}
	return cond()
}

func WithManager(t *testing.T, name string, fn func(m *Manager)) func() {
	return func() {
		m := NewManager(name)
		So(m, ShouldNotBeNil)
		m.SetLogWriter(&testLog{t: t})
		Reset(func() {
			m.Shutdown()
		})
		fn(m)
	}
}

func TestBadPropertyName(t *testing.T) {
	Convey("Bogus property name", t,
		WithManager(t, "BadPropName", func(m *Manager) {
			s1 := NewService(&testS{name: "test:BadName"})
			So(s1, ShouldNotBeNil)
			m.AddService(s1)
			e := s1.SetProperty(PropertyName("Nosuch"), true)
			So(e, ShouldEqual, ErrBadPropName)
		}))
}

func TestBadPropertyType(t *testing.T) {
	Convey("Bad property types and values", t,
		WithManager(t, "BadPropType", func(m *Manager) {
			s1 := NewService(&testS{name: "test:BadType"})
			So(s1.SetProperty(PropRestart, "yes"), ShouldEqual, ErrBadPropType)
			So(s1.SetProperty(PropRateLimit, -1), ShouldEqual, ErrBadPropValue)
			So(s1.SetProperty(PropName, ""), ShouldEqual, ErrBadPropValue)
			m.AddService(s1)
			So(s1.SetProperty(PropName, 42), ShouldNotBeNil)
		}))
}

func TestSetPropOK(t *testing.T) {
	Convey("Set Properties", t,
		WithManager(t, "SetProp", func(m *Manager) {
			s1 := NewService(&testS{name: "test:Name"})
			So(s1, ShouldNotBeNil)
			e := s1.SetProperty(PropName, "test:NewName")
			So(e, ShouldBeNil)
			n, e := s1.GetProperty(PropName)
			So(e, ShouldBeNil)
			So(n, ShouldEqual, "test:NewName")

			So(s1.SetProperty(PropDepends, []string{"s1:dep"}), ShouldBeNil)
			So(s1.SetProperty(PropConflicts, []string{"conf"}), ShouldBeNil)
			So(s1.SetProperty(PropProvides, []string{"abc:123"}), ShouldBeNil)
			So(s1.SetProperty(PropAutoStart, true), ShouldBeNil)
			So(s1.AutoStart(), ShouldBeTrue)

			d, e := s1.GetProperty(PropDepends)
			So(e, ShouldBeNil)
			So(d, ShouldResemble, []string{"s1:dep"})
		}))
}

func TestReadOnlyProps(t *testing.T) {
	Convey("Read only properties", t,
		WithManager(t, "ReadOnly", func(m *Manager) {
			s1 := NewService(&testS{name: "test:ro"})
			m.AddService(s1)
			So(s1.SetProperty(PropName, "test:shouldfail"), ShouldEqual, ErrPropReadOnly)
			So(s1.SetProperty(PropDepends, []string{"x"}), ShouldEqual, ErrPropReadOnly)
		}))
}

func TestMatches(t *testing.T) {
	Convey("Service name matching", t, func() {
		s := NewService(&testS{
			name:     "storage:postgres",
			provides: []string{"db"},
		})
		So(s.Matches("storage"), ShouldBeTrue)
		So(s.Matches("storage:postgres"), ShouldBeTrue)
		So(s.Matches("storage:sqlite"), ShouldBeFalse)
		So(s.Matches("db"), ShouldBeTrue)
		So(s.Matches("queue"), ShouldBeFalse)
	})
}

func TestNoManager(t *testing.T) {
	Convey("Unmanaged services refuse operations", t, func() {
		s := NewService(&testS{name: "loose"})
		So(s.Enable(), ShouldEqual, ErrNoManager)
		So(s.Disable(), ShouldEqual, ErrNoManager)
		So(s.Restart(), ShouldEqual, ErrNoManager)
		So(s.Check(), ShouldEqual, ErrNoManager)
		So(s.Enabled(), ShouldBeFalse)
		So(s.Running(), ShouldBeFalse)
	})
}

func TestDependencies(t *testing.T) {
	Convey("Dependencies", t,
		WithManager(t, "Deps", func(m *Manager) {
			storage := NewService(&testS{name: "storage:sqlite"})
			bot := NewService(&testS{name: "bot"})
			So(bot.SetProperty(PropDepends, []string{"storage"}), ShouldBeNil)

			Convey("Both start disabled", func() {
				So(storage.Enabled(), ShouldBeFalse)
				So(bot.Enabled(), ShouldBeFalse)
			})

			Convey("Enabling the bot works", func() {
				m.AddService(storage)
				m.AddService(bot)
				So(bot.Enable(), ShouldBeNil)

				Convey("But it waits for storage", func() {
					So(bot.Running(), ShouldBeFalse)
				})

				Convey("Enabling storage starts the bot", func() {
					So(storage.Enable(), ShouldBeNil)
					So(storage.Running(), ShouldBeTrue)
					So(bot.Running(), ShouldBeTrue)

					Convey("Disabling storage stops both", func() {
						So(storage.Disable(), ShouldBeNil)
						So(bot.Enabled(), ShouldBeTrue)
						So(storage.Running(), ShouldBeFalse)
						So(bot.Running(), ShouldBeFalse)
					})

					Convey("An enabled service cannot be deleted", func() {
						So(m.DeleteService(storage), ShouldEqual, ErrIsEnabled)
					})
				})
			})
		}))
}

func TestConflicts(t *testing.T) {
	Convey("Conflicting services", t,
		WithManager(t, "Conflicts", func(m *Manager) {
			a := NewService(&testS{name: "web:uwsgi", conflicts: []string{"web"}})
			b := NewService(&testS{name: "web:gunicorn"})
			m.AddService(a)
			m.AddService(b)
			So(a.Enable(), ShouldBeNil)
			So(b.Enable(), ShouldEqual, ErrConflict)
			So(a.Disable(), ShouldBeNil)
			So(b.Enable(), ShouldBeNil)
			So(b.Running(), ShouldBeTrue)
		}))
}

func TestFindAndDelete(t *testing.T) {
	Convey("Finding and deleting services", t,
		WithManager(t, "Find", func(m *Manager) {
			web := NewService(&testS{name: "web"})
			bot := NewService(&testS{name: "bot"})
			m.AddService(web)
			m.AddService(bot)

			svcs, serial, _ := m.Services()
			So(len(svcs), ShouldEqual, 2)
			So(svcs[0], ShouldEqual, web)
			So(svcs[1], ShouldEqual, bot)

			s, e := m.FindService("bot")
			So(e, ShouldBeNil)
			So(s, ShouldEqual, bot)
			_, e = m.FindService("nope")
			So(e, ShouldEqual, ErrNoService)
			So(len(m.FindServices("web")), ShouldEqual, 1)

			So(m.DeleteService(bot), ShouldBeNil)
			svcs, nserial, _ := m.Services()
			So(len(svcs), ShouldEqual, 1)
			So(nserial, ShouldNotEqual, serial)
			So(m.DeleteService(bot), ShouldEqual, ErrNoService)
		}))
}

func TestAutoStart(t *testing.T) {
	Convey("Services marked for startup are enabled", t,
		WithManager(t, "AutoStart", func(m *Manager) {
			web := NewService(&testS{name: "web"})
			manual := NewService(&testS{name: "manual"})
			So(web.SetProperty(PropAutoStart, true), ShouldBeNil)
			m.AddService(web)
			m.AddService(manual)
			So(m.EnableAutoStart(), ShouldBeNil)
			So(web.Running(), ShouldBeTrue)
			So(manual.Enabled(), ShouldBeFalse)
		}))
}

func TestSerials(t *testing.T) {
	Convey("Serial numbers track changes", t,
		WithManager(t, "Serials", func(m *Manager) {
			s := NewService(&testS{name: "web"})
			m.AddService(s)
			old := s.Serial()
			gold := m.Serial()

			So(s.WatchSerial(old, 0), ShouldEqual, old)

			go func() {
				time.Sleep(time.Millisecond * 20)
				s.Enable()
			}()
			n := s.WatchSerial(old, time.Second)
			So(n, ShouldNotEqual, old)
			So(m.Serial(), ShouldBeGreaterThan, gold)
			So(m.GetInfo().Id, ShouldNotBeEmpty)
		}))
}

func TestServiceLog(t *testing.T) {
	Convey("Service log captures messages", t,
		WithManager(t, "Log", func(m *Manager) {
			s := NewService(&testS{name: "web"})
			m.AddService(s)
			So(s.Enable(), ShouldBeNil)

			recs, id := s.GetLog(0)
			So(len(recs), ShouldBeGreaterThan, 0)
			found := false
			for _, r := range recs {
				if strings.Contains(r.Text, "Started web") {
					found = true
				}
			}
			So(found, ShouldBeTrue)
			none, same := s.GetLog(id)
			So(none, ShouldBeNil)
			So(same, ShouldEqual, id)

			mrecs, _ := m.GetLog(0)
			So(len(mrecs), ShouldBeGreaterThan, 0)
			So(mrecs[len(mrecs)-1].Text, ShouldContainSubstring, "[web]")
		}))
}

func TestRateLimit(t *testing.T) {
	Convey("Restarting too quickly is refused", t,
		WithManager(t, "RateLimit", func(m *Manager) {
			m.StopMonitoring()
			ts := &testS{name: "flappy"}
			s := NewService(ts)
			So(s.SetProperty(PropRateLimit, 2), ShouldBeNil)
			So(s.SetProperty(PropRatePeriod, time.Hour), ShouldBeNil)
			So(s.SetProperty(PropRestart, true), ShouldBeNil)
			m.AddService(s)
			So(s.Enable(), ShouldBeNil)

			fault := func() {
				ts.Lock()
				ts.failed = true
				ts.Unlock()
				So(s.Check(), ShouldNotBeNil)
				ts.Lock()
				ts.failed = false
				ts.Unlock()
				ts.notify()
			}

			fault()
			So(eventually(s.Running), ShouldBeTrue)
			So(s.Starts(), ShouldEqual, 2)

			fault()
			time.Sleep(time.Millisecond * 50)
			So(s.Running(), ShouldBeFalse)
			So(s.Failed(), ShouldBeTrue)
			So(s.Starts(), ShouldEqual, 2)
			msg, _ := s.Status()
			So(msg, ShouldEqual, "Restarting too quickly")

			s.Clear()
			So(s.Running(), ShouldBeTrue)
		}))
}

func TestFailureAndHealing(t *testing.T) {
	Convey("Given a manager with storage and a dependent bot", t,
		WithManager(t, "Healing", func(m *Manager) {
			t1 := &testS{name: "storage", provides: []string{"db"}}
			t2 := &testS{name: "bot", depends: []string{"db"}}
			s1 := NewService(t1)
			s2 := NewService(t2)
			m.AddService(s1)
			m.AddService(s2)
			So(s2.Enable(), ShouldBeNil)
			So(s1.Enable(), ShouldBeNil)
			So(s1.Running(), ShouldBeTrue)
			So(s2.Running(), ShouldBeTrue)

			Convey("We can restart the bot", func() {
				So(s2.Restart(), ShouldBeNil)
				So(s1.Running(), ShouldBeTrue)
				So(s2.Running(), ShouldBeTrue)
			})

			Convey("A synchronous check failure stops both", func() {
				m.StopMonitoring()
				t1.Lock()
				t1.failed = true
				t1.Unlock()
				So(s1.Check(), ShouldNotBeNil)
				So(s1.Failed(), ShouldBeTrue)
				So(s1.Running(), ShouldBeFalse)
				So(s2.Running(), ShouldBeFalse)

				t1.Lock()
				t1.failed = false
				t1.Unlock()
				s1.Clear()
				So(s1.Failed(), ShouldBeFalse)
				So(s1.Running(), ShouldBeTrue)
				So(s2.Running(), ShouldBeTrue)
			})

			Convey("Without restart a fault stays put", func() {
				t1.inject()
				So(eventually(s1.Failed), ShouldBeTrue)
				So(s2.Running(), ShouldBeFalse)
				t1.clear()
				time.Sleep(time.Millisecond * 20)
				So(s1.Failed(), ShouldBeTrue)
				s1.Clear()
				So(s1.Running(), ShouldBeTrue)
			})

			Convey("With restart the service heals itself", func() {
				So(s1.SetProperty(PropRestart, true), ShouldBeNil)
				t1.inject()
				So(eventually(s1.Failed), ShouldBeTrue)
				t1.clear()
				So(eventually(func() bool {
					return !s1.Failed() && s1.Running()
				}), ShouldBeTrue)
				So(eventually(s2.Running), ShouldBeTrue)
			})
		}))
}
