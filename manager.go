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
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// monitorInterval is a "prime" number of milliseconds, to keep health
// checks from lining up with other periodic activity.
const monitorInterval = time.Millisecond * 587

// Manager owns a set of services, monitors their health, and restarts
// the ones configured for respawn.
type Manager struct {
	services   map[*Service]bool
	order      []*Service
	name       string
	id         string
	logger     *log.Logger
	log        *Log
	mlog       *MultiLogger
	cleanup    bool
	monitoring bool
	serial     int64
	listSerial int64
	listStamp  time.Time
	createTime time.Time
	updateTime time.Time
	mx         sync.Mutex
	cvs        map[*sync.Cond]bool
	done       chan struct{}
}

// ManagerInfo is a consistent snapshot of top-level Manager state.
type ManagerInfo struct {
	Name       string
	Id         string
	Serial     int64
	UpdateTime time.Time
	CreateTime time.Time
}

func (m *Manager) lock() {
	m.mx.Lock()
}

func (m *Manager) unlock() {
	m.mx.Unlock()
}

// wakeUp must be called with the lock held, or watchers may miss the
// updated serial.
func (m *Manager) wakeUp() {
	for cv := range m.cvs {
		cv.Broadcast()
	}
}

// bumpSerial increments the serial and notifies watchers, returning the
// new value so it can be stored in a service.  Call with lock held.
func (m *Manager) bumpSerial() int64 {
	m.updateTime = time.Now()
	m.serial++
	m.wakeUp()
	return m.serial
}

// watchSerial waits for *src to differ from old, or for expire to pass.
// An expire of zero polls.
func (m *Manager) watchSerial(old int64, src *int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&m.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			m.lock()
			expired = true
			cv.Broadcast()
			m.unlock()
		})
	} else {
		expired = true
	}

	m.lock()
	m.cvs[cv] = true
	for {
		rv = *src
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(m.cvs, cv)
	m.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// WatchSerial monitors for a change in the global serial number.
func (m *Manager) WatchSerial(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.serial, expire)
}

// WatchServices monitors for a change in the list of services.
func (m *Manager) WatchServices(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.listSerial, expire)
}

// Serial returns the global serial number.  It changes whenever any
// service changes state.
func (m *Manager) Serial() int64 {
	m.lock()
	defer m.unlock()
	return m.serial
}

// Name returns the name the manager was allocated with.
func (m *Manager) Name() string {
	return m.name
}

// GetInfo returns top-level information about the Manager.
func (m *Manager) GetInfo() *ManagerInfo {
	m.lock()
	defer m.unlock()
	return &ManagerInfo{
		Name:       m.name,
		Id:         m.id,
		Serial:     m.serial,
		CreateTime: m.createTime,
		UpdateTime: m.updateTime,
	}
}

// AddService registers a service with the manager.
func (m *Manager) AddService(s *Service) {
	m.lock()
	s.setManager(m)
	m.order = append(m.order, s)
	m.listSerial = m.bumpSerial()
	s.serial = m.bumpSerial()
	m.listStamp = time.Now()
	m.unlock()
}

// DeleteService removes a service.  Enabled services cannot be removed.
func (m *Manager) DeleteService(s *Service) error {
	m.lock()
	defer m.unlock()
	if s.mgr != m {
		return ErrNoService
	}
	if s.enabled {
		return ErrIsEnabled
	}
	s.delManager()
	for i, x := range m.order {
		if x == s {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.listSerial = m.bumpSerial()
	s.serial = m.bumpSerial()
	m.listStamp = time.Now()
	return nil
}

// Services returns all services in order of addition, the list serial
// number, and the time the list last changed.
func (m *Manager) Services() ([]*Service, int64, time.Time) {
	m.lock()
	defer m.unlock()
	rv := append([]*Service{}, m.order...)
	return rv, m.listSerial, m.listStamp
}

// FindServices returns the services for which Matches(match) is true.
func (m *Manager) FindServices(match string) []*Service {
	rv := []*Service{}
	m.lock()
	for _, s := range m.order {
		if s.Matches(match) {
			rv = append(rv, s)
		}
	}
	m.unlock()
	return rv
}

// FindService returns the service whose name is exactly name.
func (m *Manager) FindService(name string) (*Service, error) {
	m.lock()
	defer m.unlock()
	for _, s := range m.order {
		if s.name == name {
			return s, nil
		}
	}
	return nil, ErrNoService
}

// SetLogger replaces the external log destination.  The in-memory
// manager log is unaffected.
func (m *Manager) SetLogger(l *log.Logger) {
	if m.logger != nil {
		m.mlog.DelLogger(m.logger)
	}
	m.logger = l
	m.mlog.AddLogger(l)
}

// SetLogWriter is a convenience for SetLogger with a timestamped logger.
func (m *Manager) SetLogWriter(w io.Writer) {
	m.SetLogger(log.New(w, "", log.LstdFlags))
}

func (m *Manager) getLogger(s *Service) *log.Logger {
	return log.New(m.mlog, "", 0)
}

func (m *Manager) monitor() {
	defer close(m.done)
	for {
		m.lock()
		if m.cleanup {
			m.monitoring = false
			m.unlock()
			return
		}
		if m.monitoring {
			for _, s := range m.order {
				if s.enabled {
					if e := s.checkService(); e != nil {
						s.selfHeal()
					}
				}
			}
		}
		m.unlock()
		time.Sleep(monitorInterval)
	}
}

// notify is called asynchronously by services when they detect a
// transition between healthy and failed.  It must not be called
// synchronously from within a health check; the checking flag guards
// against recursion regardless.
func (m *Manager) notify(s *Service) {
	if s.checking || s.mgr != m {
		return
	}
	if s.enabled {
		if e := s.checkService(); e != nil {
			s.selfHeal()
		}
	}
}

func (m *Manager) logf(format string, v ...interface{}) {
	m.mlog.Logger().Printf(format, v...)
}

func (m *Manager) StopMonitoring() {
	m.lock()
	m.monitoring = false
	m.unlock()
	m.logf("*** Botvisor stopping monitoring: %s ***", m.name)
}

func (m *Manager) StartMonitoring() {
	m.logf("*** Botvisor starting monitoring: %s ***", m.name)
	m.lock()
	m.monitoring = true
	m.unlock()
}

// EnableAutoStart enables every service marked to start on startup.  It
// returns the first error encountered, but attempts them all.
func (m *Manager) EnableAutoStart() error {
	svcs, _, _ := m.Services()
	var first error
	for _, s := range svcs {
		if !s.AutoStart() {
			continue
		}
		if e := s.Enable(); e != nil && first == nil {
			first = e
		}
	}
	return first
}

// Shutdown stops all services, stops monitoring, and removes every
// service from the manager.  Dependents are stopped before the services
// they depend on.  The manager cannot be reused afterwards.
func (m *Manager) Shutdown() {
	m.lock()
	m.monitoring = false
	m.cleanup = true
	// Walk in reverse order of addition; stopRecurse takes care of
	// stopping children first in any case.  Services that do not stop
	// on shutdown are released afterwards, unless a stopped dependency
	// already took them down.
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.order[i]
		if s.stopOnExit {
			s.enabled = false
			s.stopRecurse("Shutting down")
		}
	}
	for _, s := range m.order {
		s.enabled = false
		if s.running {
			s.release("Shutting down")
		}
	}
	for _, s := range m.order {
		s.delManager()
	}
	m.order = nil
	m.listSerial = m.bumpSerial()
	m.unlock()
	m.logf("*** Botvisor shut down: %s ***", m.name)
}

// Done is closed once the monitor has exited after Shutdown.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) GetLog(lastid int64) ([]LogRecord, int64) {
	return m.log.GetRecords(lastid)
}

func (m *Manager) WatchLog(old int64, expire time.Duration) int64 {
	return m.log.Watch(old, expire)
}

// LogId returns the id of the newest manager log record.
func (m *Manager) LogId() int64 {
	return m.log.Id()
}

func NewManager(name string) *Manager {
	if name == "" {
		name = "botvisor"
	}
	// The origin serial is the current time in nanoseconds.  Changes
	// will not happen at more than 1GHz, so values stay unique across
	// daemon restarts, which forces clients to invalidate caches.
	now := time.Now()
	m := &Manager{
		name:       name,
		id:         uuid.New().String(),
		serial:     now.UnixNano(),
		services:   make(map[*Service]bool),
		cvs:        make(map[*sync.Cond]bool),
		createTime: now,
		updateTime: now,
		listStamp:  now,
		mlog:       NewMultiLogger(),
		log:        NewLog(MaxLogRecords),
		done:       make(chan struct{}),
	}
	m.listSerial = m.serial
	m.mlog.AddLogger(log.New(m.log, "", 0))
	m.SetLogger(log.New(os.Stderr, "", log.LstdFlags))
	go m.monitor()
	return m
}
