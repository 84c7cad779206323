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
	"log"
	"strings"
	"time"
)

// Service is a supervised entity, usually an OS process such as the web
// application or the bot.  Applications interact with services through
// this type; custom kinds of service implement Provider.
//
// Service methods are not safe for concurrent use until the service has
// been added to a Manager.  After that the Manager's lock protects it.
//
// A service moves between these logical states:
//
//	Disabled  -- Enable -->  DepWait  -- deps satisfied -->  Starting
//	Starting  -- Start ok -->  Running
//	Starting  -- Start error -->  Failed
//	Running   -- check fails / process exits -->  Failed
//	Running   -- dependency lost -->  DepWait
//	Failed    -- Clear, or respawn -->  DepWait
//	any       -- Disable -->  Disabled
type Service struct {
	prov        Provider
	mgr         *Manager
	name        string
	desc        string
	depends     []string
	conflicts   []string
	provides    []string
	enabled     bool
	running     bool
	stopping    bool
	failed      bool
	restart     bool
	checking    bool
	autoStart   bool
	stopOnExit  bool
	err         error
	parents     map[string]map[*Service]bool
	children    map[*Service]bool
	incompat    map[*Service]bool
	logger      *log.Logger
	stamp       time.Time
	reason      string
	serial      int64
	starts      int
	totalStarts int
	rateLog     bool
	rateLimit   int
	ratePeriod  time.Duration
	startTimes  []time.Time
	notify      func()
	slog        *Log
	mlog        *MultiLogger
	mgrLog      *log.Logger
}

// ServiceState is a consistent snapshot of a service.
type ServiceState struct {
	Name        string
	Description string
	Enabled     bool
	Running     bool
	Failed      bool
	Restart     bool
	AutoStart   bool
	Provides    []string
	Depends     []string
	Conflicts   []string
	Status      string
	TimeStamp   time.Time
	Serial      int64
	Starts      int
}

// Name returns the service name, in the form <base> or <base>:<variant>.
// A dependency naming just <base> is satisfied by any variant; one
// naming <base>:<variant> requires an exact match.
func (s *Service) Name() string {
	return s.name
}

// Description returns a short descriptive name for the service.
func (s *Service) Description() string {
	return s.desc
}

// Provides returns the other names this service answers to.
func (s *Service) Provides() []string {
	return s.provides
}

// Depends returns the names this service needs running before it can run.
func (s *Service) Depends() []string {
	return s.depends
}

// Conflicts returns names that cannot be enabled with this one.  The
// scope is a single Manager.
func (s *Service) Conflicts() []string {
	return s.conflicts
}

// Status returns the most recent status message and when it was recorded.
func (s *Service) Status() (string, time.Time) {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return s.reason, s.stamp
}

// Snapshot returns the whole state of the service at once.
func (s *Service) Snapshot() ServiceState {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return ServiceState{
		Name:        s.name,
		Description: s.desc,
		Enabled:     s.enabled,
		Running:     s.running && !s.stopping,
		Failed:      s.failed,
		Restart:     s.restart,
		AutoStart:   s.autoStart,
		Provides:    append([]string{}, s.provides...),
		Depends:     append([]string{}, s.depends...),
		Conflicts:   append([]string{}, s.conflicts...),
		Status:      s.reason,
		TimeStamp:   s.stamp,
		Serial:      s.serial,
		Starts:      s.totalStarts,
	}
}

// Enabled checks if a service is enabled.
func (s *Service) Enabled() bool {
	m := s.mgr
	if m == nil {
		return false
	}
	m.lock()
	defer m.unlock()
	return s.enabled
}

// Running checks if a service is running.  This is false if the service
// has failed, or is waiting on a dependency.
func (s *Service) Running() bool {
	m := s.mgr
	if m == nil {
		return false
	}
	m.lock()
	defer m.unlock()
	return s.running && !s.stopping
}

// Failed returns true if the service is in a failure state.
func (s *Service) Failed() bool {
	m := s.mgr
	if m == nil {
		return false
	}
	m.lock()
	defer m.unlock()
	return s.failed
}

// AutoStart reports whether the service is enabled at daemon start.
func (s *Service) AutoStart() bool {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return s.autoStart
}

// Starts returns the number of times the provider has been started.
func (s *Service) Starts() int {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return s.totalStarts
}

// Serial returns the service serial number, which changes on every state
// transition.
func (s *Service) Serial() int64 {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return s.serial
}

// WatchSerial waits for the service serial to differ from old, or for
// expire to pass.
func (s *Service) WatchSerial(old int64, expire time.Duration) int64 {
	m := s.mgr
	if m == nil {
		return s.serial
	}
	return m.watchSerial(old, &s.serial, expire)
}

// Enable enables the service, starting it once its dependencies are
// satisfied.  Enabling also starts dependents that were waiting on it.
func (s *Service) Enable() error {
	if s.mgr == nil {
		return ErrNoManager
	}
	s.mgr.lock()
	defer s.mgr.unlock()

	if s.enabled {
		return nil
	}

	for c := range s.incompat {
		if c.enabled {
			s.logf("Cannot enable %s: conflicts with %s",
				s.Name(), c.Name())
			return ErrConflict
		}
	}
	s.setStatus("Waiting to start")
	s.logf("Enabling service %s", s.Name())
	s.enabled = true
	s.starts = 0
	s.startRecurse("Enabled service")
	return nil
}

// Disable stops the service along with any dependents that can no
// longer run, and clears the error state.
func (s *Service) Disable() error {
	if s.mgr == nil {
		return ErrNoManager
	}
	s.mgr.lock()
	defer s.mgr.unlock()

	if !s.enabled {
		return nil
	}

	s.logf("Disabling service %s", s.Name())
	s.enabled = false
	s.failed = false
	s.err = nil
	s.stopRecurse("Disabled service")
	s.setStatus("Disabled service")
	return nil
}

// Restart stops and starts an enabled service, clearing any failure.
func (s *Service) Restart() error {
	if s.mgr == nil {
		return ErrNoManager
	}
	s.mgr.lock()
	defer s.mgr.unlock()

	if !s.enabled {
		return nil
	}

	s.logf("Restarting service %s", s.Name())
	s.enabled = false
	s.stopRecurse("Restarted service")

	s.setStatus("Restarted service")
	s.starts = 0
	s.failed = false
	s.err = nil
	s.enabled = true
	s.startRecurse("Restarted service")
	return nil
}

// Clear clears any error condition and, if the service is enabled,
// tries to start it again.
func (s *Service) Clear() {
	if s.mgr == nil {
		return
	}
	s.mgr.lock()
	defer s.mgr.unlock()

	if s.failed {
		s.setStatus("Cleared fault")
		s.logf("Clearing fault on %s", s.Name())
	}
	s.starts = 0
	s.rateLog = false
	s.failed = false
	s.err = nil
	s.startRecurse("Cleared fault")
}

// Check runs the health check now.  On failure the service, and any
// dependents, are stopped and the service is marked failed.
func (s *Service) Check() error {
	if s.mgr == nil {
		return ErrNoManager
	}
	s.mgr.lock()
	defer s.mgr.unlock()
	return s.checkService()
}

// serviceMatches reports whether concrete name s2 satisfies check s1.
// That is true when the bases agree and either s1 has no variant or the
// variants agree.
func serviceMatches(s1, s2 string) bool {
	a1 := strings.SplitN(s1, ":", 2)
	a2 := strings.SplitN(s2, ":", 2)

	if a1[0] != a2[0] {
		return false
	}
	if len(a1) == 1 {
		return true
	}
	if len(a2) == 1 {
		return false
	}
	return a1[1] == a2[1]
}

// Matches reports whether check names this service, either by its Name
// or any of its Provides.  A service "storage:postgres" matches
// "storage" and "storage:postgres", but not "storage:sqlite".
func (s *Service) Matches(check string) bool {
	if serviceMatches(check, s.Name()) {
		return true
	}
	for _, p := range s.Provides() {
		if serviceMatches(check, p) {
			return true
		}
	}
	return false
}

// SetProperty sets a property on the service.
func (s *Service) SetProperty(n PropertyName, v interface{}) error {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	if e := s.setProp(n, v); e != nil {
		s.logf("Failed to set property %s on %s: %v", n, s.Name(), e)
		return e
	}
	return nil
}

func (s *Service) setProp(n PropertyName, v interface{}) error {
	if s.mgr != nil {
		switch n {
		case PropName,
			PropDescription,
			PropConflicts,
			PropDepends,
			PropProvides:
			// The dependency graph is computed when the service
			// is added, so these are frozen from then on.
			return ErrPropReadOnly
		}
	}
	switch n {
	case PropLogger:
		v, ok := v.(*log.Logger)
		if !ok {
			return ErrBadPropType
		}
		if s.enabled {
			return ErrPropReadOnly
		}
		if s.logger != nil {
			s.mlog.DelLogger(s.logger)
		}
		s.logger = v
		s.mlog.AddLogger(s.logger)
		// The provider keeps logging through our MultiLogger.
		return nil
	case PropRestart:
		v, ok := v.(bool)
		if !ok {
			return ErrBadPropType
		}
		s.restart = v
	case PropAutoStart:
		v, ok := v.(bool)
		if !ok {
			return ErrBadPropType
		}
		s.autoStart = v
	case PropStopOnExit:
		v, ok := v.(bool)
		if !ok {
			return ErrBadPropType
		}
		s.stopOnExit = v
	case PropRateLimit:
		v, ok := v.(int)
		if !ok {
			return ErrBadPropType
		}
		if v < 0 {
			return ErrBadPropValue
		}
		s.starts = 0
		s.rateLog = false
		if v > 0 {
			s.startTimes = make([]time.Time, v)
		} else {
			s.startTimes = nil
		}
		s.rateLimit = v
	case PropRatePeriod:
		v, ok := v.(time.Duration)
		if !ok {
			return ErrBadPropType
		}
		if v < 0 {
			return ErrBadPropValue
		}
		s.starts = 0
		s.ratePeriod = v
	case PropName:
		v, ok := v.(string)
		if !ok {
			return ErrBadPropType
		}
		if v == "" {
			return ErrBadPropValue
		}
		s.name = v
		s.mlog.Logger().SetPrefix("[" + v + "] ")
	case PropDescription:
		v, ok := v.(string)
		if !ok {
			return ErrBadPropType
		}
		s.desc = v
	case PropConflicts:
		v, ok := v.([]string)
		if !ok {
			return ErrBadPropType
		}
		s.conflicts = append([]string{}, v...)
	case PropDepends:
		v, ok := v.([]string)
		if !ok {
			return ErrBadPropType
		}
		s.depends = append([]string{}, v...)
	case PropProvides:
		v, ok := v.([]string)
		if !ok {
			return ErrBadPropType
		}
		s.provides = append([]string{}, v...)
	case PropNotify:
		// We registered our own notifier with the provider; this
		// one is for the application and is not passed down.
		v, ok := v.(func())
		if !ok {
			return ErrBadPropType
		}
		s.notify = v
		return nil
	default:
		return s.prov.SetProperty(n, v)
	}

	// The provider sees properties we handle, but cannot veto them.
	s.prov.SetProperty(n, v)
	return nil
}

func (s *Service) GetProperty(n PropertyName) (interface{}, error) {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}

	switch n {
	case PropLogger:
		return s.logger, nil
	case PropRestart:
		return s.restart, nil
	case PropAutoStart:
		return s.autoStart, nil
	case PropStopOnExit:
		return s.stopOnExit, nil
	case PropRateLimit:
		return s.rateLimit, nil
	case PropRatePeriod:
		return s.ratePeriod, nil
	case PropName:
		return s.name, nil
	case PropDescription:
		return s.desc, nil
	case PropConflicts:
		return append([]string{}, s.conflicts...), nil
	case PropDepends:
		return append([]string{}, s.depends...), nil
	case PropProvides:
		return append([]string{}, s.provides...), nil
	case PropNotify:
		return s.notify, nil
	}
	return s.prov.Property(n)
}

// GetLog returns the service's recent log lines and the id of the
// newest.  If last equals that id, nil is returned.
func (s *Service) GetLog(last int64) ([]LogRecord, int64) {
	return s.slog.GetRecords(last)
}

// WatchLog waits for new log lines after id old, or for expire to pass.
func (s *Service) WatchLog(old int64, expire time.Duration) int64 {
	return s.slog.Watch(old, expire)
}

// LogId returns the id of the newest record in the service log.
func (s *Service) LogId() int64 {
	return s.slog.Id()
}

// setManager is called with the manager lock held when the service is
// added.  It links the service into the dependency and conflict graphs.
func (s *Service) setManager(mgr *Manager) {
	if s.mgr != nil {
		panic("Already added to a manager")
	}
	s.mgrLog = mgr.getLogger(s)
	s.mlog.AddLogger(s.mgrLog)
	s.mgr = mgr

	s.incompat = make(map[*Service]bool)
	s.children = make(map[*Service]bool)
	s.parents = make(map[string]map[*Service]bool)
	for _, d := range s.Depends() {
		s.parents[d] = make(map[*Service]bool)
	}
	for t := range mgr.services {

		// do we satisfy a dependency of t?
		for _, d := range t.Depends() {
			if s.Matches(d) {
				t.parents[d][s] = true
				s.children[t] = true
			}
		}

		// does t satisfy a dependency of s?
		for _, d := range s.Depends() {
			if t.Matches(d) {
				s.parents[d][t] = true
				t.children[s] = true
			}
		}

		for _, c := range t.Conflicts() {
			if s.Matches(c) {
				s.incompat[t] = true
				t.incompat[s] = true
			}
		}
		for _, c := range s.Conflicts() {
			if t.Matches(c) {
				s.incompat[t] = true
				t.incompat[s] = true
			}
		}
	}
	s.stamp = time.Now()
	s.reason = "Added service"
	s.logf("Added service %s to %s: %s", s.Name(), mgr.Name(),
		s.Description())
	mgr.services[s] = true
}

func (s *Service) delManager() {
	if s.mgr == nil {
		return
	}

	delete(s.mgr.services, s)

	for c := range s.incompat {
		delete(c.incompat, s)
		delete(s.incompat, c)
	}

	// things that depend upon us
	for c := range s.children {
		for p := range c.parents {
			delete(c.parents[p], s)
		}
		delete(s.children, c)
	}

	// things we depend upon
	for d, p := range s.parents {
		for t := range p {
			delete(p, t)
			delete(t.children, s)
		}
		delete(s.parents, d)
	}

	s.reason = "Removed service"
	s.stamp = time.Now()
	s.mlog.DelLogger(s.mgrLog)
	s.mgrLog = nil
	s.mgr = nil
}

func (s *Service) logf(fmt string, v ...interface{}) {
	s.mlog.Logger().Printf(fmt, v...)
}

// setStatus records a status message and bumps the serial.  Call with
// the manager lock held.
func (s *Service) setStatus(reason string) {
	s.reason = reason
	s.stamp = time.Now()
	if s.mgr != nil {
		s.serial = s.mgr.bumpSerial()
	}
}

func (s *Service) startRecurse(detail string) {
	if s.running {
		return
	}
	if !s.canRun() {
		return
	}
	if e := s.tooQuickly(); e != nil {
		return
	}
	if s.rateLimit > 0 {
		s.startTimes[s.starts%s.rateLimit] = time.Now()
	}
	s.starts++
	s.totalStarts++
	if e := s.prov.Start(); e != nil {
		s.logf("Failed to start %s: %v", s.Name(), e)
		s.err = e
		s.failed = true
		s.setStatus("Failed to start: " + e.Error())
		return
	}
	s.logf("Started %s: %s", s.Name(), detail)
	s.running = true
	s.failed = false
	s.setStatus("Started: " + detail)
	for child := range s.children {
		child.startRecurse("Dependency running")
	}
}

func (s *Service) stopRecurse(detail string) {
	if !s.running || s.stopping {
		return
	}
	s.stopping = true
	for child := range s.children {
		if child.canRun() {
			continue
		}
		child.stopRecurse("Dependency stopped")
	}
	s.prov.Stop()
	s.logf("Stopped %s: %s", s.Name(), detail)

	s.running = false
	s.stopping = false
	s.setStatus("Stopped: " + detail)
}

// release forgets a running service without stopping it.  Providers
// that cannot outlive the Manager are stopped instead.
func (s *Service) release(detail string) {
	r, ok := s.prov.(Releaser)
	if !ok {
		s.stopRecurse(detail)
		return
	}
	r.Release()
	s.logf("Released %s: %s", s.Name(), detail)
	s.running = false
	s.setStatus("Released: " + detail)
}

func (s *Service) canRun() bool {
	if s.stopping || !s.enabled {
		return false
	}
	for _, deps := range s.parents {
		sat := false
		for d := range deps {
			if d.enabled && d.running && !d.stopping && !d.failed {
				sat = true
				break
			}
		}
		if !sat {
			return false
		}
	}

	for c := range s.incompat {
		if c.enabled {
			return false
		}
	}
	return true
}

func (s *Service) checkService() error {
	if s.failed {
		return s.err
	}
	if !s.running {
		return ErrNotRunning
	}
	s.checking = true
	defer func() { s.checking = false }()
	if e := s.prov.Check(); e != nil {
		s.logf("Service %s faulted: %v", s.Name(), e)
		s.failed = true
		s.err = e
		s.stopRecurse("Faulted: " + e.Error())
		s.setStatus("Failed: " + e.Error())
		return e
	}
	return nil
}

// tooQuickly reports ErrRateLimited if the service has started more than
// rateLimit times within ratePeriod.  Once tripped, a full further
// period must pass before the next start, which halves the effective
// rate for badly behaved services.  A rateLimit of zero never trips.
func (s *Service) tooQuickly() error {
	if s.rateLimit == 0 {
		return nil
	}
	if s.starts < s.rateLimit {
		return nil
	}

	// The oldest of the last rateLimit starts.
	idx := s.starts % s.rateLimit
	end := s.startTimes[idx]
	if time.Now().Before(end.Add(s.ratePeriod)) {
		if !s.rateLog {
			s.logf("Service %s restarting too quickly", s.Name())
			s.setStatus("Restarting too quickly")
		}
		s.rateLog = true
		return ErrRateLimited
	}

	if !s.rateLog {
		return nil
	}

	// In cool down: wait a full period after the most recent start.
	idx = (s.starts - 1) % s.rateLimit
	end = s.startTimes[idx]
	if time.Now().Before(end.Add(s.ratePeriod)) {
		return ErrRateLimited
	}

	s.rateLog = false
	return nil
}

func (s *Service) selfHeal() {
	if s.failed && s.restart {
		s.logf("Attempting self-healing")
		s.failed = false
		s.startRecurse("Self-healing attempt")
		if !s.running {
			// Still down; stay failed so the monitor retries.
			s.failed = true
		}
	}
}

func (s *Service) doNotify() {
	go func() {
		var cb func()
		if m := s.mgr; m != nil {
			m.lock()
			m.notify(s)
			cb = s.notify
			m.unlock()
		} else {
			cb = s.notify
		}
		if cb != nil {
			go cb()
		}
	}()
}

// NewService wraps a Provider in a Service.  Providers normally call
// this from their own constructors, so applications only see Service.
func NewService(p Provider) *Service {
	s := &Service{prov: p}
	s.ratePeriod = time.Minute
	s.rateLimit = 10
	s.startTimes = make([]time.Time, s.rateLimit)
	s.stopOnExit = true

	s.name = p.Name()
	s.desc = p.Description()
	s.conflicts = append([]string{}, p.Conflicts()...)
	s.depends = append([]string{}, p.Depends()...)
	s.provides = append([]string{}, p.Provides()...)
	s.mlog = NewMultiLogger()
	s.mlog.Logger().SetPrefix("[" + s.Name() + "] ")
	s.prov.SetProperty(PropLogger, s.mlog.Logger())
	s.slog = NewLog(MaxLogRecords)
	s.mlog.AddLogger(log.New(s.slog, "", log.LstdFlags))
	p.SetProperty(PropNotify, s.doNotify)
	return s
}
