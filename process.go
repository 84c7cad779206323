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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	PropProcessFailOnExit PropertyName = "_ProcFailOnExit"
	PropProcessStopCmd    PropertyName = "_ProcStopCmd"
	PropProcessStopTime   PropertyName = "_ProcStopTime"
	PropProcessCheckCmd   PropertyName = "_ProcCheckCmd"
	PropProcessCheckTime  PropertyName = "_ProcCheckTime"
	PropProcessEnv        PropertyName = "_ProcEnv"
	PropProcessDirectory  PropertyName = "_ProcDirectory"
	PropProcessUser       PropertyName = "_ProcUser"
	PropProcessGroup      PropertyName = "_ProcGroup"
)

const (
	defaultStopTime  = time.Second * 10
	defaultCheckTime = time.Second * 10
)

// Process is an operating system process run as a service, such as the
// wsgi web server or the bot.  It implements Provider.  A fresh exec.Cmd
// is built from the template on every start, so a process can be
// respawned any number of times.
type Process struct {
	name      string
	desc      string
	provides  []string
	depends   []string
	conflicts []string
	logger    *log.Logger // messages, stdout, and stderr
	notify    func()
	reason    error // why we failed
	failed    bool
	stopped   bool // true if Stop was requested
	exited    bool // true once the current command has been reaped

	path  string
	args  []string
	env   []string // added to the daemon's environment
	dir   string
	user  string // setuid
	group string // setgid

	stopTime   time.Duration // grace period before kill, 0 = forever
	failOnExit bool          // any unrequested exit is a failure
	stopCmd    []string
	checkCmd   []string
	checkTime  time.Duration

	cmd    *exec.Cmd
	lock   sync.Mutex
	waiter sync.WaitGroup
}

// lineWriter delivers process output to a logger one line at a time.
// A trailing partial line is held until the next write or Flush.
type lineWriter struct {
	logger *log.Logger
	prefix string
	buf    []byte
	lock   sync.Mutex
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logger.Print(w.prefix, strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}

func (w *lineWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if len(w.buf) != 0 {
		w.logger.Print(w.prefix, string(w.buf))
		w.buf = nil
	}
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) Description() string {
	return p.desc
}

func copyArray(src []string) []string {
	rv := make([]string, 0, len(src))
	rv = append(rv, src...)
	return rv
}

func (p *Process) Provides() []string {
	return copyArray(p.provides)
}

func (p *Process) Conflicts() []string {
	return copyArray(p.conflicts)
}

func (p *Process) Depends() []string {
	return copyArray(p.depends)
}

// environ returns the daemon environment with our additions applied.
// Later entries win, matching the behaviour of exec.Cmd.
func (p *Process) environ(extra ...string) []string {
	env := append(os.Environ(), p.env...)
	return append(env, extra...)
}

func (p *Process) buildCmd() (*exec.Cmd, error) {
	if p.path == "" {
		return nil, ErrNoCommand
	}
	c := &exec.Cmd{
		Path: p.path,
		Args: copyArray(p.args),
		Env:  p.environ(),
		Dir:  p.dir,
	}
	if len(c.Args) == 0 {
		c.Args = []string{p.path}
	}
	if filepath.Base(c.Path) == c.Path {
		if lp, e := exec.LookPath(c.Path); e == nil {
			c.Path = lp
		}
	}
	if e := setCredential(c, p.user, p.group); e != nil {
		return nil, e
	}
	setProcessGroup(c)
	return c, nil
}

func (p *Process) doWait(c *exec.Cmd, stdout, stderr *lineWriter) {
	e := c.Wait()
	stdout.Flush()
	stderr.Flush()

	var notify func()
	p.lock.Lock()
	p.exited = true
	if !p.stopped && p.cmd == c {
		if e != nil {
			p.failed = true
			p.reason = e
			p.logger.Printf("Failed: %v", e)
		} else if p.failOnExit {
			p.failed = true
			p.reason = errors.New("Unexpected termination")
			p.logger.Printf("Failed: %v", p.reason)
		} else {
			p.logger.Printf("Exited")
		}
		if p.failed {
			notify = p.notify
		}
	}
	p.lock.Unlock()
	p.waiter.Done()
	if notify != nil {
		notify()
	}
}

func (p *Process) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.stopped = false
	p.failed = false
	p.exited = false
	p.reason = nil

	c, e := p.buildCmd()
	if e != nil {
		p.failed = true
		p.reason = e
		return e
	}
	stdout := &lineWriter{logger: p.logger, prefix: "stdout> "}
	stderr := &lineWriter{logger: p.logger, prefix: "stderr> "}
	c.Stdout = stdout
	c.Stderr = stderr

	if e := c.Start(); e != nil {
		p.failed = true
		p.reason = e
		return e
	}
	p.cmd = c
	p.logger.Printf("Started pid %d: %s", c.Process.Pid,
		strings.Join(c.Args, " "))
	p.waiter.Add(1)

	go p.doWait(c, stdout, stderr)

	return nil
}

// runCmdWithTimeout runs an auxiliary command (stop or check), with the
// pid of the main process in $PID.  The command is killed after d.
func (p *Process) runCmdWithTimeout(pfx string, argv []string, d time.Duration, pid int) error {
	if len(argv) == 0 {
		return ErrNoCommand
	}
	c := exec.Command(argv[0], argv[1:]...)
	c.Env = p.environ(fmt.Sprintf("PID=%d", pid))
	c.Dir = p.dir
	if e := setCredential(c, p.user, p.group); e != nil {
		return e
	}
	if d == 0 {
		d = defaultCheckTime
	}
	stdout := &lineWriter{logger: p.logger, prefix: pfx + " stdout> "}
	stderr := &lineWriter{logger: p.logger, prefix: pfx + " stderr> "}
	c.Stdout = stdout
	c.Stderr = stderr

	if e := c.Start(); e != nil {
		return e
	}
	proc := c.Process
	timer := time.AfterFunc(d, func() {
		p.logger.Printf("Timeout waiting for %s command", pfx)
		proc.Kill()
	})
	e := c.Wait()
	timer.Stop()
	stdout.Flush()
	stderr.Flush()
	return e
}

// shutdown asks the process to exit.  Call with lock held.
func (p *Process) shutdown(c *exec.Cmd) {
	if p.stopCmd == nil {
		if e := c.Process.Signal(syscall.SIGTERM); e != nil {
			p.logger.Printf("Failed sending SIGTERM: %v", e)
		}
		return
	}
	e := p.runCmdWithTimeout("stop", p.stopCmd, p.stopTime, c.Process.Pid)
	if e != nil {
		p.logger.Printf("Failed stop cmd: %v", e)
	}
}

func (p *Process) Stop() {
	p.lock.Lock()
	p.stopped = true
	c := p.cmd
	if c == nil {
		p.lock.Unlock()
		return
	}
	var timer *time.Timer
	if !p.exited {
		p.shutdown(c)
		if p.stopTime > 0 {
			timer = time.AfterFunc(p.stopTime, func() {
				p.logger.Printf("Graceful shutdown timed out")
				if e := c.Process.Kill(); e != nil {
					p.logger.Printf("Failed killing: %v", e)
				}
			})
		}
	}
	p.lock.Unlock()
	p.waiter.Wait()
	if timer != nil {
		timer.Stop()
	}
	p.lock.Lock()
	p.cmd = nil
	p.lock.Unlock()
}

// Release detaches from the running command, which is left running in
// its own process group.  Its eventual exit is not reported.
func (p *Process) Release() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.stopped = true
	if c := p.cmd; c != nil && !p.exited {
		p.logger.Printf("Released pid %d", c.Process.Pid)
	}
	p.cmd = nil
}

func (p *Process) Check() error {
	p.lock.Lock()
	if p.failed {
		p.lock.Unlock()
		return p.reason
	}
	c := p.cmd
	argv := p.checkCmd
	if c == nil || p.exited || len(argv) == 0 {
		p.lock.Unlock()
		return nil
	}
	pid := c.Process.Pid
	d := p.checkTime
	p.lock.Unlock()

	e := p.runCmdWithTimeout("check", argv, d, pid)

	p.lock.Lock()
	defer p.lock.Unlock()
	if e != nil && p.cmd == c && !p.stopped {
		p.failed = true
		p.reason = fmt.Errorf("Health check failed: %w", e)
		return p.reason
	}
	return nil
}

func (p *Process) SetProperty(n PropertyName, v interface{}) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch n {
	case PropLogger:
		if v, ok := v.(*log.Logger); ok {
			p.logger = v
			return nil
		}
		return ErrBadPropType
	case PropNotify:
		if v, ok := v.(func()); ok {
			p.notify = v
			return nil
		}
		return ErrBadPropType
	case PropName:
		if v, ok := v.(string); ok {
			p.name = v
			return nil
		}
		return ErrBadPropType
	case PropProcessFailOnExit:
		if v, ok := v.(bool); ok {
			p.failOnExit = v
			return nil
		}
		return ErrBadPropType
	case PropProcessStopTime:
		if v, ok := v.(time.Duration); ok {
			p.stopTime = v
			return nil
		}
		return ErrBadPropType
	case PropProcessCheckTime:
		if v, ok := v.(time.Duration); ok {
			p.checkTime = v
			return nil
		}
		return ErrBadPropType
	case PropProcessStopCmd:
		if v, ok := v.([]string); ok {
			p.stopCmd = copyArray(v)
			if len(v) == 0 {
				p.stopCmd = nil
			}
			return nil
		}
		return ErrBadPropType
	case PropProcessCheckCmd:
		if v, ok := v.([]string); ok {
			p.checkCmd = copyArray(v)
			return nil
		}
		return ErrBadPropType
	case PropProcessEnv:
		if v, ok := v.([]string); ok {
			p.env = copyArray(v)
			return nil
		}
		return ErrBadPropType
	case PropProcessDirectory:
		if v, ok := v.(string); ok {
			p.dir = v
			return nil
		}
		return ErrBadPropType
	case PropProcessUser:
		if v, ok := v.(string); ok {
			p.user = v
			return nil
		}
		return ErrBadPropType
	case PropProcessGroup:
		if v, ok := v.(string); ok {
			p.group = v
			return nil
		}
		return ErrBadPropType
	}
	return ErrBadPropName
}

func (p *Process) Property(n PropertyName) (interface{}, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch n {
	case PropLogger:
		return p.logger, nil
	case PropProcessFailOnExit:
		return p.failOnExit, nil
	case PropProcessStopTime:
		return p.stopTime, nil
	case PropProcessCheckTime:
		return p.checkTime, nil
	case PropProcessStopCmd:
		return copyArray(p.stopCmd), nil
	case PropProcessCheckCmd:
		return copyArray(p.checkCmd), nil
	case PropProcessEnv:
		return copyArray(p.env), nil
	case PropProcessDirectory:
		return p.dir, nil
	case PropProcessUser:
		return p.user, nil
	case PropProcessGroup:
		return p.group, nil
	}
	return nil, ErrBadPropName
}

// ProcessManifest describes a process service.  It is the JSON form
// read from the services directory, and what upstart jobs are converted
// into.
//
// RateLimit of zero keeps the service default of 10 starts per minute; a
// negative RateLimit removes the limit entirely, so that respawn is
// unconditional.  A StopTime of zero means 10 seconds.
type ProcessManifest struct {
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Command        []string      `json:"command"`
	Env            []string      `json:"env"`
	Directory      string        `json:"directory"`
	User           string        `json:"user"`
	Group          string        `json:"group"`
	StopCmd        []string      `json:"stopCommand"`
	StopTime       time.Duration `json:"stopTime"`
	FailOnExit     bool          `json:"failOnExit"`
	CheckCmd       []string      `json:"check"`
	CheckTime      time.Duration `json:"checkTime"`
	Restart        bool          `json:"restart"`
	RateLimit      int           `json:"rateLimit"`
	RatePeriod     time.Duration `json:"ratePeriod"`
	Enable         bool          `json:"enable"`
	StopOnShutdown bool          `json:"stopOnShutdown"` // else left running when botvisord exits
	Provides       []string      `json:"provides"`
	Depends        []string      `json:"depends"`
	Conflicts      []string      `json:"conflicts"`
}

// Validate checks the manifest for obvious mistakes.
func (m *ProcessManifest) Validate() error {
	if m.Name == "" {
		return errors.New("manifest has no name")
	}
	if strings.ContainsAny(m.Name, " \t/") {
		return fmt.Errorf("manifest %s: bad service name", m.Name)
	}
	if len(m.Command) == 0 || m.Command[0] == "" {
		return fmt.Errorf("manifest %s: %w", m.Name, ErrNoCommand)
	}
	for _, kv := range m.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("manifest %s: bad env entry %q",
				m.Name, kv)
		}
	}
	if m.StopTime < 0 || m.CheckTime < 0 || m.RatePeriod < 0 {
		return fmt.Errorf("manifest %s: %w", m.Name, ErrBadPropValue)
	}
	return nil
}

func NewProcessFromManifest(m ProcessManifest) (*Service, error) {
	if e := m.Validate(); e != nil {
		return nil, e
	}
	p := &Process{
		name:       m.Name,
		desc:       m.Description,
		path:       m.Command[0],
		args:       copyArray(m.Command),
		env:        copyArray(m.Env),
		dir:        m.Directory,
		user:       m.User,
		group:      m.Group,
		stopTime:   m.StopTime,
		checkTime:  m.CheckTime,
		failOnExit: m.FailOnExit,
		depends:    copyArray(m.Depends),
		conflicts:  copyArray(m.Conflicts),
		provides:   copyArray(m.Provides),
		logger:     log.New(io.Discard, "", 0),
	}
	if p.desc == "" {
		p.desc = m.Name + " process: " + p.path
	}
	if p.stopTime == 0 {
		p.stopTime = defaultStopTime
	}
	if p.checkTime == 0 {
		p.checkTime = defaultCheckTime
	}
	if len(m.StopCmd) != 0 {
		p.stopCmd = copyArray(m.StopCmd)
	}
	if len(m.CheckCmd) != 0 {
		p.checkCmd = copyArray(m.CheckCmd)
	}

	s := NewService(p)
	s.SetProperty(PropRestart, m.Restart)
	s.SetProperty(PropAutoStart, m.Enable)
	s.SetProperty(PropStopOnExit, m.StopOnShutdown)
	switch {
	case m.RateLimit < 0:
		s.SetProperty(PropRateLimit, 0)
	case m.RateLimit > 0:
		s.SetProperty(PropRateLimit, m.RateLimit)
	}
	if m.RatePeriod > 0 {
		s.SetProperty(PropRatePeriod, m.RatePeriod)
	}
	return s, nil
}

func NewProcessFromJson(r io.Reader) (*Service, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var m ProcessManifest
	if e := dec.Decode(&m); e != nil {
		return nil, e
	}
	return NewProcessFromManifest(m)
}

// NewProcess returns a service running cmd.  Only the command template
// (Path, Args, Env, Dir) is used; cmd itself is never started.  Env
// entries are added to the daemon environment.
func NewProcess(name string, cmd *exec.Cmd) *Service {
	p := &Process{
		name:      name,
		desc:      name + " process: " + cmd.Path,
		path:      cmd.Path,
		args:      copyArray(cmd.Args),
		env:       copyArray(cmd.Env),
		dir:       cmd.Dir,
		stopTime:  defaultStopTime,
		checkTime: defaultCheckTime,
		logger:    log.New(os.Stderr, "", log.LstdFlags),
	}
	return NewService(p)
}
