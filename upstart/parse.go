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

package upstart

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/botbotme/botvisor"
)

// Suffix is the file name suffix of upstart jobs.
const Suffix = ".conf"

// shellChars are the characters that make upstart hand an exec line to
// the shell instead of splitting it itself.
const shellChars = "~`!$^&*()=|\\{}[];\"'<>?"

var ErrSyntax = errors.New("upstart syntax error")

// Job is a parsed upstart job.
type Job struct {
	Name        string
	Description string
	Author      string
	StartOn     string
	StopOn      string
	Respawn     bool
	// RespawnLimit is the number of respawns permitted within
	// RespawnInterval.  Zero means unlimited.
	RespawnLimit    int
	RespawnInterval time.Duration
	Setuid          string
	Setgid          string
	Env             []string
	Chdir           string
	Exec            string
	Script          string
	KillTimeout     time.Duration
	Ignored         []string
}

// ignored stanzas are legal upstart that botvisor does not act upon.
var ignored = map[string]bool{
	"console":  true,
	"expect":   true,
	"umask":    true,
	"nice":     true,
	"limit":    true,
	"oom":      true,
	"normal":   true,
	"instance": true,
	"task":     true,
	"manual":   true,
	"usage":    true,
	"version":  true,
	"emits":    true,
	"apparmor": true,
}

// blocks may carry a script body up to "end script".
var blocks = map[string]bool{
	"pre-start":  true,
	"post-start": true,
	"pre-stop":   true,
	"post-stop":  true,
}

func syntaxError(line int, format string, v ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, line,
		fmt.Sprintf(format, v...))
}

// unquote strips one level of double quotes.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, e := strconv.Unquote(s); e == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}

// stripComment removes a trailing # comment that is not inside quotes
// or escaped.
func stripComment(s string) string {
	var quote rune
	escaped := false
	for i, c := range s {
		switch {
		case escaped:
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return s[:i]
		}
	}
	return s
}

// openExpr reports whether line is a start on or stop on stanza whose
// parentheses are not yet balanced.
func openExpr(line string) bool {
	if !strings.HasPrefix(line, "start ") && !strings.HasPrefix(line, "stop ") {
		return false
	}
	return strings.Count(line, "(") > strings.Count(line, ")")
}

// Parse reads a job from r.  The name is supplied by the caller, usually
// from the file name.
func Parse(name string, r io.Reader) (*Job, error) {
	job := &Job{Name: name}
	scanner := bufio.NewScanner(r)
	lineno := 0

	readScript := func(start int) (string, error) {
		var body []string
		for scanner.Scan() {
			lineno++
			line := scanner.Text()
			if strings.TrimSpace(line) == "end script" {
				return strings.Join(body, "\n") + "\n", nil
			}
			body = append(body, line)
		}
		return "", syntaxError(start, "script without end script")
	}

	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}
		// Upstart allows a backslash to continue a line, and event
		// expressions to run on while a parenthesis is open.
		for (strings.HasSuffix(line, "\\") || openExpr(line)) && scanner.Scan() {
			lineno++
			line = strings.TrimSuffix(line, "\\") + " " +
				strings.TrimSpace(stripComment(scanner.Text()))
		}
		stanza, rest := line, ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			stanza, rest = line[:i], strings.TrimSpace(line[i+1:])
		}

		switch stanza {
		case "description":
			job.Description = unquote(rest)
		case "author":
			job.Author = unquote(rest)
		case "start":
			if !strings.HasPrefix(rest, "on ") {
				return nil, syntaxError(lineno, "expected 'start on'")
			}
			job.StartOn = strings.TrimSpace(rest[3:])
		case "stop":
			if !strings.HasPrefix(rest, "on ") {
				return nil, syntaxError(lineno, "expected 'stop on'")
			}
			job.StopOn = strings.TrimSpace(rest[3:])
		case "respawn":
			if rest == "" {
				job.Respawn = true
				break
			}
			if e := job.parseRespawnLimit(lineno, rest); e != nil {
				return nil, e
			}
		case "setuid":
			if rest == "" {
				return nil, syntaxError(lineno, "setuid needs a user")
			}
			job.Setuid = unquote(rest)
		case "setgid":
			if rest == "" {
				return nil, syntaxError(lineno, "setgid needs a group")
			}
			job.Setgid = unquote(rest)
		case "env":
			k, v, ok := strings.Cut(rest, "=")
			if !ok || k == "" {
				return nil, syntaxError(lineno, "env needs KEY=VALUE")
			}
			job.Env = append(job.Env, k+"="+unquote(v))
		case "chdir":
			job.Chdir = unquote(rest)
		case "exec":
			if rest == "" {
				return nil, syntaxError(lineno, "exec needs a command")
			}
			job.Exec = rest
		case "script":
			body, e := readScript(lineno)
			if e != nil {
				return nil, e
			}
			job.Script = body
		case "kill":
			f := strings.Fields(rest)
			if len(f) == 2 && f[0] == "timeout" {
				secs, e := strconv.Atoi(f[1])
				if e != nil || secs < 0 {
					return nil, syntaxError(lineno, "bad kill timeout %q", f[1])
				}
				job.KillTimeout = time.Duration(secs) * time.Second
			} else {
				job.Ignored = append(job.Ignored, line)
			}
		default:
			switch {
			case blocks[stanza]:
				if rest == "script" {
					if _, e := readScript(lineno); e != nil {
						return nil, e
					}
				}
				job.Ignored = append(job.Ignored, stanza)
			case ignored[stanza]:
				job.Ignored = append(job.Ignored, line)
			default:
				return nil, syntaxError(lineno, "unknown stanza %q", stanza)
			}
		}
	}
	if e := scanner.Err(); e != nil {
		return nil, e
	}
	if job.Exec != "" && job.Script != "" {
		return nil, fmt.Errorf("%w: job %s has both exec and script",
			ErrSyntax, name)
	}
	return job, nil
}

func (job *Job) parseRespawnLimit(lineno int, rest string) error {
	f := strings.Fields(rest)
	if len(f) == 0 || f[0] != "limit" {
		return syntaxError(lineno, "expected 'respawn limit'")
	}
	switch {
	case len(f) == 2 && f[1] == "unlimited":
		job.RespawnLimit = 0
		job.RespawnInterval = 0
	case len(f) == 3:
		count, e1 := strconv.Atoi(f[1])
		secs, e2 := strconv.Atoi(f[2])
		if e1 != nil || e2 != nil || count < 0 || secs < 0 {
			return syntaxError(lineno, "bad respawn limit %q", rest)
		}
		job.RespawnLimit = count
		job.RespawnInterval = time.Duration(secs) * time.Second
	default:
		return syntaxError(lineno, "bad respawn limit %q", rest)
	}
	return nil
}

// ParseFile parses the job in path, naming it after the file.
func ParseFile(path string) (*Job, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	job, e := Parse(JobName(path), f)
	if e != nil {
		return nil, fmt.Errorf("%s: %w", path, e)
	}
	return job, nil
}

// JobName returns the job name for a file: its base name without the
// .conf suffix.
func JobName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), Suffix)
}

// Command returns the argv for the job.  Commands using shell syntax,
// and all script bodies, are run through /bin/sh -e -c, as upstart does.
func (job *Job) Command() []string {
	if job.Script != "" {
		return []string{"/bin/sh", "-e", "-c", job.Script}
	}
	if job.Exec == "" {
		return nil
	}
	if strings.ContainsAny(job.Exec, shellChars) {
		return []string{"/bin/sh", "-e", "-c", "exec " + job.Exec}
	}
	return strings.Fields(job.Exec)
}

// Events breaks a start on / stop on expression into its terms.
// Parentheses and the and/or operators are dropped; each term is left
// with its arguments, for example "started storage" or
// "runlevel [2345]".
func Events(expr string) []string {
	expr = strings.NewReplacer("(", " ", ")", " ").Replace(expr)
	var terms []string
	var cur []string
	flush := func() {
		if len(cur) != 0 {
			terms = append(terms, strings.Join(cur, " "))
			cur = nil
		}
	}
	for _, w := range strings.Fields(expr) {
		switch w {
		case "and", "or":
			flush()
		default:
			cur = append(cur, w)
		}
	}
	flush()
	return terms
}

// allRunlevels are the levels a [!...] set is the complement of.
const allRunlevels = "0123456S"

// runlevels returns the levels matched by the argument of a runlevel
// event, such as "[2345]" or "[!2345]".
func runlevels(arg string) string {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "RUNLEVEL=")
	if !strings.HasPrefix(arg, "[") || !strings.HasSuffix(arg, "]") {
		return arg
	}
	set := arg[1 : len(arg)-1]
	if !strings.HasPrefix(set, "!") {
		return set
	}
	set = set[1:]
	var b strings.Builder
	for _, r := range allRunlevels {
		if !strings.ContainsRune(set, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isBootEvent(ev string) bool {
	name := strings.Fields(ev)[0]
	switch name {
	case "startup", "filesystem", "local-filesystems",
		"net-device-up", "virtual-filesystems", "remote-filesystems":
		return true
	case "runlevel":
		return strings.ContainsAny(runlevels(strings.TrimPrefix(ev, name)), "2345")
	}
	return false
}

func isShutdownEvent(ev string) bool {
	name := strings.Fields(ev)[0]
	switch name {
	case "shutdown":
		return true
	case "runlevel":
		levels := runlevels(strings.TrimPrefix(ev, name))
		return strings.ContainsAny(levels, "016") &&
			!strings.ContainsAny(levels, "2345")
	}
	return false
}

// jobDependency returns the job named by a started/starting/stopping/
// stopped event, or "".
func jobDependency(ev string) string {
	f := strings.Fields(ev)
	if len(f) < 2 {
		return ""
	}
	switch f[0] {
	case "started", "starting", "stopping", "stopped":
		return f[1]
	}
	return ""
}

// StartsOnBoot reports whether the job's start condition fires when the
// system (here, the daemon) comes up.
func (job *Job) StartsOnBoot() bool {
	for _, ev := range Events(job.StartOn) {
		if isBootEvent(ev) {
			return true
		}
	}
	return false
}

// StopsOnShutdown reports whether the job stops on system shutdown.
func (job *Job) StopsOnShutdown() bool {
	for _, ev := range Events(job.StopOn) {
		if isShutdownEvent(ev) {
			return true
		}
	}
	return false
}

// Depends returns the jobs named in start on and stop on expressions,
// in order of first appearance.
func (job *Job) Depends() []string {
	seen := map[string]bool{}
	var deps []string
	for _, expr := range []string{job.StartOn, job.StopOn} {
		for _, ev := range Events(expr) {
			if d := jobDependency(ev); d != "" && !seen[d] && d != job.Name {
				seen[d] = true
				deps = append(deps, d)
			}
		}
	}
	return deps
}

// Manifest converts the job to a process manifest.  respawn without a
// limit restarts unconditionally.
func (job *Job) Manifest() (botvisor.ProcessManifest, error) {
	m := botvisor.ProcessManifest{
		Name:           job.Name,
		Description:    job.Description,
		Command:        job.Command(),
		Env:            append([]string{}, job.Env...),
		Directory:      job.Chdir,
		User:           job.Setuid,
		Group:          job.Setgid,
		StopTime:       job.KillTimeout,
		Enable:         job.StartsOnBoot(),
		StopOnShutdown: job.StopsOnShutdown(),
		Depends:        job.Depends(),
	}
	if job.Respawn {
		m.Restart = true
		m.FailOnExit = true
		if job.RespawnLimit > 0 {
			m.RateLimit = job.RespawnLimit
			m.RatePeriod = job.RespawnInterval
		} else {
			m.RateLimit = -1
		}
	}
	if e := m.Validate(); e != nil {
		return m, e
	}
	return m, nil
}

// NewService parses the job file at path into a service.
func NewService(path string) (*botvisor.Service, error) {
	job, e := ParseFile(path)
	if e != nil {
		return nil, e
	}
	m, e := job.Manifest()
	if e != nil {
		return nil, fmt.Errorf("%s: %w", path, e)
	}
	return botvisor.NewProcessFromManifest(m)
}
