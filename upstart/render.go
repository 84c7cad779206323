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
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/botbotme/botvisor"
)

func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, shellChars+" \t\n") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// seconds rounds d up to whole seconds, the only unit upstart knows.
func seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// Render writes m as an upstart job.  The output parses back to an
// equivalent manifest, and can also be installed under /etc/init for
// hosts that still run upstart.
func Render(w io.Writer, m botvisor.ProcessManifest) error {
	bw := bufio.NewWriter(w)
	p := func(format string, v ...interface{}) {
		fmt.Fprintf(bw, format+"\n", v...)
	}

	if m.Description != "" {
		p("description %s", strconv.Quote(m.Description))
	}
	p("")

	start := []string{}
	if m.Enable {
		start = append(start, "startup")
	}
	for _, d := range m.Depends {
		start = append(start, "started "+d)
	}
	if len(start) != 0 {
		p("start on %s", strings.Join(start, " and "))
	}
	if m.StopOnShutdown {
		p("stop on shutdown")
	}
	if m.Restart {
		p("respawn")
		if m.RateLimit > 0 {
			p("respawn limit %d %d", m.RateLimit, seconds(m.RatePeriod))
		}
	}
	if m.StopTime > 0 {
		p("kill timeout %d", seconds(m.StopTime))
	}
	if m.User != "" {
		p("setuid %s", m.User)
	}
	if m.Group != "" {
		p("setgid %s", m.Group)
	}
	if m.Directory != "" {
		p("chdir %s", m.Directory)
	}
	if len(m.Env) != 0 {
		p("")
		for _, kv := range m.Env {
			k, v, _ := strings.Cut(kv, "=")
			if strings.ContainsAny(v, " \t#\"") {
				v = strconv.Quote(v)
			}
			p("env %s=%s", k, v)
		}
	}
	p("")

	cmd := m.Command
	if len(cmd) == 4 && cmd[0] == "/bin/sh" && cmd[1] == "-e" && cmd[2] == "-c" {
		if body := cmd[3]; strings.HasPrefix(body, "exec ") && !strings.Contains(body, "\n") {
			p("exec %s", strings.TrimPrefix(body, "exec "))
		} else {
			p("script")
			for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
				p("    %s", line)
			}
			p("end script")
		}
	} else {
		args := make([]string, 0, len(cmd))
		for _, a := range cmd {
			args = append(args, quoteArg(a))
		}
		p("exec %s", strings.Join(args, " "))
	}
	return bw.Flush()
}
