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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/botbotme/botvisor/rest"
)

func Status(s *rest.ServiceInfo) string {
	if !s.Enabled {
		return "disabled"
	}
	if s.Failed {
		return "failed"
	}
	if s.Running {
		return "running"
	}
	return "standby"
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// StatusLine formats a service for one line of a listing.
func StatusLine(s *rest.ServiceInfo, now time.Time) string {
	return fmt.Sprintf("%-20s %-10s %10s   %s", s.Name, Status(s),
		FormatDuration(now.Sub(s.TimeStamp)), s.Status)
}

// InfoLines formats the details of a service, one field per line.
func InfoLines(s *rest.ServiceInfo) []string {
	list := func(v []string) string {
		return strings.Join(v, " ")
	}
	return []string{
		fmt.Sprintf("%13s %s", "Name:", s.Name),
		fmt.Sprintf("%13s %s", "Description:", s.Description),
		fmt.Sprintf("%13s %s", "Status:", Status(s)),
		fmt.Sprintf("%13s %v", "Since:", s.TimeStamp.Format(time.RFC3339)),
		fmt.Sprintf("%13s %s", "Detail:", s.Status),
		fmt.Sprintf("%13s %v", "Respawn:", s.Restart),
		fmt.Sprintf("%13s %v", "On startup:", s.AutoStart),
		fmt.Sprintf("%13s %d", "Starts:", s.Starts),
		fmt.Sprintf("%13s %s", "Provides:", list(s.Provides)),
		fmt.Sprintf("%13s %s", "Depends:", list(s.Depends)),
		fmt.Sprintf("%13s %s", "Conflicts:", list(s.Conflicts)),
		fmt.Sprintf("%13s %s", "URL:", s.URL),
	}
}

// LogLine formats a log record.
func LogLine(r rest.LogRecord) string {
	return r.Time.Format(time.StampMilli) + " " + r.Text
}

type sorted []*rest.ServiceInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	if a.Failed != b.Failed {
		// put failed items at front
		return a.Failed
	}
	if a.Enabled != b.Enabled {
		// enabled in front of non-enabled items
		return a.Enabled
	}
	return a.Name < b.Name
}

func SortServices(items []*rest.ServiceInfo) {
	sort.Sort(sorted(items))
}
