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

// Package rest exposes a Manager over HTTP as JSON, and provides a
// client for it.  Every GET response carries an Etag.  A client that
// sends the Etag it holds in PollEtagHeader, along with a number of
// seconds in PollTimeHeader, has the request held until the resource
// changes or the time runs out, which lets it follow state changes
// without busy polling.
package rest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/botbotme/botvisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	PollEtagHeader = "X-Botvisor-Poll-Etag"
	PollTimeHeader = "X-Botvisor-Poll-Time"

	// MaxPollTime caps how long the server will hold a request.
	MaxPollTime = 10 * time.Minute
)

var ok struct{}

// ManagerInfo describes the manager.  Serial changes with every state
// change of any service.
type ManagerInfo struct {
	Name       string    `json:"name"`
	Id         string    `json:"id"`
	Serial     int64     `json:"serial,string"`
	CreateTime time.Time `json:"created"`
	UpdateTime time.Time `json:"updated"`
	URL        string    `json:"url"`
	etag       string
}

func (mi *ManagerInfo) Etag() string {
	return mi.etag
}

type ServiceInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	Running     bool      `json:"running"`
	Failed      bool      `json:"failed"`
	Restart     bool      `json:"restart"`
	AutoStart   bool      `json:"autostart"`
	Provides    []string  `json:"provides"`
	Depends     []string  `json:"depends"`
	Conflicts   []string  `json:"conflicts"`
	Status      string    `json:"status"`
	TimeStamp   time.Time `json:"tstamp"`
	Serial      int64     `json:"serial,string"`
	Starts      int       `json:"starts"`
	URL         string    `json:"url"`
	etag        string
}

func (si *ServiceInfo) Etag() string {
	return si.etag
}

func newServiceInfo(st botvisor.ServiceState, url string) *ServiceInfo {
	return &ServiceInfo{
		Name:        st.Name,
		Description: st.Description,
		Enabled:     st.Enabled,
		Running:     st.Running,
		Failed:      st.Failed,
		Restart:     st.Restart,
		AutoStart:   st.AutoStart,
		Provides:    st.Provides,
		Depends:     st.Depends,
		Conflicts:   st.Conflicts,
		Status:      st.Status,
		TimeStamp:   st.TimeStamp,
		Serial:      st.Serial,
		Starts:      st.Starts,
		URL:         url,
	}
}

type LogRecord = botvisor.LogRecord

// LogInfo is the manager log (Name empty) or a service log.  Next and
// Prev are set when a page of the log was requested.
type LogInfo struct {
	Name    string
	Records []LogRecord
	Next    string
	Prev    string
	etag    string
}

func (li *LogInfo) Etag() string {
	return li.etag
}

// Error is the body of every failed request.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// makeEtag and parseEtag deal in strong entity tags of the form
// "<scope>.<number>".  The scope includes the manager id, so tags from
// a previous daemon never match.
func makeEtag(scope string, n int64) string {
	return fmt.Sprintf("%q", scope+"."+strconv.FormatInt(n, 10))
}

func parseEtag(scope string, tag string) (int64, bool) {
	s, err := strconv.Unquote(tag)
	if err != nil {
		return 0, false
	}
	i := strings.LastIndexByte(s, '.')
	if i < 0 || s[:i] != scope {
		return 0, false
	}
	n, err := strconv.ParseInt(s[i+1:], 10, 64)
	return n, err == nil
}
