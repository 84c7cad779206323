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
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

// LogRecord is a single line of captured output.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a bounded ring of log lines.  Every line written gets an id that
// is larger than any before it, so the id of the newest line can serve
// as an Etag.  The manager and each service keep one.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

// Write implements io.Writer, as consumed by log.Logger.  Each line
// becomes its own record.
func (l *Log) Write(b []byte) (int, error) {
	now := time.Now()
	str := strings.Trim(string(b), "\n")
	l.mx.Lock()
	if l.records == nil {
		if l.maxRecords == 0 {
			l.maxRecords = MaxLogRecords
		}
		l.records = make([]LogRecord, l.maxRecords)
	}
	for _, line := range strings.Split(str, "\n") {
		idx := l.numRecords % l.maxRecords
		l.id++
		l.records[idx] = LogRecord{Id: l.id, Time: now, Text: line}
		// numRecords keeps counting past maxRecords; it tracks
		// the next slot as well as whether we have wrapped.
		l.numRecords++
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.mx.Unlock()
	return len(b), nil
}

// Clear discards all records.  The id jumps forward to the current time
// in nanoseconds, which is assumed to be ahead of any id issued so far.
func (l *Log) Clear() {
	l.mx.Lock()
	l.numRecords = 0
	l.id = time.Now().UnixNano()
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.mx.Unlock()
}

// Id returns the id of the most recent record.
func (l *Log) Id() int64 {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.id
}

// GetRecords returns the stored records, oldest first, along with the
// current id.  If last matches the current id, nil is returned without
// copying anything, so callers can use the id as an Etag.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.id == last {
		return nil, last
	}
	cnt := l.numRecords
	if cnt > l.maxRecords {
		cnt = l.maxRecords
	}
	recs := make([]LogRecord, 0, cnt)
	for i := l.numRecords - cnt; i < l.numRecords; i++ {
		recs = append(recs, l.records[i%l.maxRecords])
	}
	return recs, l.id
}

// Watch waits until the id differs from last, or until expire passes.
// An expire of zero polls.  The (possibly unchanged) id is returned.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&l.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			l.mx.Lock()
			expired = true
			cv.Broadcast()
			l.mx.Unlock()
		})
	} else {
		expired = true
	}

	l.mx.Lock()
	if l.cvs == nil {
		l.cvs = make(map[*sync.Cond]bool)
	}
	l.cvs[cv] = true
	for l.id == last && !expired {
		cv.Wait()
	}
	delete(l.cvs, cv)
	last = l.id
	l.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns a Log holding up to max records.  A max of zero uses
// MaxLogRecords.
func NewLog(max int) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	return &Log{
		maxRecords: max,
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
	}
}
