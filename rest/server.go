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
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/botbotme/botvisor"
	"github.com/botbotme/botvisor/proxy"
)

// DefaultPageSize applies when page is given without size.
const DefaultPageSize = 100

// Handler wraps a Manager, adding http.Handler functionality.
type Handler struct {
	m     *botvisor.Manager
	r     *mux.Router
	px    proxy.Settings
	user  string
	hash  []byte
	realm string
	alock sync.RWMutex
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	h.writeError(w, &Error{http.StatusInternalServerError, e.Error()})
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	b, _ := json.Marshal(e)
	w.Header().Set("Content-Type", mimeJson)
	w.WriteHeader(e.Code)
	w.Write(b)
}

// resource is something with a number that changes whenever it does.
type resource struct {
	scope   string
	current func() int64
	watch   func(old int64, expire time.Duration) int64
}

func pollTime(r *http.Request) time.Duration {
	secs, err := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > MaxPollTime {
		d = MaxPollTime
	}
	return d
}

// conditional handles long polls and If-None-Match.  It returns false
// if it has already answered with 304 Not Modified.  Otherwise the Etag
// header is set and the caller writes the body.
func (h *Handler) conditional(w http.ResponseWriter, r *http.Request, res resource) bool {
	n := res.current()
	if old, ok := parseEtag(res.scope, r.Header.Get(PollEtagHeader)); ok {
		if d := pollTime(r); d > 0 {
			n = res.watch(old, d)
		}
	}
	tag := makeEtag(res.scope, n)
	w.Header().Set("Etag", tag)
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return false
	}
	return true
}

func (h *Handler) scope(kind string) string {
	return h.m.GetInfo().Id + "." + kind
}

func (h *Handler) serviceURL(r *http.Request, name string) string {
	return h.px.AbsoluteURL(r, "/services/"+url.PathEscape(name))
}

func (h *Handler) getManager(w http.ResponseWriter, r *http.Request) {
	res := resource{
		scope:   h.scope("manager"),
		current: h.m.Serial,
		watch:   h.m.WatchSerial,
	}
	if !h.conditional(w, r, res) {
		return
	}
	mi := h.m.GetInfo()
	h.writeJson(w, &ManagerInfo{
		Name:       mi.Name,
		Id:         mi.Id,
		Serial:     mi.Serial,
		CreateTime: mi.CreateTime,
		UpdateTime: mi.UpdateTime,
		URL:        h.px.AbsoluteURL(r, "/"),
	})
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	res := resource{
		scope: h.scope("services"),
		current: func() int64 {
			_, serial, _ := h.m.Services()
			return serial
		},
		watch: h.m.WatchServices,
	}
	if !h.conditional(w, r, res) {
		return
	}
	svcs, _, _ := h.m.Services()
	l := make([]string, 0, len(svcs))
	for _, svc := range svcs {
		l = append(l, svc.Name())
	}
	h.writeJson(w, l)
}

func (h *Handler) findService(r *http.Request) (*botvisor.Service, *Error) {
	name := mux.Vars(r)["service"]
	svc, err := h.m.FindService(name)
	if err != nil {
		return nil, &Error{http.StatusNotFound, "Service not found"}
	}
	return svc, nil
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	svc, e := h.findService(r)
	if e != nil {
		h.writeError(w, e)
		return
	}
	res := resource{
		scope:   h.scope("service." + svc.Name()),
		current: svc.Serial,
		watch:   svc.WatchSerial,
	}
	if !h.conditional(w, r, res) {
		return
	}
	h.writeJson(w, newServiceInfo(svc.Snapshot(), h.serviceURL(r, svc.Name())))
}

func (h *Handler) action(do func(*botvisor.Service) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, e := h.findService(r)
		if e != nil {
			h.writeError(w, e)
			return
		}
		if err := do(svc); err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, botvisor.ErrConflict) {
				code = http.StatusConflict
			}
			h.writeError(w, &Error{code, err.Error()})
			return
		}
		h.writeJson(w, ok)
	}
}

// page returns the records for the page and size query parameters.
// Without either, all records are returned.  A size without a page
// selects the last, most recent, page.
func (h *Handler) page(w http.ResponseWriter, r *http.Request, path string, recs []LogRecord) ([]LogRecord, *Error) {
	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("size") == "" {
		return recs, nil
	}
	size := DefaultPageSize
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, &Error{http.StatusBadRequest, "Bad page size"}
		}
		size = n
	}
	pages := (len(recs) + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	page := pages
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > pages {
			return nil, &Error{http.StatusNotFound, "Invalid page"}
		}
		page = n
	}
	proxy.SetPageHeaders(w.Header(), h.px.PageLinks(r, path, page, pages))
	start := (page - 1) * size
	end := start + size
	if end > len(recs) {
		end = len(recs)
	}
	return recs[start:end], nil
}

type logSource interface {
	GetLog(int64) ([]LogRecord, int64)
	WatchLog(int64, time.Duration) int64
	LogId() int64
}

func (h *Handler) writeLog(w http.ResponseWriter, r *http.Request, scope, path string, src logSource) {
	res := resource{
		scope:   scope,
		current: src.LogId,
		watch:   src.WatchLog,
	}
	if !h.conditional(w, r, res) {
		return
	}
	recs, _ := src.GetLog(-1)
	if recs == nil {
		recs = []LogRecord{}
	}
	recs, e := h.page(w, r, path, recs)
	if e != nil {
		w.Header().Del("Etag")
		h.writeError(w, e)
		return
	}
	h.writeJson(w, recs)
}

func (h *Handler) getManagerLog(w http.ResponseWriter, r *http.Request) {
	h.writeLog(w, r, h.scope("log"), "/log", h.m)
}

func (h *Handler) getServiceLog(w http.ResponseWriter, r *http.Request) {
	svc, e := h.findService(r)
	if e != nil {
		h.writeError(w, e)
		return
	}
	path := "/services/" + url.PathEscape(svc.Name()) + "/log"
	h.writeLog(w, r, h.scope("log."+svc.Name()), path, svc)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, &Error{http.StatusNotFound, "Not found"})
}

func (h *Handler) badMethod(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, &Error{http.StatusMethodNotAllowed, "Method not allowed"})
}

// SetAuth requires HTTP basic authentication as user, with a password
// matching the bcrypt hash.  An empty user turns authentication off.
func (h *Handler) SetAuth(user string, hash []byte) error {
	if user != "" {
		if _, err := bcrypt.Cost(hash); err != nil {
			return err
		}
	}
	h.alock.Lock()
	h.user = user
	h.hash = hash
	h.alock.Unlock()
	return nil
}

func (h *Handler) authorized(r *http.Request) bool {
	h.alock.RLock()
	defer h.alock.RUnlock()
	if h.user == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) == nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.px.Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !h.authorized(req) {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+h.realm+`"`)
			h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
			return
		}
		h.r.ServeHTTP(w, req)
	})).ServeHTTP(w, req)
}

// NewHandler returns an http.Handler serving m.  Paths are relative to
// px.ScriptName, and URLs in responses are built with px.
func NewHandler(m *botvisor.Manager, px proxy.Settings) *Handler {
	r := mux.NewRouter()
	h := &Handler{m: m, r: r, px: px, realm: m.Name()}

	reg := prometheus.NewRegistry()
	reg.MustRegister(botvisor.NewCollector(m))
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r.HandleFunc("/", h.getManager).Methods("GET")
	r.HandleFunc("/log", h.getManagerLog).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/services", h.listServices).Methods("GET")
	r.HandleFunc("/services/{service}", h.getService).Methods("GET")
	r.HandleFunc("/services/{service}/enable", h.action(func(s *botvisor.Service) error {
		return s.Enable()
	})).Methods("POST")
	r.HandleFunc("/services/{service}/disable", h.action(func(s *botvisor.Service) error {
		return s.Disable()
	})).Methods("POST")
	r.HandleFunc("/services/{service}/clear", h.action(func(s *botvisor.Service) error {
		s.Clear()
		return nil
	})).Methods("POST")
	r.HandleFunc("/services/{service}/restart", h.action(func(s *botvisor.Service) error {
		return s.Restart()
	})).Methods("POST")
	r.HandleFunc("/services/{service}/log", h.getServiceLog).Methods("GET")
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.badMethod)
	return h
}
