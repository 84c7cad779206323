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

// Package proxy lets the HTTP surfaces live below a path prefix behind
// a reverse proxy.  ScriptName corresponds to FORCE_SCRIPT_NAME and
// UseForwardedHost to USE_X_FORWARDED_HOST.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	HeaderForwardedHost  = "X-Forwarded-Host"
	HeaderForwardedProto = "X-Forwarded-Proto"
	HeaderNextPage       = "X-NextPage"
	HeaderPrevPage       = "X-PrevPage"
)

// Settings describes how the application is exposed.  ScriptName has no
// trailing slash; the empty string means the application owns the root.
type Settings struct {
	ScriptName       string
	UseForwardedHost bool
}

// Handler wraps next so that it sees requests relative to ScriptName,
// and with the client facing host when UseForwardedHost is set.  Proxies
// that already strip the prefix are handled too.
func (s Settings) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.UseForwardedHost {
			if h := forwardedHost(r); h != "" {
				r.Host = h
			}
		}
		if s.ScriptName != "" {
			if p, ok := s.strip(r.URL.Path); ok {
				r2 := new(http.Request)
				*r2 = *r
				r2.URL = new(url.URL)
				*r2.URL = *r.URL
				r2.URL.Path = p
				r2.URL.RawPath = ""
				r = r2
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s Settings) strip(p string) (string, bool) {
	if p == s.ScriptName {
		return "/", true
	}
	if strings.HasPrefix(p, s.ScriptName+"/") {
		return p[len(s.ScriptName):], true
	}
	return p, false
}

func forwardedHost(r *http.Request) string {
	v := r.Header.Get(HeaderForwardedHost)
	// Chained proxies append; the first entry is the client's.
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// Reverse returns the external path for an application path.
func (s Settings) Reverse(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return s.ScriptName + p
}

// AbsoluteURL returns the external URL of an application path as seen
// by the client that made r.  When Handler has run, r.Host already
// reflects X-Forwarded-Host.
func (s Settings) AbsoluteURL(r *http.Request, p string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if s.UseForwardedHost {
		if v := r.Header.Get(HeaderForwardedProto); v == "http" || v == "https" {
			scheme = v
		}
	}
	host := r.Host
	if s.UseForwardedHost {
		if h := forwardedHost(r); h != "" {
			host = h
		}
	}
	u := url.URL{Scheme: scheme, Host: host}
	ref, err := url.Parse(s.Reverse(p))
	if err != nil {
		u.Path = s.Reverse(p)
		return u.String()
	}
	return u.ResolveReference(ref).String()
}

// Pages holds the links for one page of a paginated listing.  Prev and
// Next are empty at the ends.
type Pages struct {
	Prev    string `json:"prev,omitempty"`
	Current string `json:"current"`
	Next    string `json:"next,omitempty"`
}

// PageLinks computes absolute links for page (1 based) of pages,
// keeping every query parameter of r except page.
func (s Settings) PageLinks(r *http.Request, p string, page, pages int) Pages {
	link := func(n int) string {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(n))
		return s.AbsoluteURL(r, p) + "?" + q.Encode()
	}
	res := Pages{Current: link(page)}
	if page > 1 {
		res.Prev = link(page - 1)
	}
	if page < pages {
		res.Next = link(page + 1)
	}
	return res
}

// LinkHeader formats an RFC 8288 Link header value, or the empty string
// when there are no neighbours.
func LinkHeader(prev, next string) string {
	var links []string
	if next != "" {
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, next))
	}
	if prev != "" {
		links = append(links, fmt.Sprintf(`<%s>; rel="prev"`, prev))
	}
	return strings.Join(links, ", ")
}

// SetPageHeaders adds Link, X-NextPage and X-PrevPage for p to h.
func SetPageHeaders(h http.Header, p Pages) {
	if l := LinkHeader(p.Prev, p.Next); l != "" {
		h.Set("Link", l)
	}
	if p.Next != "" {
		h.Set(HeaderNextPage, p.Next)
	}
	if p.Prev != "" {
		h.Set(HeaderPrevPage, p.Prev)
	}
}
