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

package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerStripsPrefix(t *testing.T) {
	s := Settings{ScriptName: "/botbot"}
	var got string
	h := s.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
	}))

	for in, want := range map[string]string{
		"/botbot":              "/",
		"/botbot/":             "/",
		"/botbot/services/bot": "/services/bot",
		"/services/bot":        "/services/bot",
		"/botbotx/log":         "/botbotx/log",
	} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", in, nil))
		assert.Equal(t, want, got, in)
	}
}

func TestHandlerForwardedHost(t *testing.T) {
	var host string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host = r.Host
	})

	req := httptest.NewRequest("GET", "http://127.0.0.1:8000/", nil)
	req.Header.Set(HeaderForwardedHost, "botbot.me, proxy.internal")

	Settings{}.Handler(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "127.0.0.1:8000", host)

	Settings{UseForwardedHost: true}.Handler(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "botbot.me", host)
}

func TestReverse(t *testing.T) {
	assert.Equal(t, "/services", Settings{}.Reverse("/services"))
	assert.Equal(t, "/botbot/services", Settings{ScriptName: "/botbot"}.Reverse("services"))
}

func TestAbsoluteURL(t *testing.T) {
	req := httptest.NewRequest("GET", "http://127.0.0.1:8000/log", nil)
	req.Header.Set(HeaderForwardedHost, "botbot.me")
	req.Header.Set(HeaderForwardedProto, "https")

	s := Settings{ScriptName: "/botbot"}
	assert.Equal(t, "http://127.0.0.1:8000/botbot/log", s.AbsoluteURL(req, "/log"))

	s.UseForwardedHost = true
	assert.Equal(t, "https://botbot.me/botbot/log", s.AbsoluteURL(req, "/log"))
}

func TestPageLinks(t *testing.T) {
	req := httptest.NewRequest("GET", "http://botbot.me/log?size=50&page=2", nil)
	s := Settings{ScriptName: "/botbot"}

	p := s.PageLinks(req, "/log", 2, 3)
	assert.Equal(t, "http://botbot.me/botbot/log?page=1&size=50", p.Prev)
	assert.Equal(t, "http://botbot.me/botbot/log?page=2&size=50", p.Current)
	assert.Equal(t, "http://botbot.me/botbot/log?page=3&size=50", p.Next)

	p = s.PageLinks(req, "/log", 1, 1)
	assert.Empty(t, p.Prev)
	assert.Empty(t, p.Next)
}

func TestLinkHeader(t *testing.T) {
	assert.Equal(t, "", LinkHeader("", ""))
	assert.Equal(t, `<http://a/?page=3>; rel="next", <http://a/?page=1>; rel="prev"`,
		LinkHeader("http://a/?page=1", "http://a/?page=3"))

	h := http.Header{}
	SetPageHeaders(h, Pages{Current: "c", Next: "n"})
	assert.Equal(t, `<n>; rel="next"`, h.Get("Link"))
	assert.Equal(t, "n", h.Get(HeaderNextPage))
	assert.Empty(t, h.Get(HeaderPrevPage))
}
