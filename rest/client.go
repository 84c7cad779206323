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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPollTime is how long Watch calls ask the server to hold them.
const DefaultPollTime = 5 * time.Minute

// Client talks to a Handler.  It caches what it has fetched, and
// revalidates with Etags, so repeated calls are cheap.  A Client is safe
// for concurrent use.
type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	auth   bool
	base   string // URI to root of tree on server
	client *http.Client

	// PollTime is the long poll duration used by the Watch methods.
	PollTime time.Duration

	// Cached data
	manager  *ManagerInfo
	names    []string // service names
	etag     string   // etag for list of services
	services map[string]*ServiceInfo
	logs     map[string]*LogInfo
	lock     sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/services"
	}
	return c.base + "/services/" + url.PathEscape(name)
}

func (c *Client) logURL(name string) string {
	if name == "" {
		return c.base + "/log"
	}
	return c.url(name) + "/log"
}

func decodeError(res *http.Response) error {
	e := &Error{}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	if json.Unmarshal(body, e) != nil || e.Message == "" {
		e.Message = res.Status
	}
	e.Code = res.StatusCode
	return e
}

// get issues an HTTP GET against the URL, optionally checking for a
// cache, including optionally issuing a long poll that tries to wait
// until the value changes.  The return values are the new Etag, the
// response headers and any error.  If the value did not change, then
// the returned etag will be "", but the error will be nil.
func (c *Client) get(ctx context.Context, u string, etag string, wait time.Duration, v interface{}) (string, http.Header, error) {
	req, e := http.NewRequestWithContext(ctx, "GET", u, nil)
	if e != nil {
		return "", nil, e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if secs := int(wait / time.Second); secs > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(secs))
		}
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", nil, e
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusNotModified:
		return "", res.Header, nil
	case http.StatusOK:
	default:
		return "", res.Header, decodeError(res)
	}
	if e := json.NewDecoder(res.Body).Decode(v); e != nil {
		return "", res.Header, e
	}
	return res.Header.Get("Etag"), res.Header, nil
}

func (c *Client) post(ctx context.Context, u string) error {
	req, e := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(""))
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", "text/plain") // we don't really care
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return decodeError(res)
	}
	return nil
}

func (c *Client) pollManager(ctx context.Context, wait time.Duration, last *ManagerInfo) (*ManagerInfo, error) {
	c.lock.Lock()
	cached := c.manager
	c.lock.Unlock()

	otag := ""
	switch {
	case last == nil:
		wait = 0
		if cached != nil {
			otag = cached.etag
		}
	case cached != nil && cached.etag != last.etag:
		return cached, nil
	default:
		otag = last.etag
	}

	v := &ManagerInfo{}
	etag, _, e := c.get(ctx, c.base+"/", otag, wait, v)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		if last != nil {
			return last, nil
		}
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.manager = v
	c.lock.Unlock()
	return v, nil
}

// Info returns information about the manager.
func (c *Client) Info(ctx context.Context) (*ManagerInfo, error) {
	return c.pollManager(ctx, 0, nil)
}

// Watch waits for the manager serial to move past last, which happens
// whenever any service changes state.  If nothing changes within
// PollTime, last is returned.
func (c *Client) Watch(ctx context.Context, last *ManagerInfo) (*ManagerInfo, error) {
	return c.pollManager(ctx, c.PollTime, last)
}

// Services returns the names of the services known to the manager.
func (c *Client) Services(ctx context.Context) ([]string, error) {
	c.lock.Lock()
	otag := c.etag
	onames := c.names
	c.lock.Unlock()

	v := []string{}
	etag, _, e := c.get(ctx, c.url(""), otag, 0, &v)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return onames, nil
	}
	services := make(map[string]*ServiceInfo)

	c.lock.Lock()
	c.etag = etag
	c.names = v
	// Keep cached entries only for services that still exist.
	for _, n := range v {
		if svc, ok := c.services[n]; ok {
			services[n] = svc
		}
	}
	c.services = services
	c.lock.Unlock()

	return v, nil
}

func (c *Client) pollService(ctx context.Context, name string, wait time.Duration, last *ServiceInfo) (*ServiceInfo, error) {
	c.lock.Lock()
	osvc, ok := c.services[name]
	c.lock.Unlock()

	otag := ""
	switch {
	case last == nil:
		wait = 0
		if ok {
			otag = osvc.etag
		}
	case ok && last.etag != osvc.etag:
		// The cache is already newer than what the caller holds.
		return osvc, nil
	default:
		otag = last.etag
	}

	v := &ServiceInfo{}
	etag, _, e := c.get(ctx, c.url(name), otag, wait, v)
	if e != nil {
		c.lock.Lock()
		delete(c.services, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		if last != nil {
			return last, nil
		}
		return osvc, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.services[name] = v
	c.lock.Unlock()
	return v, nil
}

func (c *Client) GetService(ctx context.Context, name string) (*ServiceInfo, error) {
	return c.pollService(ctx, name, 0, nil)
}

// WatchService waits for the service to change from last.
func (c *Client) WatchService(ctx context.Context, name string, last *ServiceInfo) (*ServiceInfo, error) {
	return c.pollService(ctx, name, c.PollTime, last)
}

func (c *Client) postService(ctx context.Context, name string, action string) error {
	return c.post(ctx, c.url(name)+"/"+action)
}

func (c *Client) EnableService(ctx context.Context, name string) error {
	return c.postService(ctx, name, "enable")
}

func (c *Client) DisableService(ctx context.Context, name string) error {
	return c.postService(ctx, name, "disable")
}

func (c *Client) ClearService(ctx context.Context, name string) error {
	return c.postService(ctx, name, "clear")
}

func (c *Client) RestartService(ctx context.Context, name string) error {
	return c.postService(ctx, name, "restart")
}

func (c *Client) pollLog(ctx context.Context, name string, wait time.Duration, last *LogInfo) (*LogInfo, error) {
	c.lock.Lock()
	cached, ok := c.logs[name]
	c.lock.Unlock()

	otag := ""
	switch {
	case last == nil:
		wait = 0
		if ok {
			otag = cached.etag
		}
	case ok && last.etag != cached.etag:
		return cached, nil
	default:
		otag = last.etag
	}

	v := &LogInfo{Name: name}
	etag, _, e := c.get(ctx, c.logURL(name), otag, wait, &v.Records)
	if e != nil {
		c.lock.Lock()
		delete(c.logs, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		if last != nil {
			return last, nil
		}
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.logs[name] = v
	c.lock.Unlock()
	return v, nil
}

// GetLog returns a service log, or the manager log if name is empty.
func (c *Client) GetLog(ctx context.Context, name string) (*LogInfo, error) {
	return c.pollLog(ctx, name, 0, nil)
}

// WatchLog waits for records to be added to the log after last.
func (c *Client) WatchLog(ctx context.Context, name string, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, name, c.PollTime, last)
}

// LogPage fetches one page of a log, uncached.  A page of zero selects
// the most recent page.
func (c *Client) LogPage(ctx context.Context, name string, page, size int) (*LogInfo, error) {
	q := url.Values{}
	q.Set("size", strconv.Itoa(size))
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	v := &LogInfo{Name: name}
	etag, hdr, e := c.get(ctx, c.logURL(name)+"?"+q.Encode(), "", 0, &v.Records)
	if e != nil {
		return nil, e
	}
	v.etag = etag
	v.Next = hdr.Get("X-NextPage")
	v.Prev = hdr.Get("X-PrevPage")
	return v, nil
}

// NewClient returns a Client handle.  The transport may be nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the URL of the server root, including
// any FORCE_SCRIPT_NAME prefix.
func NewClient(t http.RoundTripper, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		base:     strings.TrimRight(baseURI, "/"),
		client:   &http.Client{Transport: t},
		PollTime: DefaultPollTime,
		services: make(map[string]*ServiceInfo),
		logs:     make(map[string]*LogInfo),
	}
}
