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
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the state of a Manager's services as prometheus
// metrics.  Values are read at scrape time.
type Collector struct {
	m       *Manager
	enabled *prometheus.Desc
	running *prometheus.Desc
	failed  *prometheus.Desc
	starts  *prometheus.Desc
	count   *prometheus.Desc
	updated *prometheus.Desc
}

// NewCollector returns a Collector for m.  Register it with a
// prometheus.Registerer to expose it.
func NewCollector(m *Manager) *Collector {
	labels := []string{"service"}
	constLabels := prometheus.Labels{"manager": m.Name()}
	return &Collector{
		m: m,
		enabled: prometheus.NewDesc("botvisor_service_enabled",
			"Whether the service is enabled.", labels, constLabels),
		running: prometheus.NewDesc("botvisor_service_running",
			"Whether the service is running.", labels, constLabels),
		failed: prometheus.NewDesc("botvisor_service_failed",
			"Whether the service is in a failed state.", labels, constLabels),
		starts: prometheus.NewDesc("botvisor_service_starts_total",
			"Number of times the service has been started.", labels, constLabels),
		count: prometheus.NewDesc("botvisor_manager_services",
			"Number of services registered.", nil, constLabels),
		updated: prometheus.NewDesc("botvisor_manager_update_time_seconds",
			"Unix time of the most recent change to the service list.", nil, constLabels),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.enabled
	ch <- c.running
	ch <- c.failed
	ch <- c.starts
	ch <- c.count
	ch <- c.updated
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	svcs, _, stamp := c.m.Services()
	for _, s := range svcs {
		st := s.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.enabled,
			prometheus.GaugeValue, boolValue(st.Enabled), st.Name)
		ch <- prometheus.MustNewConstMetric(c.running,
			prometheus.GaugeValue, boolValue(st.Running), st.Name)
		ch <- prometheus.MustNewConstMetric(c.failed,
			prometheus.GaugeValue, boolValue(st.Failed), st.Name)
		ch <- prometheus.MustNewConstMetric(c.starts,
			prometheus.CounterValue, float64(st.Starts), st.Name)
	}
	ch <- prometheus.MustNewConstMetric(c.count,
		prometheus.GaugeValue, float64(len(svcs)))
	ch <- prometheus.MustNewConstMetric(c.updated,
		prometheus.GaugeValue, float64(stamp.UnixNano())/1e9)
}
