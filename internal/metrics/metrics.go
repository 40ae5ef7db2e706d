// Package metrics provides an in-process metrics collector and its
// Prometheus text exposition. The collector is the concrete sink behind the
// narrow recorder interfaces the rest of the service depends on.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Latency histogram bucket upper bounds, in milliseconds.
var latencyBuckets = []int64{100, 500}

type pathStatus struct {
	path   string
	status int
}

// Collector accumulates request counters, webhook outcome counters, and a
// request latency histogram. All methods are safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	httpRequests    map[pathStatus]int64
	webhookRequests map[string]int64
	latencyByBucket map[int64]int64
	latencyCount    int64
	latencySum      int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		httpRequests:    make(map[pathStatus]int64),
		webhookRequests: make(map[string]int64),
		latencyByBucket: make(map[int64]int64),
	}
}

// RecordRequest counts one HTTP request by logical path and status and adds
// one latency observation.
func (c *Collector) RecordRequest(path string, status int, latencyMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.httpRequests[pathStatus{path, status}]++

	c.latencyCount++
	c.latencySum += latencyMS
	for _, bound := range latencyBuckets {
		if latencyMS <= bound {
			c.latencyByBucket[bound]++
		}
	}
}

// RecordWebhook counts one ingestion attempt by its outcome label.
func (c *Collector) RecordWebhook(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.webhookRequests[result]++
}

// RenderPrometheus returns all collected metrics in the Prometheus text
// exposition format.
func (c *Collector) RenderPrometheus() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder

	b.WriteString("# HELP http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE http_requests_total counter\n")
	httpKeys := make([]pathStatus, 0, len(c.httpRequests))
	for k := range c.httpRequests {
		httpKeys = append(httpKeys, k)
	}
	sort.Slice(httpKeys, func(i, j int) bool {
		if httpKeys[i].path != httpKeys[j].path {
			return httpKeys[i].path < httpKeys[j].path
		}
		return httpKeys[i].status < httpKeys[j].status
	})
	for _, k := range httpKeys {
		fmt.Fprintf(&b, "http_requests_total{path=%q,status=\"%d\"} %d\n",
			k.path, k.status, c.httpRequests[k])
	}

	b.WriteString("# HELP webhook_requests_total Total webhook processing outcomes\n")
	b.WriteString("# TYPE webhook_requests_total counter\n")
	resultKeys := make([]string, 0, len(c.webhookRequests))
	for k := range c.webhookRequests {
		resultKeys = append(resultKeys, k)
	}
	sort.Strings(resultKeys)
	for _, k := range resultKeys {
		fmt.Fprintf(&b, "webhook_requests_total{result=%q} %d\n", k, c.webhookRequests[k])
	}

	b.WriteString("# HELP request_latency_ms_bucket Request latency in milliseconds\n")
	b.WriteString("# TYPE request_latency_ms_bucket histogram\n")
	for _, bound := range latencyBuckets {
		fmt.Fprintf(&b, "request_latency_ms_bucket{le=\"%d\"} %d\n", bound, c.latencyByBucket[bound])
	}
	fmt.Fprintf(&b, "request_latency_ms_bucket{le=\"+Inf\"} %d\n", c.latencyCount)
	fmt.Fprintf(&b, "request_latency_ms_count %d\n", c.latencyCount)
	fmt.Fprintf(&b, "request_latency_ms_sum %d\n", c.latencySum)

	return b.String()
}
