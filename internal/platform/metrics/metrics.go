package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	totalDurationMs uint64
	decisionsTotal  uint64
	conflictsTotal  uint64
	resolutionsRun  uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) RecordDecision() {
	atomic.AddUint64(&c.decisionsTotal, 1)
}

func (c *Collector) RecordConflict() {
	atomic.AddUint64(&c.conflictsTotal, 1)
}

func (c *Collector) RecordResolution() {
	atomic.AddUint64(&c.resolutionsRun, 1)
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":    total,
		"errorsTotal":      errs,
		"avgDurationMs":    avg,
		"totalDurationMs":  totalMs,
		"decisionsTotal":   atomic.LoadUint64(&c.decisionsTotal),
		"conflictsTotal":   atomic.LoadUint64(&c.conflictsTotal),
		"resolutionsTotal": atomic.LoadUint64(&c.resolutionsRun),
	}
}
