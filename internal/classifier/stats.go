package classifier

import (
	"sync"
	"time"
)

// ExchangeStats summarizes completed exchanges
type ExchangeStats struct {
	Total       int64               `json:"total"`
	Succeeded   int64               `json:"succeeded"`
	Failed      int64               `json:"failed"`
	ByKind      map[ErrorKind]int64 `json:"by_kind,omitempty"`
	LastLatency time.Duration       `json:"last_latency"`
	LastError   string              `json:"last_error,omitempty"`
	LastAt      time.Time           `json:"last_at,omitempty"`
}

type statsRecorder struct {
	mutex sync.Mutex
	stats ExchangeStats
}

func (r *statsRecorder) record(duration time.Duration, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.stats.Total++
	r.stats.LastLatency = duration
	r.stats.LastAt = time.Now()

	if err == nil {
		r.stats.Succeeded++
		r.stats.LastError = ""
		return
	}

	r.stats.Failed++
	r.stats.LastError = err.Error()
	if r.stats.ByKind == nil {
		r.stats.ByKind = make(map[ErrorKind]int64)
	}
	r.stats.ByKind[KindOf(err)]++
}

func (r *statsRecorder) snapshot() ExchangeStats {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := r.stats
	if r.stats.ByKind != nil {
		out.ByKind = make(map[ErrorKind]int64, len(r.stats.ByKind))
		for k, v := range r.stats.ByKind {
			out.ByKind[k] = v
		}
	}
	return out
}

// lineHistory keeps the most recent non-empty response lines
type lineHistory struct {
	limit int
	buf   []string
}

func newLineHistory(limit int) *lineHistory {
	return &lineHistory{limit: limit}
}

func (h *lineHistory) add(line string) {
	h.buf = append(h.buf, line)
	if len(h.buf) > h.limit {
		h.buf = h.buf[len(h.buf)-h.limit:]
	}
}

func (h *lineHistory) len() int {
	return len(h.buf)
}

func (h *lineHistory) lines() []string {
	return append([]string(nil), h.buf...)
}
