// Package health serves liveness and readiness probes.
//
// Checks run in the background on a fixed interval; the probe handlers only
// report the last known state. A check flips to unhealthy after
// FailureThreshold consecutive failures and back after SuccessThreshold
// consecutive successes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Kind tells which probe a check contributes to.
type Kind int

// Probe kinds.
const (
	Liveness Kind = iota
	Readiness
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes a registered health check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc
	// Thresholds default to 3 failures and 1 success.
	FailureThreshold int
	SuccessThreshold int
}

type probe struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Touched only by the goroutine running the check.
	fails, oks int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Func(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.oks = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.oks++
	if p.oks >= p.SuccessThreshold {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "check is unhealthy", true
}

// Service tracks the checks of one process. It starts not ready.
type Service struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns an empty Service.
func New() *Service {
	return &Service{}
}

// Register adds a check. Checks are assumed healthy until they fail.
// Register must be called before Start.
func (s *Service) Register(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	p := &probe{Check: c}
	p.healthy.Store(true)

	s.mu.Lock()
	s.probes = append(s.probes, p)
	s.mu.Unlock()
}

// Start runs every check immediately and then every interval until Stop is
// called or ctx is done.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := append([]*probe(nil), s.probes...)
	s.mu.Unlock()

	for _, p := range probes {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.run(ctx)
				}
			}
		}()
	}
}

// Stop cancels the background checks. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady marks the process as ready or draining.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Ready reports whether the process is marked ready and every readiness
// check passes.
func (s *Service) Ready() bool {
	return s.ready.Load() && len(s.failures(Readiness)) == 0
}

func (s *Service) failures(kind Kind) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range s.probes {
		if p.Kind != kind {
			continue
		}
		if msg, failed := p.failure(); failed {
			out[p.Name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, s.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := s.failures(Readiness)
	if !s.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus responds 200 {"status":"ok"} or 503 {"status":"unhealthy",
// "checks":{name:error}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")

	status := http.StatusOK
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()

		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
