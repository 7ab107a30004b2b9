package engine

import (
	"sync"
	"time"

	"github.com/rendis/pyconst/pkg/schema"
)

// BreakerState is the state of a watch job's circuit.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // runs normally
	BreakerOpen                         // suspended after repeated failures
	BreakerHalfOpen                     // one probe run allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures when a failing job is suspended.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed runs that opens the circuit.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// Cooldown is how long a suspended job waits before a probe run.
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`
}

// DefaultBreakerConfig suspends a job after 3 failures for 5 minutes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, Cooldown: 5 * time.Minute}
}

type breaker struct {
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

// JobBreakers tracks per-job failure state so a watch job whose paths keep
// failing (deleted directory, unreadable files) stops running every tick.
type JobBreakers struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	config   BreakerConfig
	now      func() time.Time
}

// NewJobBreakers creates a registry with the given config.
func NewJobBreakers(config BreakerConfig) *JobBreakers {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	return &JobBreakers{
		breakers: make(map[string]*breaker),
		config:   config,
		now:      time.Now,
	}
}

// Allow returns nil when the job may run, or an EXECUTION_ERROR describing
// the suspension.
func (r *JobBreakers) Allow(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(jobID)

	switch b.state {
	case BreakerOpen:
		elapsed := r.now().Sub(b.lastFailure)
		if elapsed < r.config.Cooldown {
			return schema.NewErrorf(schema.ErrCodeExecution,
				"job %s suspended after %d consecutive failures", jobID, b.failures).
				WithDetails(map[string]any{
					"job_id":               jobID,
					"consecutive_failures": b.failures,
					"cooldown_remaining":   (r.config.Cooldown - elapsed).String(),
				})
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return schema.NewErrorf(schema.ErrCodeExecution, "job %s probe run already in flight", jobID)
		}
		b.probing = true
	}
	return nil
}

// Success closes the job's circuit.
func (r *JobBreakers) Success(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(jobID)
	*b = breaker{state: BreakerClosed}
}

// Failure records a failed run and returns the resulting state. A failure
// during the probe run reopens the circuit immediately.
func (r *JobBreakers) Failure(jobID string) BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(jobID)

	b.failures++
	b.lastFailure = r.now()
	b.probing = false
	if b.state == BreakerHalfOpen || b.failures >= r.config.FailureThreshold {
		b.state = BreakerOpen
	}
	return b.state
}

// State reports the job's current state without consuming the probe.
func (r *JobBreakers) State(jobID string) BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(jobID)
	if b.state == BreakerOpen && r.now().Sub(b.lastFailure) >= r.config.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Forget drops the job's state, used when a job is deleted.
func (r *JobBreakers) Forget(jobID string) {
	r.mu.Lock()
	delete(r.breakers, jobID)
	r.mu.Unlock()
}

func (r *JobBreakers) get(jobID string) *breaker {
	b, ok := r.breakers[jobID]
	if !ok {
		b = &breaker{state: BreakerClosed}
		r.breakers[jobID] = b
	}
	return b
}
