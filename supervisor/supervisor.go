// Package supervisor executes one request against one agent with bounded
// retries, per-attempt timeout enforcement and result validation, producing a
// uniform core.SupervisionResult regardless of failure mode.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

var (
	// ErrAttemptTimeout marks an agent attempt that exceeded the per-attempt timeout.
	ErrAttemptTimeout = errors.New("attempt timeout")

	// ErrValidationFailed marks an agent result rejected by result validation.
	ErrValidationFailed = errors.New("result validation failed")
)

// Options holds configuration overrides passed to New().
type Options struct {
	// MaxRetries bounds retries after the first attempt: an agent call is
	// attempted at most MaxRetries+1 times.
	MaxRetries int
	// Timeout bounds every single attempt.
	Timeout time.Duration
	// BaseDelay is the linear backoff unit: attempt N sleeps N*BaseDelay
	// before retrying.
	BaseDelay time.Duration
	// ValidateResult enables the result validation gate: an empty result, a
	// result below MinResultLength or one containing an error marker is
	// treated as a failed attempt.
	ValidateResult bool
	// MinResultLength is the validation length floor.
	MinResultLength int
	// ErrorMarkers are substrings whose presence fails validation.
	ErrorMarkers []string
	// HistoryLimit bounds the execution history used for statistics.
	HistoryLimit int
	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger
}

// Record is one entry of the bounded execution history.
type Record struct {
	Agent         string
	RequestID     string
	Success       bool
	Retries       int
	ExecutionTime time.Duration
	Error         string
	Time          time.Time
}

// Stats aggregates the execution history.
type Stats struct {
	Executions           int
	SuccessRate          float64
	AverageRetries       float64
	AverageExecutionTime time.Duration
}

// Supervisor performs supervised agent invocations. Safe for concurrent use;
// the lock guards only the history, never the agent call itself.
type Supervisor struct {
	maxRetries      int
	timeout         time.Duration
	baseDelay       time.Duration
	validateResult  bool
	minResultLength int
	errorMarkers    []string

	mu           sync.Mutex
	history      []Record
	historyLimit int

	logger logging.Logger
}

// New constructs a Supervisor with optional overrides.
func New(optFns ...func(o *Options)) *Supervisor {
	opts := Options{
		MaxRetries:      2,
		Timeout:         30 * time.Second,
		BaseDelay:       200 * time.Millisecond,
		ValidateResult:  true,
		MinResultLength: 2,
		ErrorMarkers:    []string{"error:", "exception:", "traceback"},
		HistoryLimit:    100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Supervisor{
		maxRetries:      opts.MaxRetries,
		timeout:         opts.Timeout,
		baseDelay:       opts.BaseDelay,
		validateResult:  opts.ValidateResult,
		minResultLength: opts.MinResultLength,
		errorMarkers:    opts.ErrorMarkers,
		history:         []Record{},
		historyLimit:    opts.HistoryLimit,
		logger:          opts.Logger,
	}
}

// Execute runs the request against the agent with bounded retries. Each
// attempt is bounded by the configured timeout; a timed-out, erroring or
// validation-rejected attempt sleeps a linearly increasing backoff before
// retrying. On first success the result carries the attempts used so far; once
// all attempts are exhausted the result reports the last error and requests
// replanning. The returned retry count never exceeds the configured maximum.
func (s *Supervisor) Execute(ctx context.Context, agent core.Agent, req *core.Request) *core.SupervisionResult {
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * s.baseDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				return s.exhausted(agent, req, lastErr, start)
			}
		}

		res, err := s.attempt(ctx, agent, req)
		if err == nil && s.validateResult {
			err = s.validate(res)
		}

		if err == nil {
			elapsed := time.Since(start)
			s.record(Record{
				Agent:         agent.Name(),
				RequestID:     req.ID,
				Success:       true,
				Retries:       attempt,
				ExecutionTime: elapsed,
				Time:          time.Now().UTC(),
			})
			s.logger.Debug("supervised call succeeded agent=%s request_id=%s retries=%d duration=%s",
				agent.Name(), req.ID, attempt, elapsed)

			return &core.SupervisionResult{
				Success:           true,
				Content:           res.Content,
				StructuredOutputs: res.StructuredOutputs,
				ThinkingLog:       res.ThinkingLog,
				Sources:           res.Sources,
				Retries:           attempt,
				ExecutionTime:     elapsed,
			}
		}

		lastErr = err
		s.logger.Warn("supervised attempt failed agent=%s request_id=%s attempt=%d error=%v",
			agent.Name(), req.ID, attempt+1, err)
	}

	return s.exhausted(agent, req, lastErr, start)
}

func (s *Supervisor) exhausted(agent core.Agent, req *core.Request, lastErr error, start time.Time) *core.SupervisionResult {
	elapsed := time.Since(start)

	errMsg := "unknown error"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}

	s.record(Record{
		Agent:         agent.Name(),
		RequestID:     req.ID,
		Success:       false,
		Retries:       s.maxRetries,
		ExecutionTime: elapsed,
		Error:         errMsg,
		Time:          time.Now().UTC(),
	})
	s.logger.Error("supervised call exhausted agent=%s request_id=%s retries=%d error=%s",
		agent.Name(), req.ID, s.maxRetries, errMsg)

	return &core.SupervisionResult{
		Success:            false,
		Error:              errMsg,
		Retries:            s.maxRetries,
		ExecutionTime:      elapsed,
		RequiresReplanning: true,
	}
}

// attempt runs one bounded agent call, recovering panics so they surface as
// attempt errors rather than tearing down the request flow.
func (s *Supervisor) attempt(ctx context.Context, agent core.Agent, req *core.Request) (*core.AgentResult, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		result *core.AgentResult
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()

		res, err := agent.Process(cctx, req)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-cctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrAttemptTimeout, s.timeout)
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if out.result == nil {
			return nil, fmt.Errorf("%w: agent returned no result", ErrValidationFailed)
		}
		return out.result, nil
	}
}

func (s *Supervisor) validate(res *core.AgentResult) error {
	content := strings.TrimSpace(res.Content)
	if content == "" {
		return fmt.Errorf("%w: empty result", ErrValidationFailed)
	}
	if len(content) < s.minResultLength {
		return fmt.Errorf("%w: result below minimum length %d", ErrValidationFailed, s.minResultLength)
	}

	lower := strings.ToLower(content)
	for _, marker := range s.errorMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return fmt.Errorf("%w: result contains error marker %q", ErrValidationFailed, marker)
		}
	}

	return nil
}

func (s *Supervisor) record(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
}

// History returns a copy of the bounded execution history, oldest first.
func (s *Supervisor) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]Record, len(s.history))
	copy(history, s.history)
	return history
}

// Stats aggregates success rate, average retries and average execution time
// over the retained history.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if n == 0 {
		return Stats{}
	}

	succeeded := lo.CountBy(s.history, func(r Record) bool { return r.Success })
	totalRetries := lo.SumBy(s.history, func(r Record) int { return r.Retries })
	totalTime := lo.SumBy(s.history, func(r Record) time.Duration { return r.ExecutionTime })

	return Stats{
		Executions:           n,
		SuccessRate:          float64(succeeded) / float64(n),
		AverageRetries:       float64(totalRetries) / float64(n),
		AverageExecutionTime: totalTime / time.Duration(n),
	}
}
