// Package integrity re-verifies the ledger chain on a schedule so tampering
// with the persisted medium is noticed without an operator asking.
package integrity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

// Config holds auditor configuration.
type Config struct {
	// Interval between checks. Zero or negative disables the loop; Check can
	// still be called directly.
	Interval time.Duration
}

// Verifier is satisfied by *ledger.Store.
type Verifier interface {
	Verify() ledger.Report
}

// Result is the outcome of one check.
type Result struct {
	Report    ledger.Report `json:"report"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(valid bool, records int, elapsed time.Duration)

// Auditor runs periodic integrity checks and keeps the latest result.
type Auditor struct {
	verifier  Verifier
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.RWMutex
	last *Result
}

// New creates an Auditor over v.
func New(v Verifier, cfg Config, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{verifier: v, cfg: cfg, logger: logger, now: time.Now}
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// Start runs an immediate check and then one per interval until ctx is done.
func (a *Auditor) Start(ctx context.Context) {
	if a.cfg.Interval <= 0 {
		return
	}
	a.Check()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Check()
		case <-ctx.Done():
			return
		}
	}
}

// Check verifies the chain once, records the result and returns it.
func (a *Auditor) Check() Result {
	start := a.now()
	report := a.verifier.Verify()
	res := Result{Report: report, CheckedAt: start.UTC(), Duration: a.now().Sub(start)}

	if a.onMetrics != nil {
		a.onMetrics(report.Valid, report.Checked, res.Duration)
	}

	a.mu.Lock()
	prev := a.last
	a.last = &res
	a.mu.Unlock()

	switch {
	case !report.Valid:
		a.logger.Warn("integrity: chain verification failed",
			zap.Int("position", report.Violation.Position),
			zap.Uint64("sequence_number", report.Violation.Sequence),
			zap.String("kind", string(report.Violation.Kind)),
			zap.String("detail", report.Violation.Detail),
		)
	case prev != nil && !prev.Report.Valid:
		a.logger.Info("integrity: chain verifies again", zap.Int("records", report.Checked))
	default:
		a.logger.Debug("integrity: chain verified",
			zap.Int("records", report.Checked),
			zap.Duration("elapsed", res.Duration),
		)
	}
	return res
}

// Last returns the most recent result, if any check has run.
func (a *Auditor) Last() (Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return Result{}, false
	}
	return *a.last, true
}
