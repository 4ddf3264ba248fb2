package scanning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/buenobot/internal/domain/gate"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// ErrScanNotFound is returned when a scan id is not currently running.
var ErrScanNotFound = errors.New("scan not found")

// FatalReasonPrefix prefixes the gate reason of scans that end in FAILED.
const FatalReasonPrefix = "fatal error"

// ScanRequest describes one scan invocation.
type ScanRequest struct {
	// ScanID is generated when empty.
	ScanID      string
	Profile     Profile
	Environment string
	Trigger     string
	Commit      string
	BaseURL     string
	WorkDir     string

	// AI enables enrichment when non-nil and an Enricher is configured.
	AI *EnrichOptions
}

type activeScan struct {
	mu        sync.RWMutex
	report    *scanning.Report
	cancelled atomic.Bool
}

func (a *activeScan) snapshot() scanning.Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.report.Clone()
}

func (a *activeScan) update(fn func(r *scanning.Report)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.report)
}

// Runner executes the checks of a profile one at a time in registration
// order. It is the only writer of a Report while the scan runs; readers
// obtain deep copies through Snapshot.
type Runner struct {
	registry *Registry
	store    ReportStore
	progress ProgressReporter
	enricher Enricher

	saveInterval time.Duration
	now          func() time.Time
	newID        func() string

	mu     sync.RWMutex
	active map[string]*activeScan

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics RunnerMetrics
}

// RunnerOption configures optional Runner collaborators.
type RunnerOption func(*Runner)

// WithReportStore persists reports at start, periodically and at the end.
func WithReportStore(s ReportStore) RunnerOption { return func(r *Runner) { r.store = s } }

// WithProgressReporter receives per-check progress events.
func WithProgressReporter(p ProgressReporter) RunnerOption {
	return func(r *Runner) { r.progress = p }
}

// WithEnricher enables AI enrichment of finished reports.
func WithEnricher(e Enricher) RunnerOption { return func(r *Runner) { r.enricher = e } }

// WithSaveInterval sets the minimum time between intermediate saves.
func WithSaveInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.saveInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RunnerOption { return func(r *Runner) { r.now = now } }

// WithIDGenerator overrides scan id generation.
func WithIDGenerator(fn func() string) RunnerOption { return func(r *Runner) { r.newID = fn } }

// NewRunner creates a Runner over registry.
func NewRunner(
	registry *Registry,
	metrics RunnerMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		registry:     registry,
		saveInterval: 2 * time.Second,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
		active:       make(map[string]*activeScan),
		logger:       log.With("component", "runner"),
		tracer:       tracer,
		metrics:      metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a scan to completion and returns the final report. Check
// failures never abort the scan; an error is returned only for invalid
// requests or when the scan ends in FAILED.
func (r *Runner) Run(ctx context.Context, req ScanRequest) (scanning.Report, error) {
	scan, regs, err := r.prepare(req)
	if err != nil {
		return scanning.Report{}, err
	}
	return r.run(ctx, scan, regs, req)
}

// Start registers a scan and runs it in the background, returning its id.
// The scan is visible through Snapshot and Cancel as soon as Start returns;
// it is detached from ctx cancellation.
func (r *Runner) Start(ctx context.Context, req ScanRequest) (string, error) {
	scan, regs, err := r.prepare(req)
	if err != nil {
		return "", err
	}
	go func() {
		_, _ = r.run(context.WithoutCancel(ctx), scan, regs, req)
	}()
	return scan.report.Metadata.ScanID, nil
}

func (r *Runner) prepare(req ScanRequest) (*activeScan, []Registration, error) {
	regs, err := r.registry.Profile(req.Profile)
	if err != nil {
		return nil, nil, err
	}
	scan, err := r.start(req, len(regs))
	if err != nil {
		return nil, nil, err
	}
	return scan, regs, nil
}

func (r *Runner) run(
	ctx context.Context,
	scan *activeScan,
	regs []Registration,
	req ScanRequest,
) (scanning.Report, error) {
	id := scan.report.Metadata.ScanID
	defer r.finish(id)

	ctx, span := r.tracer.Start(ctx, "runner.run",
		trace.WithAttributes(
			attribute.String("scan_id", id),
			attribute.String("profile", string(req.Profile)),
			attribute.Int("planned_checks", len(regs)),
		))
	defer span.End()

	log := logger.NewLoggerContext(r.logger.With("scan_id", id, "profile", string(req.Profile)))
	r.metrics.IncScansStarted(ctx, string(req.Profile))
	r.metrics.SetActiveScans(ctx, 1)
	defer r.metrics.SetActiveScans(context.WithoutCancel(ctx), -1)

	final, runErr := r.execute(ctx, scan, regs, req, log)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "scan failed")
	}
	span.SetAttributes(
		attribute.String("status", string(final.Status)),
		attribute.String("gate", string(final.GateStatus)),
	)
	r.metrics.IncScansFinished(ctx, string(final.Status), string(final.GateStatus))
	return final, runErr
}

func (r *Runner) start(req ScanRequest, planned int) (*activeScan, error) {
	id := req.ScanID
	if id == "" {
		id = r.newID()
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "manual"
	}

	report := scanning.NewReport(scanning.Metadata{
		ScanID:      id,
		Profile:     string(req.Profile),
		Environment: req.Environment,
		Trigger:     trigger,
		Commit:      req.Commit,
		BaseURL:     req.BaseURL,
		StartedAt:   r.now(),
	})
	report.Planned = planned
	scan := &activeScan{report: report}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[id]; exists {
		return nil, fmt.Errorf("scan %s is already running", id)
	}
	r.active[id] = scan
	return scan, nil
}

func (r *Runner) finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

func (r *Runner) execute(
	ctx context.Context,
	scan *activeScan,
	regs []Registration,
	req ScanRequest,
	log *logger.LoggerContext,
) (final scanning.Report, err error) {
	id := scan.report.Metadata.ScanID
	persistCtx := context.WithoutCancel(ctx)

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		err = fmt.Errorf("scan %s: %s: %v", id, FatalReasonPrefix, p)
		log.Error(ctx, "scan aborted by unexpected panic", "panic", fmt.Sprint(p))
		scan.update(func(rep *scanning.Report) {
			r.stamp(rep)
			rep.GateStatus = scanning.GateFail
			rep.GateReason = fmt.Sprintf("%s: %v", FatalReasonPrefix, p)
			if !rep.Status.Terminal() {
				rep.Status = scanning.ReportStatusFailed
			}
		})
		final = scan.snapshot()
		r.persist(persistCtx, final, log)
		r.report(persistCtx, scanning.Progress{
			ScanID: id, Phase: scanning.PhaseScanFinished, Index: len(regs), Total: len(regs),
			Status: string(final.Status),
		}, log)
	}()

	env := Env{
		ScanID:      id,
		WorkDir:     req.WorkDir,
		Environment: req.Environment,
		BaseURL:     req.BaseURL,
		Commit:      req.Commit,
	}

	log.Info(ctx, "scan started", "planned_checks", len(regs))
	r.persist(persistCtx, scan.snapshot(), log)
	lastSave := r.now()
	r.report(ctx, scanning.Progress{ScanID: id, Phase: scanning.PhaseScanStarted, Total: len(regs)}, log)

	cancelled := false
	for i, reg := range regs {
		if scan.cancelled.Load() || ctx.Err() != nil {
			cancelled = true
			log.Info(ctx, "scan cancelled", "completed_checks", i)
			break
		}

		scan.update(func(rep *scanning.Report) { rep.CurrentCheck = reg.ID })
		r.report(ctx, scanning.Progress{
			ScanID: id, Phase: scanning.PhaseCheckStarted, CheckID: reg.ID, Index: i, Total: len(regs),
		}, log)

		res := r.executeCheck(ctx, reg, env, log)
		scan.update(func(rep *scanning.Report) { rep.AddResult(res) })

		r.report(ctx, scanning.Progress{
			ScanID: id, Phase: scanning.PhaseCheckFinished, CheckID: reg.ID, Index: i + 1, Total: len(regs),
			Status: string(res.Status),
		}, log)

		if r.now().Sub(lastSave) >= r.saveInterval {
			r.persist(persistCtx, scan.snapshot(), log)
			lastSave = r.now()
		}
	}

	var decision gate.Decision
	scan.update(func(rep *scanning.Report) {
		r.stamp(rep)
		decision = gate.Apply(rep)
	})
	log.Add("gate", string(decision.Status))
	log.Info(ctx, "gate computed", "reason", decision.Reason)

	if r.enricher != nil && req.AI != nil && !cancelled {
		enriched := r.enricher.Enrich(ctx, scan.snapshot(), *req.AI)
		scan.update(func(rep *scanning.Report) { rep.AI = &enriched })
		log.Info(ctx, "ai enrichment finished",
			"ai_status", string(enriched.Status), "engine", enriched.EngineUsed, "cached", enriched.Cached)
	}

	target := scanning.ReportStatusDone
	if cancelled {
		target = scanning.ReportStatusCancelled
	}
	var transitionErr error
	scan.update(func(rep *scanning.Report) {
		rep.Recommendations = gate.Recommendations(rep)
		transitionErr = rep.Transition(target)
	})
	if transitionErr != nil {
		panic(transitionErr)
	}

	final = scan.snapshot()
	r.persist(persistCtx, final, log)
	r.report(persistCtx, scanning.Progress{
		ScanID: id, Phase: scanning.PhaseScanFinished, Index: len(final.CheckResults()), Total: len(regs),
		Status: string(final.Status),
	}, log)
	log.Info(ctx, "scan finished", "status", string(final.Status), "duration_ms", final.Counters.DurationMS)
	return final, nil
}

// stamp records the finish time and duration and clears the current check.
func (r *Runner) stamp(rep *scanning.Report) {
	rep.CurrentCheck = ""
	rep.Metadata.FinishedAt = r.now()
	rep.Counters.DurationMS = rep.Metadata.FinishedAt.Sub(rep.Metadata.StartedAt).Milliseconds()
}

// executeCheck runs one check in isolation. Errors and panics become an
// error-status result.
func (r *Runner) executeCheck(
	ctx context.Context,
	reg Registration,
	env Env,
	log *logger.LoggerContext,
) (res scanning.CheckResult) {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "runner.execute_check",
		trace.WithAttributes(
			attribute.String("check_id", reg.ID),
			attribute.String("category", reg.Category),
		))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			res = scanning.NewErrorResult(reg.ID, reg.Name, reg.Category, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "check panicked")
			log.Error(ctx, "check panicked", "check_id", reg.ID, "panic", fmt.Sprint(p))
		}
		elapsed := r.now().Sub(start)
		res.DurationMS = elapsed.Milliseconds()
		span.SetAttributes(attribute.String("status", string(res.Status)))
		r.metrics.ObserveCheck(ctx, reg.ID, string(res.Status), elapsed)
	}()

	out, err := reg.Factory().Execute(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check returned error")
		log.Warn(ctx, "check returned error", "check_id", reg.ID, "error", err)
		return scanning.NewErrorResult(reg.ID, reg.Name, reg.Category, err)
	}

	out.CheckID = reg.ID
	out.Category = reg.Category
	if out.CheckName == "" {
		out.CheckName = reg.Name
	}
	if out.Status == "" {
		out.Status = scanning.StatusFromFindings(out.Findings)
	}
	log.Debug(ctx, "check finished", "check_id", reg.ID, "status", string(out.Status), "findings", len(out.Findings))
	return out
}

func (r *Runner) persist(ctx context.Context, rep scanning.Report, log *logger.LoggerContext) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, rep); err != nil {
		log.Warn(ctx, "failed to persist report", "status", string(rep.Status), "error", err)
	}
}

func (r *Runner) report(ctx context.Context, p scanning.Progress, log *logger.LoggerContext) {
	if r.progress == nil {
		return
	}
	p.Timestamp = r.now()
	if err := r.progress.ReportProgress(ctx, p); err != nil {
		log.Warn(ctx, "failed to report progress", "phase", string(p.Phase), "error", err)
	}
}

// Cancel requests cooperative cancellation of a running scan. The check in
// flight finishes; no further checks start.
func (r *Runner) Cancel(id string) error {
	r.mu.RLock()
	scan, ok := r.active[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	scan.cancelled.Store(true)
	return nil
}

// Snapshot returns a deep copy of a running scan's report.
func (r *Runner) Snapshot(id string) (scanning.Report, error) {
	r.mu.RLock()
	scan, ok := r.active[id]
	r.mu.RUnlock()
	if !ok {
		return scanning.Report{}, fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	return scan.snapshot(), nil
}

// Active returns the ids of running scans.
func (r *Runner) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}
