// Package controlplane provides the control API and service layer for cadence.
package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/fentz26/cadence/internal/audit"
	"github.com/fentz26/cadence/internal/checkpoint"
	"github.com/fentz26/cadence/internal/confidence"
	"github.com/fentz26/cadence/internal/connectors"
	"github.com/fentz26/cadence/internal/models"
	"github.com/fentz26/cadence/internal/phase"
	"github.com/fentz26/cadence/internal/store"
	"github.com/fentz26/cadence/internal/telemetry"
)

// Service provides the control plane business logic.
type Service struct {
	store          *store.Store
	executor       connectors.Executor
	checkpoints    *checkpoint.Manager
	evaluator      *confidence.Evaluator
	pdr            *audit.PDRWriter
	criteria       phase.CriteriaSet
	defaults       models.SessionMetadata
	autoCheckpoint bool
	sprintTimeout  time.Duration
	metrics        *telemetry.Metrics
	tracer         trace.Tracer
	logger         *slog.Logger

	// session id -> *sync.Mutex; sprints of one session run one at a time
	locks sync.Map
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEvaluator sets the confidence evaluator.
func WithEvaluator(e *confidence.Evaluator) Option {
	return func(s *Service) { s.evaluator = e }
}

// WithCriteria sets the phase advance criteria.
func WithCriteria(c phase.CriteriaSet) Option {
	return func(s *Service) {
		if len(c) > 0 {
			s.criteria = c
		}
	}
}

// WithSessionDefaults sets the tunables used when init leaves them unset.
func WithSessionDefaults(m models.SessionMetadata) Option {
	return func(s *Service) { s.defaults = m.Clone() }
}

// WithAutoCheckpoint toggles the checkpoint taken after each phase advance.
func WithAutoCheckpoint(on bool) Option {
	return func(s *Service) { s.autoCheckpoint = on }
}

// WithCheckpointManager shares a checkpoint manager, and its restore cache,
// with the caller.
func WithCheckpointManager(m *checkpoint.Manager) Option {
	return func(s *Service) { s.checkpoints = m }
}

// WithAudit sets the decision record writer.
func WithAudit(w *audit.PDRWriter) Option {
	return func(s *Service) { s.pdr = w }
}

// WithTelemetry sets the tracer and metric instruments.
func WithTelemetry(tracer trace.Tracer, m *telemetry.Metrics) Option {
	return func(s *Service) {
		s.tracer = tracer
		s.metrics = m
	}
}

// WithSprintTimeout bounds each executor run. Zero leaves it to the executor.
func WithSprintTimeout(d time.Duration) Option {
	return func(s *Service) { s.sprintTimeout = d }
}

// NewService creates a new control plane service.
func NewService(st *store.Store, exec connectors.Executor, opts ...Option) *Service {
	s := &Service{
		store:          st,
		executor:       exec,
		criteria:       phase.DefaultCriteria(),
		defaults:       models.SessionMetadata{}.WithDefaults(),
		autoCheckpoint: true,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluator == nil {
		s.evaluator = confidence.New()
	}
	if s.checkpoints == nil {
		s.checkpoints = checkpoint.NewManager(st, s.logger, 0)
	}
	if s.pdr == nil {
		s.pdr = audit.NewPDRWriter(st, s.logger)
	}
	if s.metrics == nil {
		s.metrics = telemetry.NopMetrics()
	}
	if s.tracer == nil {
		s.tracer = tracenoop.NewTracerProvider().Tracer(telemetry.ScopeName)
	}
	return s
}

// Checkpoints returns the checkpoint manager.
func (s *Service) Checkpoints() *checkpoint.Manager {
	return s.checkpoints
}

// Execute runs a decoded call. Mutating calls are audited whatever their
// outcome.
func (s *Service) Execute(ctx context.Context, call Call) (any, error) {
	method := call.Method()
	ctx, span := telemetry.StartSpan(ctx, s.tracer, "service."+string(method),
		telemetry.AttrMethod.String(string(method)),
		telemetry.AttrSessionID.String(call.Session()),
	)
	defer span.End()

	var (
		result    any
		err       error
		sessionID = call.Session()
	)
	switch c := call.(type) {
	case InitCall:
		var r *InitResult
		if r, err = s.Init(ctx, c); err == nil {
			result, sessionID = r, r.SessionID
		}
	case StatusCall:
		var r *StatusResult
		if r, err = s.Status(ctx, c); err == nil {
			result = r
		}
	case SprintCall:
		var r *SprintResult
		if r, err = s.Sprint(ctx, c); err == nil {
			result = r
		}
	case CheckpointCall:
		var r *CheckpointResult
		if r, err = s.Checkpoint(ctx, c); err == nil {
			result = r
		}
	case RestoreCall:
		var r *RestoreResult
		if r, err = s.Restore(ctx, c); err == nil {
			result, sessionID = r, r.SessionID
		}
	case ListCall:
		var r *ListResult
		if r, err = s.List(ctx, c); err == nil {
			result = r
		}
	case CancelCall:
		var r *CancelResult
		if r, err = s.Cancel(ctx, c); err == nil {
			result = r
		}
	case MetricsCall:
		var r *MetricsResult
		if r, err = s.Metrics(ctx, c); err == nil {
			result = r
		}
	default:
		err = fmt.Errorf("%w: %T", ErrMethodNotFound, call)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if method.Mutating() {
		s.record(ctx, call, sessionID, result, err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, call Call, sessionID string, result any, err error) {
	outcome, details := audit.OutcomeSuccess, ""
	switch r := result.(type) {
	case *SprintResult:
		details = fmt.Sprintf("sprint %d %s confidence %.2f", r.SprintNumber, r.Status, r.Confidence)
		if r.Decision.Stalled {
			outcome = audit.OutcomeStalled
		}
	}
	if err != nil {
		outcome, details = audit.OutcomeFailure, err.Error()
	}
	_, _ = s.pdr.Record(ctx, "rpc."+string(call.Method()), call, outcome, sessionID, details)
}

func (s *Service) lock(sessionID string) func() {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// --- Session Operations ---

// Init creates a session.
func (s *Service) Init(ctx context.Context, c InitCall) (*InitResult, error) {
	task := strings.TrimSpace(c.Task)
	if task == "" {
		return nil, fmt.Errorf("%w: task is required", ErrInvalidParams)
	}

	meta := s.defaults.Clone()
	if c.ConfidenceThreshold != nil {
		if t := *c.ConfidenceThreshold; t <= 0 || t > 1 {
			return nil, fmt.Errorf("%w: confidence_threshold must be in (0, 1], got %v", ErrInvalidParams, t)
		}
		meta.ConfidenceThreshold = *c.ConfidenceThreshold
	}
	if c.MaxSprints != nil {
		if *c.MaxSprints < 1 {
			return nil, fmt.Errorf("%w: max_sprints must be at least 1", ErrInvalidParams)
		}
		meta.MaxSprints = *c.MaxSprints
	}
	if c.ParallelSwarms != nil {
		if *c.ParallelSwarms < 1 {
			return nil, fmt.Errorf("%w: parallel_swarms must be at least 1", ErrInvalidParams)
		}
		meta.ParallelSwarms = *c.ParallelSwarms
	}
	meta.Phase = string(phase.Planning)
	meta.PhaseIterations = 0

	sess, err := s.store.CreateSession(ctx, task, meta)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session started", "session_id", sess.ID, "task", task,
		"threshold", sess.Metadata.ConfidenceThreshold, "max_sprints", sess.Metadata.MaxSprints)
	return &InitResult{SessionID: sess.ID, Status: sess.Status}, nil
}

// Status returns a session summary, with its sprints when verbose.
func (s *Service) Status(ctx context.Context, c StatusCall) (*StatusResult, error) {
	sess, err := s.store.GetSession(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	res := &StatusResult{Session: summarize(*sess)}
	if c.Verbose {
		if res.Sprints, err = s.store.GetSprintsBySession(ctx, sess.ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Cancel marks an active session cancelled. An in-flight sprint is not
// interrupted; later sprints are refused.
func (s *Service) Cancel(ctx context.Context, c CancelCall) (*CancelResult, error) {
	sess, err := s.store.GetSession(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, fmt.Errorf("%w: session %s is already %s", ErrFailedPrecondition, sess.ID, sess.Status)
	}
	cancelled := models.SessionStatusCancelled
	sess, err = s.store.UpdateSession(ctx, sess.ID, store.SessionUpdate{Status: &cancelled})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session cancelled", "session_id", sess.ID, "sprints", sess.SprintCount)
	return &CancelResult{SessionID: sess.ID, Status: sess.Status, Cancelled: true}, nil
}

// List lists sessions, or the checkpoints of one session.
func (s *Service) List(ctx context.Context, c ListCall) (*ListResult, error) {
	switch c.Type {
	case ListSessions:
		if c.Status != "" && !c.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidParams, c.Status)
		}
		sessions, err := s.store.ListSessions(ctx, c.Status)
		if err != nil {
			return nil, err
		}
		res := &ListResult{Type: ListSessions, Sessions: make([]SessionSummary, 0, len(sessions))}
		for _, sess := range sessions {
			res.Sessions = append(res.Sessions, summarize(sess))
		}
		return res, nil

	case ListCheckpoints:
		if c.SessionID == "" {
			return nil, fmt.Errorf("%w: session_id is required to list checkpoints", ErrInvalidParams)
		}
		if _, err := s.store.GetSession(ctx, c.SessionID); err != nil {
			return nil, err
		}
		list, err := s.checkpoints.List(ctx, c.SessionID)
		if err != nil {
			return nil, err
		}
		res := &ListResult{Type: ListCheckpoints, Checkpoints: make([]CheckpointSummary, 0, len(list))}
		for _, cp := range list {
			res.Checkpoints = append(res.Checkpoints, CheckpointSummary{
				ID:          cp.ID,
				SessionID:   cp.SessionID,
				SprintID:    cp.SprintID,
				Name:        cp.Name,
				Description: cp.Description,
				CreatedAt:   cp.CreatedAt,
			})
		}
		return res, nil

	default:
		return nil, fmt.Errorf("%w: unknown list type %q", ErrInvalidParams, c.Type)
	}
}

// --- Sprint Operations ---

// Sprint runs the next sprint of an active session: the executor carries out
// the work, the outcome is scored, and the phase decision is applied to the
// session.
func (s *Service) Sprint(ctx context.Context, c SprintCall) (*SprintResult, error) {
	unlock := s.lock(c.SessionID)
	defer unlock()

	sess, err := s.store.GetSession(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: session %s is %s", ErrFailedPrecondition, sess.ID, sess.Status)
	}
	if sess.SprintCount >= sess.Metadata.MaxSprints {
		return nil, fmt.Errorf("%w (%d)", ErrSprintLimit, sess.Metadata.MaxSprints)
	}

	objective := strings.TrimSpace(c.Objective)
	if objective == "" {
		objective = sess.TaskID
	}
	sp, err := s.store.CreateSprint(ctx, sess.ID, objective)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, s.tracer, "sprint.run",
		telemetry.AttrSessionID.String(sess.ID),
		telemetry.AttrSprintID.String(sp.ID),
	)
	defer span.End()

	executing := models.SprintStatusExecuting
	if _, err := s.store.UpdateSprint(ctx, sp.ID, store.SprintUpdate{Status: &executing}); err != nil {
		return nil, err
	}

	outcome := s.run(ctx, sess, sp)
	score := s.evaluator.EvaluateOutcome(outcome.Success, outcome.Output)
	value := score.Value

	status := models.SprintStatusCompleted
	if !outcome.Success {
		status = models.SprintStatusFailed
	}
	sp, err = s.store.UpdateSprint(ctx, sp.ID, store.SprintUpdate{
		Status:     &status,
		Confidence: &value,
		Result: &models.SprintResult{
			Success:   outcome.Success,
			Output:    outcome.Output,
			Artifacts: outcome.Artifacts,
			Metrics: models.SprintMetrics{
				DurationMs:  outcome.Duration.Milliseconds(),
				Tokens:      outcome.Tokens,
				Agents:      outcome.Agents,
				MemoryBytes: outcome.MemoryBytes,
				Errors:      outcome.Errors,
			},
			Score: score.Model(),
		},
	})
	if err != nil {
		return nil, err
	}
	s.saveArtifacts(ctx, sp.ID, outcome.Artifacts)

	decision, meta, err := s.decide(ctx, sess, value)
	if err != nil {
		return nil, err
	}
	count := sp.SprintNumber
	if count < sess.SprintCount {
		count = sess.SprintCount
	}
	// A cancel may land while the executor runs; it wins over completion.
	upd := store.SessionUpdate{SprintCount: &count, ConfidenceLevel: &value, Metadata: &meta, KeepTerminal: true}
	if decision.Complete {
		done := models.SessionStatusCompleted
		upd.Status = &done
	}
	if sess, err = s.store.UpdateSession(ctx, sess.ID, upd); err != nil {
		return nil, err
	}

	res := &SprintResult{
		SprintID:       sp.ID,
		SprintNumber:   sp.SprintNumber,
		Status:         sp.Status,
		Confidence:     value,
		Level:          score.Level.String(),
		Phase:          phase.Phase(meta.Phase),
		Decision:       decision,
		ShouldContinue: shouldContinue(sess, value, decision),
	}
	if decision.Advance && s.autoCheckpoint {
		name := fmt.Sprintf("auto-%s-sprint-%d", decision.To, sp.SprintNumber)
		cp, err := s.checkpoints.Checkpoint(ctx, sess.ID, sp.ID, name, decision.Reason)
		if err != nil {
			s.logger.Warn("auto checkpoint failed", "session_id", sess.ID, "sprint_id", sp.ID, "error", err)
		} else {
			res.CheckpointID = cp.ID
			s.metrics.Checkpoints.Add(ctx, 1, metric.WithAttributes(attribute.Bool("auto", true)))
		}
	}

	s.metrics.Sprints.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	s.metrics.SprintDuration.Record(ctx, outcome.Duration.Seconds())
	s.metrics.SprintConfidence.Record(ctx, value)
	if decision.Advance {
		s.metrics.PhaseTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(decision.From)),
			attribute.String("to", string(decision.To)),
		))
	}
	span.SetAttributes(telemetry.AttrPhase.String(meta.Phase), attribute.Float64("confidence", value))

	s.logger.Info("sprint finished",
		"session_id", sess.ID,
		"sprint", sp.SprintNumber,
		"status", status,
		"confidence", value,
		"phase", meta.Phase,
		"advance", decision.Advance,
		"stalled", decision.Stalled,
		"should_continue", res.ShouldContinue,
	)
	if decision.Stalled {
		s.logger.Warn("phase stalled", "session_id", sess.ID, "phase", decision.From, "reason", decision.Reason)
	}
	return res, nil
}

// run executes the sprint. An executor that cannot run at all yields a
// failed outcome so the sprint is still recorded and scored.
func (s *Service) run(ctx context.Context, sess *models.Session, sp *models.Sprint) *connectors.Outcome {
	job := connectors.Job{
		Task:      sess.TaskID,
		Objective: sp.Objective,
		Limits: connectors.Limits{
			Timeout:      s.sprintTimeout,
			MaxAgents:    sess.Metadata.ParallelSwarms,
			SprintNumber: sp.SprintNumber,
			SessionID:    sess.ID,
		},
	}
	start := time.Now()
	outcome, err := s.executor.Execute(ctx, job)
	if err != nil || outcome == nil {
		if err == nil {
			err = fmt.Errorf("executor %s returned no outcome", s.executor.Name())
		}
		s.logger.Warn("executor failed", "session_id", sess.ID, "sprint", sp.SprintNumber,
			"executor", s.executor.Name(), "error", err)
		return &connectors.Outcome{
			Output:   err.Error(),
			ExitCode: -1,
			Duration: time.Since(start),
			Errors:   1,
		}
	}
	if outcome.Duration == 0 {
		outcome.Duration = time.Since(start)
	}
	return outcome
}

func (s *Service) saveArtifacts(ctx context.Context, sprintID string, paths []string) {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := s.store.SaveArtifact(ctx, models.Artifact{
			SprintID: sprintID,
			Type:     models.ArtifactFile,
			Path:     p,
		}); err != nil {
			s.logger.Warn("artifact not saved", "sprint_id", sprintID, "path", p, "error", err)
		}
	}
}

// decide applies the phase criteria to the session after a sprint scored
// value. The ratio is the share of the session's sprints that completed.
func (s *Service) decide(ctx context.Context, sess *models.Session, value float64) (phase.Decision, models.SessionMetadata, error) {
	meta := sess.Metadata.Clone()
	current, err := phase.ParsePhase(meta.Phase)
	if err != nil {
		return phase.Decision{}, meta, err
	}
	sprints, err := s.store.GetSprintsBySession(ctx, sess.ID)
	if err != nil {
		return phase.Decision{}, meta, err
	}

	progress := phase.Progress{
		Phase:      current,
		Confidence: value,
		Ratio:      completedRatio(sprints),
		Iterations: meta.PhaseIterations + 1,
	}
	d := s.criteria.Decide(progress)

	switch {
	case d.Advance:
		st := phase.FromSnapshot(phase.Snapshot{Phase: current, Confidence: value, Iteration: progress.Iterations})
		next, err := phase.Reduce(st, phase.Transition{To: d.To})
		if err != nil {
			return phase.Decision{}, meta, err
		}
		meta.Phase = string(next.Phase())
		meta.PhaseIterations = next.Iteration()
	case d.Complete:
		meta.Phase = string(phase.Completing)
		meta.PhaseIterations = 0
	default:
		meta.Phase = string(current)
		meta.PhaseIterations = progress.Iterations
	}
	return d, meta, nil
}

func completedRatio(sprints []models.Sprint) float64 {
	if len(sprints) == 0 {
		return 0
	}
	done := 0
	for _, sp := range sprints {
		if sp.Status == models.SprintStatusCompleted {
			done++
		}
	}
	return float64(done) / float64(len(sprints))
}

// shouldContinue reports whether another sprint is worthwhile: confidence is
// still below the threshold, sprints remain, and the phase neither stalled
// nor completed.
func shouldContinue(sess *models.Session, value float64, d phase.Decision) bool {
	return sess.Status == models.SessionStatusActive &&
		value < sess.Metadata.ConfidenceThreshold &&
		sess.SprintCount < sess.Metadata.MaxSprints &&
		!d.Stalled && !d.Complete
}

// --- Checkpoint Operations ---

// Checkpoint snapshots a session against its latest sprint.
func (s *Service) Checkpoint(ctx context.Context, c CheckpointCall) (*CheckpointResult, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, checkpoint.ErrInvalidName)
	}
	if _, err := s.store.GetSession(ctx, c.SessionID); err != nil {
		return nil, err
	}
	cp, err := s.checkpoints.CheckpointLatest(ctx, c.SessionID, c.Name, c.Description)
	if err != nil {
		return nil, err
	}
	s.metrics.Checkpoints.Add(ctx, 1, metric.WithAttributes(attribute.Bool("auto", false)))
	return &CheckpointResult{
		CheckpointID: cp.ID,
		SessionID:    cp.SessionID,
		SprintID:     cp.SprintID,
		Name:         cp.Name,
		CreatedAt:    cp.CreatedAt,
	}, nil
}

// Restore returns the state held by a checkpoint. The live session is left
// unchanged.
func (s *Service) Restore(ctx context.Context, c RestoreCall) (*RestoreResult, error) {
	r, err := s.checkpoints.Restore(ctx, c.CheckpointID)
	if err != nil {
		return nil, err
	}
	return &RestoreResult{
		SessionID:    r.Checkpoint.SessionID,
		CheckpointID: r.Checkpoint.ID,
		Name:         r.Checkpoint.Name,
		State:        r.State,
	}, nil
}

// --- Metrics ---

// Metrics aggregates the sprints of a session.
func (s *Service) Metrics(ctx context.Context, c MetricsCall) (*MetricsResult, error) {
	sess, err := s.store.GetSession(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	sprints, err := s.store.GetSprintsBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	res := &MetricsResult{SessionID: sess.ID, TotalSprints: len(sprints)}
	var (
		usage    ResourceMetrics
		sum      float64
		finished int
	)
	for _, sp := range sprints {
		switch sp.Status {
		case models.SprintStatusCompleted:
			res.CompletedSprints++
		case models.SprintStatusFailed:
			res.FailedSprints++
		}
		if sp.Status.Terminal() {
			finished++
			sum += sp.Confidence
			if sp.Confidence > res.MaxConfidence {
				res.MaxConfidence = sp.Confidence
			}
		}
		if sp.Result == nil {
			continue
		}
		m := sp.Result.Metrics
		res.TotalDurationMs += m.DurationMs
		res.TotalTokens += m.Tokens
		res.TotalErrors += m.Errors
		usage.TotalAgents += m.Agents
		usage.TotalMemoryBytes += m.MemoryBytes
		if m.Agents > usage.PeakAgents {
			usage.PeakAgents = m.Agents
		}
		if m.MemoryBytes > usage.PeakMemoryBytes {
			usage.PeakMemoryBytes = m.MemoryBytes
		}
	}
	if finished > 0 {
		res.AverageConfidence = sum / float64(finished)
		res.Score = s.sessionScore(sess, res, usage, finished).Model()
	}
	if c.IncludeResources {
		res.Resources = &usage
	}
	return res, nil
}

// sessionScore folds the aggregates into the outcome factors that can be
// measured from stored sprints. Factors that cannot be measured carry no
// weight.
func (s *Service) sessionScore(sess *models.Session, m *MetricsResult, r ResourceMetrics, finished int) confidence.Score {
	factors := map[string]float64{
		confidence.FactorSuccessRate:  float64(m.CompletedSprints) / float64(finished),
		confidence.FactorProgressRate: float64(sess.SprintCount) / float64(sess.Metadata.MaxSprints),
		confidence.FactorErrorRate:    1 - float64(m.TotalErrors)/float64(finished),
	}
	if r.TotalAgents > 0 && sess.Metadata.ParallelSwarms > 0 {
		avg := float64(r.TotalAgents) / float64(finished)
		factors[confidence.FactorResourceUtilization] = confidence.UtilizationScore(avg / float64(sess.Metadata.ParallelSwarms))
	}
	weights := confidence.Weights{}
	for name, w := range s.evaluator.Weights() {
		if _, ok := factors[name]; ok {
			weights[name] = w
		}
	}
	return s.evaluator.Evaluate(factors, weights)
}
