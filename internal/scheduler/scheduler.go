package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"warden/internal/commands"
	"warden/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Scheduler admits pending commands so that no two running commands share a
// resource. held and admitted are only touched with mu held; actuation runs
// outside the lock.
type Scheduler struct {
	store     Store
	actuator  Actuator
	estimator commands.Estimator
	observers []Observer
	logger    *log.Logger
	now       func() time.Time
	base      context.Context

	mu       sync.Mutex
	held     map[commands.Resource]uint64 // resource -> holding command id
	admitted map[uint64]*admission
}

// Option configures the scheduler.
type Option func(*Scheduler)

func WithEstimator(e commands.Estimator) Option {
	return func(s *Scheduler) { s.estimator = e }
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock used for timestamps and deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBaseContext sets the parent of every admission context. Cancelling it
// tells all in-flight actuations to stop.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.base = ctx
		}
	}
}

func New(store Store, actuator Actuator, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("scheduler: nil store")
	}
	if actuator == nil {
		return nil, errors.New("scheduler: nil actuator")
	}
	s := &Scheduler{
		store:     store,
		actuator:  actuator,
		estimator: commands.DefaultEstimator(),
		logger:    log.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		base:      context.Background(),
		held:      make(map[commands.Resource]uint64),
		admitted:  make(map[uint64]*admission),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type SubmitRequest struct {
	ActionType        string
	Parameters        map[string]any
	ResultDestination string
}

// Submit records the command durably and triggers a scan. Only the insert
// can fail the call; a failed scan is retried by the next trigger.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (uint64, error) {
	action := strings.TrimSpace(strings.ToLower(req.ActionType))
	if action == "" {
		return 0, fmt.Errorf("%w: action type required", ErrInvalidCommand)
	}
	now := s.now()
	cmd := commands.Command{
		ActionType:        action,
		Parameters:        datatypes.JSONMap(req.Parameters),
		ResultDestination: strings.TrimSpace(req.ResultDestination),
		SubmittedAt:       now,
		LastUpdatedAt:     now,
	}
	if err := s.estimator.Validate(cmd); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	id, err := s.store.Insert(ctx, &cmd)
	if err != nil {
		return 0, err
	}
	metrics.IncSubmitted(action)
	if !commands.KnownAction(action) {
		s.logger.Printf("scheduler: command %d has unknown action %q, treated as non-exclusive", id, action)
	}

	if err := s.Scan(ctx); err != nil {
		s.logger.Printf("scheduler: scan after submit of %d: %v", id, err)
	}
	return id, nil
}

type dispatch struct {
	ctx context.Context
	adm *Admission
}

// Scan admits, in FIFO order, every pending command whose resources are all
// free. The pending rows are read before the lock is taken; a row that
// changed since is skipped by admit's guarded write. Admitted commands are
// handed to the actuator after the lock is released.
func (s *Scheduler) Scan(ctx context.Context) error {
	start := time.Now()
	started, err := s.admitPending(ctx)
	for _, d := range started {
		go s.actuator.OnAdmitted(d.ctx, d.adm)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveScan(result, time.Since(start))
	return err
}

func (s *Scheduler) admitPending(ctx context.Context) ([]dispatch, error) {
	pending, err := s.store.Pending(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var started []dispatch
	for _, cmd := range pending {
		if _, ok := s.admitted[cmd.ID]; ok {
			continue
		}
		need := commands.ResourcesFor(cmd.ActionType)
		if holder, r, busy := s.conflict(need); busy {
			s.logger.Printf("scheduler: command %d (%s) waits, %s held by %d", cmd.ID, cmd.ActionType, r, holder)
			metrics.IncConflict(cmd.ActionType)
			continue
		}
		d, err := s.admit(ctx, cmd, need)
		if errors.Is(err, commands.ErrChanged) || errors.Is(err, commands.ErrNotFound) {
			// admitted, reclaimed or cleared since the read; whoever did it rescans
			continue
		}
		if err != nil {
			return started, err
		}
		started = append(started, d)
	}
	return started, nil
}

// admit persists cmd as running and reserves need. Caller holds mu.
func (s *Scheduler) admit(ctx context.Context, cmd commands.Command, need commands.ResourceSet) (dispatch, error) {
	now := s.now()
	finish := s.estimator.ExpectedFinish(cmd, now)
	attempt := cmd.Attempt + 1

	err := s.store.UpdateStatus(ctx, cmd.ID, commands.StatusUpdate{
		Status:           commands.StatusRunning,
		UpdatedAt:        now,
		ExpectedFinishAt: &finish,
		Attempt:          attempt,
		IfStatus:         commands.StatusPending,
		IfAttempt:        cmd.Attempt,
	})
	if err != nil {
		return dispatch{}, fmt.Errorf("admit command %d: %w", cmd.ID, err)
	}

	for r := range need {
		s.held[r] = cmd.ID
	}
	actx, cancel := context.WithCancel(s.base)
	a := &admission{
		attempt:   attempt,
		token:     uuid.NewString(),
		resources: need,
		cancel:    cancel,
	}
	s.admitted[cmd.ID] = a
	s.publishHeld()

	cmd.Status = commands.StatusRunning
	cmd.Attempt = attempt
	cmd.LastUpdatedAt = now
	cmd.ExpectedFinishAt = &finish
	cmd.LastError = nil

	metrics.IncAdmitted(cmd.ActionType)
	s.logger.Printf("scheduler: admitted command %d (%s) attempt %d, holds %s until %s",
		cmd.ID, cmd.ActionType, attempt, need, finish.Format(time.RFC3339))

	return dispatch{
		ctx: actx,
		adm: &Admission{Command: cmd, Attempt: attempt, Token: a.token, sched: s},
	}, nil
}

// conflict reports the first held resource in need, if any. Caller holds mu.
func (s *Scheduler) conflict(need commands.ResourceSet) (uint64, commands.Resource, bool) {
	for _, r := range need.Sorted() {
		if holder, ok := s.held[r]; ok {
			return holder, r, true
		}
	}
	return 0, "", false
}

// release frees the resources in need that id still holds. Caller holds mu.
func (s *Scheduler) release(id uint64, need commands.ResourceSet) {
	for r := range need {
		if s.held[r] == id {
			delete(s.held, r)
		}
	}
	s.publishHeld()
}

func (s *Scheduler) publishHeld() {
	for _, r := range commands.AllResources() {
		_, ok := s.held[r]
		metrics.SetHeld(string(r), ok)
	}
}

// Complete reports the outcome of the current admission of id. A second
// call for the same admission returns ErrNotAdmitted.
func (s *Scheduler) Complete(ctx context.Context, id uint64, out Outcome) error {
	return s.complete(ctx, id, 0, out)
}

// CompleteAttempt is Complete fenced by attempt number: a report for an
// attempt that was reclaimed returns ErrStaleCompletion.
func (s *Scheduler) CompleteAttempt(ctx context.Context, id uint64, attempt int, out Outcome) error {
	if attempt <= 0 {
		return fmt.Errorf("%w: attempt must be positive", ErrInvalidOutcome)
	}
	return s.complete(ctx, id, attempt, out)
}

func (s *Scheduler) complete(ctx context.Context, id uint64, attempt int, out Outcome) error {
	if !out.valid() {
		return ErrInvalidOutcome
	}

	cmd, err := s.finish(ctx, id, attempt, out)
	if err != nil {
		return err
	}

	metrics.IncCompleted(cmd.ActionType, cmd.Status)
	s.logger.Printf("scheduler: command %d (%s) %s", cmd.ID, cmd.ActionType, describe(out))
	s.notify(*cmd)

	// the caller's context may be the admission context, which is now cancelled
	if err := s.Scan(context.WithoutCancel(ctx)); err != nil {
		s.logger.Printf("scheduler: scan after completion of %d: %v", id, err)
	}
	return nil
}

func (s *Scheduler) finish(ctx context.Context, id uint64, attempt int, out Outcome) (*commands.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admitted[id]
	if !ok {
		return nil, ErrNotAdmitted
	}
	if attempt > 0 && a.attempt != attempt {
		return nil, ErrStaleCompletion
	}

	cmd, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var reason *string
	if out.Reason != "" {
		r := out.Reason
		reason = &r
	}
	now := s.now()
	err = s.store.UpdateStatus(ctx, id, commands.StatusUpdate{
		Status:    out.Status,
		UpdatedAt: now,
		Attempt:   a.attempt,
		LastError: reason,
	})
	if err != nil {
		return nil, fmt.Errorf("complete command %d: %w", id, err)
	}

	s.release(id, a.resources)
	delete(s.admitted, id)
	a.cancel()

	cmd.Status = out.Status
	cmd.LastUpdatedAt = now
	cmd.ExpectedFinishAt = nil
	cmd.LastError = reason
	return cmd, nil
}

// Reclaim puts a running command back to pending and frees its resources,
// cancelling the admission context if this process admitted it.
func (s *Scheduler) Reclaim(ctx context.Context, id uint64) (bool, error) {
	return s.reclaim(ctx, id, func(commands.Command) bool { return true })
}

func (s *Scheduler) reclaim(ctx context.Context, id uint64, eligible func(commands.Command) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, err := s.store.Get(ctx, id)
	if errors.Is(err, commands.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// completed or already reclaimed since the caller looked
	if cmd.Status != commands.StatusRunning || !eligible(*cmd) {
		return false, nil
	}

	err = s.store.UpdateStatus(ctx, id, commands.StatusUpdate{
		Status:    commands.StatusPending,
		UpdatedAt: s.now(),
		Attempt:   cmd.Attempt,
		LastError: cmd.LastError,
	})
	if err != nil {
		return false, fmt.Errorf("reclaim command %d: %w", id, err)
	}

	// an orphan from a previous process holds nothing in memory
	need := commands.ResourcesFor(cmd.ActionType)
	if a, ok := s.admitted[id]; ok {
		a.cancel()
		delete(s.admitted, id)
		need = a.resources
	}
	s.release(id, need)
	s.logger.Printf("scheduler: reclaimed command %d (%s) attempt %d", id, cmd.ActionType, cmd.Attempt)
	return true, nil
}

// ClearAll drops every command and forgets all in-memory state. In-flight
// actuations are cancelled; their later completions get ErrNotAdmitted.
func (s *Scheduler) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ClearAll(ctx); err != nil {
		return err
	}
	for _, a := range s.admitted {
		a.cancel()
	}
	s.admitted = make(map[uint64]*admission)
	s.held = make(map[commands.Resource]uint64)
	s.publishHeld()
	s.logger.Printf("scheduler: cleared all commands")
	return nil
}

// State is a point-in-time copy of the arbiter's in-memory sets.
type State struct {
	Held     map[commands.Resource]uint64 `json:"held"`
	Admitted []uint64                     `json:"admitted"`
}

func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Held:     make(map[commands.Resource]uint64, len(s.held)),
		Admitted: make([]uint64, 0, len(s.admitted)),
	}
	for r, id := range s.held {
		st.Held[r] = id
	}
	for id := range s.admitted {
		st.Admitted = append(st.Admitted, id)
	}
	sort.Slice(st.Admitted, func(i, j int) bool { return st.Admitted[i] < st.Admitted[j] })
	return st
}

func (s *Scheduler) notify(cmd commands.Command) {
	if len(s.observers) == 0 {
		return
	}
	go func() {
		for _, o := range s.observers {
			o.CommandFinished(s.base, cmd)
		}
	}()
}

func describe(out Outcome) string {
	if out.Reason == "" {
		return out.Status
	}
	return out.Status + ": " + out.Reason
}
