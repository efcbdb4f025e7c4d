// Package quiz drives the join flow: name entry, two questions, a loading
// phase while a team is assigned, and the result.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"checkin/internal/assign"
	"checkin/internal/roster"
	"checkin/internal/session"
)

// State is a step of the join flow.
type State string

// Flow states. Resumed is terminal and means the participant was already
// checked in.
const (
	StateName    State = "name"
	StateQ1      State = "q1"
	StateQ2      State = "q2"
	StateLoading State = "loading"
	StateResult  State = "result"
	StateResumed State = "resumed"
)

var (
	// ErrBusy rejects input while a lookup for the same flow is in flight.
	ErrBusy = errors.New("flow busy")
	// ErrWrongState rejects input the current step does not accept.
	ErrWrongState = errors.New("action not allowed in current step")
)

// Assigner places a participant on a team.
type Assigner interface {
	Assign(ctx context.Context, name string, batch int) (assign.Assignment, error)
}

var _ Assigner = (*assign.Assigner)(nil)

// Deps are the collaborators shared by every flow.
type Deps struct {
	Assigner     Assigner
	Teams        roster.TeamDirectory
	Participants roster.ParticipantStore
	Log          *zap.SugaredLogger
}

// Config tunes a flow.
type Config struct {
	Batch int
	// LoadingDuration plus SparkleDuration is the minimum time spent in
	// StateLoading.
	LoadingDuration time.Duration
	SparkleDuration time.Duration
	// AssignTimeout bounds the assignment run in StateLoading.
	AssignTimeout time.Duration
}

// DefaultConfig matches the stock animation timings.
func DefaultConfig() Config {
	return Config{
		Batch:           1,
		LoadingDuration: 5 * time.Second,
		SparkleDuration: 500 * time.Millisecond,
		AssignTimeout:   10 * time.Second,
	}
}

// Snapshot is a copy of a flow's visible state.
type Snapshot struct {
	State       State               `json:"state"`
	Name        string              `json:"name,omitempty"`
	Selections  []string            `json:"selections,omitempty"`
	Prompt      string              `json:"prompt"`
	Options     []Option            `json:"options,omitempty"`
	Participant *roster.Participant `json:"participant,omitempty"`
	Team        *roster.Team        `json:"team,omitempty"`
	Degraded    bool                `json:"degraded,omitempty"`
	Error       string              `json:"error,omitempty"`
	Retryable   bool                `json:"retryable,omitempty"`
	// Err is the failure behind Error, for errors.Is checks.
	Err error `json:"-"`
}

// Flow is the join flow of one session. All methods are safe for concurrent
// use.
type Flow struct {
	deps    Deps
	cfg     Config
	session session.Store
	log     *zap.SugaredLogger

	mu          sync.Mutex
	state       State
	busy        bool
	name        string
	selections  []string
	participant *roster.Participant
	team        *roster.Team
	degraded    bool
	err         error
	done        chan struct{} // closed when the current loading phase ends
	lastActive  time.Time
}

// NewFlow creates a flow in StateName bound to one session store.
func NewFlow(deps Deps, cfg Config, store session.Store) *Flow {
	if cfg.Batch < 1 {
		cfg.Batch = 1
	}
	if cfg.AssignTimeout <= 0 {
		cfg.AssignTimeout = DefaultConfig().AssignTimeout
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Flow{
		deps:       deps,
		cfg:        cfg,
		session:    store,
		log:        log.Named("quiz"),
		state:      StateName,
		lastActive: time.Now(),
	}
}

// Start checks the session for a participant saved earlier. A participant
// that still exists resumes the flow; a stale id is cleared and the flow
// stays in StateName.
func (f *Flow) Start(ctx context.Context) (Snapshot, error) {
	if err := f.acquire(StateName); err != nil {
		if errors.Is(err, ErrWrongState) {
			return f.Snapshot(), nil
		}
		return Snapshot{}, err
	}

	id, ok, err := session.LoadIdentity(ctx, f.session)
	if err != nil || !ok {
		if err != nil {
			f.log.Warnw("unreadable session identity, clearing", "error", err)
			f.clearSession(ctx)
		}
		f.release()
		return f.Snapshot(), nil
	}

	p, err := f.deps.Participants.GetByID(ctx, id.ID)
	if err != nil || p == nil {
		f.log.Infow("saved participant not usable, clearing session", "participant_id", id.ID, "error", err)
		f.clearSession(ctx)
		f.release()
		return f.Snapshot(), nil
	}

	f.resume(ctx, *p)
	return f.Snapshot(), nil
}

// SubmitName looks the name up in the configured batch. A known name resumes
// the stored participant without assigning; otherwise the flow moves to the
// first question.
func (f *Flow) SubmitName(ctx context.Context, name string) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Snapshot{}, fmt.Errorf("%w: name is required", roster.ErrInvalidArgument)
	}
	if err := f.acquire(StateName); err != nil {
		return Snapshot{}, err
	}

	found, err := f.deps.Participants.FindByName(ctx, name, f.cfg.Batch)
	if err != nil {
		f.release()
		f.log.Errorw("name lookup failed", "batch", f.cfg.Batch, "error", err)
		return Snapshot{}, fmt.Errorf("%w: %w", roster.ErrLookupFailed, err)
	}
	if len(found) > 0 {
		f.resume(ctx, found[0])
		return f.Snapshot(), nil
	}

	f.mu.Lock()
	f.name = name
	f.state = StateQ1
	f.busy = false
	f.touch()
	f.mu.Unlock()
	return f.Snapshot(), nil
}

// Answer records the selection of the current question. Answering the second
// question starts the loading phase.
func (f *Flow) Answer(ctx context.Context, value string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy {
		return Snapshot{}, ErrBusy
	}
	q, ok := questionFor(f.state)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrWrongState, f.state)
	}
	if !q.has(value) {
		return Snapshot{}, fmt.Errorf("%w: unknown option %q", roster.ErrInvalidArgument, value)
	}
	f.touch()

	if f.state == StateQ1 {
		f.selections = []string{value}
		f.state = StateQ2
		return f.snapshotLocked(), nil
	}
	f.selections = append(f.selections[:1:1], value)
	f.startLoadingLocked(ctx)
	return f.snapshotLocked(), nil
}

// Retry re-runs the loading phase after a failed assignment. A participant
// saved by the failed attempt despite the error is resumed instead.
func (f *Flow) Retry(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	if f.state != StateResult || f.err == nil {
		f.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: nothing to retry", ErrWrongState)
	}
	f.busy = true
	f.touch()
	name := f.name
	f.mu.Unlock()

	found, err := f.deps.Participants.FindByName(ctx, name, f.cfg.Batch)
	if err != nil {
		f.release()
		f.log.Errorw("name lookup before retry failed", "batch", f.cfg.Batch, "error", err)
		return Snapshot{}, fmt.Errorf("%w: %w", roster.ErrLookupFailed, err)
	}
	if len(found) > 0 {
		f.resume(ctx, found[0])
		return f.Snapshot(), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.startLoadingLocked(ctx)
	return f.snapshotLocked(), nil
}

// Wait blocks until the flow is out of StateLoading or ctx ends.
func (f *Flow) Wait(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	done := f.done
	loading := f.state == StateLoading
	f.mu.Unlock()

	if loading {
		select {
		case <-done:
		case <-ctx.Done():
			return f.Snapshot(), ctx.Err()
		}
	}
	return f.Snapshot(), nil
}

// Snapshot returns a copy of the current state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// IdleSince reports when the flow last accepted input. Flows in
// StateLoading are never idle.
func (f *Flow) IdleSince() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateLoading || f.busy {
		return time.Time{}, false
	}
	return f.lastActive, true
}

func (f *Flow) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      f.state,
		Name:       f.name,
		Selections: append([]string(nil), f.selections...),
		Options:    OptionsFor(f.state),
		Degraded:   f.degraded,
	}
	if f.participant != nil {
		p := *f.participant
		s.Participant = &p
	}
	if f.team != nil {
		t := *f.team
		s.Team = &t
	}
	switch {
	case f.state == StateResult && f.err != nil:
		s.Err = f.err
		s.Error = failureMessage(f.err)
		s.Retryable = true
	case f.state == StateResumed && f.participant != nil:
		s.Prompt = fmt.Sprintf("Welcome back, %s! You are on team %s.",
			html.EscapeString(f.participant.Name), html.EscapeString(f.participant.Team))
	default:
		s.Prompt = PromptFor(f.state, f.name, f.selections)
	}
	return s
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, roster.ErrNoTeamsAvailable):
		return "No team is open for check-in right now."
	case errors.Is(err, context.DeadlineExceeded):
		return "Picking your team took too long."
	case errors.Is(err, roster.ErrParticipantCreateFailed):
		return "We could not save your check-in."
	default:
		return "Something went wrong while picking your team."
	}
}

// acquire marks the flow busy if it is in want and idle.
func (f *Flow) acquire(want State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if f.state != want {
		return fmt.Errorf("%w: %s", ErrWrongState, f.state)
	}
	f.busy = true
	f.touch()
	return nil
}

func (f *Flow) release() {
	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()
}

func (f *Flow) touch() {
	f.lastActive = time.Now()
}

// resume finishes the flow with an existing participant. Called while busy.
func (f *Flow) resume(ctx context.Context, p roster.Participant) {
	team, err := f.deps.Teams.GetTeamByName(ctx, p.Batch, p.Team)
	if err != nil {
		f.log.Warnw("team lookup for resumed participant failed", "team", p.Team, "error", err)
	}
	if team == nil {
		team = &roster.Team{Name: p.Team, Batch: p.Batch}
	}
	if err := session.SaveIdentity(ctx, f.session, session.IdentityOf(p)); err != nil {
		f.log.Warnw("session write failed", "participant_id", p.ID, "error", err)
	}

	f.mu.Lock()
	f.name = p.Name
	f.participant = &p
	f.team = team
	f.err = nil
	f.degraded = false
	f.state = StateResumed
	f.busy = false
	f.touch()
	f.mu.Unlock()
	f.log.Infow("participant resumed", "participant_id", p.ID, "team", p.Team)
}

func (f *Flow) clearSession(ctx context.Context) {
	if err := session.ClearIdentity(ctx, f.session); err != nil {
		f.log.Warnw("session clear failed", "error", err)
	}
}

// startLoadingLocked enters StateLoading and runs the display timer and the
// assignment side by side. The flow reaches StateResult once both are done.
func (f *Flow) startLoadingLocked(ctx context.Context) {
	f.state = StateLoading
	f.err = nil
	f.participant = nil
	f.team = nil
	f.degraded = false
	done := make(chan struct{})
	f.done = done

	name, batch := f.name, f.cfg.Batch
	minDisplay := f.cfg.LoadingDuration + f.cfg.SparkleDuration
	// the participant must be saved even if the caller has gone away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.AssignTimeout)

	go func() {
		defer close(done)
		defer cancel()

		var (
			g   errgroup.Group
			res assign.Assignment
		)
		g.Go(func() error {
			t := time.NewTimer(minDisplay)
			defer t.Stop()
			<-t.C
			return nil
		})
		g.Go(func() error {
			var err error
			res, err = f.deps.Assigner.Assign(ctx, name, batch)
			if err != nil {
				return err
			}
			if err := session.SaveIdentity(ctx, f.session, session.IdentityOf(res.Participant)); err != nil {
				f.log.Warnw("session write failed", "participant_id", res.Participant.ID, "error", err)
			}
			return nil
		})
		err := g.Wait()

		f.mu.Lock()
		defer f.mu.Unlock()
		f.state = StateResult
		f.touch()
		if err != nil {
			f.err = err
			f.log.Warnw("assignment failed", "batch", batch, "error", err)
			return
		}
		p, t := res.Participant, res.Team
		f.participant = &p
		f.team = &t
		f.degraded = res.Degraded
	}()
}
