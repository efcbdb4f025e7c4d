// Package assign places new participants on the least populated active team
// of their batch.
package assign

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"checkin/internal/queue"
	"checkin/internal/roster"
)

// Random is the source used for tie-breaks. *rand.Rand satisfies it.
type Random interface {
	IntN(n int) int
}

// Assignment is the outcome of a successful Assign.
type Assignment struct {
	Participant roster.Participant `json:"participant"`
	Team        roster.Team        `json:"team"`
	// Degraded is set when counts were unavailable and the team was picked
	// uniformly among all active teams.
	Degraded bool `json:"degraded"`
}

// Assigner picks teams and records participants.
type Assigner struct {
	teams        roster.TeamDirectory
	participants roster.ParticipantStore
	log          *zap.SugaredLogger
	events       queue.Queue
	metrics      *Metrics
	role         string
	publishWait  time.Duration

	mu  sync.Mutex // guards rnd
	rnd Random
}

// Option configures an Assigner.
type Option func(*Assigner)

// WithRandom sets the tie-break source, e.g. a seeded *rand.Rand in tests.
func WithRandom(r Random) Option {
	return func(a *Assigner) { a.rnd = r }
}

// WithEvents publishes participant.registered after each create.
func WithEvents(q queue.Queue) Option {
	return func(a *Assigner) { a.events = q }
}

// WithMetrics records assignment outcomes.
func WithMetrics(m *Metrics) Option {
	return func(a *Assigner) { a.metrics = m }
}

// WithRole overrides the role stored on new participants.
func WithRole(role string) Option {
	return func(a *Assigner) { a.role = role }
}

// New builds an Assigner.
func New(teams roster.TeamDirectory, participants roster.ParticipantStore, log *zap.SugaredLogger, opts ...Option) *Assigner {
	a := &Assigner{
		teams:        teams,
		participants: participants,
		log:          log.Named("assign"),
		events:       queue.Discard{},
		role:         roster.DefaultRole,
		publishWait:  publishTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rnd == nil {
		a.rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	return a
}

// LeastLoaded returns the smallest occupancy among teams and the teams
// holding it. Teams missing from counts have zero participants.
func LeastLoaded(teams []roster.Team, counts map[string]int) (int, []roster.Team) {
	if len(teams) == 0 {
		return 0, nil
	}
	minCount := counts[teams[0].Name]
	for _, t := range teams[1:] {
		if c := counts[t.Name]; c < minCount {
			minCount = c
		}
	}
	candidates := make([]roster.Team, 0, len(teams))
	for _, t := range teams {
		if counts[t.Name] == minCount {
			candidates = append(candidates, t)
		}
	}
	return minCount, candidates
}

func (a *Assigner) choose(teams []roster.Team) roster.Team {
	a.mu.Lock()
	i := a.rnd.IntN(len(teams))
	a.mu.Unlock()
	return teams[i]
}

// Pick selects a team for the batch without writing anything. The second
// return value reports a degraded pick made without occupancy counts.
func (a *Assigner) Pick(ctx context.Context, batch int) (roster.Team, bool, error) {
	listed, err := a.teams.ListActiveTeams(ctx, batch)
	if err != nil {
		return roster.Team{}, false, fmt.Errorf("list active teams: %w", err)
	}
	active := listed[:0:0]
	for _, t := range listed {
		if t.IsActive && t.Batch == batch {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		a.metrics.failed(batch, "no_teams")
		return roster.Team{}, false, fmt.Errorf("%w: batch %d", roster.ErrNoTeamsAvailable, batch)
	}

	counts, err := a.participants.CountByTeam(ctx, batch)
	if err != nil {
		a.log.Warnw("team counts unavailable, picking uniformly",
			"batch", batch, "error", errors.Join(roster.ErrOccupancyFetchFailed, err))
		a.metrics.degraded(batch)
		return a.choose(active), true, nil
	}

	minCount, candidates := LeastLoaded(active, counts)
	team := a.choose(candidates)
	a.log.Debugw("team picked", "batch", batch, "team", team.Name, "min_count", minCount, "candidates", len(candidates))
	return team, false, nil
}

// publishTimeout bounds the event publish after a participant is saved.
const publishTimeout = 2 * time.Second

// Assign picks a team and creates exactly one participant record on it.
// Nothing is written when no team is available.
func (a *Assigner) Assign(ctx context.Context, name string, batch int) (Assignment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Assignment{}, fmt.Errorf("%w: name is required", roster.ErrInvalidArgument)
	}

	team, degraded, err := a.Pick(ctx, batch)
	if err != nil {
		return Assignment{}, err
	}

	p, err := a.participants.Create(ctx, roster.ParticipantCreate{
		Name:  name,
		Team:  team.Name,
		Role:  a.role,
		Batch: batch,
	})
	if err != nil {
		a.metrics.failed(batch, "create")
		a.log.Errorw("participant create failed", "batch", batch, "team", team.Name, "error", err)
		return Assignment{}, fmt.Errorf("%w: %w", roster.ErrParticipantCreateFailed, err)
	}

	a.metrics.assigned(batch, team.Name)
	a.log.Infow("participant assigned", "participant_id", p.ID, "batch", batch, "team", team.Name, "degraded", degraded)

	pubCtx, cancel := context.WithTimeout(ctx, a.publishWait)
	defer cancel()
	if err := a.events.Publish(pubCtx, queue.Event{
		Type:          queue.TypeRegistered,
		Batch:         batch,
		ParticipantID: p.ID,
		Team:          team.Name,
		At:            p.RegisteredAt,
	}); err != nil {
		a.log.Warnw("event publish failed", "participant_id", p.ID, "error", err)
	}

	return Assignment{Participant: p, Team: team, Degraded: degraded}, nil
}
