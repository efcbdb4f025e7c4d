package roster

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"checkin/internal/queue"
)

// DefaultTeamOrder is the display order of the stock teams. Teams not listed
// sort after these by name.
var DefaultTeamOrder = []string{"Tiger", "Lion", "Fox", "Panda", "Bear", "Wolf"}

// AdminStore is everything the admin surface reads and writes.
type AdminStore interface {
	TeamDirectory
	ParticipantStore
	ListTeams(ctx context.Context, batch int) ([]Team, error)
	GetTeam(ctx context.Context, id string) (*Team, error)
	CreateTeam(ctx context.Context, in TeamCreate) (Team, error)
	UpdateTeam(ctx context.Context, id string, upd TeamUpdate) (Team, error)
	DeleteTeam(ctx context.Context, id string) error
	ListParticipants(ctx context.Context, batch int, team string) ([]Participant, error)
	DeleteParticipant(ctx context.Context, id string) error
}

var _ AdminStore = (*Repository)(nil)

// Service manages teams and participants for event staff.
type Service struct {
	store   AdminStore
	events  queue.Queue
	log     *zap.SugaredLogger
	timeout time.Duration
	order   []string
}

// NewService builds the admin service. A nil events queue discards events.
func NewService(store AdminStore, events queue.Queue, log *zap.SugaredLogger, timeout time.Duration) *Service {
	if events == nil {
		events = queue.Discard{}
	}
	return &Service{
		store:   store,
		events:  events,
		log:     log.Named("roster"),
		timeout: timeout,
		order:   DefaultTeamOrder,
	}
}

// SetTeamOrder replaces the preferred display order used by Summary.
func (s *Service) SetTeamOrder(order []string) {
	s.order = order
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// ListTeams returns the batch's teams, inactive ones only when asked.
func (s *Service) ListTeams(ctx context.Context, batch int, includeInactive bool) ([]Team, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if includeInactive {
		return s.store.ListTeams(ctx, batch)
	}
	return s.store.ListActiveTeams(ctx, batch)
}

// GetTeam returns a team by id.
func (s *Service) GetTeam(ctx context.Context, id string) (Team, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	t, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	if t == nil {
		return Team{}, ErrNotFound
	}
	return *t, nil
}

// TeamByName returns a team of a batch by name.
func (s *Service) TeamByName(ctx context.Context, batch int, name string) (Team, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	t, err := s.store.GetTeamByName(ctx, batch, name)
	if err != nil {
		return Team{}, err
	}
	if t == nil {
		return Team{}, ErrNotFound
	}
	return *t, nil
}

// CreateTeam validates and stores a new team.
func (s *Service) CreateTeam(ctx context.Context, in TeamCreate) (Team, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Team{}, fmt.Errorf("%w: team name is required", ErrInvalidArgument)
	}
	if in.Batch < 1 {
		return Team{}, fmt.Errorf("%w: batch must be positive", ErrInvalidArgument)
	}
	t, err := s.store.CreateTeam(ctx, in)
	if err != nil {
		s.log.Errorw("create team failed", "name", in.Name, "batch", in.Batch, "error", err)
		return Team{}, err
	}
	s.log.Infow("team created", "team_id", t.ID, "name", t.Name, "batch", t.Batch)
	s.publish(ctx, queue.Event{Type: queue.TypeTeamChange, Batch: t.Batch, Team: t.Name})
	return t, nil
}

// UpdateTeam applies a partial update.
func (s *Service) UpdateTeam(ctx context.Context, id string, upd TeamUpdate) (Team, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Team{}, fmt.Errorf("%w: team name is required", ErrInvalidArgument)
		}
		upd.Name = &name
	}
	if upd.Batch != nil && *upd.Batch < 1 {
		return Team{}, fmt.Errorf("%w: batch must be positive", ErrInvalidArgument)
	}
	t, err := s.store.UpdateTeam(ctx, id, upd)
	if err != nil {
		return Team{}, err
	}
	s.log.Infow("team updated", "team_id", t.ID, "active", t.IsActive)
	s.publish(ctx, queue.Event{Type: queue.TypeTeamChange, Batch: t.Batch, Team: t.Name})
	return t, nil
}

// DeleteTeam removes a team.
func (s *Service) DeleteTeam(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	t, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNotFound
	}
	if err := s.store.DeleteTeam(ctx, id); err != nil {
		return err
	}
	s.log.Infow("team deleted", "team_id", id, "name", t.Name)
	s.publish(ctx, queue.Event{Type: queue.TypeTeamChange, Batch: t.Batch, Team: t.Name})
	return nil
}

// ListParticipants returns the batch's participants, optionally of one team.
func (s *Service) ListParticipants(ctx context.Context, batch int, team string) ([]Participant, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.store.ListParticipants(ctx, batch, strings.TrimSpace(team))
}

// GetParticipant returns a participant by id.
func (s *Service) GetParticipant(ctx context.Context, id string) (Participant, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Participant{}, err
	}
	if p == nil {
		return Participant{}, ErrNotFound
	}
	return *p, nil
}

// MoveParticipant puts a participant on another team. The target must be an
// active team of the participant's batch. Only the team changes.
func (s *Service) MoveParticipant(ctx context.Context, id, team string) (Participant, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	team = strings.TrimSpace(team)
	if team == "" {
		return Participant{}, fmt.Errorf("%w: team is required", ErrInvalidArgument)
	}
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Participant{}, err
	}
	if p == nil {
		return Participant{}, ErrNotFound
	}
	if p.Team == team {
		return *p, nil
	}

	target, err := s.store.GetTeamByName(ctx, p.Batch, team)
	if err != nil {
		return Participant{}, err
	}
	if target == nil {
		return Participant{}, fmt.Errorf("%w: team %q in batch %d", ErrNotFound, team, p.Batch)
	}
	if !target.IsActive {
		return Participant{}, fmt.Errorf("%w: %s", ErrTeamInactive, team)
	}

	moved, err := s.store.Update(ctx, id, ParticipantUpdate{Team: &team})
	if err != nil {
		s.log.Errorw("move participant failed", "participant_id", id, "team", team, "error", err)
		return Participant{}, err
	}
	s.log.Infow("participant moved", "participant_id", id, "from", p.Team, "to", team, "batch", p.Batch)
	s.publish(ctx, queue.Event{Type: queue.TypeMoved, Batch: moved.Batch, ParticipantID: id, Team: team})
	return moved, nil
}

// DeleteParticipant removes a participant record.
func (s *Service) DeleteParticipant(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrNotFound
	}
	if err := s.store.DeleteParticipant(ctx, id); err != nil {
		return err
	}
	s.log.Infow("participant deleted", "participant_id", id, "batch", p.Batch)
	s.publish(ctx, queue.Event{Type: queue.TypeMoved, Batch: p.Batch, ParticipantID: id})
	return nil
}

// Summary returns the batch's active teams with member counts in display
// order.
func (s *Service) Summary(ctx context.Context, batch int) ([]TeamCount, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	teams, err := s.store.ListActiveTeams(ctx, batch)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountByTeam(ctx, batch)
	if err != nil {
		return nil, err
	}
	return Summarize(teams, counts, s.order), nil
}

// Summarize pairs teams with counts and sorts them by their position in
// order; unlisted teams follow, by name.
func Summarize(teams []Team, counts map[string]int, order []string) []TeamCount {
	res := make([]TeamCount, 0, len(teams))
	for _, t := range teams {
		res = append(res, TeamCount{Team: t, Count: counts[t.Name]})
	}
	rank := func(name string) int {
		if i := slices.Index(order, name); i >= 0 {
			return i
		}
		return len(order)
	}
	slices.SortStableFunc(res, func(a, b TeamCount) int {
		if d := rank(a.Name) - rank(b.Name); d != 0 {
			return d
		}
		return strings.Compare(a.Name, b.Name)
	})
	return res
}

func (s *Service) publish(ctx context.Context, evt queue.Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warnw("event publish failed", "type", evt.Type, "batch", evt.Batch, "error", err)
	}
}
