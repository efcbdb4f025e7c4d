// Package rostertest provides an in-memory team directory and participant
// store for tests.
package rostertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"checkin/internal/roster"
)

// Fake implements roster.TeamDirectory and roster.ParticipantStore in memory.
// The *Err fields make the matching call fail.
type Fake struct {
	mu           sync.Mutex
	teams        []roster.Team
	participants []roster.Participant
	seq          int

	ListErr   error
	CountErr  error
	CreateErr error
	FindErr   error
	GetErr    error

	// CreateDelay holds Create back, for ordering tests.
	CreateDelay time.Duration

	Calls map[string]int
}

var (
	_ roster.TeamDirectory    = (*Fake)(nil)
	_ roster.ParticipantStore = (*Fake)(nil)
)

// New returns an empty fake.
func New() *Fake {
	return &Fake{Calls: make(map[string]int)}
}

func (f *Fake) called(name string) {
	f.Calls[name]++
}

// CallCount returns how often a method ran.
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[name]
}

// AddTeam registers an active team in batch.
func (f *Fake) AddTeam(batch int, name string) roster.Team {
	return f.AddTeamWith(roster.Team{Name: name, Batch: batch, IsActive: true})
}

// AddTeamWith registers a team as given, filling id and creation time.
func (f *Fake) AddTeamWith(t roster.Team) roster.Team {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = fmt.Sprintf("team-%d", len(f.teams)+1)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	f.teams = append(f.teams, t)
	return t
}

// Seed adds n participants of batch to team.
func (f *Fake) Seed(batch int, team string, n int) {
	for i := 0; i < n; i++ {
		f.AddParticipant(roster.Participant{Name: fmt.Sprintf("%s-%d", team, i), Team: team, Batch: batch})
	}
}

// AddParticipant stores a participant as given, filling id, role and time.
func (f *Fake) AddParticipant(p roster.Participant) roster.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if p.ID == "" {
		p.ID = fmt.Sprintf("p-%d", f.seq)
	}
	if p.Role == "" {
		p.Role = roster.DefaultRole
	}
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = time.Now().UTC()
	}
	f.participants = append(f.participants, p)
	return p
}

// Participants returns a copy of every stored participant.
func (f *Fake) Participants() []roster.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]roster.Participant(nil), f.participants...)
}

// ListActiveTeams implements roster.TeamDirectory.
func (f *Fake) ListActiveTeams(_ context.Context, batch int) ([]roster.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("ListActiveTeams")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	res := make([]roster.Team, 0)
	for _, t := range f.teams {
		if t.Batch == batch && t.IsActive {
			res = append(res, t)
		}
	}
	return res, nil
}

// GetTeamByName implements roster.TeamDirectory.
func (f *Fake) GetTeamByName(_ context.Context, batch int, name string) (*roster.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("GetTeamByName")
	for _, t := range f.teams {
		if t.Batch == batch && t.Name == name {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

// FindByName implements roster.ParticipantStore.
func (f *Fake) FindByName(_ context.Context, name string, batch int) ([]roster.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("FindByName")
	if f.FindErr != nil {
		return nil, f.FindErr
	}
	res := make([]roster.Participant, 0)
	for _, p := range f.participants {
		if p.Batch == batch && p.Name == name {
			res = append(res, p)
		}
	}
	return res, nil
}

// CountByTeam implements roster.ParticipantStore.
func (f *Fake) CountByTeam(_ context.Context, batch int) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("CountByTeam")
	if f.CountErr != nil {
		return nil, f.CountErr
	}
	counts := make(map[string]int)
	for _, p := range f.participants {
		if p.Batch == batch && p.Team != "" {
			counts[p.Team]++
		}
	}
	return counts, nil
}

// Create implements roster.ParticipantStore.
func (f *Fake) Create(ctx context.Context, in roster.ParticipantCreate) (roster.Participant, error) {
	if f.CreateDelay > 0 {
		select {
		case <-time.After(f.CreateDelay):
		case <-ctx.Done():
			return roster.Participant{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.called("Create")
	err := f.CreateErr
	f.mu.Unlock()
	if err != nil {
		return roster.Participant{}, err
	}
	return f.AddParticipant(roster.Participant{Name: in.Name, Team: in.Team, Role: in.Role, Batch: in.Batch}), nil
}

// Update implements roster.ParticipantStore.
func (f *Fake) Update(_ context.Context, id string, upd roster.ParticipantUpdate) (roster.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("Update")
	for i := range f.participants {
		if f.participants[i].ID == id {
			if upd.Team != nil {
				f.participants[i].Team = *upd.Team
			}
			return f.participants[i], nil
		}
	}
	return roster.Participant{}, roster.ErrNotFound
}

// GetByID implements roster.ParticipantStore.
func (f *Fake) GetByID(_ context.Context, id string) (*roster.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("GetByID")
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	for _, p := range f.participants {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}
