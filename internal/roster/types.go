// Package roster holds teams and participants of a check-in event and the
// storage contracts the assignment core depends on.
package roster

import (
	"context"
	"time"
)

// DefaultRole is stored for participants created through the join flow.
const DefaultRole = "attendee"

// Team is a themed group participants are assigned to within a batch.
type Team struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ImageURL       string    `json:"image_url"`
	Description    string    `json:"description"`
	Characteristic string    `json:"characteristic"`
	IsActive       bool      `json:"is_active"`
	Batch          int       `json:"batch"`
	CreatedAt      time.Time `json:"created_at"`
}

// TeamCreate carries admin input for a new team.
type TeamCreate struct {
	Name           string `json:"name"`
	ImageURL       string `json:"image_url"`
	Description    string `json:"description"`
	Characteristic string `json:"characteristic"`
	IsActive       *bool  `json:"is_active,omitempty"`
	Batch          int    `json:"batch"`
}

// TeamUpdate is a partial team update; nil fields are left unchanged.
type TeamUpdate struct {
	Name           *string `json:"name,omitempty"`
	ImageURL       *string `json:"image_url,omitempty"`
	Description    *string `json:"description,omitempty"`
	Characteristic *string `json:"characteristic,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
	Batch          *int    `json:"batch,omitempty"`
}

// Participant is a checked-in attendee. RegisteredAt never changes after
// creation; Team is the only field updated afterwards.
type Participant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Team         string    `json:"team"`
	Role         string    `json:"role"`
	Batch        int       `json:"batch"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ParticipantCreate is the input for a new participant record.
type ParticipantCreate struct {
	Name  string `json:"name"`
	Team  string `json:"team"`
	Role  string `json:"role"`
	Batch int    `json:"batch"`
}

// ParticipantUpdate is a partial participant update. Only the team can be
// changed.
type ParticipantUpdate struct {
	Team *string `json:"team,omitempty"`
}

// TeamCount pairs a team with its current number of participants.
type TeamCount struct {
	Team
	Count int `json:"count"`
}

// TeamDirectory reads teams eligible for assignment.
type TeamDirectory interface {
	ListActiveTeams(ctx context.Context, batch int) ([]Team, error)
	GetTeamByName(ctx context.Context, batch int, name string) (*Team, error)
}

// ParticipantStore persists participants.
type ParticipantStore interface {
	FindByName(ctx context.Context, name string, batch int) ([]Participant, error)
	CountByTeam(ctx context.Context, batch int) (map[string]int, error)
	Create(ctx context.Context, p ParticipantCreate) (Participant, error)
	Update(ctx context.Context, id string, upd ParticipantUpdate) (Participant, error)
	GetByID(ctx context.Context, id string) (*Participant, error)
}
