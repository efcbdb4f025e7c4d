package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"checkin/internal/store"
)

const (
	teamColumns        = `id, name, image_url, description, characteristic, is_active, batch, created_at`
	participantColumns = `id, name, team, role, batch, registered_at`
)

// Repository persists teams and participants in Postgres or SQLite.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ TeamDirectory    = (*Repository)(nil)
	_ ParticipantStore = (*Repository)(nil)
)

type scanner interface {
	Scan(dest ...any) error
}

func scanTeam(row scanner) (Team, error) {
	var t Team
	err := row.Scan(&t.ID, &t.Name, &t.ImageURL, &t.Description, &t.Characteristic, &t.IsActive, &t.Batch, &t.CreatedAt)
	return t, err
}

func scanParticipant(row scanner) (Participant, error) {
	var p Participant
	err := row.Scan(&p.ID, &p.Name, &p.Team, &p.Role, &p.Batch, &p.RegisteredAt)
	return p, err
}

func (r *Repository) queryTeams(ctx context.Context, query string, args ...any) ([]Team, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make([]Team, 0)
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *Repository) queryParticipants(ctx context.Context, query string, args ...any) ([]Participant, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make([]Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListActiveTeams returns the teams of a batch open for assignment.
func (r *Repository) ListActiveTeams(ctx context.Context, batch int) ([]Team, error) {
	return r.queryTeams(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE batch = ? AND is_active = ?
		ORDER BY created_at, name
	`, batch, true)
}

// ListTeams returns all teams of a batch, inactive ones included.
func (r *Repository) ListTeams(ctx context.Context, batch int) ([]Team, error) {
	return r.queryTeams(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE batch = ?
		ORDER BY created_at, name
	`, batch)
}

// GetTeamByName returns a team of the batch by name, or nil.
func (r *Repository) GetTeamByName(ctx context.Context, batch int, name string) (*Team, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+teamColumns+` FROM teams WHERE batch = ? AND name = ?
	`), batch, name)
	t, err := scanTeam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetTeam returns a team by id, or nil.
func (r *Repository) GetTeam(ctx context.Context, id string) (*Team, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT `+teamColumns+` FROM teams WHERE id = ?`), id)
	t, err := scanTeam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// CreateTeam inserts a team. Duplicate names within a batch yield ErrTeamExists.
func (r *Repository) CreateTeam(ctx context.Context, in TeamCreate) (Team, error) {
	t := Team{
		ID:             uuid.NewString(),
		Name:           in.Name,
		ImageURL:       in.ImageURL,
		Description:    in.Description,
		Characteristic: in.Characteristic,
		IsActive:       true,
		Batch:          in.Batch,
		CreatedAt:      time.Now().UTC(),
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO teams (`+teamColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.Name, t.ImageURL, t.Description, t.Characteristic, t.IsActive, t.Batch, t.CreatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Team{}, ErrTeamExists
		}
		return Team{}, fmt.Errorf("insert team: %w", err)
	}
	return t, nil
}

// UpdateTeam applies a partial update and returns the stored team.
func (r *Repository) UpdateTeam(ctx context.Context, id string, upd TeamUpdate) (Team, error) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.ImageURL != nil {
		add("image_url", *upd.ImageURL)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Characteristic != nil {
		add("characteristic", *upd.Characteristic)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if upd.Batch != nil {
		add("batch", *upd.Batch)
	}
	if len(sets) > 0 {
		args = append(args, id)
		res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(
			`UPDATE teams SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return Team{}, ErrTeamExists
			}
			return Team{}, fmt.Errorf("update team: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return Team{}, ErrNotFound
		}
	}
	t, err := r.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	if t == nil {
		return Team{}, ErrNotFound
	}
	return *t, nil
}

// DeleteTeam removes a team. Participants keep the team name they hold.
func (r *Repository) DeleteTeam(ctx context.Context, id string) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`DELETE FROM teams WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByName returns participants of a batch with exactly this name.
func (r *Repository) FindByName(ctx context.Context, name string, batch int) ([]Participant, error) {
	return r.queryParticipants(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE batch = ? AND name = ?
		ORDER BY registered_at
	`, batch, name)
}

// CountByTeam groups the batch's participants by team name.
func (r *Repository) CountByTeam(ctx context.Context, batch int) (map[string]int, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT team, COUNT(*)
		FROM participants
		WHERE batch = ? AND team <> ''
		GROUP BY team
	`), batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			team string
			n    int
		)
		if err := rows.Scan(&team, &n); err != nil {
			return nil, err
		}
		counts[team] = n
	}
	return counts, rows.Err()
}

// Create writes a new participant with a fresh id and registration time.
func (r *Repository) Create(ctx context.Context, in ParticipantCreate) (Participant, error) {
	p := Participant{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Team:         in.Team,
		Role:         in.Role,
		Batch:        in.Batch,
		RegisteredAt: time.Now().UTC(),
	}
	if p.Role == "" {
		p.Role = DefaultRole
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO participants (`+participantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`), p.ID, p.Name, p.Team, p.Role, p.Batch, p.RegisteredAt)
	if err != nil {
		return Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	return p, nil
}

// Update changes the team of a participant. registered_at is never touched.
func (r *Repository) Update(ctx context.Context, id string, upd ParticipantUpdate) (Participant, error) {
	if upd.Team != nil {
		res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`UPDATE participants SET team = ? WHERE id = ?`), *upd.Team, id)
		if err != nil {
			return Participant{}, fmt.Errorf("update participant: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return Participant{}, ErrNotFound
		}
	}
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return Participant{}, err
	}
	if p == nil {
		return Participant{}, ErrNotFound
	}
	return *p, nil
}

// GetByID returns a participant, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*Participant, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT `+participantColumns+` FROM participants WHERE id = ?`), id)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListParticipants returns the batch's participants, optionally only one team.
func (r *Repository) ListParticipants(ctx context.Context, batch int, team string) ([]Participant, error) {
	if team != "" {
		return r.queryParticipants(ctx, `
			SELECT `+participantColumns+`
			FROM participants
			WHERE batch = ? AND team = ?
			ORDER BY registered_at
		`, batch, team)
	}
	return r.queryParticipants(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE batch = ?
		ORDER BY registered_at
	`, batch)
}

// DeleteParticipant removes a participant record.
func (r *Repository) DeleteParticipant(ctx context.Context, id string) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`DELETE FROM participants WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
