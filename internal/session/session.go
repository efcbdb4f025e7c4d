// Package session remembers which participant a client is across requests.
// It is the server side of the client key-value persistence the join flow
// writes to.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"checkin/internal/roster"
)

// Keys written on successful check-in.
const (
	KeyParticipantID    = "participantId"
	KeyParticipantName  = "participantName"
	KeyParticipantTeam  = "participantTeam"
	KeyParticipantRole  = "participantRole"
	KeyParticipantBatch = "participantBatch"
)

var identityKeys = []string{
	KeyParticipantID,
	KeyParticipantName,
	KeyParticipantTeam,
	KeyParticipantRole,
	KeyParticipantBatch,
}

// Store is a simple string key-value surface for one session.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Identity is what the rest of the application knows about "who am I".
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Team  string `json:"team"`
	Role  string `json:"role"`
	Batch int    `json:"batch"`
}

// IdentityOf extracts the persisted fields of a participant.
func IdentityOf(p roster.Participant) Identity {
	return Identity{ID: p.ID, Name: p.Name, Team: p.Team, Role: p.Role, Batch: p.Batch}
}

// SaveIdentity writes every identity key.
func SaveIdentity(ctx context.Context, s Store, id Identity) error {
	values := map[string]string{
		KeyParticipantID:    id.ID,
		KeyParticipantName:  id.Name,
		KeyParticipantTeam:  id.Team,
		KeyParticipantRole:  id.Role,
		KeyParticipantBatch: strconv.Itoa(id.Batch),
	}
	for _, k := range identityKeys {
		if err := s.Set(ctx, k, values[k]); err != nil {
			return fmt.Errorf("session set %s: %w", k, err)
		}
	}
	return nil
}

// LoadIdentity reads the identity. ok is false when no participant id is
// stored.
func LoadIdentity(ctx context.Context, s Store) (id Identity, ok bool, err error) {
	pid, found, err := s.Get(ctx, KeyParticipantID)
	if err != nil || !found || pid == "" {
		return Identity{}, false, err
	}
	id.ID = pid
	fields := map[string]*string{
		KeyParticipantName: &id.Name,
		KeyParticipantTeam: &id.Team,
		KeyParticipantRole: &id.Role,
	}
	for k, dst := range fields {
		v, _, err := s.Get(ctx, k)
		if err != nil {
			return Identity{}, false, err
		}
		*dst = v
	}
	batch, _, err := s.Get(ctx, KeyParticipantBatch)
	if err != nil {
		return Identity{}, false, err
	}
	if batch != "" {
		if id.Batch, err = strconv.Atoi(batch); err != nil {
			return Identity{}, false, fmt.Errorf("session batch %q: %w", batch, err)
		}
	}
	return id, true, nil
}

// ClearIdentity removes every identity key.
func ClearIdentity(ctx context.Context, s Store) error {
	var errs []error
	for _, k := range identityKeys {
		if err := s.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
