package roster

import "errors"

var (
	// ErrNoTeamsAvailable means the batch has no active team to assign to.
	ErrNoTeamsAvailable = errors.New("no teams available")
	// ErrOccupancyFetchFailed marks a pick made without team counts.
	ErrOccupancyFetchFailed = errors.New("occupancy fetch failed")
	// ErrParticipantCreateFailed means the participant record was not written.
	ErrParticipantCreateFailed = errors.New("participant create failed")
	// ErrLookupFailed means an existing participant could not be looked up.
	ErrLookupFailed = errors.New("participant lookup failed")
	// ErrNotFound signals a missing team or participant.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument signals failed input validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTeamExists signals a team name conflict within a batch.
	ErrTeamExists = errors.New("team exists")
	// ErrTeamInactive signals a move to a team that cannot take participants.
	ErrTeamInactive = errors.New("team inactive")
)
