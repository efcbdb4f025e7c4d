// Package board serves the public team board: active teams of a batch with
// their member counts, cached in Redis and rebuilt when the roster changes.
package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"checkin/internal/roster"
)

// Board is a point-in-time view of one batch.
type Board struct {
	Batch     int                `json:"batch"`
	Teams     []roster.TeamCount `json:"teams"`
	Total     int                `json:"total"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Source reads the authoritative roster.
type Source interface {
	ListActiveTeams(ctx context.Context, batch int) ([]roster.Team, error)
	CountByTeam(ctx context.Context, batch int) (map[string]int, error)
}

// Service builds boards and keeps the cached copy current. A nil Redis
// client disables caching.
type Service struct {
	src   Source
	cache *redis.Client
	ttl   time.Duration
	order []string
	log   *zap.SugaredLogger
}

// NewService builds a board service.
func NewService(src Source, cache *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{src: src, cache: cache, ttl: ttl, order: roster.DefaultTeamOrder, log: log.Named("board")}
}

func cacheKey(batch int) string {
	return fmt.Sprintf("checkin:board:%d", batch)
}

// Build reads the roster and assembles a board.
func (s *Service) Build(ctx context.Context, batch int) (Board, error) {
	teams, err := s.src.ListActiveTeams(ctx, batch)
	if err != nil {
		return Board{}, fmt.Errorf("list teams: %w", err)
	}
	counts, err := s.src.CountByTeam(ctx, batch)
	if err != nil {
		return Board{}, fmt.Errorf("count teams: %w", err)
	}
	b := Board{Batch: batch, Teams: roster.Summarize(teams, counts, s.order), UpdatedAt: time.Now().UTC()}
	for _, t := range b.Teams {
		b.Total += t.Count
	}
	return b, nil
}

// Refresh rebuilds the board and stores it in the cache.
func (s *Service) Refresh(ctx context.Context, batch int) (Board, error) {
	b, err := s.Build(ctx, batch)
	if err != nil {
		return Board{}, err
	}
	if s.cache == nil {
		return b, nil
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return Board{}, err
	}
	if err := s.cache.Set(ctx, cacheKey(batch), payload, s.ttl).Err(); err != nil {
		s.log.Warnw("board cache write failed", "batch", batch, "error", err)
	}
	return b, nil
}

// Get returns the cached board, rebuilding it on a miss.
func (s *Service) Get(ctx context.Context, batch int) (Board, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(batch)).Bytes()
		switch {
		case err == nil:
			var b Board
			if err := json.Unmarshal(raw, &b); err == nil {
				return b, nil
			}
			s.log.Warnw("board cache entry unreadable", "batch", batch)
		case !errors.Is(err, redis.Nil):
			s.log.Warnw("board cache read failed", "batch", batch, "error", err)
		}
	}
	return s.Refresh(ctx, batch)
}

// Invalidate drops the cached board of a batch.
func (s *Service) Invalidate(ctx context.Context, batch int) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cacheKey(batch)).Err()
}
