package board

import (
	"context"
	"time"

	"checkin/internal/queue"
)

// Consume rebuilds the cached board of every batch named by an event on q
// until ctx ends. Bursts are coalesced: a batch refreshes at most once per
// settle window.
func (s *Service) Consume(ctx context.Context, q queue.Queue, settle time.Duration) error {
	events, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	if settle <= 0 {
		settle = 200 * time.Millisecond
	}

	pending := map[int]struct{}{}
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	flush := func() {
		for batch := range pending {
			b, err := s.Refresh(ctx, batch)
			if err != nil {
				s.log.Warnw("board refresh failed", "batch", batch, "error", err)
				continue
			}
			s.log.Debugw("board refreshed", "batch", batch, "total", b.Total)
		}
		clear(pending)
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					flush()
				}
				return nil
			}
			switch evt.Type {
			case queue.TypeRegistered, queue.TypeMoved, queue.TypeTeamChange:
			default:
				s.log.Debugw("ignoring event", "type", evt.Type)
				continue
			}
			if evt.Batch < 1 {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(settle)
			}
			pending[evt.Batch] = struct{}{}
		case <-timer.C:
			flush()
		}
	}
}
