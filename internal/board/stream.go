package board

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Stream pushes the board of batch to conn every interval until ctx ends or
// the client goes away. The first board is sent immediately.
func (s *Service) Stream(ctx context.Context, conn *websocket.Conn, batch int, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// reader detects the client closing the socket
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		b, err := s.Get(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warnw("board stream build failed", "batch", batch, "error", err)
		} else {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(b); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case <-ticker.C:
		}
	}
}
