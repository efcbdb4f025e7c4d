package quiz

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultTypingInterval is the delay between two revealed characters.
const DefaultTypingInterval = 30 * time.Millisecond

// Typewriter reveals prompt text progressively.
type Typewriter struct {
	Interval time.Duration
}

// Frames returns the successive prefixes of text, one more visible rune per
// frame. Markup tags never get split: a tag is revealed together with the
// rune that follows it. The last frame is always text itself.
func Frames(text string) []string {
	if text == "" {
		return nil
	}
	frames := make([]string, 0, len(text))
	var b strings.Builder
	rest := text
	for len(rest) > 0 {
		if rest[0] == '<' {
			if end := strings.IndexByte(rest, '>'); end > 0 {
				b.WriteString(rest[:end+1])
				rest = rest[end+1:]
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(rest)
		b.WriteString(rest[:size])
		rest = rest[size:]
		frames = append(frames, b.String())
	}
	if len(frames) == 0 || frames[len(frames)-1] != text {
		frames = append(frames, text)
	}
	return frames
}

// Stream sends the frames of text one interval apart and closes the channel
// after the last frame or when ctx ends.
func (t Typewriter) Stream(ctx context.Context, text string) <-chan string {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	out := make(chan string)
	frames := Frames(text)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for _, frame := range frames {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
