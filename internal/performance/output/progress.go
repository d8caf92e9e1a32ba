package output

import (
	"context"
	"time"
)

// DefaultProgressInterval is how often the live display refreshes on a
// terminal. Non-terminal output is throttled to DefaultLogInterval.
const (
	DefaultProgressInterval = time.Second
	DefaultLogInterval      = 10 * time.Second
)

// Watch calls poll every interval and renders the result until ctx is done.
// A zero interval picks the default for the writer.
func (c *ConsoleOutput) Watch(ctx context.Context, interval time.Duration, poll func() *LiveStats) error {
	if c.quiet {
		<-ctx.Done()
		return nil
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
		if !c.isTTY {
			interval = DefaultLogInterval
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if stats := poll(); stats != nil {
				c.Update(stats)
			}
		}
	}
}
