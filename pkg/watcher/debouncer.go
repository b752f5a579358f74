package watcher

import (
	"context"
	"slices"
	"time"

	"github.com/ritzau/costar/pkg/logging"
)

// Debouncer batches rapid file system events. An editor save typically
// produces several writes and a rename in a few milliseconds.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer. maxWait bounds how long a
// steady stream of events can delay a flush.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet, deadline <-chan time.Time
		pending         *ChangeEvent
		count           int
	)

	flush := func() {
		quiet, deadline = nil, nil
		if pending == nil {
			return
		}
		logging.Debug("flushing accumulated events", "count", count, "type", pending.Type.String())
		pending.Timestamp = time.Now()
		select {
		case d.output <- *pending:
		case <-ctx.Done():
		}
		pending = nil
		count = 0
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			count++
			if pending == nil {
				pending = &ChangeEvent{Type: event.Type}
				deadline = time.After(d.maxWait)
			}
			// The last event decides: a file that was removed and then
			// recreated counts as present.
			pending.Type = event.Type
			for _, p := range event.Paths {
				if !slices.Contains(pending.Paths, p) {
					pending.Paths = append(pending.Paths, p)
				}
			}
			quiet = time.After(d.quietPeriod)

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
