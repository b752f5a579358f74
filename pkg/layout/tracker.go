package layout

import (
	"context"
	"slices"
	"sync"
	"time"
)

// FrameInterval is the polling period when the engine cannot report moves.
const FrameInterval = 16 * time.Millisecond

// Tracker follows one node or edge on screen, for tooltips. Starting a new
// track stops the previous one.
type Tracker struct {
	engine   Engine
	interval time.Duration

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTracker creates a tracker over engine.
func NewTracker(engine Engine) *Tracker {
	return &Tracker{engine: engine, interval: FrameInterval}
}

// TrackNode reports the screen position of node id to fn whenever it moves.
func (t *Tracker) TrackNode(ctx context.Context, id string, fn func(Point)) {
	locate := func() (Point, bool) {
		p, ok := t.engine.Position(id)
		if !ok {
			return Point{}, false
		}
		return t.engine.CanvasToDOM(p), true
	}
	t.track(ctx, "node:"+id, []string{id}, locate, fn)
}

// TrackEdge reports the screen midpoint of an edge.
func (t *Tracker) TrackEdge(ctx context.Context, edgeID, from, to string, fn func(Point)) {
	locate := func() (Point, bool) {
		a, ok := t.engine.Position(from)
		if !ok {
			return Point{}, false
		}
		b, ok := t.engine.Position(to)
		if !ok {
			return Point{}, false
		}
		return t.engine.CanvasToDOM(Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}), true
	}
	t.track(ctx, "edge:"+edgeID, []string{from, to}, locate, fn)
}

// Current returns the tracked key ("node:<id>" or "edge:<id>"), or "".
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Stop ends the current track and waits for its goroutine to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Tracker) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel = nil
	t.done = nil
	t.current = ""
}

func (t *Tracker) track(ctx context.Context, key string, ids []string, locate func() (Point, bool), fn func(Point)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.current = key
	t.cancel = cancel
	t.done = done

	last, ok := locate()
	if ok {
		fn(last)
	}

	if mn, isNotifier := t.engine.(MoveNotifier); isNotifier {
		var fmu sync.Mutex
		unregister := mn.OnMove(func(id string, _ Point) {
			if !slices.Contains(ids, id) || ctx.Err() != nil {
				return
			}
			if p, ok := locate(); ok {
				fmu.Lock()
				fn(p)
				fmu.Unlock()
			}
		})
		go func() {
			defer close(done)
			<-ctx.Done()
			unregister()
		}()
		return
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p, ok := locate()
				if ok && p != last {
					last = p
					fn(p)
				}
			}
		}
	}()
}
