package ros

import (
	"sync"
	"sync/atomic"
)

// goalSlot serializes goals over an action client that only tracks its latest
// goal. Sending a goal supersedes the previous one: the previous goal is
// canceled on the server and finished locally as GoalCanceled, since the
// client drops every later event for it.
type goalSlot struct {
	mu      sync.Mutex
	current *slotGoal
}

type slotGoal struct {
	slot   *goalSlot
	events GoalEvents
	cancel func()
	done   atomic.Bool
}

// send installs a new goal. sendFn transmits it with the wrapped events;
// cancelFn cancels whatever goal the client currently tracks.
func (s *goalSlot) send(events GoalEvents, sendFn func(GoalEvents) error, cancelFn func()) (Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.current; prev != nil && !prev.done.Load() {
		cancelFn()
		prev.finish(GoalCanceled, nil)
	}
	s.current = nil

	g := &slotGoal{slot: s, events: events, cancel: cancelFn}
	if err := sendFn(g.wrapped()); err != nil {
		return nil, err
	}
	s.current = g
	return g, nil
}

func (g *slotGoal) wrapped() GoalEvents {
	return GoalEvents{
		OnActive: func() {
			if !g.done.Load() && g.events.OnActive != nil {
				g.events.OnActive()
			}
		},
		OnFeedback: func(m Message) {
			if !g.done.Load() && g.events.OnFeedback != nil {
				g.events.OnFeedback(m)
			}
		},
		OnDone: g.finish,
	}
}

func (g *slotGoal) finish(state GoalState, result Message) {
	if !g.done.CompareAndSwap(false, true) {
		return
	}
	if g.events.OnDone != nil {
		g.events.OnDone(state, result)
	}
}

// Cancel cancels the goal if it is still the one the client tracks.
func (g *slotGoal) Cancel() error {
	g.slot.mu.Lock()
	defer g.slot.mu.Unlock()
	if g.slot.current != g || g.done.Load() {
		return nil
	}
	g.cancel()
	return nil
}
