package core

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stephnangue/warrant/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	gated, _ := logger.NewGatedLogger(logger.DefaultConfig(), logger.GatedWriterConfig{
		InitialState: logger.GateClosed,
	})
	return gated.Logger
}

// fakeClock is a manually advanced Clock. Callbacks run synchronously from
// Advance, outside the clock's own lock.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	serial int
	timers map[int]*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	id       int
	deadline time.Time
	f        func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		timers: make(map[int]*fakeTimer),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.serial++
	timer := &fakeTimer{
		clock:    c,
		id:       c.serial,
		deadline: c.now.Add(d),
		f:        f,
	}
	c.timers[timer.id] = timer
	return timer
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if _, pending := t.clock.timers[t.id]; !pending {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

// Advance moves the clock forward and fires every timer that came due, in
// deadline order. Firing happens outside the clock lock because callbacks
// schedule new timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, timer := range c.timers {
			if !timer.deadline.After(target) {
				due = append(due, timer)
			}
		}
		for _, timer := range due {
			delete(c.timers, timer.id)
		}
		c.mu.Unlock()

		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
		for _, timer := range due {
			timer.f()
		}
	}
}

// fakeResolver is a settable IdentityResolver
type fakeResolver struct {
	mu        sync.Mutex
	users     map[string]Identity
	sessions  map[string]SessionSubject
	local     map[string]bool
	active    map[string]bool
	busOwners map[string]ProcessSubject
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		users:     make(map[string]Identity),
		sessions:  make(map[string]SessionSubject),
		local:     make(map[string]bool),
		active:    make(map[string]bool),
		busOwners: make(map[string]ProcessSubject),
	}
}

func (r *fakeResolver) setUser(subject Subject, identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[subject.String()] = identity
}

func (r *fakeResolver) setSession(subject Subject, session SessionSubject, local, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[subject.String()] = session
	r.local[session.ID] = local
	r.active[session.ID] = active
}

func (r *fakeResolver) setBusOwner(name string, process ProcessSubject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busOwners[name] = process
}

func (r *fakeResolver) UserForSubject(subject Subject) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity, ok := r.users[subject.String()]; ok {
		return identity, nil
	}
	return Identity{}, ErrIdentityUnknownf("no identity recorded for %s", subject)
}

func (r *fakeResolver) SessionForSubject(subject Subject) (*SessionSubject, error) {
	if session, ok := subject.(SessionSubject); ok {
		return &session, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[subject.String()]; ok {
		return &session, nil
	}
	return nil, nil
}

func (r *fakeResolver) IsSessionLocal(session SessionSubject) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local[session.ID]
}

func (r *fakeResolver) IsSessionActive(session SessionSubject) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[session.ID]
}

func (r *fakeResolver) ProcessForBusName(name string) (*ProcessSubject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if process, ok := r.busOwners[name]; ok {
		return &process, nil
	}
	return nil, ErrNotFoundf("no process owns transport name %s", name)
}

// fakeChecker reports liveness from a settable pid set
type fakeChecker struct {
	mu    sync.Mutex
	alive map[int32]bool
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{alive: make(map[int32]bool)}
}

func (c *fakeChecker) setAlive(pid int32, alive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive[pid] = alive
}

func (c *fakeChecker) ProcessExists(subject ProcessSubject) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive[subject.Pid]
}

// staticDirectory serves a fixed action set
type staticDirectory struct {
	actions map[string]*ActionDescription
}

func newStaticDirectory(actions ...*ActionDescription) *staticDirectory {
	dir := &staticDirectory{actions: make(map[string]*ActionDescription)}
	for _, action := range actions {
		dir.actions[action.ID] = action
	}
	return dir
}

func (d *staticDirectory) Action(actionID, locale string) (*ActionDescription, error) {
	if action, ok := d.actions[actionID]; ok {
		copied := *action
		return &copied, nil
	}
	return nil, ErrActionUnknownf("action %s is not registered", actionID)
}
