package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/stephnangue/warrant/logger"
)

const (
	// DefaultGrantTTL is how long a temporary authorization lives
	DefaultGrantTTL = 300 * time.Second

	// DefaultLivenessInterval is how often process subjects are polled for
	// existence
	DefaultLivenessInterval = 2 * time.Second
)

// TemporaryAuthorization is a time- and subject-bounded grant created after
// successful interactive authentication under a retained policy level.
type TemporaryAuthorization struct {
	// ID is unique for the lifetime of the authority process (tmpauthz<N>)
	ID string

	// Subject the grant applies to, in its resolved (stable) form
	Subject Subject

	// Session owning the grant; only this session may revoke it
	Session SessionSubject

	// ActionID the grant is for
	ActionID string

	TimeGranted time.Time
	TimeExpires time.Time

	expirationTimer Timer
	livenessTimer   Timer
}

// TemporaryAuthorizationStoreConfig configures a store
type TemporaryAuthorizationStoreConfig struct {
	Logger   logger.Logger
	Resolver IdentityResolver
	Checker  ProcessChecker

	// Clock defaults to the system clock
	Clock Clock

	// GrantTTL defaults to DefaultGrantTTL
	GrantTTL time.Duration

	// LivenessInterval defaults to DefaultLivenessInterval
	LivenessInterval time.Duration

	// OnChanged is invoked once per mutation that changes the externally
	// visible set of grants (batched per call, not per removed entry)
	OnChanged func()
}

// TemporaryAuthorizationStore holds the currently valid temporary
// authorizations. It is a process-wide singleton; every mutation runs under
// a single mutex, so timer callbacks and explicit revocations serialize and
// whichever fires first wins.
type TemporaryAuthorizationStore struct {
	mu sync.Mutex

	log      logger.Logger
	resolver IdentityResolver
	checker  ProcessChecker
	clock    Clock

	grantTTL         time.Duration
	livenessInterval time.Duration

	serial uint64
	byID   map[string]*TemporaryAuthorization
	byPair map[string]*TemporaryAuthorization

	onChanged func()
}

// NewTemporaryAuthorizationStore creates a store
func NewTemporaryAuthorizationStore(config TemporaryAuthorizationStoreConfig) *TemporaryAuthorizationStore {
	if config.Clock == nil {
		config.Clock = SystemClock()
	}
	if config.GrantTTL <= 0 {
		config.GrantTTL = DefaultGrantTTL
	}
	if config.LivenessInterval <= 0 {
		config.LivenessInterval = DefaultLivenessInterval
	}
	if config.OnChanged == nil {
		config.OnChanged = func() {}
	}

	return &TemporaryAuthorizationStore{
		log:              config.Logger,
		resolver:         config.Resolver,
		checker:          config.Checker,
		clock:            config.Clock,
		grantTTL:         config.GrantTTL,
		livenessInterval: config.LivenessInterval,
		byID:             make(map[string]*TemporaryAuthorization),
		byPair:           make(map[string]*TemporaryAuthorization),
		onChanged:        config.OnChanged,
	}
}

// resolveSubject maps a transport-name subject to the process that owns it,
// so grants are keyed by a stable subject form. Resolution is best-effort:
// on failure the subject is kept in its original form.
func (s *TemporaryAuthorizationStore) resolveSubject(subject Subject) Subject {
	busName, ok := subject.(BusNameSubject)
	if !ok {
		return subject
	}

	process, err := s.resolver.ProcessForBusName(busName.Name)
	if err != nil || process == nil {
		s.log.Debug("could not resolve bus name to process, keeping transport form",
			logger.String("bus_name", busName.Name),
			logger.Err(err))
		return subject
	}
	return *process
}

func pairKey(subject Subject, actionID string) string {
	return subject.String() + "\x1f" + actionID
}

// HasAuthorization reports whether a live grant exists for the subject and
// action, returning the grant id when one does.
func (s *TemporaryAuthorizationStore) HasAuthorization(subject Subject, actionID string) (string, bool) {
	resolved := s.resolveSubject(subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	if authz, ok := s.byPair[pairKey(resolved, actionID)]; ok {
		return authz.ID, true
	}
	return "", false
}

// AddAuthorization creates a grant for (subject, actionID) owned by
// session. Precondition: no live grant exists for the same resolved subject
// and action; callers must check HasAuthorization in the same logical step.
// Violating the precondition is a logic error and reported as a conflict.
func (s *TemporaryAuthorizationStore) AddAuthorization(subject Subject, session SessionSubject, actionID string) (string, error) {
	resolved := s.resolveSubject(subject)
	key := pairKey(resolved, actionID)

	s.mu.Lock()

	if existing, ok := s.byPair[key]; ok {
		s.mu.Unlock()
		return "", ErrConflictf("temporary authorization %s already exists for %s on %s",
			existing.ID, resolved, actionID)
	}

	s.serial++
	now := s.clock.Now()
	authz := &TemporaryAuthorization{
		ID:          fmt.Sprintf("tmpauthz%d", s.serial),
		Subject:     resolved,
		Session:     session,
		ActionID:    actionID,
		TimeGranted: now,
		TimeExpires: now.Add(s.grantTTL),
	}

	authz.expirationTimer = s.clock.AfterFunc(s.grantTTL, func() {
		s.onExpire(authz)
	})

	// Only process subjects can vanish in a detectable way; transport-form
	// grants are cleared by the bus-name teardown path instead.
	if process, ok := resolved.(ProcessSubject); ok {
		authz.livenessTimer = s.clock.AfterFunc(s.livenessInterval, func() {
			s.onLivenessPoll(authz, process)
		})
	}

	s.byID[authz.ID] = authz
	s.byPair[key] = authz

	s.log.Debug("temporary authorization added",
		logger.String("id", authz.ID),
		logger.String("subject", resolved.String()),
		logger.String("action_id", actionID),
		logger.Time("expires", authz.TimeExpires))

	s.mu.Unlock()
	s.onChanged()

	return authz.ID, nil
}

// onExpire runs when a grant's expiration timer fires. Expiration is a
// routine lifecycle event, not an error. A grant already removed by an
// explicit revocation is left alone.
func (s *TemporaryAuthorizationStore) onExpire(authz *TemporaryAuthorization) {
	s.mu.Lock()
	if s.byID[authz.ID] != authz {
		s.mu.Unlock()
		return
	}
	s.removeLocked(authz)
	s.mu.Unlock()

	s.log.Debug("temporary authorization expired",
		logger.String("id", authz.ID),
		logger.String("action_id", authz.ActionID))
	s.onChanged()
}

// onLivenessPoll periodically checks a process subject still exists and
// removes the grant early when it has vanished.
func (s *TemporaryAuthorizationStore) onLivenessPoll(authz *TemporaryAuthorization, process ProcessSubject) {
	if s.checker != nil && !s.checker.ProcessExists(process) {
		s.mu.Lock()
		if s.byID[authz.ID] != authz {
			s.mu.Unlock()
			return
		}
		s.removeLocked(authz)
		s.mu.Unlock()

		s.log.Debug("subject vanished, removing temporary authorization",
			logger.String("id", authz.ID),
			logger.String("subject", process.String()))
		s.onChanged()
		return
	}

	s.mu.Lock()
	if s.byID[authz.ID] == authz {
		authz.livenessTimer = s.clock.AfterFunc(s.livenessInterval, func() {
			s.onLivenessPoll(authz, process)
		})
	}
	s.mu.Unlock()
}

// removeLocked unlinks a grant and stops its timers. Callers hold s.mu.
func (s *TemporaryAuthorizationStore) removeLocked(authz *TemporaryAuthorization) {
	delete(s.byID, authz.ID)
	delete(s.byPair, pairKey(authz.Subject, authz.ActionID))

	if authz.expirationTimer != nil {
		authz.expirationTimer.Stop()
	}
	if authz.livenessTimer != nil {
		authz.livenessTimer.Stop()
	}
}

// RemoveByID revokes a single grant. requestingSession must be the session
// that owns the grant; a session may only revoke its own grants.
func (s *TemporaryAuthorizationStore) RemoveByID(id string, requestingSession SessionSubject) error {
	s.mu.Lock()

	authz, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFoundf("no temporary authorization with id %q", id)
	}
	if authz.Session != requestingSession {
		s.mu.Unlock()
		return ErrPermissionDeniedf("temporary authorization %q belongs to session %s, not %s",
			id, authz.Session.ID, requestingSession.ID)
	}

	s.removeLocked(authz)
	s.mu.Unlock()

	s.log.Debug("temporary authorization revoked",
		logger.String("id", id),
		logger.String("session", requestingSession.ID))
	s.onChanged()
	return nil
}

// RemoveAllForSession revokes every grant owned by session and returns how
// many were removed. A single changed notification covers the whole batch.
func (s *TemporaryAuthorizationStore) RemoveAllForSession(session SessionSubject) int {
	s.mu.Lock()
	var removed int
	for _, authz := range s.byID {
		if authz.Session == session {
			s.removeLocked(authz)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.log.Debug("temporary authorizations revoked for session",
			logger.String("session", session.ID),
			logger.Int("count", removed))
		s.onChanged()
	}
	return removed
}

// RemoveAllForBusName revokes every grant still keyed to the transport form
// of a bus name. Grants created before process resolution succeeded stay in
// transport form, so they must be cleared when the name vanishes even
// though the owning process may already be gone.
func (s *TemporaryAuthorizationStore) RemoveAllForBusName(name string) int {
	s.mu.Lock()
	var removed int
	for _, authz := range s.byID {
		if busName, ok := authz.Subject.(BusNameSubject); ok && busName.Name == name {
			s.removeLocked(authz)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.log.Debug("temporary authorizations revoked for vanished bus name",
			logger.String("bus_name", name),
			logger.Int("count", removed))
		s.onChanged()
	}
	return removed
}

// EnumerateForSession lists the grants owned by session. The returned
// records are copies; mutating them does not affect the store.
func (s *TemporaryAuthorizationStore) EnumerateForSession(session SessionSubject) []*TemporaryAuthorization {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*TemporaryAuthorization
	for _, authz := range s.byID {
		if authz.Session == session {
			out = append(out, &TemporaryAuthorization{
				ID:          authz.ID,
				Subject:     authz.Subject,
				Session:     authz.Session,
				ActionID:    authz.ActionID,
				TimeGranted: authz.TimeGranted,
				TimeExpires: authz.TimeExpires,
			})
		}
	}
	return out
}

// Count returns the number of live grants
func (s *TemporaryAuthorizationStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Stop cancels all timers. The store is unusable afterwards.
func (s *TemporaryAuthorizationStore) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, authz := range s.byID {
		s.removeLocked(authz)
	}
}
