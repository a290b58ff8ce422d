package action

import (
	"sort"
	"strings"
	"sync"

	"github.com/stephnangue/warrant/core"
	"github.com/stephnangue/warrant/logger"
)

// Definition is a registered action: the operation identifier, the text an
// authentication dialog shows for it, and the implicit authorization policy
// per session placement.
type Definition struct {
	ID       string
	Message  string
	IconName string

	// LocalizedMessages maps locale tags ("fr", "de_DE") to translated
	// dialog text. Lookup tries the exact tag, then the bare language.
	LocalizedMessages map[string]string

	ImplicitActive   core.ImplicitAuthorization
	ImplicitInactive core.ImplicitAuthorization
	ImplicitAny      core.ImplicitAuthorization
}

// Registry is the in-memory action pool. It implements core.ActionDirectory.
type Registry struct {
	mu      sync.RWMutex
	log     logger.Logger
	actions map[string]*Definition

	// onChanged fires after every mutation of the pool
	onChanged func()
}

// NewRegistry creates an empty registry
func NewRegistry(log logger.Logger, onChanged func()) *Registry {
	return &Registry{
		log:       log,
		actions:   make(map[string]*Definition),
		onChanged: onChanged,
	}
}

// Register adds or replaces an action definition
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return core.ErrActionUnknownf("action id must not be empty")
	}

	r.mu.Lock()
	copied := def
	if def.LocalizedMessages != nil {
		copied.LocalizedMessages = make(map[string]string, len(def.LocalizedMessages))
		for locale, message := range def.LocalizedMessages {
			copied.LocalizedMessages[locale] = message
		}
	}
	r.actions[def.ID] = &copied
	r.mu.Unlock()

	r.log.Debug("action registered", logger.String("action_id", def.ID))
	r.notify()
	return nil
}

// Deregister removes an action definition
func (r *Registry) Deregister(actionID string) error {
	r.mu.Lock()
	_, ok := r.actions[actionID]
	if ok {
		delete(r.actions, actionID)
	}
	r.mu.Unlock()

	if !ok {
		return core.ErrActionUnknownf("action %s is not registered", actionID)
	}

	r.log.Debug("action deregistered", logger.String("action_id", actionID))
	r.notify()
	return nil
}

// Action implements core.ActionDirectory. The returned description carries
// the message for the requested locale when a translation exists.
func (r *Registry) Action(actionID, locale string) (*core.ActionDescription, error) {
	r.mu.RLock()
	def, ok := r.actions[actionID]
	r.mu.RUnlock()

	if !ok {
		return nil, core.ErrActionUnknownf("action %s is not registered", actionID)
	}

	message := def.Message
	if locale != "" {
		if translated, ok := lookupLocalized(def.LocalizedMessages, locale); ok {
			message = translated
		}
	}

	return &core.ActionDescription{
		ID:               def.ID,
		Message:          message,
		IconName:         def.IconName,
		ImplicitActive:   def.ImplicitActive,
		ImplicitInactive: def.ImplicitInactive,
		ImplicitAny:      def.ImplicitAny,
	}, nil
}

// List returns every registered action id, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.actions))
	for id := range r.actions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered actions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

func (r *Registry) notify() {
	if r.onChanged != nil {
		r.onChanged()
	}
}

// lookupLocalized resolves "de_DE.UTF-8" style tags against the translation
// map: exact tag first, then with the encoding stripped, then the bare
// language.
func lookupLocalized(messages map[string]string, locale string) (string, bool) {
	if len(messages) == 0 {
		return "", false
	}
	if message, ok := messages[locale]; ok {
		return message, true
	}
	if i := strings.IndexByte(locale, '.'); i > 0 {
		if message, ok := messages[locale[:i]]; ok {
			return message, true
		}
		locale = locale[:i]
	}
	if i := strings.IndexByte(locale, '_'); i > 0 {
		if message, ok := messages[locale[:i]]; ok {
			return message, true
		}
	}
	return "", false
}
