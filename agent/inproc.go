package agent

import (
	"context"
	"sync"

	"github.com/stephnangue/warrant/core"
	"github.com/stephnangue/warrant/logger"
)

// Responder is the authority surface an agent submits verified responses on
type Responder interface {
	AuthenticationAgentResponse(caller core.Subject, cookie string, identity core.Identity) error
}

// Handler performs the actual authentication exchange with the operator and
// returns the identity they authenticated as. Returning
// core.ErrAuthenticationDismissed means the operator closed the dialog.
type Handler func(ctx context.Context, req *core.AuthenticationRequest) (core.Identity, error)

// InProcAgent is an agent living in the authority's own process. It backs
// dev mode and tests; the challenge flow it exercises is exactly the one a
// remote agent would drive over a message bus.
type InProcAgent struct {
	log     logger.Logger
	handler Handler

	// responder and responderSubject are how the agent reports results; the
	// subject must resolve to uid 0 or responses are refused
	responder        Responder
	responderSubject core.Subject

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewInProcAgent creates an in-process agent
func NewInProcAgent(log logger.Logger, handler Handler, responder Responder, responderSubject core.Subject) *InProcAgent {
	return &InProcAgent{
		log:              log,
		handler:          handler,
		responder:        responder,
		responderSubject: responderSubject,
		cancels:          make(map[string]context.CancelFunc),
	}
}

// BeginAuthentication implements core.AgentTransport. It runs the handler,
// submits a verified response for the identity it returns, and only then
// completes the call.
func (a *InProcAgent) BeginAuthentication(ctx context.Context, req *core.AuthenticationRequest) error {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancels[req.Cookie] = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.cancels, req.Cookie)
		a.mu.Unlock()
		cancel()
	}()

	identity, err := a.handler(ctx, req)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := a.responder.AuthenticationAgentResponse(a.responderSubject, req.Cookie, identity); err != nil {
		a.log.Warn("authentication response rejected",
			logger.String("cookie", req.Cookie),
			logger.String("identity", identity.String()),
			logger.Err(err))
		return err
	}
	return nil
}

// CancelAuthentication implements core.AgentTransport
func (a *InProcAgent) CancelAuthentication(cookie string) {
	a.mu.Lock()
	cancel := a.cancels[cookie]
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// StaticConnector hands out a fixed transport regardless of the registering
// identity. Enough for a single in-process agent.
type StaticConnector struct {
	Transport core.AgentTransport
}

// Connect implements core.AuthenticationAgentConnector
func (c *StaticConnector) Connect(busName, address, locale string) (core.AgentTransport, error) {
	return c.Transport, nil
}

// ConnectorFunc adapts a function to core.AuthenticationAgentConnector
type ConnectorFunc func(busName, address, locale string) (core.AgentTransport, error)

// Connect implements core.AuthenticationAgentConnector
func (f ConnectorFunc) Connect(busName, address, locale string) (core.AgentTransport, error) {
	return f(busName, address, locale)
}
