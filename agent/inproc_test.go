package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stephnangue/warrant/core"
	"github.com/stephnangue/warrant/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingResponder struct {
	mu        sync.Mutex
	responses []struct {
		cookie   string
		identity core.Identity
	}
	err error
}

func (r *recordingResponder) AuthenticationAgentResponse(caller core.Subject, cookie string, identity core.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.responses = append(r.responses, struct {
		cookie   string
		identity core.Identity
	}{cookie, identity})
	return nil
}

func testAgentLogger(t *testing.T) logger.Logger {
	t.Helper()
	gated, _ := logger.NewGatedLogger(logger.DefaultConfig(), logger.GatedWriterConfig{
		InitialState: logger.GateClosed,
	})
	return gated.Logger
}

func TestInProcAgent_SubmitsVerifiedResponse(t *testing.T) {
	responder := &recordingResponder{}
	responderSubject := core.ProcessSubject{Pid: 1, StartTime: 1}

	handler := func(ctx context.Context, req *core.AuthenticationRequest) (core.Identity, error) {
		require.Len(t, req.Identities, 1)
		return req.Identities[0], nil
	}

	a := NewInProcAgent(testAgentLogger(t), handler, responder, responderSubject)

	err := a.BeginAuthentication(context.Background(), &core.AuthenticationRequest{
		Cookie:     "c1",
		ActionID:   "org.example.mount",
		Identities: []core.Identity{core.UserIdentity(1000)},
	})
	require.NoError(t, err)

	require.Len(t, responder.responses, 1)
	assert.Equal(t, "c1", responder.responses[0].cookie)
	assert.Equal(t, core.UserIdentity(1000), responder.responses[0].identity)
}

func TestInProcAgent_DismissalPropagates(t *testing.T) {
	handler := func(ctx context.Context, req *core.AuthenticationRequest) (core.Identity, error) {
		return core.Identity{}, core.ErrAuthenticationDismissed
	}

	a := NewInProcAgent(testAgentLogger(t), handler, &recordingResponder{}, core.ProcessSubject{Pid: 1})

	err := a.BeginAuthentication(context.Background(), &core.AuthenticationRequest{Cookie: "c1"})
	assert.ErrorIs(t, err, core.ErrAuthenticationDismissed)
}

func TestInProcAgent_RejectedResponsePropagates(t *testing.T) {
	responder := &recordingResponder{
		err: core.ErrWrongIdentityf("identity was never offered"),
	}
	handler := func(ctx context.Context, req *core.AuthenticationRequest) (core.Identity, error) {
		return core.UserIdentity(2000), nil
	}

	a := NewInProcAgent(testAgentLogger(t), handler, responder, core.ProcessSubject{Pid: 1})

	err := a.BeginAuthentication(context.Background(), &core.AuthenticationRequest{Cookie: "c1"})
	require.Error(t, err)
	assert.Equal(t, core.CodeWrongIdentity, core.GetErrorCode(err))
}

func TestInProcAgent_CancelAbortsHandler(t *testing.T) {
	responder := &recordingResponder{}

	started := make(chan struct{})
	handler := func(ctx context.Context, req *core.AuthenticationRequest) (core.Identity, error) {
		close(started)
		<-ctx.Done()
		return core.Identity{}, ctx.Err()
	}

	a := NewInProcAgent(testAgentLogger(t), handler, responder, core.ProcessSubject{Pid: 1})

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.BeginAuthentication(context.Background(), &core.AuthenticationRequest{Cookie: "c1"})
	}()

	<-started
	a.CancelAuthentication("c1")

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Empty(t, responder.responses)
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not observe cancellation")
	}

	// Cancels for unknown cookies are tolerated
	a.CancelAuthentication("c2")
}
