package sessionmon

import (
	"os"
	"testing"

	"github.com/stephnangue/warrant/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticMonitor_UserResolution(t *testing.T) {
	monitor := NewStaticMonitor()

	process := core.ProcessSubject{Pid: 100, StartTime: 7}
	monitor.SetUser(process, core.UserIdentity(1000))

	identity, err := monitor.UserForSubject(process)
	require.NoError(t, err)
	assert.Equal(t, core.UserIdentity(1000), identity)

	_, err = monitor.UserForSubject(core.ProcessSubject{Pid: 999, StartTime: 1})
	require.Error(t, err)
	assert.Equal(t, core.CodeIdentityUnknown, core.GetErrorCode(err))
}

func TestStaticMonitor_BusNameFallsBackToOwningProcess(t *testing.T) {
	monitor := NewStaticMonitor()

	process := core.ProcessSubject{Pid: 100, StartTime: 7}
	session := core.SessionSubject{ID: "s1"}
	monitor.SetUser(process, core.UserIdentity(1000))
	monitor.SetSession(process, session)
	monitor.SetBusOwner(":1.42", process)

	busName := core.BusNameSubject{Name: ":1.42"}

	identity, err := monitor.UserForSubject(busName)
	require.NoError(t, err)
	assert.Equal(t, core.UserIdentity(1000), identity)

	got, err := monitor.SessionForSubject(busName)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.ID)

	owner, err := monitor.ProcessForBusName(":1.42")
	require.NoError(t, err)
	assert.Equal(t, process, *owner)

	monitor.RemoveBusOwner(":1.42")
	_, err = monitor.ProcessForBusName(":1.42")
	require.Error(t, err)
}

func TestStaticMonitor_SessionState(t *testing.T) {
	monitor := NewStaticMonitor()

	process := core.ProcessSubject{Pid: 100, StartTime: 7}
	session := core.SessionSubject{ID: "s1"}
	monitor.SetSession(process, session)
	monitor.SetSessionState(session, true, false)

	assert.True(t, monitor.IsSessionLocal(session))
	assert.False(t, monitor.IsSessionActive(session))

	// Unknown sessions are neither local nor active
	other := core.SessionSubject{ID: "s2"}
	assert.False(t, monitor.IsSessionLocal(other))
	assert.False(t, monitor.IsSessionActive(other))

	// A session subject resolves to itself
	got, err := monitor.SessionForSubject(session)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.ID)

	// A subject with no recorded session resolves to nil, not an error
	got, err = monitor.SessionForSubject(core.ProcessSubject{Pid: 999, StartTime: 1})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStaticMonitor_RemoveSubject(t *testing.T) {
	monitor := NewStaticMonitor()

	process := core.ProcessSubject{Pid: 100, StartTime: 7}
	monitor.SetUser(process, core.UserIdentity(1000))
	monitor.SetSession(process, core.SessionSubject{ID: "s1"})

	monitor.RemoveSubject(process)

	_, err := monitor.UserForSubject(process)
	require.Error(t, err)

	got, err := monitor.SessionForSubject(process)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnixProcessChecker_SelfIsAlive(t *testing.T) {
	checker := NewUnixProcessChecker()

	// Our own pid, without a start time constraint
	self := core.ProcessSubject{Pid: int32(os.Getpid())}
	assert.True(t, checker.ProcessExists(self))

	// A pid from the far end of the default pid space
	assert.False(t, checker.ProcessExists(core.ProcessSubject{Pid: 4194300}))
}
