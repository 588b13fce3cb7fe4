package dap

import (
	"net"
	"testing"
	"time"

	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
)

// newManagerTestSession builds a Session over an unconnected net.Pipe half,
// for tests that only exercise manager-level bookkeeping (election,
// registration, removal) and never issue a command through it.
func newManagerTestSession(id string, status dbgp.Status) *Session {
	serverSide, _ := net.Pipe()
	conn := NewConnection(serverSide, time.Second)
	sess := NewSession(id, conn, Limits{})
	sess.status = status
	return sess
}

func TestSessionManager_ActiveElectionPrefersLiveExplicit(t *testing.T) {
	m := NewSessionManager("127.0.0.1", 0, time.Second, Limits{}, 0)
	m.registerSession(newManagerTestSession("s1", dbgp.StatusRunning))
	m.registerSession(newManagerTestSession("s2", dbgp.StatusRunning))

	if err := m.SetActive("s2"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	active, err := m.ActiveSession()
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if active.ID != "s2" {
		t.Errorf("got active %s, want s2", active.ID)
	}
}

func TestSessionManager_ActiveElectionPrefersEarliestBreak(t *testing.T) {
	m := NewSessionManager("127.0.0.1", 0, time.Second, Limits{}, 0)
	m.registerSession(newManagerTestSession("s1", dbgp.StatusRunning))
	m.registerSession(newManagerTestSession("s2", dbgp.StatusBreak))
	m.registerSession(newManagerTestSession("s3", dbgp.StatusBreak))

	active, err := m.ActiveSession()
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if active.ID != "s2" {
		t.Errorf("got active %s, want earliest-created break session s2", active.ID)
	}
}

func TestSessionManager_ActiveElectionFallsBackToEarliestCreated(t *testing.T) {
	m := NewSessionManager("127.0.0.1", 0, time.Second, Limits{}, 0)
	m.registerSession(newManagerTestSession("s1", dbgp.StatusRunning))
	m.registerSession(newManagerTestSession("s2", dbgp.StatusRunning))

	active, err := m.ActiveSession()
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if active.ID != "s1" {
		t.Errorf("got active %s, want earliest-created s1", active.ID)
	}
}

func TestSessionManager_ActiveElectionNoneWhenEmpty(t *testing.T) {
	m := NewSessionManager("127.0.0.1", 0, time.Second, Limits{}, 0)
	if _, err := m.ActiveSession(); err == nil {
		t.Fatal("expected an error when no sessions exist")
	}
}

func TestSessionManager_RemoveSessionClearsActiveAndReelects(t *testing.T) {
	m := NewSessionManager("127.0.0.1", 0, time.Second, Limits{}, 0)
	m.registerSession(newManagerTestSession("s1", dbgp.StatusRunning))
	m.registerSession(newManagerTestSession("s2", dbgp.StatusRunning))

	if err := m.SetActive("s1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	m.removeSession("s1")

	if _, err := m.GetSession("s1"); err == nil {
		t.Fatal("expected removed session to be gone")
	}
	active, err := m.ActiveSession()
	if err != nil {
		t.Fatalf("ActiveSession after removal: %v", err)
	}
	if active.ID != "s2" {
		t.Errorf("got active %s, want re-elected s2", active.ID)
	}
}

func TestSessionManager_ListSessionsPreservesCreationOrder(t *testing.T) {
	m := NewSessionManager("127.0.0.1", 0, time.Second, Limits{}, 0)
	m.registerSession(newManagerTestSession("a", dbgp.StatusRunning))
	m.registerSession(newManagerTestSession("b", dbgp.StatusRunning))
	m.registerSession(newManagerTestSession("c", dbgp.StatusRunning))

	infos := m.ListSessions()
	if len(infos) != 3 {
		t.Fatalf("got %d sessions, want 3", len(infos))
	}
	for i, want := range []string{"a", "b", "c"} {
		if infos[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, infos[i].ID, want)
		}
	}
}

// TestSessionManager_HandleAcceptedEndToEndInitThenBreak drives a full
// accept-to-break lifecycle over an in-memory net.Pipe, without a real TCP
// listener: init triggers session registration and feature negotiation, a
// step command transitions status to break, and closing the pipe tears the
// session down.
func TestSessionManager_HandleAcceptedEndToEndInitThenBreak(t *testing.T) {
	m := NewSessionManager("127.0.0.1", 0, 2*time.Second, Limits{MaxDepth: 3, MaxChildren: 32, MaxData: 1024}, 0)
	serverSide, engineSide := net.Pipe()

	m.wg.Add(1)
	go m.handleAccepted(serverSide)

	fe := newFakeEngine(t, engineSide)
	fe.sendInit()

	for i := 0; i < 4; i++ {
		_, tx, _ := fe.nextCommand()
		fe.respond("feature_set", tx, `success="1"`, "")
	}

	createdEv := waitForManagerEvent(t, m, EventSessionCreated)
	if createdEv.SessionID == "" {
		t.Fatal("expected a session id on EventSessionCreated")
	}
	sess, err := m.GetSession(createdEv.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	stepCh := make(chan error, 1)
	go func() {
		_, err := sess.StepInto()
		stepCh <- err
	}()
	_, tx, _ := fe.nextCommand()
	fe.respond("step_into", tx, `status="break" reason="ok"`, `<xdebug:message filename="file:///a.php" lineno="10"/>`)
	if err := <-stepCh; err != nil {
		t.Fatalf("StepInto: %v", err)
	}

	snap := sess.Snapshot()
	if snap.Status != dbgp.StatusBreak {
		t.Errorf("status = %q, want break", snap.Status)
	}
	if snap.CurrentLine != 10 {
		t.Errorf("line = %d, want 10", snap.CurrentLine)
	}

	engineSide.Close()
	waitForManagerEvent(t, m, EventSessionEnded)
}

// TestSessionManager_HandleAcceptedRejectsBeyondCapacity verifies a
// connection accepted while the manager is at its session limit is closed
// immediately, without an init exchange.
func TestSessionManager_HandleAcceptedRejectsBeyondCapacity(t *testing.T) {
	m := NewSessionManager("127.0.0.1", 0, time.Second, Limits{}, 1)
	m.registerSession(newManagerTestSession("existing", dbgp.StatusRunning))

	serverSide, engineSide := net.Pipe()
	done := make(chan struct{})
	m.wg.Add(1)
	go func() {
		m.handleAccepted(serverSide)
		close(done)
	}()

	engineSide.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := engineSide.Read(buf); err == nil {
		t.Fatal("expected the rejected connection's socket to be closed")
	}
	<-done
}
