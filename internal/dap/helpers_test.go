package dap

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeEngine drives the test side of a net.Pipe as if it were a DBGp
// engine: it reads NUL-terminated commands and writes length-prefixed XML
// responses, mirroring the real wire contract from the opposite end.
type fakeEngine struct {
	t *testing.T
	r *bufio.Reader
	w net.Conn
}

func newFakeEngine(t *testing.T, conn net.Conn) *fakeEngine {
	return &fakeEngine{t: t, r: bufio.NewReader(conn), w: conn}
}

// nextCommand reads one NUL-terminated command line and returns its command
// name, transaction id, and the raw line.
func (f *fakeEngine) nextCommand() (name, txID, raw string) {
	line, err := f.r.ReadString(0)
	if err != nil {
		f.t.Fatalf("fakeEngine: read command: %v", err)
	}
	raw = strings.TrimSuffix(line, "\x00")
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		f.t.Fatalf("fakeEngine: empty command")
	}
	name = fields[0]
	for i := 0; i < len(fields); i++ {
		if fields[i] == "-i" && i+1 < len(fields) {
			txID = fields[i+1]
		}
	}
	return name, txID, raw
}

// respond writes a response frame for the given command/transaction id.
// attrs is inserted verbatim into the <response> start tag.
func (f *fakeEngine) respond(cmd, txID, attrs, children string) {
	xmlStr := fmt.Sprintf(`<response command="%s" transaction_id="%s" %s>%s</response>`, cmd, txID, attrs, children)
	if _, err := f.w.Write(EncodeFrame([]byte(xmlStr))); err != nil {
		f.t.Fatalf("fakeEngine: write response: %v", err)
	}
}

// respondError writes an engine-error response.
func (f *fakeEngine) respondError(cmd, txID string, code int, message string) {
	xmlStr := fmt.Sprintf(`<response command="%s" transaction_id="%s" success="0"><error code="%d"><message>%s</message></error></response>`, cmd, txID, code, message)
	if _, err := f.w.Write(EncodeFrame([]byte(xmlStr))); err != nil {
		f.t.Fatalf("fakeEngine: write error response: %v", err)
	}
}

// sendInit writes a minimal <init> frame, as an engine does on connect.
func (f *fakeEngine) sendInit() {
	xmlStr := `<init appid="1" idekey="test" language="php" protocol_version="1.0" fileuri="file:///tmp/a.php"/>`
	if _, err := f.w.Write(EncodeFrame([]byte(xmlStr))); err != nil {
		f.t.Fatalf("fakeEngine: write init: %v", err)
	}
}

// newTestConnection wires a Connection to one end of a net.Pipe and starts
// its read loop, returning the other end for a fakeEngine to drive.
func newTestConnection(t *testing.T, timeout time.Duration) (*Connection, net.Conn, context.CancelFunc) {
	t.Helper()
	serverSide, engineSide := net.Pipe()
	conn := NewConnection(serverSide, timeout)
	ctx, cancel := context.WithCancel(context.Background())
	go conn.Run(ctx)
	t.Cleanup(cancel)
	return conn, engineSide, cancel
}

// newConnectedTestSession wraps newTestConnection in a Session, for tests
// that exercise Session methods rather than the Connection directly.
func newConnectedTestSession(t *testing.T, timeout time.Duration) (*Session, net.Conn, context.CancelFunc) {
	t.Helper()
	conn, engineSide, cancel := newTestConnection(t, timeout)
	sess := NewSession("sess-test", conn, Limits{})
	return sess, engineSide, cancel
}

// drainEvents discards every event a Connection emits, so its buffered
// channel never fills during a test that doesn't care about events.
func drainEvents(conn *Connection) {
	go func() {
		for range conn.Events() {
		}
	}()
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

// waitForManagerEvent drains manager events until one of the given kind
// arrives, discarding any others (e.g. intervening state-change events) in
// between. Event ordering across the manager's internal goroutines is not
// otherwise guaranteed.
func waitForManagerEvent(t *testing.T, m *SessionManager, kind ManagerEventKind) ManagerEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for manager event kind %v", kind)
			return ManagerEvent{}
		}
	}
}
