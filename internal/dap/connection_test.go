package dap

import (
	"testing"
	"time"
)

// TestConnection_SendCommandRoundTrip verifies a single command/response
// exchange resolves SendCommand's blocking call.
func TestConnection_SendCommandRoundTrip(t *testing.T) {
	conn, engineSide, _ := newTestConnection(t, time.Second)
	drainEvents(conn)
	fe := newFakeEngine(t, engineSide)

	respCh := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand("status", nil, nil)
		respCh <- err
	}()

	name, txID, _ := fe.nextCommand()
	if name != "status" {
		t.Fatalf("got command %q, want status", name)
	}
	fe.respond(name, txID, `status="break" reason="ok"`, "")

	if err := <-respCh; err != nil {
		t.Fatalf("SendCommand returned error: %v", err)
	}
}

// TestConnection_TransactionIDsMonotonicallyIncrease verifies each command
// on a connection gets a strictly increasing transaction id.
func TestConnection_TransactionIDsMonotonicallyIncrease(t *testing.T) {
	conn, engineSide, _ := newTestConnection(t, time.Second)
	drainEvents(conn)
	fe := newFakeEngine(t, engineSide)

	lastTxID := 0
	for i := 0; i < 3; i++ {
		respCh := make(chan error, 1)
		go func() {
			_, err := conn.SendCommand("step_into", nil, nil)
			respCh <- err
		}()
		_, txID, _ := fe.nextCommand()
		n := atoi(txID)
		if n <= lastTxID {
			t.Fatalf("transaction id %d did not increase past %d", n, lastTxID)
		}
		lastTxID = n
		fe.respond("step_into", txID, `status="running"`, "")
		if err := <-respCh; err != nil {
			t.Fatalf("SendCommand: %v", err)
		}
	}
}

// TestConnection_ResponseCorrelatesToMatchingTransactionOnly verifies a
// response naming the wrong transaction id is ignored rather than
// completing the outstanding waiter.
func TestConnection_ResponseCorrelatesToMatchingTransactionOnly(t *testing.T) {
	conn, engineSide, _ := newTestConnection(t, 200*time.Millisecond)
	drainEvents(conn)
	fe := newFakeEngine(t, engineSide)

	respCh := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand("step_into", nil, nil)
		respCh <- err
	}()
	_, txID, _ := fe.nextCommand()

	// A response for an unrelated, never-issued transaction id must not
	// complete this waiter.
	fe.respond("step_into", "9999", `status="running"`, "")

	select {
	case err := <-respCh:
		t.Fatalf("waiter completed on a mismatched transaction id, err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// The real response still completes it.
	fe.respond("step_into", txID, `status="running"`, "")
	if err := <-respCh; err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
}

// TestConnection_SingleOutstandingQueuesSecondCommand verifies a second
// command issued while one is outstanding is queued, not written to the
// wire, until the first response has been delivered.
func TestConnection_SingleOutstandingQueuesSecondCommand(t *testing.T) {
	conn, engineSide, _ := newTestConnection(t, time.Second)
	drainEvents(conn)
	fe := newFakeEngine(t, engineSide)

	firstDone := make(chan error, 1)
	secondDone := make(chan error, 1)

	go func() {
		_, err := conn.SendCommand("step_into", nil, nil)
		firstDone <- err
	}()
	name1, tx1, _ := fe.nextCommand()
	if name1 != "step_into" {
		t.Fatalf("got %q first, want step_into", name1)
	}

	go func() {
		_, err := conn.SendCommand("step_over", nil, nil)
		secondDone <- err
	}()

	fe.respond("step_into", tx1, `status="break"`, "")
	if err := <-firstDone; err != nil {
		t.Fatalf("first command: %v", err)
	}

	name2, tx2, _ := fe.nextCommand()
	if name2 != "step_over" {
		t.Fatalf("got %q second, want step_over", name2)
	}
	fe.respond("step_over", tx2, `status="break"`, "")
	if err := <-secondDone; err != nil {
		t.Fatalf("second command: %v", err)
	}
}

// TestConnection_TimeoutIsolatesOnlyItsOwnWaiter verifies a timed-out
// command fails only its own waiter, and a subsequent command still
// succeeds (spec's timeout isolation property).
func TestConnection_TimeoutIsolatesOnlyItsOwnWaiter(t *testing.T) {
	conn, engineSide, _ := newTestConnection(t, 30*time.Millisecond)
	drainEvents(conn)
	fe := newFakeEngine(t, engineSide)

	timedOut := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand("eval", nil, []byte("1+1"))
		timedOut <- err
	}()
	fe.nextCommand() // read it, but never respond

	if err := <-timedOut; err != ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	okCh := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand("step_into", nil, nil)
		okCh <- err
	}()
	_, tx, _ := fe.nextCommand()
	fe.respond("step_into", tx, `status="break"`, "")
	if err := <-okCh; err != nil {
		t.Fatalf("command after timeout failed: %v", err)
	}
}

// TestConnection_CloseFailsPendingWaitersWithConnectionClosed verifies
// closing the connection fails an outstanding command with
// ErrConnectionClosed.
func TestConnection_CloseFailsPendingWaitersWithConnectionClosed(t *testing.T) {
	conn, engineSide, cancel := newTestConnection(t, time.Second)
	defer cancel()
	drainEvents(conn)
	fe := newFakeEngine(t, engineSide)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand("step_into", nil, nil)
		errCh <- err
	}()
	fe.nextCommand()

	conn.Close()

	if err := <-errCh; err != ErrConnectionClosed {
		t.Fatalf("got %v, want ErrConnectionClosed", err)
	}
}

// TestConnection_SendCommandAfterCloseFailsImmediately verifies a command
// issued on an already-closed connection fails without ever reaching the
// wire.
func TestConnection_SendCommandAfterCloseFailsImmediately(t *testing.T) {
	conn, _, cancel := newTestConnection(t, time.Second)
	defer cancel()
	drainEvents(conn)

	conn.Close()
	// Give the read loop a moment to observe the close.
	time.Sleep(20 * time.Millisecond)

	_, err := conn.SendCommand("status", nil, nil)
	if err != ErrConnectionClosed {
		t.Fatalf("got %v, want ErrConnectionClosed", err)
	}
}

// TestFormatCommand_ArgEscapingRoundTrip verifies quoteArg/unquoteArg are
// inverses for values containing whitespace, quotes, and backslashes.
func TestFormatCommand_ArgEscapingRoundTrip(t *testing.T) {
	cases := []string{
		`simple`,
		`has space`,
		`has"quote`,
		`has\backslash`,
		`both " and \`,
	}
	for _, v := range cases {
		quoted := quoteArg(v)
		if needsQuoting(v) && quoted == v {
			t.Errorf("expected %q to be quoted, got unchanged", v)
		}
		if got := unquoteArg(quoted); got != v {
			t.Errorf("round trip: quoteArg(%q) -> unquoteArg -> %q", v, got)
		}
	}
}

// TestFormatCommand_SortsArgsDeterministically verifies argument ordering
// is alphabetical by flag letter, independent of map iteration order.
func TestFormatCommand_SortsArgsDeterministically(t *testing.T) {
	wire := formatCommand("breakpoint_set", 1, map[string]string{"t": "line", "f": "file:///a.php", "n": "10"}, nil)
	want := "breakpoint_set -i 1 -f file:///a.php -n 10 -t line\x00"
	if string(wire) != want {
		t.Errorf("got %q, want %q", wire, want)
	}
}

// TestFormatCommand_AppendsBase64Data verifies command data is appended
// after "--", base64-encoded.
func TestFormatCommand_AppendsBase64Data(t *testing.T) {
	wire := formatCommand("eval", 2, nil, []byte("1+1"))
	want := "eval -i 2 -- " + encodeBase64("1+1") + "\x00"
	if string(wire) != want {
		t.Errorf("got %q, want %q", wire, want)
	}
}
