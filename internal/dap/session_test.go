package dap

import (
	"testing"
	"time"

	"github.com/dbgp-mcp/dbgp-mcp/internal/pathurl"
)

// TestSession_PathMapperTranslatesFilenamesToAndFromTheEngine verifies a
// configured pathurl.Mapper rewrites a container-side filename before it
// reaches the wire, and rewrites an engine-reported location back to the
// container's view when tracking status.
func TestSession_PathMapperTranslatesFilenamesToAndFromTheEngine(t *testing.T) {
	sess, engineSide, cancel := newConnectedTestSession(t, time.Second)
	defer cancel()
	sess.SetPathMapper(pathurl.NewPrefixMapper("/app", "/home/dev/project"))
	fe := newFakeEngine(t, engineSide)

	bpCh := make(chan error, 1)
	go func() {
		_, err := sess.SetLineBreakpoint("/app/src/index.php", 10, "", false)
		bpCh <- err
	}()

	_, tx, raw := fe.nextCommand()
	if !containsAll(raw, "-f", "file:///home/dev/project/src/index.php") {
		t.Fatalf("expected the host-mapped path on the wire, got %q", raw)
	}
	fe.respond("breakpoint_set", tx, `success="1"`,
		`<breakpoint id="bp1" resolved="1"/>`)
	if err := <-bpCh; err != nil {
		t.Fatalf("SetLineBreakpoint: %v", err)
	}

	stepCh := make(chan error, 1)
	go func() {
		_, err := sess.StepInto()
		stepCh <- err
	}()
	_, tx2, _ := fe.nextCommand()
	fe.respond("step_into", tx2, `status="break" reason="ok"`,
		`<xdebug:message filename="file:///home/dev/project/src/index.php" lineno="10"/>`)
	if err := <-stepCh; err != nil {
		t.Fatalf("StepInto: %v", err)
	}

	snap := sess.Snapshot()
	if snap.CurrentFile != "file:///app/src/index.php" {
		t.Errorf("CurrentFile = %q, want the container-mapped path", snap.CurrentFile)
	}
}
