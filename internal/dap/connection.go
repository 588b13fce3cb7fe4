package dap

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
)

// Sentinel errors a waiter can observe, per spec §7.
var (
	ErrTimeout          = fmt.Errorf("dap: command timed out")
	ErrConnectionClosed = fmt.Errorf("dap: connection closed")
)

// pendingCmd is a queued-or-outstanding command waiting for its response.
type pendingCmd struct {
	txID   int
	wire   []byte
	respCh chan cmdResult
	timer  *time.Timer
}

type cmdResult struct {
	resp *dbgp.Response
	err  error
}

// ConnEventKind is the event vocabulary a Connection emits, per spec §4.3.
type ConnEventKind int

const (
	EventInit ConnEventKind = iota
	EventResponse
	EventStream
	EventError
	EventClose
)

// ConnEvent carries one emitted event and its payload.
type ConnEvent struct {
	Kind     ConnEventKind
	Init     *dbgp.InitRecord
	Response *dbgp.Response
	Stream   *dbgp.Stream
	Err      error
}

// Connection owns one socket to one engine. It frames, decodes, and
// serializes DBGp messages, assigns transaction ids, and enforces the
// protocol's single-outstanding-command rule: an additional command issued
// while one is outstanding is queued in FIFO order and only dequeued once
// the in-flight response has been delivered and its waiter has run (spec
// §4.3, §5 — the serialization is response-driven, not write-driven).
type Connection struct {
	conn   net.Conn
	codec  *FrameCodec
	events chan ConnEvent

	commandTimeout time.Duration

	mu         sync.Mutex
	txCounter  int
	outstanding *pendingCmd
	queue      []*pendingCmd
	closed     bool

	initRecord *dbgp.InitRecord

	wg sync.WaitGroup
}

// NewConnection wraps an already-accepted socket. The caller must call Run
// to start the read loop.
func NewConnection(conn net.Conn, commandTimeout time.Duration) *Connection {
	return &Connection{
		conn:           conn,
		codec:          NewFrameCodec(),
		events:         make(chan ConnEvent, 32),
		commandTimeout: commandTimeout,
	}
}

// Events returns the channel of emitted connection events. The channel is
// closed after the EventClose event has been delivered.
func (c *Connection) Events() <-chan ConnEvent {
	return c.events
}

// InitRecord returns the cached init record, or nil before it has arrived.
func (c *Connection) InitRecord() *dbgp.InitRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initRecord
}

// Run drives the read loop until the socket closes or ctx is cancelled. It
// blocks; callers should run it in its own goroutine.
func (c *Connection) Run(ctx context.Context) {
	defer c.closeInternal(nil)

	reader := bufio.NewReader(c.conn)
	buf := make([]byte, 4096)

	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			frames := c.codec.Feed(buf[:n])
			for _, f := range frames {
				c.handleFrame(f)
			}
		}
		if err != nil {
			c.closeInternal(err)
			return
		}
	}
}

// handleFrame decodes one XML payload and routes it by root element, per
// spec §4.3.
func (c *Connection) handleFrame(payload string) {
	root, err := decodeXML(payload)
	if err != nil {
		c.emit(ConnEvent{Kind: EventError, Err: err})
		return
	}

	switch root.Name {
	case "init":
		rec := parseInit(root)
		c.mu.Lock()
		c.initRecord = rec
		c.mu.Unlock()
		c.emit(ConnEvent{Kind: EventInit, Init: rec})

	case "response":
		resp := parseResponse(root)
		c.completeWaiter(resp)
		c.emit(ConnEvent{Kind: EventResponse, Response: resp})
		c.dequeueNext()

	case "stream":
		c.emit(ConnEvent{Kind: EventStream, Stream: parseStream(root)})

	default:
		c.emit(ConnEvent{Kind: EventError, Err: fmt.Errorf("dap: unexpected root element %q", root.Name)})
	}
}

func (c *Connection) emit(ev ConnEvent) {
	select {
	case c.events <- ev:
	default:
		log.Printf("dap: event channel full, dropping %v event", ev.Kind)
	}
}

// completeWaiter resolves the outstanding command if its transaction id
// matches, per spec's transaction-correlation invariant: a response
// completes exactly the waiter it is addressed to, and no other.
func (c *Connection) completeWaiter(resp *dbgp.Response) {
	c.mu.Lock()
	cmd := c.outstanding
	if cmd == nil || cmd.txID != resp.TransactionID {
		c.mu.Unlock()
		return
	}
	c.outstanding = nil
	c.mu.Unlock()

	if cmd.timer != nil {
		cmd.timer.Stop()
	}
	cmd.respCh <- cmdResult{resp: resp}
}

// dequeueNext starts the next queued command, if any, now that the
// previous response has been fully delivered. This is the response-driven
// dequeue spec §9 calls out explicitly: it must not be modeled as a mutex
// around the socket write.
func (c *Connection) dequeueNext() {
	c.mu.Lock()
	if c.outstanding != nil || len(c.queue) == 0 || c.closed {
		c.mu.Unlock()
		return
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	c.outstanding = next
	c.mu.Unlock()

	c.writeAndArm(next)
}

func (c *Connection) writeAndArm(cmd *pendingCmd) {
	if _, err := c.conn.Write(cmd.wire); err != nil {
		c.mu.Lock()
		if c.outstanding == cmd {
			c.outstanding = nil
		}
		c.mu.Unlock()
		cmd.respCh <- cmdResult{err: err}
		return
	}
	cmd.timer = time.AfterFunc(c.commandTimeout, func() {
		c.timeoutCommand(cmd)
	})
}

func (c *Connection) timeoutCommand(cmd *pendingCmd) {
	c.mu.Lock()
	if c.outstanding != cmd {
		c.mu.Unlock()
		return
	}
	c.outstanding = nil
	c.mu.Unlock()

	select {
	case cmd.respCh <- cmdResult{err: ErrTimeout}:
	default:
	}
	// Draining the queue after a timeout keeps the single-outstanding
	// invariant intact: the command that timed out is gone, so the next
	// queued command (if any) can proceed.
	c.dequeueNext()
}

// SendCommand allocates a transaction id, formats the command line per spec
// §4.3/§6, and either sends it immediately (if the connection is idle) or
// enqueues it in FIFO order. It blocks until the matching response arrives,
// the command times out, or the connection closes.
func (c *Connection) SendCommand(cmdName string, args map[string]string, data []byte) (*dbgp.Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.txCounter++
	txID := c.txCounter
	wire := formatCommand(cmdName, txID, args, data)

	cmd := &pendingCmd{
		txID:   txID,
		wire:   wire,
		respCh: make(chan cmdResult, 1),
	}

	if c.outstanding == nil {
		c.outstanding = cmd
		c.mu.Unlock()
		c.writeAndArm(cmd)
	} else {
		c.queue = append(c.queue, cmd)
		c.mu.Unlock()
	}

	res := <-cmd.respCh
	return res.resp, res.err
}

// Close closes the underlying socket, which drives the read loop to exit
// and fail every pending waiter with ErrConnectionClosed.
func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) closeInternal(readErr error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	outstanding := c.outstanding
	c.outstanding = nil
	queued := c.queue
	c.queue = nil
	c.mu.Unlock()

	if outstanding != nil {
		if outstanding.timer != nil {
			outstanding.timer.Stop()
		}
		select {
		case outstanding.respCh <- cmdResult{err: ErrConnectionClosed}:
		default:
		}
	}
	for _, cmd := range queued {
		select {
		case cmd.respCh <- cmdResult{err: ErrConnectionClosed}:
		default:
		}
	}

	c.emit(ConnEvent{Kind: EventClose, Err: readErr})
	close(c.events)
}

// formatCommand renders "cmd -i <tx> -<k> <v> ... [-- <base64>]\0" per the
// escaping rule in spec §4.3/§6: values containing whitespace, a double
// quote, or a backslash are wrapped in double quotes, with backslashes and
// quotes backslash-escaped inside.
func formatCommand(cmdName string, txID int, args map[string]string, data []byte) []byte {
	var sb strings.Builder
	sb.WriteString(cmdName)
	sb.WriteString(" -i ")
	sb.WriteString(strconv.Itoa(txID))

	for _, k := range sortedKeys(args) {
		sb.WriteString(" -")
		sb.WriteString(k)
		sb.WriteString(" ")
		sb.WriteString(quoteArg(args[k]))
	}

	if data != nil {
		sb.WriteString(" -- ")
		sb.WriteString(encodeBase64(string(data)))
	}

	sb.WriteByte(0)
	return []byte(sb.String())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// quoteArg quotes a value if it contains whitespace, a double quote, or a
// backslash, backslash-escaping inner backslashes and quotes. Values with
// none of those characters pass through unquoted.
func quoteArg(v string) string {
	if !needsQuoting(v) {
		return v
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range v {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

func needsQuoting(v string) bool {
	for _, r := range v {
		if r == ' ' || r == '\t' || r == '"' || r == '\\' {
			return true
		}
	}
	return false
}

// unquoteArg reverses quoteArg, for testing the escaping round-trip (spec
// §8): given an already-quoted token, returns the original value.
func unquoteArg(v string) string {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}
	inner := v[1 : len(v)-1]
	var sb strings.Builder
	escaped := false
	for _, r := range inner {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
