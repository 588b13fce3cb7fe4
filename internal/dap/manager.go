package dap

import (
	"context"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dbgp-mcp/dbgp-mcp/internal/dbgperr"
	"github.com/dbgp-mcp/dbgp-mcp/internal/pathurl"
	"github.com/dbgp-mcp/dbgp-mcp/internal/version"
	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
	"github.com/google/uuid"
)

// ManagerEventKind is the external event vocabulary the manager fans out,
// per spec §6's stream/event sink contract.
type ManagerEventKind int

const (
	EventSessionCreated ManagerEventKind = iota
	EventSessionEnded
	EventSessionStateChange
	EventOutput
)

// ManagerEvent carries one fanned-out event.
type ManagerEvent struct {
	Kind        ManagerEventKind
	SessionID   string
	StateChange *StateChange
	Stream      *dbgp.Stream
}

// SessionManager accepts inbound engine connections, owns the set of live
// sessions, tracks the active session, and replays pending breakpoints onto
// each newly attached session (spec §4.5).
type SessionManager struct {
	listenHost     string
	listenPort     int
	commandTimeout time.Duration
	limits         Limits
	maxSessions    int
	pathMapper     pathurl.Mapper

	pending *PendingStore

	mu        sync.RWMutex
	sessions  map[string]*Session
	order     []string // session ids in creation order
	activeID  string

	events chan ManagerEvent

	ctx    context.Context
	cancel context.CancelFunc
	ln     net.Listener
	wg     sync.WaitGroup
}

// NewSessionManager constructs a manager that has not yet started accepting
// connections; call Serve to start the accept loop.
func NewSessionManager(listenHost string, listenPort int, commandTimeout time.Duration, limits Limits, maxSessions int) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		listenHost:     listenHost,
		listenPort:     listenPort,
		commandTimeout: commandTimeout,
		limits:         limits,
		maxSessions:    maxSessions,
		pathMapper:     pathurl.IdentityMapper{},
		pending:        NewPendingStore(),
		sessions:       make(map[string]*Session),
		events:         make(chan ManagerEvent, 64),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Events returns the channel of fanned-out session/output events.
func (m *SessionManager) Events() <-chan ManagerEvent {
	return m.events
}

// PendingStore exposes the manager's pending-breakpoint store to the tool
// layer, per spec §4.6's routing contract.
func (m *SessionManager) PendingStore() *PendingStore {
	return m.pending
}

// SetPathMapper installs the container/host path translator applied to
// every session the manager creates from this point on, per spec §6's
// external path-mapping collaborator contract (internal/pathurl).
func (m *SessionManager) SetPathMapper(mapper pathurl.Mapper) {
	m.mu.Lock()
	m.pathMapper = mapper
	m.mu.Unlock()
}

// Serve binds the listener and runs the accept loop until Shutdown is
// called or the listener errors. It returns the bind error, if any, which
// per spec §6 is the one failure fatal to the process.
func (m *SessionManager) Serve() error {
	addr := net.JoinHostPort(m.listenHost, strconv.Itoa(m.listenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return dbgperr.ListenFailed(addr, err)
	}
	m.ln = ln
	log.Printf("dap: listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-m.ctx.Done():
				return nil
			default:
				log.Printf("dap: accept error: %v", err)
				return nil
			}
		}
		m.wg.Add(1)
		go m.handleAccepted(conn)
	}
}

func (m *SessionManager) handleAccepted(conn net.Conn) {
	defer m.wg.Done()

	m.mu.RLock()
	atCapacity := m.maxSessions > 0 && len(m.sessions) >= m.maxSessions
	m.mu.RUnlock()
	if atCapacity {
		log.Printf("dap: rejecting connection from %s: session limit reached", conn.RemoteAddr())
		conn.Close()
		return
	}

	dapConn := NewConnection(conn, m.commandTimeout)
	connCtx, connCancel := context.WithCancel(m.ctx)
	defer connCancel()

	go dapConn.Run(connCtx)

	var sess *Session
	for ev := range dapConn.Events() {
		switch ev.Kind {
		case EventInit:
			sess = NewSession(uuid.NewString(), dapConn, m.limits)
			m.mu.RLock()
			sess.SetPathMapper(m.pathMapper)
			m.mu.RUnlock()
			if init := sess.InitRecord(); init != nil {
				if err := version.CheckProtocolCompatibility(init.ProtocolVersion); err != nil {
					log.Printf("dap: session %s: %v", sess.ID, err)
				}
			}
			sess.Initialize()
			m.registerSession(sess)
			go m.pumpStateChanges(sess)

		case EventStream:
			if sess != nil && ev.Stream != nil {
				sess.BufferOutput(*ev.Stream)
				m.emit(ManagerEvent{Kind: EventOutput, SessionID: sess.ID, Stream: ev.Stream})
			}

		case EventError:
			log.Printf("dap: connection error: %v", ev.Err)

		case EventClose:
			if sess != nil {
				sess.markClosed()
				m.removeSession(sess.ID)
			}
			return
		}
	}
}

func (m *SessionManager) pumpStateChanges(sess *Session) {
	for sc := range sess.StateChanges() {
		scCopy := sc
		m.emit(ManagerEvent{Kind: EventSessionStateChange, SessionID: sess.ID, StateChange: &scCopy})
	}
}

func (m *SessionManager) registerSession(sess *Session) {
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.order = append(m.order, sess.ID)
	m.mu.Unlock()

	m.pending.ApplyToSession(sess)

	m.emit(ManagerEvent{Kind: EventSessionCreated, SessionID: sess.ID})
}

func (m *SessionManager) removeSession(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.activeID == id {
		m.activeID = ""
	}
	m.mu.Unlock()

	m.pending.ClearSession(id)
	m.emit(ManagerEvent{Kind: EventSessionEnded, SessionID: id})
}

func (m *SessionManager) emit(ev ManagerEvent) {
	select {
	case m.events <- ev:
	default:
		log.Printf("dap: manager event channel full, dropping %v event", ev.Kind)
	}
}

// GetSession looks up a session by id.
func (m *SessionManager) GetSession(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, dbgperr.SessionNotFound(id)
	}
	return sess, nil
}

// ListSessions returns every live session's snapshot, in creation order.
func (m *SessionManager) ListSessions() []dbgp.SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dbgp.SessionInfo, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id].Snapshot())
	}
	return out
}

// SetActive overrides election with an explicit session id. It fails if the
// id does not name a live session, per spec §4.5.
func (m *SessionManager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return dbgperr.SessionNotFound(id)
	}
	m.activeID = id
	return nil
}

// ActiveSession implements the election rules of spec §4.5: an explicit,
// still-live active_id wins; otherwise the earliest-created session in
// break status; otherwise the earliest-created session; otherwise none.
func (m *SessionManager) ActiveSession() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID != "" {
		if sess, ok := m.sessions[m.activeID]; ok {
			return sess, nil
		}
		m.activeID = ""
	}

	if len(m.order) == 0 {
		return nil, dbgperr.NoActiveSession()
	}

	for _, id := range m.order {
		if sess := m.sessions[id]; sess.Snapshot().Status == dbgp.StatusBreak {
			m.activeID = id
			return sess, nil
		}
	}

	id := m.order[0]
	m.activeID = id
	return m.sessions[id], nil
}

// CloseSession closes the connection underlying a session; removal and
// re-election happen via the connection's close event.
func (m *SessionManager) CloseSession(id string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}
	return sess.Close()
}

// CloseAll closes every live session.
func (m *SessionManager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if sess, err := m.GetSession(id); err == nil {
			sess.Close()
		}
	}
}

// FindByFilename returns sessions whose init file_uri or current file
// contains the given substring.
func (m *SessionManager) FindByFilename(substr string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, id := range m.order {
		sess := m.sessions[id]
		snap := sess.Snapshot()
		if strings.Contains(snap.CurrentFile, substr) {
			out = append(out, sess)
			continue
		}
		if snap.Init != nil && strings.Contains(snap.Init.FileURI, substr) {
			out = append(out, sess)
		}
	}
	return out
}

// FindByIDEKey returns sessions whose init record carries the given IDE key.
func (m *SessionManager) FindByIDEKey(ideKey string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, id := range m.order {
		sess := m.sessions[id]
		if init := sess.InitRecord(); init != nil && init.IDEKey == ideKey {
			out = append(out, sess)
		}
	}
	return out
}

// Shutdown stops accepting new connections and closes every live session,
// per spec §5's release order: close sessions first, then stop accepting.
func (m *SessionManager) Shutdown() {
	m.CloseAll()
	m.cancel()
	if m.ln != nil {
		m.ln.Close()
	}
	m.wg.Wait()
}
