package dap

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dbgp-mcp/dbgp-mcp/internal/dbgperr"
	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
)

// PendingStore holds breakpoint intents created before any engine
// connected, or while none is currently live. Entries are replayed onto
// every session as it attaches, in insertion order (spec §4.6).
type PendingStore struct {
	mu      sync.Mutex
	seq     int
	entries map[string]*dbgp.PendingBreakpoint
	order   []string

	// applied tracks, per session, which pending ids have already been
	// applied to it, enforcing the "applied exactly once per session"
	// invariant (spec §3).
	applied map[string]map[string]dbgp.AppliedMapping
}

// NewPendingStore returns an empty store.
func NewPendingStore() *PendingStore {
	return &PendingStore{
		entries: make(map[string]*dbgp.PendingBreakpoint),
		applied: make(map[string]map[string]dbgp.AppliedMapping),
	}
}

// Add inserts a new pending breakpoint and returns its local id, prefixed
// "pending_" so callers can never confuse it with an engine-assigned id.
func (p *PendingStore) Add(bp dbgp.PendingBreakpoint) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("pending_%d", p.seq)
	bp.ID = id
	bp.Enabled = true
	bp.CreatedAt = time.Now()
	p.entries[id] = &bp
	p.order = append(p.order, id)
	return id
}

// Get returns a pending entry by id, or nil.
func (p *PendingStore) Get(id string) *dbgp.PendingBreakpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[id]
}

// Remove deletes a pending entry. It does not affect mappings already
// applied to live sessions; those breakpoints remain installed on the
// engine until explicitly removed there.
func (p *PendingStore) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[id]; !ok {
		return false
	}
	delete(p.entries, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// SetEnabled flips a pending entry's enabled flag. Per spec §4.6, updates
// to a pending_* id accept only enable/disable.
func (p *PendingStore) SetEnabled(id string, enabled bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	bp, ok := p.entries[id]
	if !ok {
		return false
	}
	bp.Enabled = enabled
	return true
}

// List returns every pending entry in insertion order.
func (p *PendingStore) List() []dbgp.PendingBreakpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dbgp.PendingBreakpoint, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.entries[id])
	}
	return out
}

// ApplyToSession installs every enabled pending entry on a newly attached
// session, recording an applied mapping for each success. A single
// failure is logged and does not abort subsequent applications, per spec
// §4.6/§7 item 7.
func (p *PendingStore) ApplyToSession(sess *Session) {
	p.mu.Lock()
	ids := make([]string, len(p.order))
	copy(ids, p.order)
	entries := make([]*dbgp.PendingBreakpoint, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, p.entries[id])
	}
	p.mu.Unlock()

	for _, bp := range entries {
		if bp == nil || !bp.Enabled {
			continue
		}
		p.applyOne(sess, bp)
	}
}

func (p *PendingStore) applyOne(sess *Session, bp *dbgp.PendingBreakpoint) {
	if p.alreadyApplied(bp.ID, sess.ID) {
		return
	}

	var engineID string
	var err error
	switch bp.Type {
	case dbgp.BreakpointException:
		var result dbgp.Breakpoint
		result, err = sess.SetExceptionBreakpoint(bp.Exception)
		engineID = result.ID
	case dbgp.BreakpointCall:
		var result dbgp.Breakpoint
		result, err = sess.SetCallBreakpoint(bp.Function)
		engineID = result.ID
	default:
		var result dbgp.Breakpoint
		result, err = sess.SetLineBreakpoint(bp.Filename, bp.Lineno, bp.Expression, false)
		engineID = result.ID
	}

	if err != nil {
		log.Printf("dap: pending breakpoint %s failed to apply to session %s: %v",
			bp.ID, sess.ID, dbgperr.PendingApplyFailed(bp.ID, sess.ID, err))
		return
	}

	if bp.HitValue != 0 || bp.HitCondition != "" {
		hv := bp.HitValue
		hc := bp.HitCondition
		if err := sess.UpdateBreakpoint(engineID, nil, &hv, &hc); err != nil {
			log.Printf("dap: pending breakpoint %s: hit-condition replay failed on session %s: %v", bp.ID, sess.ID, err)
		}
	}

	p.recordApplied(bp.ID, sess.ID, engineID)
}

func (p *PendingStore) alreadyApplied(pendingID, sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.applied[sessionID]; ok {
		_, done := m[pendingID]
		return done
	}
	return false
}

func (p *PendingStore) recordApplied(pendingID, sessionID, engineID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applied[sessionID] == nil {
		p.applied[sessionID] = make(map[string]dbgp.AppliedMapping)
	}
	p.applied[sessionID][pendingID] = dbgp.AppliedMapping{
		PendingID:          pendingID,
		SessionID:          sessionID,
		EngineBreakpointID: engineID,
	}
}

// AppliedMappings returns every mapping recorded for a session.
func (p *PendingStore) AppliedMappings(sessionID string) []dbgp.AppliedMapping {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.applied[sessionID]
	if !ok {
		return nil
	}
	out := make([]dbgp.AppliedMapping, 0, len(m))
	for _, mapping := range m {
		out = append(out, mapping)
	}
	return out
}

// ClearSession drops a session's applied mappings when it ends. Pending
// entries themselves remain, to be re-applied to any future session
// (spec §4.6's per-session cleanup rule).
func (p *PendingStore) ClearSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.applied, sessionID)
}
