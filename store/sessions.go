// Package store implements the fixed-capacity session and challenge tables.
//
// Neither table locks on its own: both are guarded by the single coarse
// mutex owned by the auth service, which holds it across every multi-step
// operation (classify+renew, consume+create, scan+evict). Callers outside
// the service must not reach these types.
package store

import (
	"time"

	"github.com/blackhole-dns/warden/core"
	"github.com/blackhole-dns/warden/internal/credential"
)

// SessionTable is the pool of authenticated sessions. Slot indices double
// as the numeric session identifiers reported by the session list.
type SessionTable struct {
	slots [core.MaxSessions]core.SessionSlot
}

// FindValid returns the slot index holding a live session bound to exactly
// this remote address and SID. Address binding is deliberate: a stolen SID
// presented from another network origin must not match.
func (t *SessionTable) FindValid(now time.Time, remoteAddr, sid string) (int, bool) {
	if sid == "" {
		return -1, false
	}
	for i := range t.slots {
		s := &t.slots[i]
		if s.Valid(now) && s.RemoteAddr == remoteAddr && s.SID == sid {
			return i, true
		}
	}
	return -1, false
}

// Renew pushes the session's expiry forward, implementing the sliding window.
func (t *SessionTable) Renew(id int, now time.Time, timeout time.Duration) {
	if id < 0 || id >= core.MaxSessions {
		return
	}
	t.slots[id].ValidUntil = now.Add(timeout)
}

// Create claims a free slot for a freshly authenticated client and mints its
// SID. Expired slots are reclaimed first; there is no background sweeper, so
// this lazy pass is the only garbage collection the table gets. Returns
// core.ErrNoFreeSlot when every slot holds a live session.
func (t *SessionTable) Create(now time.Time, timeout time.Duration, remoteAddr, userAgent string) (int, string, error) {
	for i := range t.slots {
		if t.slots[i].InUse && t.slots[i].ValidUntil.Before(now) {
			t.Delete(i)
		}
	}

	for i := range t.slots {
		if t.slots[i].InUse {
			continue
		}
		sid, err := credential.NewSID()
		if err != nil {
			return -1, "", err
		}
		t.slots[i] = core.SessionSlot{
			InUse:      true,
			LoginAt:    now,
			ValidUntil: now.Add(timeout),
			RemoteAddr: truncate(remoteAddr, core.RemoteAddrMax),
			UserAgent:  truncate(userAgent, core.UserAgentMax),
			SID:        sid,
		}
		return i, sid, nil
	}

	return -1, "", core.ErrNoFreeSlot
}

// Delete frees a slot and zeroes every identifying field so stale SIDs and
// addresses cannot leak through a later enumeration.
func (t *SessionTable) Delete(id int) {
	if id < 0 || id >= core.MaxSessions {
		return
	}
	t.slots[id] = core.SessionSlot{}
}

// DeleteAll frees every slot.
func (t *SessionTable) DeleteAll() {
	for i := range t.slots {
		t.Delete(i)
	}
}

// Get returns a copy of the slot.
func (t *SessionTable) Get(id int) (core.SessionSlot, bool) {
	if id < 0 || id >= core.MaxSessions || !t.slots[id].InUse {
		return core.SessionSlot{}, false
	}
	return t.slots[id], true
}

// All snapshots every in-use slot in index order. currentID marks the
// caller's own session (-1 for none). LastActive is derived from the expiry
// and the sliding timeout rather than stored separately.
func (t *SessionTable) All(now time.Time, timeout time.Duration, currentID int) []core.SessionInfo {
	sessions := make([]core.SessionInfo, 0, core.MaxSessions)
	for i := range t.slots {
		s := &t.slots[i]
		if !s.InUse {
			continue
		}
		sessions = append(sessions, core.SessionInfo{
			ID:             i,
			CurrentSession: i == currentID,
			Valid:          s.Valid(now),
			LoginAt:        s.LoginAt.Unix(),
			LastActive:     s.ValidUntil.Add(-timeout).Unix(),
			ValidUntil:     s.ValidUntil.Unix(),
			RemoteAddr:     s.RemoteAddr,
			UserAgent:      s.UserAgent,
		})
	}
	return sessions
}

// truncate bounds a string to the table's field capacity. Truncation, not
// rejection: the table stores whatever fits and drops the rest.
func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
