package rendezvous

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/vock/wire"
)

type room struct {
	created time.Time
	members map[string]member
}

type member struct {
	addr wire.Addr
	seen time.Time
}

// rooms is the in-memory room table.
type rooms struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	table map[string]*room
}

func newRooms(ttl time.Duration) *rooms {
	return &rooms{
		ttl:   ttl,
		now:   time.Now,
		table: make(map[string]*room),
	}
}

// create makes a room with a fresh id whose first member is owner.
func (r *rooms) create(owner wire.Addr) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.table[id] = &room{
		created: now,
		members: map[string]member{owner.Key(): {addr: owner, seen: now}},
	}
	return id
}

// join adds addr to room id, creating the room if needed, and returns the
// other members.
func (r *rooms) join(id string, addr wire.Addr) []wire.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.table[id]
	if !ok {
		rm = &room{created: r.now(), members: make(map[string]member)}
		r.table[id] = rm
	}
	rm.members[addr.Key()] = member{addr: addr, seen: r.now()}
	return rm.others(addr)
}

// info returns the members of room id other than addr, refreshing addr if
// it is a member.
func (r *rooms) info(id string, addr wire.Addr) ([]wire.Addr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.table[id]
	if !ok {
		return nil, false
	}
	if m, ok := rm.members[addr.Key()]; ok {
		m.seen = r.now()
		rm.members[addr.Key()] = m
	}
	return rm.others(addr), true
}

// canRelay reports whether from and to are both members of room id.
func (r *rooms) canRelay(id string, from, to wire.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.table[id]
	if !ok {
		return false
	}
	sender, ok := rm.members[from.Key()]
	if !ok {
		return false
	}
	if _, ok := rm.members[to.Key()]; !ok {
		return false
	}
	sender.seen = r.now()
	rm.members[from.Key()] = sender
	return true
}

// expire drops members not seen within the TTL and rooms left empty for
// longer than the TTL.
func (r *rooms) expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, rm := range r.table {
		for key, m := range rm.members {
			if now.Sub(m.seen) > r.ttl {
				delete(rm.members, key)
			}
		}
		if len(rm.members) == 0 && now.Sub(rm.created) > r.ttl {
			delete(r.table, id)
			removed++
		}
	}
	return removed
}

func (r *rooms) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}

func (rm *room) others(self wire.Addr) []wire.Addr {
	out := make([]wire.Addr, 0, len(rm.members))
	for key, m := range rm.members {
		if key != self.Key() {
			out = append(out, m.addr)
		}
	}
	return out
}
