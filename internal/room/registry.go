// Package room holds the in-memory membership map for active calls.
// State lives for the process lifetime only and is rebuilt from scratch
// on restart.
package room

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/YavorPtv/MedLink/internal/domain"
)

// Member is the registry-facing side of a session. The registry never
// touches transport resources beyond Deliver.
type Member interface {
	ID() string
	Deliver(payload []byte) error
}

// DeliveryResult reports fan-out of one broadcast.
type DeliveryResult struct {
	Delivered int
	Failed    int
}

type room struct {
	mu      sync.RWMutex
	members map[string]Member
}

// Registry maps a meeting id to the set of connected sessions.
// All mutation goes through Join, Leave and Broadcast.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.MeetingID]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.MeetingID]*room)}
}

// Join adds the member to the meeting's room, creating the room on first
// join. Joining a room the member is already in is a no-op. The registry
// lock is held across the insertion so a concurrent Leave cannot reap
// the room between lookup and insert, stranding the member in an
// orphaned room.
func (reg *Registry) Join(meetingID domain.MeetingID, m Member) {
	reg.mu.Lock()
	r, ok := reg.rooms[meetingID]
	if !ok {
		r = &room{members: make(map[string]Member)}
		reg.rooms[meetingID] = r
	}
	r.mu.Lock()
	r.members[m.ID()] = m
	count := len(r.members)
	r.mu.Unlock()
	reg.mu.Unlock()

	log.Info().Str("module", "room").Str("meeting", string(meetingID)).Str("member", m.ID()).Int("count", count).Msg("member joined")
}

// Leave removes the member from every room it appears in, so a stale
// membership can never leak. Leaving when not a member is a no-op, and a
// room whose membership drops to zero is reaped.
func (reg *Registry) Leave(m Member) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for meetingID, r := range reg.rooms {
		r.mu.Lock()
		if _, ok := r.members[m.ID()]; !ok {
			r.mu.Unlock()
			continue
		}
		delete(r.members, m.ID())
		count := len(r.members)
		r.mu.Unlock()

		log.Info().Str("module", "room").Str("meeting", string(meetingID)).Str("member", m.ID()).Int("count", count).Msg("member left")
		if count == 0 {
			delete(reg.rooms, meetingID)
			log.Info().Str("module", "room").Str("meeting", string(meetingID)).Msg("room reaped")
		}
	}
}

// Broadcast delivers payload to every member of the meeting except
// excludeID. A member whose delivery fails is logged and skipped; the
// rest of the fan-out proceeds. Unknown meetings are a no-op.
func (reg *Registry) Broadcast(meetingID domain.MeetingID, payload []byte, excludeID string) DeliveryResult {
	reg.mu.RLock()
	r, ok := reg.rooms[meetingID]
	reg.mu.RUnlock()

	res := DeliveryResult{}
	if !ok {
		return res
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, m := range r.members {
		if id == excludeID {
			continue
		}
		if err := m.Deliver(payload); err != nil {
			res.Failed++
			log.Warn().Err(err).Str("module", "room").Str("meeting", string(meetingID)).Str("member", id).Msg("delivery failed")
			continue
		}
		res.Delivered++
	}
	return res
}

// MemberCount reports the size of one room, zero if it does not exist.
func (reg *Registry) MemberCount(meetingID domain.MeetingID) int {
	reg.mu.RLock()
	r, ok := reg.rooms[meetingID]
	reg.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Stats reports total rooms and members across the registry.
func (reg *Registry) Stats() (rooms, members int) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rooms = len(reg.rooms)
	for _, r := range reg.rooms {
		r.mu.RLock()
		members += len(r.members)
		r.mu.RUnlock()
	}
	return rooms, members
}
