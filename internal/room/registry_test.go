package room

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMember struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	err      error
}

func (m *mockMember) ID() string { return m.id }

func (m *mockMember) Deliver(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.received = append(m.received, payload)
	return nil
}

func (m *mockMember) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

func TestRegistry_Broadcast(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Registry) (sender *mockMember, others []*mockMember)
		exclude bool
		want    map[string]int
	}{
		{
			name: "delivers to everyone but the sender",
			setup: func(reg *Registry) (*mockMember, []*mockMember) {
				a := &mockMember{id: "a"}
				b := &mockMember{id: "b"}
				c := &mockMember{id: "c"}
				reg.Join("room-1", a)
				reg.Join("room-1", b)
				reg.Join("room-1", c)
				return a, []*mockMember{b, c}
			},
			exclude: true,
			want:    map[string]int{"a": 0, "b": 1, "c": 1},
		},
		{
			name: "no cross-room delivery",
			setup: func(reg *Registry) (*mockMember, []*mockMember) {
				a := &mockMember{id: "a"}
				b := &mockMember{id: "b"}
				reg.Join("room-1", a)
				reg.Join("room-2", b)
				return a, []*mockMember{b}
			},
			exclude: true,
			want:    map[string]int{"b": 0},
		},
		{
			name: "without exclusion the sender receives too",
			setup: func(reg *Registry) (*mockMember, []*mockMember) {
				a := &mockMember{id: "a"}
				b := &mockMember{id: "b"}
				reg.Join("room-1", a)
				reg.Join("room-1", b)
				return a, []*mockMember{b}
			},
			want: map[string]int{"a": 1, "b": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			sender, others := tt.setup(reg)

			exclude := ""
			if tt.exclude {
				exclude = sender.id
			}
			reg.Broadcast("room-1", []byte("msg"), exclude)

			all := append([]*mockMember{sender}, others...)
			for _, m := range all {
				if want, ok := tt.want[m.id]; ok {
					assert.Equal(t, want, m.count(), "member %s", m.id)
				}
			}
		})
	}
}

func TestRegistry_BroadcastUnknownMeeting(t *testing.T) {
	reg := NewRegistry()
	res := reg.Broadcast("nope", []byte("msg"), "")
	assert.Zero(t, res.Delivered)
	assert.Zero(t, res.Failed)
}

func TestRegistry_DeliveryFailureDoesNotAbortFanout(t *testing.T) {
	reg := NewRegistry()
	broken := &mockMember{id: "broken", err: errors.New("gone")}
	healthy1 := &mockMember{id: "h1"}
	healthy2 := &mockMember{id: "h2"}
	reg.Join("room-1", broken)
	reg.Join("room-1", healthy1)
	reg.Join("room-1", healthy2)

	res := reg.Broadcast("room-1", []byte("msg"), "")

	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, healthy1.count())
	assert.Equal(t, 1, healthy2.count())
}

func TestRegistry_JoinIdempotent(t *testing.T) {
	reg := NewRegistry()
	m := &mockMember{id: "a"}
	reg.Join("room-1", m)
	reg.Join("room-1", m)

	rooms, members := reg.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, members)
}

func TestRegistry_LeaveIdempotentAndReaps(t *testing.T) {
	reg := NewRegistry()
	m := &mockMember{id: "a"}
	reg.Join("room-1", m)

	rooms, _ := reg.Stats()
	require.Equal(t, 1, rooms)

	reg.Leave(m)
	rooms, members := reg.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, members)

	// Second leave must be a silent no-op.
	reg.Leave(m)
	rooms, members = reg.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, members)
}

func TestRegistry_LeaveNeverMember(t *testing.T) {
	reg := NewRegistry()
	reg.Join("room-1", &mockMember{id: "a"})

	reg.Leave(&mockMember{id: "stranger"})

	rooms, members := reg.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, members)
}

func TestRegistry_MemberCount(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 0, reg.MemberCount("room-1"))
	reg.Join("room-1", &mockMember{id: "a"})
	reg.Join("room-1", &mockMember{id: "b"})
	assert.Equal(t, 2, reg.MemberCount("room-1"))
}

func TestRegistry_ConcurrentBroadcastAndLeave(t *testing.T) {
	reg := NewRegistry()
	stable := &mockMember{id: "stable"}
	reg.Join("room-1", stable)
	for i := 0; i < 8; i++ {
		reg.Join("room-1", &mockMember{id: string(rune('a' + i))})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		leaver := &mockMember{id: string(rune('a' + i))}
		go func() {
			defer wg.Done()
			reg.Leave(leaver)
		}()
		go func() {
			defer wg.Done()
			reg.Broadcast("room-1", []byte("msg"), "")
		}()
	}
	wg.Wait()

	// The stable member saw every broadcast; leavers never break fan-out.
	assert.Equal(t, 8, stable.count())
}

func TestRegistry_JoinVisibleDespiteConcurrentReap(t *testing.T) {
	reg := NewRegistry()
	const iters = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		churn := &mockMember{id: "churn"}
		for i := 0; i < iters; i++ {
			reg.Join("room-1", churn)
			reg.Leave(churn)
		}
	}()

	// A member who just joined must be reachable even when the churner's
	// leave reaps the room mid-join.
	stable := &mockMember{id: "stable"}
	for i := 0; i < iters; i++ {
		reg.Join("room-1", stable)
		res := reg.Broadcast("room-1", []byte("msg"), "churn")
		require.Equal(t, 1, res.Delivered, "iteration %d: joined member unreachable", i)
		reg.Leave(stable)
	}
	wg.Wait()

	rooms, members := reg.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, members)
}
