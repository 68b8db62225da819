package matchmaking

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

func newTestMatchmaker(t *testing.T) *Matchmaker {
	return New(
		WithLogger(zaptest.NewLogger(t)),
		WithIDGenerator(&Sequential{Prefix: "room-"}),
		WithInvariantChecks(),
	)
}

func TestEvenQueueDrainsCompletely(t *testing.T) {
	for _, n := range []int{2, 4, 10, 32} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			// Fill the queue directly so that Register's own drain does not run.
			m := newTestMatchmaker(t)
			recs := make(map[string]*recorder)
			for i := 0; i < n; i++ {
				u, rec := newTestUser(fmt.Sprintf("u%d", i))
				recs[u.ID] = rec
				m.registry.Add(u)
				m.registry.Enqueue(u.ID)
			}

			assert.Equal(t, n/2, m.Drain())
			assert.Empty(t, m.Queued())
			assert.Equal(t, n/2, m.Stats().Rooms)

			for _, room := range m.store.rooms {
				require.NotNil(t, room.SlotA)
				require.NotNil(t, room.SlotB)
				assert.NotEqual(t, room.SlotA.ID, room.SlotB.ID)
			}
			for id, rec := range recs {
				assert.Equal(t, 1, rec.count(models.SignalTypeRoomReady), id)
			}
			assert.Empty(t, m.Violations())
		})
	}
}

func TestRegisterPairsInArrivalOrder(t *testing.T) {
	m := newTestMatchmaker(t)
	u1, rec1 := newTestUser("u1")
	u2, rec2 := newTestUser("u2")
	u3, rec3 := newTestUser("u3")

	m.Register(u1)
	assert.Equal(t, 1, rec1.count(models.SignalTypeWaiting))
	assert.Equal(t, []string{"u1"}, m.Queued())

	m.Register(u2)
	m.Register(u3)

	r1 := rec1.lastRoomID()
	require.NotEmpty(t, r1)
	assert.Equal(t, r1, rec2.lastRoomID(), "both members get the same room id")
	assert.Zero(t, rec3.count(models.SignalTypeRoomReady))
	assert.Equal(t, 1, rec3.count(models.SignalTypeWaiting))
	assert.Equal(t, []string{"u3"}, m.Queued())

	// u1 drops; u2 goes back in line behind u3 and is paired with it.
	rec2.reset()
	m.Unregister("u1")

	_, ok := m.FindRoom("u1")
	assert.False(t, ok)
	assert.Nil(t, m.store.Room(r1))
	assert.Equal(t, 1, rec2.count(models.SignalTypeWaiting))

	r2 := rec2.lastRoomID()
	require.NotEmpty(t, r2)
	assert.NotEqual(t, r1, r2)
	assert.Equal(t, r2, rec3.lastRoomID())
	assert.Empty(t, m.Queued())
	assert.Equal(t, models.Stats{Online: 2, Queued: 0, Rooms: 1}, m.Stats())
}

func TestDisconnectRequeuesPartnerOnce(t *testing.T) {
	m := newTestMatchmaker(t)
	a, _ := newTestUser("a")
	b, recB := newTestUser("b")
	m.Register(a)
	m.Register(b)
	roomID, ok := m.FindRoom("b")
	require.True(t, ok)
	recB.reset()

	m.Unregister("a")

	assert.Nil(t, m.store.Room(roomID), "room deleted")
	assert.Equal(t, []string{"b"}, m.Queued())
	assert.Equal(t, 1, recB.count(models.SignalTypeWaiting))
	assert.Zero(t, recB.count(models.SignalTypeCallEnded), "silent disconnect sends no call-ended")
	_, ok = m.FindRoom("b")
	assert.False(t, ok)

	t.Run("unregister twice is harmless", func(t *testing.T) {
		m.Unregister("a")
		m.Unregister("nobody")
		assert.Equal(t, []string{"b"}, m.Queued())
		assert.Equal(t, 1, recB.count(models.SignalTypeWaiting))
	})
}

func TestUnregisterQueuedUser(t *testing.T) {
	m := newTestMatchmaker(t)
	a, _ := newTestUser("a")
	m.Register(a)
	m.Unregister("a")
	assert.Empty(t, m.Queued())
	assert.Equal(t, models.Stats{}, m.Stats())
}

func TestRelayToVanishedRoomIsSilent(t *testing.T) {
	m := newTestMatchmaker(t)
	a, recA := newTestUser("a")
	b, recB := newTestUser("b")
	m.Register(a)
	m.Register(b)
	roomID, _ := m.FindRoom("a")
	m.Unregister("b")
	recA.reset()
	recB.reset()

	assert.False(t, m.RelayOffer(roomID, "a", &models.OfferPayload{SDP: testSDP, RoomID: roomID}))
	assert.False(t, m.RelayAnswer(roomID, "a", &models.AnswerPayload{SDP: testSDP, RoomID: roomID}))
	assert.False(t, m.RelayIceCandidate(roomID, "a", &models.IceCandidatePayload{Candidate: testSDP, RoomID: roomID, Type: "sender"}))
	assert.Zero(t, recA.total())
	assert.Zero(t, recB.total())
}

func TestRelayThroughMatchmaker(t *testing.T) {
	m := newTestMatchmaker(t)
	a, _ := newTestUser("a")
	b, recB := newTestUser("b")
	m.Register(a)
	m.Register(b)
	roomID, _ := m.FindRoom("a")

	assert.True(t, m.RelayOffer(roomID, "a", &models.OfferPayload{SDP: testSDP, RoomID: roomID}))
	assert.Equal(t, 1, recB.count(models.SignalTypeOffer))
}

func TestEndCall(t *testing.T) {
	m := newTestMatchmaker(t)
	a, recA := newTestUser("a")
	b, recB := newTestUser("b")
	m.Register(a)
	m.Register(b)
	r, _ := m.FindRoom("a")
	recA.reset()
	recB.reset()

	m.EndCall(r, "a")

	assert.Equal(t, 1, recB.count(models.SignalTypeCallEnded))
	assert.Zero(t, recA.count(models.SignalTypeCallEnded))
	assert.Nil(t, m.store.Room(r))

	// Both were requeued and, being the only two waiting, matched again.
	assert.Equal(t, 1, recA.count(models.SignalTypeWaiting))
	assert.Equal(t, 1, recB.count(models.SignalTypeWaiting))
	assert.Equal(t, 1, recA.count(models.SignalTypeRoomReady))
	assert.Equal(t, 1, recB.count(models.SignalTypeRoomReady))
	for _, id := range []string{"a", "b"} {
		got, ok := m.FindRoom(id)
		require.True(t, ok)
		assert.NotEqual(t, r, got)
	}
	assert.Empty(t, m.Violations())
}

func TestEndCallRequeuesPartnerFirst(t *testing.T) {
	m := newTestMatchmaker(t)
	a, _ := newTestUser("a")
	b, _ := newTestUser("b")
	c, recC := newTestUser("c")
	m.Register(a)
	m.Register(b)
	r, _ := m.FindRoom("a")
	m.Register(c)

	m.EndCall(r, "a")

	// c was waiting longest, then partner b; a hung up and waits alone.
	assert.Equal(t, []string{"a"}, m.Queued())
	cRoom := recC.lastRoomID()
	bRoom, ok := m.FindRoom("b")
	require.True(t, ok)
	assert.Equal(t, cRoom, bRoom)
}

func TestEndCallRaces(t *testing.T) {
	m := newTestMatchmaker(t)
	a, recA := newTestUser("a")
	b, recB := newTestUser("b")
	c, _ := newTestUser("c")
	d, _ := newTestUser("d")
	m.Register(a)
	m.Register(b)
	m.Register(c)
	m.Register(d)
	r, _ := m.FindRoom("a")
	other, _ := m.FindRoom("c")
	recA.reset()
	recB.reset()

	t.Run("unknown room", func(t *testing.T) {
		m.EndCall("nope", "a")
		got, _ := m.FindRoom("a")
		assert.Equal(t, r, got)
	})

	t.Run("not a member", func(t *testing.T) {
		m.EndCall(other, "a")
		got, _ := m.FindRoom("c")
		assert.Equal(t, other, got)
	})

	t.Run("both hang up", func(t *testing.T) {
		m.EndCall(r, "a")
		m.EndCall(r, "b")
		assert.Equal(t, 1, recB.count(models.SignalTypeCallEnded))
		assert.Zero(t, recA.count(models.SignalTypeCallEnded))
	})

	t.Run("hang up then disconnect", func(t *testing.T) {
		m.Unregister("a")
		m.EndCall(r, "a")
		assert.Empty(t, m.Violations())
	})
}

func TestDrainIsIdempotent(t *testing.T) {
	m := newTestMatchmaker(t)
	for i := 0; i < 5; i++ {
		u, _ := newTestUser(fmt.Sprintf("u%d", i))
		m.Register(u)
	}
	rooms := m.Stats().Rooms
	assert.Equal(t, 2, rooms)
	assert.Zero(t, m.Drain())
	assert.Zero(t, m.Drain())
	assert.Equal(t, rooms, m.Stats().Rooms)
	assert.Len(t, m.Queued(), 1)
}

func TestDrainRequeuesSurvivorOfStalePair(t *testing.T) {
	m := newTestMatchmaker(t)
	a, recA := newTestUser("a")
	m.registry.Add(a)
	m.registry.Enqueue("ghost")
	m.registry.Enqueue("a")

	assert.Zero(t, m.Drain())
	assert.Equal(t, []string{"a"}, m.Queued(), "live id kept, stale id gone")

	b, _ := newTestUser("b")
	m.Register(b)
	assert.Equal(t, 1, recA.count(models.SignalTypeRoomReady))
	assert.Empty(t, m.Queued())
}

func TestDrainSkipsSeatedUser(t *testing.T) {
	m := newTestMatchmaker(t)
	a, _ := newTestUser("a")
	b, _ := newTestUser("b")
	c, _ := newTestUser("c")
	m.Register(a)
	m.Register(b)
	m.Register(c)

	// Force the invariant violation a bug would cause.
	m.registry.Enqueue("a")
	assert.Zero(t, m.Drain())
	assert.Equal(t, []string{"c"}, m.Queued())
	assert.Empty(t, m.Violations())
}

func TestInvariantsHoldUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := newTestMatchmaker(t)
	var live []string
	next := 0

	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(10); {
		case op < 4 || len(live) == 0:
			u, _ := newTestUser(fmt.Sprintf("u%d", next))
			next++
			m.Register(u)
			live = append(live, u.ID)
		case op < 7:
			i := rng.Intn(len(live))
			m.Unregister(live[i])
			live = append(live[:i], live[i+1:]...)
		case op < 9:
			id := live[rng.Intn(len(live))]
			if roomID, ok := m.FindRoom(id); ok {
				m.EndCall(roomID, id)
			}
		default:
			m.Drain()
		}

		require.Empty(t, m.Violations(), "step %d", step)
		stats := m.Stats()
		require.Equal(t, len(live), stats.Online)
		require.LessOrEqual(t, stats.Queued, 1, "strict pairing leaves at most one waiting")
		require.Equal(t, stats.Online, stats.Queued+2*stats.Rooms, "everyone is queued or seated")
	}
}

func TestConcurrentCallers(t *testing.T) {
	m := New(WithIDGenerator(&Sequential{}))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				u, _ := newTestUser(id)
				m.Register(u)
				if roomID, ok := m.FindRoom(id); ok && i%3 == 0 {
					m.EndCall(roomID, id)
				}
				if i%2 == 0 {
					m.Unregister(id)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Empty(t, m.Violations())
	stats := m.Stats()
	assert.Equal(t, 8*100, stats.Online)
	assert.Equal(t, stats.Online, stats.Queued+2*stats.Rooms)
}

func TestObserverSeesQueueLength(t *testing.T) {
	obs := &countingObserver{}
	m := New(WithObserver(obs))
	a, _ := newTestUser("a")
	m.Register(a)
	assert.Equal(t, 1, obs.queue)
	b, _ := newTestUser("b")
	m.Register(b)
	assert.Zero(t, obs.queue)
	assert.Equal(t, 1, obs.opened)
	m.Unregister("a")
	assert.Equal(t, 1, obs.closed)
	assert.Equal(t, 1, obs.queue)
}
