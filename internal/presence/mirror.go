// Package presence mirrors who is online and which rooms are open into Redis so
// that every instance behind a load balancer can report cluster-wide counts.
// Nothing is ever read back into the matchmaker; it is a reporting side channel.
package presence

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mossy-p/webrtc-matchmaker/internal/matchmaking"
	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

const (
	usersKey  = "presence:users"
	roomsKey  = "presence:rooms"
	queuedKey = "presence:queued"

	queueSize = 1024
	opTimeout = 2 * time.Second
)

func peersKey(roomID string) string {
	return "room:" + roomID + ":peers"
}

type opKind uint8

const (
	opUserOnline opKind = iota + 1
	opUserOffline
	opRoomOpened
	opRoomClosed
	opQueueLength
)

type op struct {
	kind    opKind
	id      string
	name    string
	members []string
	length  int
}

// Mirror is a matchmaking.Observer that forwards lifecycle events to Redis from
// a single worker goroutine. Events are dropped, never blocked on, when the
// worker falls behind.
type Mirror struct {
	client   redis.Cmdable
	instance string
	ttl      time.Duration
	log      *zap.Logger

	ops     chan op
	apply   func(ctx context.Context, o op) error
	dropped atomic.Int64
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	// Owned by the worker goroutine.
	users map[string]struct{}
	rooms map[string]struct{}
}

var _ matchmaking.Observer = (*Mirror)(nil)

// NewMirror starts the worker. instance identifies this process in the shared
// queue-length hash.
func NewMirror(client redis.Cmdable, instance string, ttl time.Duration, log *zap.Logger) *Mirror {
	m := newMirror(client, instance, ttl, log)
	m.apply = m.write
	go m.run()
	return m
}

func newMirror(client redis.Cmdable, instance string, ttl time.Duration, log *zap.Logger) *Mirror {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mirror{
		client:   client,
		instance: instance,
		ttl:      ttl,
		log:      log.Named("presence"),
		ops:      make(chan op, queueSize),
		done:     make(chan struct{}),
		users:    make(map[string]struct{}),
		rooms:    make(map[string]struct{}),
	}
}

func (m *Mirror) UserConnected(u *matchmaking.User) {
	m.enqueue(op{kind: opUserOnline, id: u.ID, name: u.DisplayName})
}

func (m *Mirror) UserDisconnected(id string) {
	m.enqueue(op{kind: opUserOffline, id: id})
}

func (m *Mirror) RoomOpened(roomID string, a, b *matchmaking.User) {
	m.enqueue(op{kind: opRoomOpened, id: roomID, members: []string{a.ID, b.ID}})
}

func (m *Mirror) RoomClosed(roomID string) {
	m.enqueue(op{kind: opRoomClosed, id: roomID})
}

func (m *Mirror) QueueChanged(length int) {
	m.enqueue(op{kind: opQueueLength, length: length})
}

func (m *Mirror) Relayed(models.SignalType, bool) {}

// Dropped reports how many events were discarded because the queue was full.
func (m *Mirror) Dropped() int64 {
	return m.dropped.Load()
}

func (m *Mirror) enqueue(o op) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.ops <- o:
	default:
		if m.dropped.Add(1) == 1 {
			m.log.Warn("presence queue full, dropping events")
		}
	}
}

// Cluster reads the aggregate presence written by all instances.
func (m *Mirror) Cluster(ctx context.Context) (*models.ClusterStats, error) {
	pipe := m.client.Pipeline()
	online := pipe.HLen(ctx, usersKey)
	rooms := pipe.SCard(ctx, roomsKey)
	queued := pipe.HVals(ctx, queuedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	stats := &models.ClusterStats{
		Online: online.Val(),
		Rooms:  rooms.Val(),
	}
	for _, v := range queued.Val() {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		stats.Queued += n
	}
	return stats, nil
}

// Close stops accepting events, flushes the queue and removes this instance's
// entries from Redis. It waits until ctx is done at most.
func (m *Mirror) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.ops)
	}
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mirror) run() {
	defer close(m.done)

	for o := range m.ops {
		m.track(o)
		m.exec(o)
	}

	// Shutting down: retract what this instance published.
	for id := range m.users {
		m.exec(op{kind: opUserOffline, id: id})
	}
	for id := range m.rooms {
		m.exec(op{kind: opRoomClosed, id: id})
	}
	m.exec(op{kind: opQueueLength, length: -1})
}

func (m *Mirror) track(o op) {
	switch o.kind {
	case opUserOnline:
		m.users[o.id] = struct{}{}
	case opUserOffline:
		delete(m.users, o.id)
	case opRoomOpened:
		m.rooms[o.id] = struct{}{}
	case opRoomClosed:
		delete(m.rooms, o.id)
	}
}

func (m *Mirror) exec(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := m.apply(ctx, o); err != nil {
		m.log.Warn("presence write failed", zap.Uint8("op", uint8(o.kind)), zap.String("id", o.id), zap.Error(err))
	}
}

func (m *Mirror) write(ctx context.Context, o op) error {
	switch o.kind {
	case opUserOnline:
		return m.client.HSet(ctx, usersKey, o.id, o.name).Err()
	case opUserOffline:
		return m.client.HDel(ctx, usersKey, o.id).Err()
	case opRoomOpened:
		members := make([]interface{}, len(o.members))
		for i, id := range o.members {
			members[i] = id
		}
		pipe := m.client.TxPipeline()
		pipe.SAdd(ctx, roomsKey, o.id)
		pipe.SAdd(ctx, peersKey(o.id), members...)
		pipe.Expire(ctx, peersKey(o.id), m.ttl)
		_, err := pipe.Exec(ctx)
		return err
	case opRoomClosed:
		pipe := m.client.TxPipeline()
		pipe.SRem(ctx, roomsKey, o.id)
		pipe.Del(ctx, peersKey(o.id))
		_, err := pipe.Exec(ctx)
		return err
	case opQueueLength:
		if o.length < 0 {
			return m.client.HDel(ctx, queuedKey, m.instance).Err()
		}
		return m.client.HSet(ctx, queuedKey, m.instance, strconv.Itoa(o.length)).Err()
	}
	return nil
}
