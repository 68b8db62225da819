package matchmaking

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// IDGenerator produces room identifiers. Implementations are called with the
// matchmaker lock held and need no synchronization of their own.
type IDGenerator interface {
	NewRoomID(a, b *User) string
}

// UUIDs hands out random v4 UUIDs.
type UUIDs struct{}

func (UUIDs) NewRoomID(_, _ *User) string {
	return uuid.NewString()
}

// Sequential numbers rooms from 1 per instance, so two stores never share
// counter state and tests see reproducible ids.
type Sequential struct {
	Prefix string
	next   uint64
}

func (s *Sequential) NewRoomID(_, _ *User) string {
	s.next++
	return s.Prefix + strconv.FormatUint(s.next, 10)
}

// NewIDGenerator maps a configured strategy name to a generator.
func NewIDGenerator(strategy string) (IDGenerator, error) {
	switch strategy {
	case "", "uuid":
		return UUIDs{}, nil
	case "sequential":
		return &Sequential{Prefix: "room-"}, nil
	default:
		return nil, fmt.Errorf("unknown room id strategy %q", strategy)
	}
}
