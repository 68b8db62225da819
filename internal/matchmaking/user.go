package matchmaking

import (
	"strings"
	"unicode/utf8"

	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

const (
	maxDisplayName     = 32
	defaultDisplayName = "Anonymous"
)

// Channel pushes events to a single connection. Emit must not block: it is
// called while the matchmaker holds its lock.
type Channel interface {
	Emit(event models.SignalType, payload any)
}

// User is a connected participant. The matchmaker owns its lifetime; rooms only
// reference it.
type User struct {
	ID          string
	DisplayName string
	Channel     Channel
}

// NewUser builds a User with a normalized display name.
func NewUser(id, displayName string, ch Channel) *User {
	return &User{
		ID:          id,
		DisplayName: NormalizeDisplayName(displayName),
		Channel:     ch,
	}
}

// NormalizeDisplayName trims the name and caps it at 32 runes.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultDisplayName
	}
	if utf8.RuneCountInString(name) > maxDisplayName {
		name = string([]rune(name)[:maxDisplayName])
	}
	return name
}

func (u *User) emit(event models.SignalType, payload any) {
	if u == nil || u.Channel == nil {
		return
	}
	u.Channel.Emit(event, payload)
}
