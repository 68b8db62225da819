package matchmaking

import "github.com/mossy-p/webrtc-matchmaker/internal/models"

// Observer receives lifecycle notifications. Calls happen under the matchmaker
// lock, so implementations must return quickly and never call back into it.
type Observer interface {
	UserConnected(u *User)
	UserDisconnected(id string)
	RoomOpened(roomID string, a, b *User)
	RoomClosed(roomID string)
	QueueChanged(length int)
	Relayed(event models.SignalType, delivered bool)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) UserConnected(*User)             {}
func (NopObserver) UserDisconnected(string)         {}
func (NopObserver) RoomOpened(string, *User, *User) {}
func (NopObserver) RoomClosed(string)               {}
func (NopObserver) QueueChanged(int)                {}
func (NopObserver) Relayed(models.SignalType, bool) {}

type multiObserver []Observer

// Observers fans notifications out to each non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	if len(m) == 0 {
		return NopObserver{}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multiObserver) UserConnected(u *User) {
	for _, o := range m {
		o.UserConnected(u)
	}
}

func (m multiObserver) UserDisconnected(id string) {
	for _, o := range m {
		o.UserDisconnected(id)
	}
}

func (m multiObserver) RoomOpened(roomID string, a, b *User) {
	for _, o := range m {
		o.RoomOpened(roomID, a, b)
	}
}

func (m multiObserver) RoomClosed(roomID string) {
	for _, o := range m {
		o.RoomClosed(roomID)
	}
}

func (m multiObserver) QueueChanged(length int) {
	for _, o := range m {
		o.QueueChanged(length)
	}
}

func (m multiObserver) Relayed(event models.SignalType, delivered bool) {
	for _, o := range m {
		o.Relayed(event, delivered)
	}
}
