package notify

import (
	"sync"
	"time"

	"github.com/rdvproject/rdv/backend/pkg/ulid"
)

// `Mem` records notifications in memory.  Tests use it to assert on
// delivered messages.
type Mem struct {
	mu            sync.Mutex
	notifications []Notification
}

func NewMem() *Mem {
	return &Mem{}
}

func (s *Mem) Notify(actor, recipient, targetRef, message string) error {
	id, err := ulid.New()
	if err != nil {
		return &DBError{
			Op:  OpNewId,
			Err: err,
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, Notification{
		Id:        id,
		Actor:     actor,
		Recipient: recipient,
		TargetRef: targetRef,
		Message:   message,
		Time:      time.Now(),
	})
	return nil
}

func (s *Mem) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// `For()` returns the notifications delivered to `recipient`.
func (s *Mem) For(recipient string) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}
