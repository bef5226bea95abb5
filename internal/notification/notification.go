package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the domain events the engine emits. Delivery is
// fire-and-forget: the engine never waits for a push to land.
type EventType string

const (
	EventLevelUp             EventType = "level_up"
	EventBadgeEarned         EventType = "badge_earned"
	EventCollectionCompleted EventType = "collection_completed"
	EventSurpriseBoxResult   EventType = "surprise_box_result"
	EventFriendRequest       EventType = "friend_request"
	EventFriendAccepted      EventType = "friend_accepted"
)

type Event struct {
	UserID uuid.UUID
	Type   EventType
	Data   map[string]any
}

// Publisher receives domain events after the owning aggregate was saved.
type Publisher interface {
	Publish(event Event)
}

// Nop swallows every event. Used in tests.
type Nop struct{}

func (Nop) Publish(Event) {}

// PushProvider is the transport that actually delivers a push message.
type PushProvider interface {
	SendPush(ctx context.Context, userID uuid.UUID, title, body string, data map[string]any) error
}

// Dispatcher renders events into push messages and hands them to the
// provider on a background goroutine.
type Dispatcher struct {
	provider PushProvider
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// SetPushProvider injects the transport. Without one, events are logged only.
func (d *Dispatcher) SetPushProvider(p PushProvider) {
	d.provider = p
}

func (d *Dispatcher) Publish(event Event) {
	title, body := render(event)

	if d.provider == nil {
		log.Printf("Notification (no provider): user=%s type=%s title=%q", event.UserID, event.Type, title)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data := map[string]any{"type": string(event.Type)}
		for k, v := range event.Data {
			data[k] = v
		}

		if err := d.provider.SendPush(ctx, event.UserID, title, body, data); err != nil {
			log.Printf("Failed to send %s push to %s: %v", event.Type, event.UserID, err)
		}
	}()
}

func render(event Event) (string, string) {
	switch event.Type {
	case EventLevelUp:
		return "Level up!", fmt.Sprintf("You reached %v. Keep going!", event.Data["level"])
	case EventBadgeEarned:
		return "New badge earned", fmt.Sprintf("%v is now in your collection.", event.Data["badge_name"])
	case EventCollectionCompleted:
		return "Collection completed", fmt.Sprintf("You finished %v and earned %v XP.", event.Data["collection_id"], event.Data["xp"])
	case EventSurpriseBoxResult:
		return "Surprise box", fmt.Sprintf("You won %v XP!", event.Data["amount"])
	case EventFriendRequest:
		return "Friend request", "Someone wants to add you as a friend."
	case EventFriendAccepted:
		return "Friend request accepted", fmt.Sprintf("You are now friends. Both of you earned %v XP.", event.Data["bonus_xp"])
	default:
		return "cityPerks", "You have a new update."
	}
}
