package services

import (
	"sync"

	redisclient "github.com/platewise/platewise-backend/internal/clients/redis"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
)

// StatusHub fans committed status transitions out to in-process
// subscribers, one channel per watching client. It is fed either directly
// by the notifier (single instance, no redis) or by the redis forwarder,
// which replays the shared channel into every instance's hub.
type StatusHub struct {
	log *logger.Logger

	mu   sync.Mutex
	subs map[string]map[chan redisclient.StatusMessage]struct{}
}

func NewStatusHub(baseLog *logger.Logger) *StatusHub {
	return &StatusHub{
		log:  baseLog.With("service", "StatusHub"),
		subs: map[string]map[chan redisclient.StatusMessage]struct{}{},
	}
}

// Subscribe registers interest in one meal's transitions. The returned
// cancel func must be called when the client goes away; it closes the
// channel.
func (h *StatusHub) Subscribe(mealID string) (<-chan redisclient.StatusMessage, func()) {
	ch := make(chan redisclient.StatusMessage, 8)
	h.mu.Lock()
	set, ok := h.subs[mealID]
	if !ok {
		set = map[chan redisclient.StatusMessage]struct{}{}
		h.subs[mealID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[mealID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, mealID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers one message to every subscriber of its meal. A
// subscriber that is not draining its channel loses the message rather
// than blocking the publisher.
func (h *StatusHub) Broadcast(msg redisclient.StatusMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[msg.MealID] {
		select {
		case ch <- msg:
		default:
			h.log.Debug("Dropping status message for slow subscriber", "meal_id", msg.MealID, "event", msg.Event)
		}
	}
}
