package service

import (
	"sync"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
)

const notificationBufferSize = 16

// notificationHub delivers notifications to the SSE streams open on this node.
// Slow streams drop messages rather than block the publisher; the inbox remains the source of truth.
type notificationHub struct {
	mu      sync.RWMutex
	streams map[uint]map[chan dto.NotificationResponse]struct{}
}

func newNotificationHub() *notificationHub {
	return &notificationHub{streams: make(map[uint]map[chan dto.NotificationResponse]struct{})}
}

func (h *notificationHub) open(userID uint) (chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse, notificationBufferSize)

	h.mu.Lock()
	if h.streams[userID] == nil {
		h.streams[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	h.streams[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.streams[userID], ch)
			if len(h.streams[userID]) == 0 {
				delete(h.streams, userID)
			}
			close(ch)
		})
	}
	return ch, closeFn
}

// deliver returns the number of streams that were too slow to accept the notification.
func (h *notificationHub) deliver(notification dto.NotificationResponse) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for ch := range h.streams[notification.UserID] {
		select {
		case ch <- notification:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *notificationHub) streamCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[userID])
}
