package signal

import (
	"sync"
	"time"

	"github.com/dkeye/voicehost/internal/domain"
)

// ReconnectLimiter allows at most limit reconnect attempts per room within a
// sliding interval.
type ReconnectLimiter struct {
	mu       sync.Mutex
	history  map[domain.RoomID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewReconnectLimiter(limit int, interval time.Duration) *ReconnectLimiter {
	return &ReconnectLimiter{
		history:  make(map[domain.RoomID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records an attempt for room and reports whether it is within budget.
func (rl *ReconnectLimiter) Allow(room domain.RoomID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[room]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[room] = fresh
		return false
	}
	rl.history[room] = append(fresh, now)
	return true
}
