package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectLimiterWindow(t *testing.T) {
	rl := NewReconnectLimiter(2, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("room"))
	assert.True(t, rl.Allow("room"))
	assert.False(t, rl.Allow("room"))
	assert.True(t, rl.Allow("other"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("room"))
}
