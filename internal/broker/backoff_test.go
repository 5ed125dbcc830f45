package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayDoublesPerAttempt(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}

	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
}

func TestDelayClampsToMax(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(9))
}

func TestDelayJitterStaysInBounds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Jitter: 0.25}

	for i := 0; i < 100; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestExhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}

func TestTaskExpiry(t *testing.T) {
	now := time.Now()
	task := TaskEnvelope{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, task.Expired(now))
	assert.True(t, task.Expired(now.Add(2*time.Hour)))

	// Zero expiry means no TTL.
	assert.False(t, TaskEnvelope{}.Expired(now))
}
