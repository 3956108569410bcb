package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	strategy := &ExponentialBackoff{
		InitialDelay: 30 * time.Second,
		MaxDelay:     15 * time.Minute,
		Multiplier:   2,
	}

	assert.Equal(t, 30*time.Second, strategy.NextRetry(0))
	assert.Equal(t, time.Minute, strategy.NextRetry(1))
	assert.Equal(t, 2*time.Minute, strategy.NextRetry(2))
	assert.Equal(t, 4*time.Minute, strategy.NextRetry(3))

	// Capped at the maximum delay
	assert.Equal(t, 15*time.Minute, strategy.NextRetry(6))
	assert.Equal(t, 15*time.Minute, strategy.NextRetry(20))
}
