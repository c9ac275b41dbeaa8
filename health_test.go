package imagefront_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vantari/imagefront"
)

func TestHealthTracker_AvailableByDefault(t *testing.T) {
	h := imagefront.NewHealthTracker()
	assert.True(t, h.Available("tok-1"))
}

func TestHealthTracker_CooldownAfterThreshold(t *testing.T) {
	h := imagefront.NewHealthTracker()

	h.RecordFailure("tok-1")
	h.RecordFailure("tok-1")
	assert.True(t, h.Available("tok-1"), "below the threshold nothing happens")

	h.RecordFailure("tok-1")
	assert.False(t, h.Available("tok-1"), "third failure starts the cooldown")
	assert.True(t, h.Available("tok-2"), "cooldown is per credential")
}

func TestHealthTracker_SuccessClearsHistory(t *testing.T) {
	h := imagefront.NewHealthTracker()

	h.RecordFailure("tok-1")
	h.RecordFailure("tok-1")
	h.RecordSuccess("tok-1")
	h.RecordFailure("tok-1")
	h.RecordFailure("tok-1")

	assert.True(t, h.Available("tok-1"), "success resets the failure count")
}
