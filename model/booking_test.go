package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidTransitions(t *testing.T) {
	// Forward path.
	assert.True(t, IsValidTransition(StatusOfferSelected, StatusPaymentAuthorized))
	assert.True(t, IsValidTransition(StatusPaymentAuthorized, StatusOrderCreated))
	assert.True(t, IsValidTransition(StatusOrderCreated, StatusTicketed))

	// Failure and cancellation from any non-terminal status.
	assert.True(t, IsValidTransition(StatusOfferSelected, StatusFailed))
	assert.True(t, IsValidTransition(StatusTicketed, StatusCancelled))
	assert.True(t, IsValidTransition(StatusCancelled, StatusRefunded))

	// Regressions are rejected.
	assert.False(t, IsValidTransition(StatusTicketed, StatusOrderCreated))
	assert.False(t, IsValidTransition(StatusOrderCreated, StatusPaymentAuthorized))
	assert.False(t, IsValidTransition(StatusRefunded, StatusTicketed))

	// A duplicate of the current status is not a transition.
	assert.False(t, IsValidTransition(StatusTicketed, StatusTicketed))

	// Terminal statuses have no way out.
	assert.False(t, IsValidTransition(StatusFailed, StatusOfferSelected))
	assert.False(t, IsValidTransition(StatusRefunded, StatusCancelled))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(StatusFailed))
	assert.True(t, IsTerminalStatus(StatusRefunded))
	assert.False(t, IsTerminalStatus(StatusTicketed))
	assert.False(t, IsTerminalStatus(StatusCancelled), "cancelled can still be refunded")
}

func TestMapProviderStatus(t *testing.T) {
	assert.Equal(t, StatusOrderCreated, MapProviderStatus("pending"))
	assert.Equal(t, StatusTicketed, MapProviderStatus("confirmed"))
	assert.Equal(t, StatusTicketed, MapProviderStatus("ticketed"))
	assert.Equal(t, StatusCancelled, MapProviderStatus("cancelled"))
	assert.Equal(t, StatusFailed, MapProviderStatus("expired"))

	// Unknown statuses pass through so the transition check rejects them.
	assert.Equal(t, "on_hold", MapProviderStatus("on_hold"))
}

func TestOfferIsBookable(t *testing.T) {
	now := time.Now()

	fresh := Offer{ExpiresAt: now.Add(10 * time.Minute)}
	assert.True(t, fresh.IsBookable(now))

	insideBuffer := Offer{ExpiresAt: now.Add(OfferExpiryBuffer - time.Second)}
	assert.False(t, insideBuffer.IsBookable(now), "an offer inside the safety buffer is not bookable")

	expired := Offer{ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, expired.IsBookable(now))

	atBoundary := Offer{ExpiresAt: now.Add(OfferExpiryBuffer)}
	assert.False(t, atBoundary.IsBookable(now), "the boundary instant is already too late")
}

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("bkg")
	assert.Contains(t, id, "bkg_")

	key := NewIdempotencyKey()
	assert.Contains(t, key, "idem_")
	assert.NotEqual(t, key, NewIdempotencyKey())
}
