package model

import "time"

// SearchParams describes one flight search: slices plus passenger counts.
type SearchParams struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	ReturnDate    string `json:"return_date,omitempty"`
	Passengers    int    `json:"passengers"`
	CabinClass    string `json:"cabin_class,omitempty"`
}

// Offer is one bookable option returned by the provider for an offer request.
type Offer struct {
	OfferID       string    `json:"offer_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	TotalAmount   string    `json:"total_amount"`
	TotalCurrency string    `json:"total_currency"`
	PassengerIDs  []string  `json:"passenger_ids"`
	Owner         string    `json:"owner,omitempty"`
}

// OfferExpiryBuffer is the safety margin subtracted from an offer's expiry
// before it may be submitted for order creation. An offer inside the buffer
// must never reach order creation.
const OfferExpiryBuffer = 2 * time.Minute

// IsBookable reports whether the offer's expiry, minus the safety buffer, is
// still in the future at the given instant.
func (o *Offer) IsBookable(now time.Time) bool {
	return now.Before(o.ExpiresAt.Add(-OfferExpiryBuffer))
}

// PassengerDetails carries the traveler fields required by the provider for
// order creation. These are PII and are envelope-encrypted before persistence.
type PassengerDetails struct {
	Type        string `json:"type"`
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	Title       string `json:"title"`
	Gender      string `json:"gender"`
	BornOn      string `json:"born_on"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}
