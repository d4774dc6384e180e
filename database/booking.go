package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/parkerflight/bookingcore/model"
)

// RecordBooking inserts a new booking order row. The booking id is minted
// here if the caller did not set one.
func (d Datasource) RecordBooking(ctx context.Context, order *model.BookingOrder) (*model.BookingOrder, error) {
	if order.BookingID == "" {
		order.BookingID = model.GenerateUUIDWithSuffix("bkg")
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt

	metaJSON, err := json.Marshal(order.MetaData)
	if err != nil {
		return nil, err
	}
	ticketsJSON, err := json.Marshal(order.TicketNumbers)
	if err != nil {
		return nil, err
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO bookings (booking_id, user_id, provider_order_id, offer_id, booking_reference, status, total_amount, total_currency, ticket_numbers, created_at, updated_at, meta_data)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, order.BookingID, order.UserID, order.ProviderOrderID, order.OfferID, order.BookingReference, order.Status, order.TotalAmount, order.TotalCurrency, ticketsJSON, order.CreatedAt, order.UpdatedAt, metaJSON)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetBookingByID retrieves a booking order by its local id. An absent row
// returns (nil, nil).
func (d Datasource) GetBookingByID(ctx context.Context, bookingID string) (*model.BookingOrder, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT booking_id, user_id, COALESCE(provider_order_id, ''), COALESCE(offer_id, ''), COALESCE(booking_reference, ''), status, COALESCE(failure_reason, ''), COALESCE(ticket_numbers, 'null'), COALESCE(total_amount, ''), COALESCE(total_currency, ''), created_at, updated_at
		FROM bookings
		WHERE booking_id = $1
	`, bookingID)
	order, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return order, err
}

// FindOrderByProviderID retrieves a booking order by the provider's order id.
// An absent row is not an error: the caller gets (nil, nil) because an event
// may precede the local write or belong to an untracked order.
func (d Datasource) FindOrderByProviderID(ctx context.Context, providerOrderID string) (*model.BookingOrder, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT booking_id, user_id, COALESCE(provider_order_id, ''), COALESCE(offer_id, ''), COALESCE(booking_reference, ''), status, COALESCE(failure_reason, ''), COALESCE(ticket_numbers, 'null'), COALESCE(total_amount, ''), COALESCE(total_currency, ''), created_at, updated_at
		FROM bookings
		WHERE provider_order_id = $1
	`, providerOrderID)
	order, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return order, err
}

// UpdateOrderStatus writes a new status along with the raw provider payload
// that justified it. Transition validation happens in the webhook processor;
// this is a plain write.
func (d Datasource) UpdateOrderStatus(ctx context.Context, bookingID, status string, raw json.RawMessage) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE bookings
		SET status = $2, meta_data = COALESCE(meta_data, '{}'::jsonb) || jsonb_build_object('last_provider_payload', $3::jsonb), updated_at = NOW()
		WHERE booking_id = $1
	`, bookingID, status, normalizeRaw(raw))
	return err
}

// UpdateOrderFailure marks a booking failed with a human-readable reason.
func (d Datasource) UpdateOrderFailure(ctx context.Context, bookingID, reason string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE bookings
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE booking_id = $1
	`, bookingID, model.StatusFailed, reason)
	return err
}

// AttachProviderOrder persists the provider's order id and booking reference
// once order creation succeeds. Done before the pipeline returns success so
// webhook events can find the booking.
func (d Datasource) AttachProviderOrder(ctx context.Context, bookingID, providerOrderID, bookingReference string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE bookings
		SET provider_order_id = $2, booking_reference = $3, updated_at = NOW()
		WHERE booking_id = $1
	`, bookingID, providerOrderID, bookingReference)
	return err
}

// UpdatePassengerData stores the envelope-encrypted passenger blob. Plaintext
// passenger details never reach this table.
func (d Datasource) UpdatePassengerData(ctx context.Context, bookingID string, encryptedPassengers json.RawMessage) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE bookings
		SET passenger_data = $2, updated_at = NOW()
		WHERE booking_id = $1
	`, bookingID, []byte(encryptedPassengers))
	return err
}

func scanBooking(row *sql.Row) (*model.BookingOrder, error) {
	order := model.BookingOrder{}
	var ticketsJSON []byte
	err := row.Scan(&order.BookingID, &order.UserID, &order.ProviderOrderID, &order.OfferID, &order.BookingReference, &order.Status, &order.FailureReason, &ticketsJSON, &order.TotalAmount, &order.TotalCurrency, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ticketsJSON, &order.TicketNumbers); err != nil {
		return nil, err
	}
	return &order, nil
}

func normalizeRaw(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
