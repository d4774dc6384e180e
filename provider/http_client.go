package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parkerflight/bookingcore/config"
	"github.com/parkerflight/bookingcore/model"
)

const (
	apiVersion     = "v2"
	offerPageLimit = 50
)

// HTTPClient is the real REST implementation of Client.
type HTTPClient struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

// NewHTTPClient creates a provider client. The underlying http.Client is
// long-lived and safe for concurrent use.
func NewHTTPClient(baseURL, apiToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientFromConfig creates a provider client from configuration.
func NewClientFromConfig(conf *config.Configuration) *HTTPClient {
	return NewHTTPClient(conf.Provider.BaseURL, conf.Provider.APIToken)
}

// wire shapes

type apiEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []apiErrorBody  `json:"errors,omitempty"`
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiSlice struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
}

type apiPassengerRef struct {
	ID string `json:"id"`
}

type apiOffer struct {
	ID            string    `json:"id"`
	ExpiresAt     time.Time `json:"expires_at"`
	TotalAmount   string    `json:"total_amount"`
	TotalCurrency string    `json:"total_currency"`
	Owner         struct {
		Name string `json:"name"`
	} `json:"owner"`
	Passengers []apiPassengerRef `json:"passengers"`
}

type apiOrder struct {
	ID               string    `json:"id"`
	BookingReference string    `json:"booking_reference"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	TotalAmount      string    `json:"total_amount"`
	TotalCurrency    string    `json:"total_currency"`
	Tickets          []struct {
		Number string `json:"number"`
	} `json:"tickets"`
}

// CreateOfferRequest submits the search and returns the offer-request handle.
func (c *HTTPClient) CreateOfferRequest(ctx context.Context, params model.SearchParams) (string, error) {
	slices := []apiSlice{{
		Origin:        params.Origin,
		Destination:   params.Destination,
		DepartureDate: params.DepartureDate,
	}}
	if params.ReturnDate != "" {
		slices = append(slices, apiSlice{
			Origin:        params.Destination,
			Destination:   params.Origin,
			DepartureDate: params.ReturnDate,
		})
	}

	passengers := make([]map[string]string, 0, params.Passengers)
	for i := 0; i < params.Passengers; i++ {
		passengers = append(passengers, map[string]string{"type": "adult"})
	}

	cabinClass := params.CabinClass
	if cabinClass == "" {
		cabinClass = "economy"
	}

	body := map[string]interface{}{
		"data": map[string]interface{}{
			"slices":      slices,
			"passengers":  passengers,
			"cabin_class": cabinClass,
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/air/offer_requests", body, nil, &out); err != nil {
		return "", err
	}
	logrus.WithField("offer_request_id", out.ID).Info("offer request created")
	return out.ID, nil
}

// ListOffers fetches the offers produced for an offer-request handle.
func (c *HTTPClient) ListOffers(ctx context.Context, offerRequestID string) ([]model.Offer, error) {
	path := fmt.Sprintf("/air/offers?offer_request_id=%s&limit=%d", offerRequestID, offerPageLimit)
	var out []apiOffer
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}

	offers := make([]model.Offer, 0, len(out))
	for _, o := range out {
		offers = append(offers, toModelOffer(o))
	}
	return offers, nil
}

// CreateOrder books the offer, passing the idempotency key as a header on
// every attempt.
func (c *HTTPClient) CreateOrder(ctx context.Context, offerID string, passengers []model.PassengerDetails, idempotencyKey string) (*Order, error) {
	mapped := make([]map[string]interface{}, 0, len(passengers))
	for _, p := range passengers {
		mapped = append(mapped, map[string]interface{}{
			"type":         p.Type,
			"title":        p.Title,
			"gender":       p.Gender,
			"given_name":   p.GivenName,
			"family_name":  p.FamilyName,
			"born_on":      p.BornOn,
			"email":        p.Email,
			"phone_number": p.PhoneNumber,
		})
	}

	body := map[string]interface{}{
		"data": map[string]interface{}{
			"selected_offers": []string{offerID},
			"passengers":      mapped,
			"payments":        []map[string]string{{"type": "balance"}},
		},
	}
	headers := map[string]string{"Idempotency-Key": idempotencyKey}

	var out apiOrder
	if err := c.do(ctx, http.MethodPost, "/air/orders", body, headers, &out); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"order_id": out.ID,
		"status":   out.Status,
	}).Info("order created")
	return toOrder(out), nil
}

// GetOrder fetches an order's current provider-side state.
func (c *HTTPClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var out apiOrder
	if err := c.do(ctx, http.MethodGet, "/air/orders/"+orderID, nil, nil, &out); err != nil {
		return nil, err
	}
	return toOrder(out), nil
}

// CancelOrder requests cancellation of an existing order.
func (c *HTTPClient) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	body := map[string]interface{}{"data": map[string]interface{}{}}
	var out apiOrder
	if err := c.do(ctx, http.MethodPost, "/air/orders/"+orderID+"/cancellations", body, nil, &out); err != nil {
		return nil, err
	}
	return toOrder(out), nil
}

// do performs one HTTP round-trip and decodes the provider's data envelope.
// Non-2xx responses become *APIError carrying the status classification.
func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Provider-Version", apiVersion)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp.StatusCode, raw)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func apiErrorFromResponse(status int, raw []byte) *APIError {
	var envelope apiEnvelope
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Errors) > 0 {
		apiErr.Code = envelope.Errors[0].Code
		apiErr.Message = envelope.Errors[0].Message
		return apiErr
	}
	apiErr.Message = string(raw)
	return apiErr
}

func toModelOffer(o apiOffer) model.Offer {
	passengerIDs := make([]string, 0, len(o.Passengers))
	for _, p := range o.Passengers {
		passengerIDs = append(passengerIDs, p.ID)
	}
	return model.Offer{
		OfferID:       o.ID,
		ExpiresAt:     o.ExpiresAt,
		TotalAmount:   o.TotalAmount,
		TotalCurrency: o.TotalCurrency,
		PassengerIDs:  passengerIDs,
		Owner:         o.Owner.Name,
	}
}

func toOrder(o apiOrder) *Order {
	tickets := make([]string, 0, len(o.Tickets))
	for _, t := range o.Tickets {
		tickets = append(tickets, t.Number)
	}
	return &Order{
		ID:               o.ID,
		BookingReference: o.BookingReference,
		Status:           o.Status,
		TicketNumbers:    tickets,
		TotalAmount:      o.TotalAmount,
		TotalCurrency:    o.TotalCurrency,
		CreatedAt:        o.CreatedAt,
	}
}
