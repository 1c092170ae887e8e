// Package eventbus registers the background functions that keep the
// document store in sync with identity-provider and order events, and
// routes incoming events to them.
package eventbus

import (
	"encoding/json"

	"github.com/imrishuroy/go-storefront-sync/internal/orders"
)

// Event names.
const (
	UserCreated  = "clerk/user.created"
	UserUpdated  = "clerk/user.updated"
	UserDeleted  = "clerk/user.deleted"
	OrderCreated = "order/created"
)

// Event is the envelope carried on the queue.
type Event struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
	TS   int64           `json:"ts"` // epoch millis
}

// Result is what a function reports for one event.
type Result struct {
	Success   bool   `json:"success"`
	UserID    string `json:"userId,omitempty"`
	Processed int    `json:"processed,omitempty"`
}

// ClerkUser is the user object carried by clerk/user.* events.
type ClerkUser struct {
	ID             string       `json:"id"`
	FirstName      string       `json:"first_name"`
	LastName       string       `json:"last_name"`
	EmailAddresses []ClerkEmail `json:"email_addresses"`
	ImageURL       string       `json:"image_url"`
}

type ClerkEmail struct {
	ID           string `json:"id,omitempty"`
	EmailAddress string `json:"email_address"`
}

// OrderCreatedData is the payload of an order/created event.
type OrderCreatedData struct {
	UserID  string        `json:"userId"`
	Items   []orders.Item `json:"items"`
	Amount  float64       `json:"amount"`
	Address string        `json:"address"`
	Date    int64         `json:"date"`
}
