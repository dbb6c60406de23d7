package model

import "time"

// Kind identifies which feed a notification or message came from.
// Chat and negotiation ids are drawn from disjoint id spaces.
type Kind string

const (
	KindChat        Kind = "chat"
	KindNegotiation Kind = "negotiation"
)

// Notification represents an inbound chat or negotiation message surfaced
// to the user.
type Notification struct {
	// ID is the source message id. It is unique within its Kind.
	ID string `json:"id"`

	// Kind identifies which feed produced this notification.
	Kind Kind `json:"kind"`

	// Subject is the load (and bid, for negotiations) the message belongs to.
	Subject Subject `json:"subject"`

	// SenderID is the sender's employee id for chat messages. It becomes
	// the default recipient when the user replies from the notification.
	SenderID string `json:"sender_id,omitempty"`

	// SenderLabel is the human-readable sender name.
	SenderLabel string `json:"sender_label"`

	// Body is the message text.
	Body string `json:"body"`

	// CounterRate is the proposed rate, set only for negotiation entries.
	CounterRate *float64 `json:"counter_rate,omitempty"`

	// OccurredAt is when the server recorded the message.
	OccurredAt time.Time `json:"occurred_at"`

	// Dismissed indicates the user has dismissed this notification.
	Dismissed bool `json:"dismissed"`
}

// Key returns the ledger key of the notification.
func (n Notification) Key() NotificationKey {
	return NotificationKey{Kind: n.Kind, ID: n.ID}
}

// NotificationKey identifies a notification across both feeds.
type NotificationKey struct {
	Kind Kind
	ID   string
}
