package model

import "time"

// ActorInhouse is the negotiation actor that represents our own side.
const ActorInhouse = "inhouse"

// Message is a single entry of a chat or negotiation thread.
type Message struct {
	ID          string
	SenderID    string
	SenderLabel string
	Body        string
	OccurredAt  time.Time

	// IsMine is derived from the current user when the page is decoded.
	IsMine bool

	// IsOptimistic marks a provisional, locally created entry that has not
	// been confirmed by the server yet.
	IsOptimistic bool

	// ReplyTo references the quoted message, if any.
	ReplyTo *ReplyRef

	// CounterRate is set on negotiation entries that carry a rate.
	CounterRate *float64

	// Attachment is the file name sent with a chat message, if any.
	Attachment string
}

// ReplyRef points at a quoted message. The server sends either the full
// quoted message or only its id.
type ReplyRef struct {
	ID      string
	Message *Message
}

// ThreadPage is one page of a thread, ordered ascending by OccurredAt.
// Page 1 holds the newest messages.
type ThreadPage struct {
	Items      []Message
	PageNumber int
	TotalPages int
}

// HasMore reports whether older pages remain on the server.
func (p ThreadPage) HasMore() bool {
	return p.PageNumber < p.TotalPages
}

// OutgoingChat is a chat message to be sent to the server.
type OutgoingChat struct {
	LoadID     string
	ReceiverID string
	Body       string
	ReplyTo    string

	// FilePath, when set, sends the message as multipart with the file.
	FilePath string
}

// OutgoingCounter is a counter-offer posted to a bid negotiation.
type OutgoingCounter struct {
	BidID       string
	CounterRate float64
	Body        string
}
