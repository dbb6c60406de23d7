package broker

import (
	"bytes"
	"encoding/json"
	"time"
)

// Pagination is the paging block of the chat thread response.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

// ChatMessage is a single message of GET /chat/thread/{loadId}.
type ChatMessage struct {
	ID          string    `json:"_id"`
	SenderEmpID string    `json:"senderEmpId"`
	SenderName  string    `json:"senderName"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	ReplyTo     *ReplyTo  `json:"replyTo,omitempty"`
	FileName    string    `json:"fileName,omitempty"`
}

// ReplyTo is the quoted message reference. The API sends either the id
// string or the populated message object.
type ReplyTo struct {
	ID      string
	Message *ChatMessage
}

// UnmarshalJSON accepts a bare id, a populated message, or null.
func (r *ReplyTo) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &r.ID)
	}
	var msg ChatMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return err
	}
	r.ID = msg.ID
	r.Message = &msg
	return nil
}

// ChatThreadResponse is the response from GET /chat/thread/{loadId}.
type ChatThreadResponse struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message,omitempty"`
	Messages   []ChatMessage `json:"messages"`
	Pagination Pagination    `json:"pagination"`
}

// NegotiationEntry is one entry of a bid's internal negotiation history.
type NegotiationEntry struct {
	ID      string    `json:"_id"`
	By      string    `json:"by"`
	Message string    `json:"message"`
	Rate    *float64  `json:"rate"`
	At      time.Time `json:"at"`
}

// NegotiationThreadResponse is the response from
// GET /bid/{bidId}/internal-negotiation-thread.
type NegotiationThreadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    struct {
		InternalNegotiation struct {
			History []NegotiationEntry `json:"history"`
		} `json:"internalNegotiation"`
	} `json:"data"`
}

// SendChatRequest is the JSON body of POST /chat/send.
type SendChatRequest struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	LoadID     string `json:"loadId"`
	ReplyTo    string `json:"replyTo,omitempty"`
}

// CounterRequest is the body of PUT /bid/{bidId}/inhouse-internal-negotiate.
type CounterRequest struct {
	CounterRate float64 `json:"counterRate"`
	Message     string  `json:"message"`
}

// AckResponse is the generic success envelope returned by write endpoints.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// LoadRecord is one entry of GET /load/created-by/{empId}.
type LoadRecord struct {
	ID string `json:"_id"`
}

// LoadListResponse is the response from GET /load/created-by/{empId}.
type LoadListResponse struct {
	Success bool         `json:"success"`
	Data    []LoadRecord `json:"data"`
}

// BidAssignment is one entry of GET /bid/assigned/{empId}.
type BidAssignment struct {
	BidID  string `json:"bidId"`
	LoadID string `json:"loadId"`
}

// AssignmentListResponse is the response from GET /bid/assigned/{empId}.
type AssignmentListResponse struct {
	Success bool            `json:"success"`
	Data    []BidAssignment `json:"data"`
}
