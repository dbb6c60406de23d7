package broker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/source"
)

// defaultPageSize is used when a caller asks for a non-positive limit.
const defaultPageSize = 50

// Adapter implements source.ThreadFetcher, source.Sender and
// source.SubjectLister for the brokerage REST API.
type Adapter struct {
	client *Client
	userID string
}

// NewAdapter creates an adapter that decodes pages from the point of view
// of the given user.
func NewAdapter(client *Client, userID string) *Adapter {
	return &Adapter{
		client: client,
		userID: strings.TrimSpace(userID),
	}
}

// FetchChatPage retrieves one page of the chat thread of a load.
func (a *Adapter) FetchChatPage(
	ctx context.Context,
	loadID string,
	page int,
	limit int,
) (model.ThreadPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/chat/thread/%s?%s", url.PathEscape(loadID), q.Encode())

	var resp ChatThreadResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return model.ThreadPage{}, fmt.Errorf("fetching chat thread %s: %w", loadID, err)
	}
	if !resp.Success && resp.Message != "" {
		return model.ThreadPage{}, fmt.Errorf("fetching chat thread %s: %s", loadID, resp.Message)
	}

	items := make([]model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		items = append(items, a.chatToMessage(m))
	}

	current := resp.Pagination.CurrentPage
	if current < 1 {
		current = page
	}
	total := resp.Pagination.TotalPages
	if total < current {
		total = current
	}

	return model.ThreadPage{
		Items:      items,
		PageNumber: current,
		TotalPages: total,
	}, nil
}

// FetchNegotiation retrieves the internal negotiation history of a bid.
// The endpoint is not paginated, so the result is always a single page.
func (a *Adapter) FetchNegotiation(
	ctx context.Context,
	bidID string,
) (model.ThreadPage, error) {
	path := fmt.Sprintf("/bid/%s/internal-negotiation-thread", url.PathEscape(bidID))

	var resp NegotiationThreadResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return model.ThreadPage{}, fmt.Errorf("fetching negotiation %s: %w", bidID, err)
	}
	if !resp.Success && resp.Message != "" {
		return model.ThreadPage{}, fmt.Errorf("fetching negotiation %s: %s", bidID, resp.Message)
	}

	history := resp.Data.InternalNegotiation.History
	items := make([]model.Message, 0, len(history))
	for _, entry := range history {
		items = append(items, negotiationToMessage(entry))
	}

	return model.ThreadPage{
		Items:      items,
		PageNumber: 1,
		TotalPages: 1,
	}, nil
}

// SendChat posts a chat message, as multipart when a file is attached.
func (a *Adapter) SendChat(ctx context.Context, msg model.OutgoingChat) error {
	var ack AckResponse
	var err error
	if msg.FilePath != "" {
		fields := map[string]string{
			"receiverId": msg.ReceiverID,
			"message":    msg.Body,
			"loadId":     msg.LoadID,
			"replyTo":    msg.ReplyTo,
		}
		err = a.client.PostMultipart(ctx, "/chat/send", fields, "file", msg.FilePath, &ack)
	} else {
		err = a.client.Post(ctx, "/chat/send", SendChatRequest{
			ReceiverID: msg.ReceiverID,
			Message:    msg.Body,
			LoadID:     msg.LoadID,
			ReplyTo:    msg.ReplyTo,
		}, &ack)
	}
	if err != nil {
		return fmt.Errorf("sending chat on load %s: %w", msg.LoadID, err)
	}
	if !ack.Success && ack.Message != "" {
		return fmt.Errorf("sending chat on load %s: %s", msg.LoadID, ack.Message)
	}
	return nil
}

// SendCounter posts an in-house counter-offer to a bid negotiation.
func (a *Adapter) SendCounter(ctx context.Context, counter model.OutgoingCounter) error {
	path := fmt.Sprintf("/bid/%s/inhouse-internal-negotiate", url.PathEscape(counter.BidID))

	var ack AckResponse
	err := a.client.Put(ctx, path, CounterRequest{
		CounterRate: counter.CounterRate,
		Message:     counter.Body,
	}, &ack)
	if err != nil {
		return fmt.Errorf("sending counter on bid %s: %w", counter.BidID, err)
	}
	if !ack.Success && ack.Message != "" {
		return fmt.Errorf("sending counter on bid %s: %s", counter.BidID, ack.Message)
	}
	return nil
}

// LoadsCreatedBy lists the ids of loads created by the employee.
func (a *Adapter) LoadsCreatedBy(ctx context.Context, empID string) ([]string, error) {
	path := fmt.Sprintf("/load/created-by/%s", url.PathEscape(empID))

	var resp LoadListResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("listing loads created by %s: %w", empID, err)
	}

	ids := make([]string, 0, len(resp.Data))
	for _, load := range resp.Data {
		if load.ID != "" {
			ids = append(ids, load.ID)
		}
	}
	return ids, nil
}

// BidAssignments lists the (load, bid) pairs assigned to the employee.
func (a *Adapter) BidAssignments(ctx context.Context, empID string) ([]model.Subject, error) {
	path := fmt.Sprintf("/bid/assigned/%s", url.PathEscape(empID))

	var resp AssignmentListResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("listing bid assignments of %s: %w", empID, err)
	}

	subjects := make([]model.Subject, 0, len(resp.Data))
	for _, assignment := range resp.Data {
		subjects = append(subjects, model.Subject{
			LoadID: assignment.LoadID,
			BidID:  assignment.BidID,
		})
	}
	return subjects, nil
}

// chatToMessage converts an API chat message to a model.Message.
func (a *Adapter) chatToMessage(m ChatMessage) model.Message {
	msg := model.Message{
		ID:          m.ID,
		SenderID:    m.SenderEmpID,
		SenderLabel: m.SenderName,
		Body:        m.Message,
		OccurredAt:  m.Timestamp,
		IsMine:      a.userID != "" && m.SenderEmpID == a.userID,
		Attachment:  m.FileName,
	}
	if m.ReplyTo != nil && m.ReplyTo.ID != "" {
		ref := &model.ReplyRef{ID: m.ReplyTo.ID}
		if m.ReplyTo.Message != nil {
			quoted := a.chatToMessage(*m.ReplyTo.Message)
			ref.Message = &quoted
		}
		msg.ReplyTo = ref
	}
	return msg
}

// negotiationToMessage converts a negotiation history entry. Entries by
// the in-house actor are ours.
func negotiationToMessage(e NegotiationEntry) model.Message {
	return model.Message{
		ID:          e.ID,
		SenderID:    e.By,
		SenderLabel: actorLabel(e.By),
		Body:        e.Message,
		OccurredAt:  e.At,
		IsMine:      strings.EqualFold(e.By, model.ActorInhouse),
		CounterRate: e.Rate,
	}
}

// actorLabel capitalizes a negotiation actor for display.
func actorLabel(by string) string {
	by = strings.TrimSpace(by)
	if by == "" {
		return "Unknown"
	}
	return strings.ToUpper(by[:1]) + by[1:]
}

var (
	_ source.ThreadFetcher = (*Adapter)(nil)
	_ source.Sender        = (*Adapter)(nil)
	_ source.SubjectLister = (*Adapter)(nil)
)
