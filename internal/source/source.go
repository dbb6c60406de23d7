package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nhle/broker-console/internal/model"
)

// ErrNotFound is returned when a subject has no conversation yet.
// Pollers treat it as "no new items".
var ErrNotFound = errors.New("not found")

// ErrMissingToken is returned when no bearer credential is available.
// It stops the current fetch only.
var ErrMissingToken = errors.New("missing bearer token")

// HTTPError is an unexpected, non-success response from the API.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("http %d on %s %s", e.StatusCode, e.Method, e.Path)
}

// AuthError indicates that the credential was rejected (401 or 403).
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%d): %s", e.StatusCode, e.Message)
}

// ValidationError rejects an outbound request before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsNotFound reports whether err means the resource does not exist yet.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// IsTransient reports whether err is worth retrying on the next natural
// cycle: network failures, timeouts and 5xx/429 responses.
func IsTransient(err error) bool {
	if err == nil || IsAuthError(err) || IsNotFound(err) || IsValidation(err) ||
		errors.Is(err, ErrMissingToken) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 ||
			httpErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// ThreadFetcher retrieves one page of a thread. It is stateless beyond
// its HTTP call.
type ThreadFetcher interface {
	// FetchChatPage retrieves a page of the chat thread of a load.
	// Page 1 holds the newest messages.
	FetchChatPage(
		ctx context.Context,
		loadID string,
		page int,
		limit int,
	) (model.ThreadPage, error)

	// FetchNegotiation retrieves the full negotiation history of a bid as
	// a single page.
	FetchNegotiation(ctx context.Context, bidID string) (model.ThreadPage, error)
}

// Sender posts outbound chat messages and counter-offers.
type Sender interface {
	SendChat(ctx context.Context, msg model.OutgoingChat) error
	SendCounter(ctx context.Context, counter model.OutgoingCounter) error
}

// SubjectLister lists the records subject discovery is derived from.
type SubjectLister interface {
	// LoadsCreatedBy returns the ids of loads created by the employee.
	LoadsCreatedBy(ctx context.Context, empID string) ([]string, error)

	// BidAssignments returns the (load, bid) pairs assigned to the employee.
	BidAssignments(ctx context.Context, empID string) ([]model.Subject, error)
}

// SubjectSource determines which subjects the user monitors this tick.
type SubjectSource interface {
	DiscoverSubjects(ctx context.Context, user model.User) ([]model.Subject, error)
}
