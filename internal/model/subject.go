package model

// Subject identifies a monitored conversation: a load and, for
// negotiations, the bid on that load.
type Subject struct {
	LoadID string `json:"load_id"`

	// BidID is empty when the subject has no bid (sales-created loads).
	BidID string `json:"bid_id,omitempty"`
}

// HasLoad reports whether the subject carries a load id.
func (s Subject) HasLoad() bool { return s.LoadID != "" }

// HasBid reports whether the subject carries a bid id.
func (s Subject) HasBid() bool { return s.BidID != "" }

// Key returns a stable string key for de-duplicating subjects.
func (s Subject) Key() string {
	return s.LoadID + "/" + s.BidID
}
