// Package subject decides which (load, bid) conversations the signed-in
// user monitors.
package subject

import (
	"context"
	"fmt"

	"github.com/nhle/broker-console/internal/model"
	"github.com/nhle/broker-console/internal/source"
)

// SalesSubjectSource monitors the loads a sales user created. Bid ids are
// left empty, so negotiation polling is skipped for these subjects.
type SalesSubjectSource struct {
	lister source.SubjectLister
}

// NewSalesSubjectSource creates a SalesSubjectSource.
func NewSalesSubjectSource(lister source.SubjectLister) *SalesSubjectSource {
	return &SalesSubjectSource{lister: lister}
}

// DiscoverSubjects returns one subject per load created by the user.
func (s *SalesSubjectSource) DiscoverSubjects(
	ctx context.Context,
	user model.User,
) ([]model.Subject, error) {
	loadIDs, err := s.lister.LoadsCreatedBy(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("discovering sales subjects: %w", err)
	}

	subjects := make([]model.Subject, 0, len(loadIDs))
	for _, id := range loadIDs {
		subjects = append(subjects, model.Subject{LoadID: id})
	}
	return dedupe(subjects), nil
}

// AssignmentSubjectSource monitors the bids assigned to the user. Each
// assignment yields both a load id and a bid id.
type AssignmentSubjectSource struct {
	lister source.SubjectLister
}

// NewAssignmentSubjectSource creates an AssignmentSubjectSource.
func NewAssignmentSubjectSource(lister source.SubjectLister) *AssignmentSubjectSource {
	return &AssignmentSubjectSource{lister: lister}
}

// DiscoverSubjects returns one subject per bid assignment.
func (s *AssignmentSubjectSource) DiscoverSubjects(
	ctx context.Context,
	user model.User,
) ([]model.Subject, error) {
	assigned, err := s.lister.BidAssignments(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("discovering assigned subjects: %w", err)
	}
	return dedupe(assigned), nil
}

// RoleSource picks the discovery variant from the user's role on every
// call, so a role change in the session takes effect on the next tick.
type RoleSource struct {
	lister source.SubjectLister
}

// NewRoleSource creates a RoleSource backed by lister.
func NewRoleSource(lister source.SubjectLister) *RoleSource {
	return &RoleSource{lister: lister}
}

// DiscoverSubjects delegates to the variant matching the user's role.
func (r *RoleSource) DiscoverSubjects(
	ctx context.Context,
	user model.User,
) ([]model.Subject, error) {
	return ForUser(user, r.lister).DiscoverSubjects(ctx, user)
}

// ForUser returns the sales variant for sales users and the assignment
// variant for everyone else.
func ForUser(user model.User, lister source.SubjectLister) source.SubjectSource {
	if user.IsSales() {
		return NewSalesSubjectSource(lister)
	}
	return NewAssignmentSubjectSource(lister)
}

// dedupe drops empty and repeated subjects, keeping first-seen order.
func dedupe(subjects []model.Subject) []model.Subject {
	seen := make(map[string]bool, len(subjects))
	out := subjects[:0]
	for _, s := range subjects {
		if !s.HasLoad() && !s.HasBid() {
			continue
		}
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		out = append(out, s)
	}
	return out
}
