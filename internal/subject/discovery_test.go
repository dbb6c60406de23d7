package subject

import (
	"context"
	"errors"
	"testing"

	"github.com/nhle/broker-console/internal/model"
)

type fakeLister struct {
	loads       []string
	assignments []model.Subject
	err         error
	loadCalls   int
	bidCalls    int
}

func (f *fakeLister) LoadsCreatedBy(_ context.Context, _ string) ([]string, error) {
	f.loadCalls++
	return f.loads, f.err
}

func (f *fakeLister) BidAssignments(_ context.Context, _ string) ([]model.Subject, error) {
	f.bidCalls++
	return f.assignments, f.err
}

func TestSalesUserMonitorsCreatedLoads(t *testing.T) {
	lister := &fakeLister{loads: []string{"load-1", "load-2", "load-1"}}
	src := NewRoleSource(lister)

	subjects, err := src.DiscoverSubjects(context.Background(), model.User{ID: "emp-1", Role: "Sales"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("expected 2 de-duplicated subjects, got %v", subjects)
	}
	for _, s := range subjects {
		if s.HasBid() {
			t.Fatalf("sales subjects must not carry a bid id: %+v", s)
		}
	}
	if lister.bidCalls != 0 {
		t.Fatalf("sales discovery must not list bid assignments")
	}
}

func TestOtherRolesMonitorAssignments(t *testing.T) {
	lister := &fakeLister{assignments: []model.Subject{
		{LoadID: "load-1", BidID: "bid-1"},
		{LoadID: "load-2", BidID: "bid-2"},
		{},
	}}
	src := NewRoleSource(lister)

	subjects, err := src.DiscoverSubjects(context.Background(), model.User{ID: "emp-1", Role: "dispatch"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("expected 2 subjects, got %v", subjects)
	}
	if subjects[1].LoadID != "load-2" || subjects[1].BidID != "bid-2" {
		t.Fatalf("unexpected subject %+v", subjects[1])
	}
	if lister.loadCalls != 0 {
		t.Fatalf("assignment discovery must not list created loads")
	}
}

func TestDiscoveryFailureIsReturned(t *testing.T) {
	lister := &fakeLister{err: errors.New("boom")}
	src := NewRoleSource(lister)

	subjects, err := src.DiscoverSubjects(context.Background(), model.User{ID: "emp-1"})
	if err == nil {
		t.Fatalf("expected discovery error")
	}
	if len(subjects) != 0 {
		t.Fatalf("expected no subjects on failure, got %v", subjects)
	}
}

func TestRoleSourceFollowsRoleOnEveryCall(t *testing.T) {
	lister := &fakeLister{
		loads:       []string{"load-1"},
		assignments: []model.Subject{{LoadID: "load-2", BidID: "bid-2"}},
	}
	src := NewRoleSource(lister)

	if _, err := src.DiscoverSubjects(context.Background(), model.User{ID: "emp-1", Role: "sales"}); err != nil {
		t.Fatalf("discover: %v", err)
	}
	subjects, err := src.DiscoverSubjects(context.Background(), model.User{ID: "emp-1", Role: "dispatch"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if lister.loadCalls != 1 || lister.bidCalls != 1 {
		t.Fatalf("expected one call per variant, got loads=%d bids=%d", lister.loadCalls, lister.bidCalls)
	}
	if len(subjects) != 1 || subjects[0].BidID != "bid-2" {
		t.Fatalf("expected assignment subjects after the role change, got %v", subjects)
	}
}
