package eligibility

import (
	"context"
)

// Checker answers whether an owner may move money. The real check lives in
// an external identity service; the ledger engine only consumes this
// boundary and calls it before acquiring any hold.
type Checker interface {
	IsEligible(ctx context.Context, ownerID string) (bool, error)
}

// Static is an in-process checker: every owner is eligible unless blocked.
type Static struct {
	blocked map[string]struct{}
}

// NewStatic builds a checker that rejects only the given owner IDs.
func NewStatic(blockedIDs ...string) *Static {
	blocked := make(map[string]struct{}, len(blockedIDs))
	for _, id := range blockedIDs {
		blocked[id] = struct{}{}
	}
	return &Static{blocked: blocked}
}

func (s *Static) IsEligible(_ context.Context, ownerID string) (bool, error) {
	if ownerID == "" {
		return false, nil
	}
	_, blocked := s.blocked[ownerID]
	return !blocked, nil
}
