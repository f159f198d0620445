package enums

import "fmt"

// ListingStatus is the lifecycle state of a listing on a store account.
type ListingStatus string

const (
	ListingStatusPending  ListingStatus = "Pending"
	ListingStatusActive   ListingStatus = "Active"
	ListingStatusPaused   ListingStatus = "Paused"
	ListingStatusEnded    ListingStatus = "Ended"
	ListingStatusDelisted ListingStatus = "Delisted"
)

var validListingStatuses = []ListingStatus{
	ListingStatusPending,
	ListingStatusActive,
	ListingStatusPaused,
	ListingStatusEnded,
	ListingStatusDelisted,
}

// listingTransitions lists the legal targets for every status. Delisted is terminal.
var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingStatusPending:  {ListingStatusActive, ListingStatusDelisted},
	ListingStatusActive:   {ListingStatusPaused, ListingStatusEnded, ListingStatusDelisted},
	ListingStatusPaused:   {ListingStatusActive, ListingStatusEnded, ListingStatusDelisted},
	ListingStatusEnded:    {ListingStatusDelisted, ListingStatusActive},
	ListingStatusDelisted: {},
}

// String implements fmt.Stringer.
func (s ListingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ListingStatus.
func (s ListingStatus) IsValid() bool {
	for _, candidate := range validListingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the statuses reachable from s.
func (s ListingStatus) AllowedTransitions() []ListingStatus {
	targets := listingTransitions[s]
	out := make([]ListingStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransitionTo reports whether moving from s to target is legal. Self-transitions never are.
func (s ListingStatus) CanTransitionTo(target ListingStatus) bool {
	for _, candidate := range listingTransitions[s] {
		if candidate == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s ListingStatus) IsTerminal() bool {
	return s.IsValid() && len(listingTransitions[s]) == 0
}

// ParseListingStatus converts raw input into a ListingStatus.
func ParseListingStatus(value string) (ListingStatus, error) {
	for _, candidate := range validListingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing status %q", value)
}
