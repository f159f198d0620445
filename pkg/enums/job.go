package enums

import "fmt"

// JobStatus tracks a queued job for operator visibility.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// String implements fmt.Stringer.
func (s JobStatus) String() string {
	return string(s)
}

// JobKind selects the handler a queued job runs.
type JobKind string

const (
	JobKindTrackProduct      JobKind = "track_product"
	JobKindCheckPolicies     JobKind = "check_policies"
	JobKindTransitionListing JobKind = "transition_listing"
	JobKindSyncListing       JobKind = "sync_listing"
	JobKindImportProduct     JobKind = "import_product"
)

var validJobKinds = []JobKind{
	JobKindTrackProduct,
	JobKindCheckPolicies,
	JobKindTransitionListing,
	JobKindSyncListing,
	JobKindImportProduct,
}

// String implements fmt.Stringer.
func (k JobKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known JobKind.
func (k JobKind) IsValid() bool {
	for _, candidate := range validJobKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseJobKind converts raw input into a JobKind.
func ParseJobKind(value string) (JobKind, error) {
	for _, candidate := range validJobKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job kind %q", value)
}
