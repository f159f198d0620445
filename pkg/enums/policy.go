package enums

import "fmt"

// AlertSeverity grades policy alerts.
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

var validAlertSeverities = []AlertSeverity{
	AlertSeverityInfo,
	AlertSeverityWarning,
	AlertSeverityCritical,
}

// String implements fmt.Stringer.
func (s AlertSeverity) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AlertSeverity.
func (s AlertSeverity) IsValid() bool {
	for _, candidate := range validAlertSeverities {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAlertSeverity converts raw input into an AlertSeverity.
func ParseAlertSeverity(value string) (AlertSeverity, error) {
	for _, candidate := range validAlertSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert severity %q", value)
}

// PolicyName identifies a policy check.
type PolicyName string

const (
	PolicyLowStock          PolicyName = "low_stock"
	PolicyPriceDrop         PolicyName = "price_drop"
	PolicyLowMargin         PolicyName = "low_margin"
	PolicyDuplicateListings PolicyName = "duplicate_listings"
)

// PolicyNames lists every policy in evaluation order.
var PolicyNames = []PolicyName{
	PolicyLowStock,
	PolicyPriceDrop,
	PolicyLowMargin,
	PolicyDuplicateListings,
}

// String implements fmt.Stringer.
func (p PolicyName) String() string {
	return string(p)
}

// AlertType returns the alert type recorded for violations of p.
func (p PolicyName) AlertType() string {
	return "policy_trigger:" + string(p)
}
