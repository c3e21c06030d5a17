package enums

import "fmt"

// EntitlementStatus tracks the lifecycle of a purchase record. Only
// `completed` grants access; a revoked entitlement is forced to `failed`
// with audit columns rather than deleted.
type EntitlementStatus string

const (
	EntitlementStatusPending   EntitlementStatus = "pending"
	EntitlementStatusCompleted EntitlementStatus = "completed"
	EntitlementStatusFailed    EntitlementStatus = "failed"
)

var validEntitlementStatuses = []EntitlementStatus{
	EntitlementStatusPending,
	EntitlementStatusCompleted,
	EntitlementStatusFailed,
}

// IsValid reports whether the value matches the canonical status enum.
func (s EntitlementStatus) IsValid() bool {
	for _, candidate := range validEntitlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEntitlementStatus converts the raw string to EntitlementStatus.
func ParseEntitlementStatus(value string) (EntitlementStatus, error) {
	for _, candidate := range validEntitlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entitlement status %q", value)
}
