package enums

import "fmt"

// LocationStatus marks whether a storage location accepts operations.
type LocationStatus string

const (
	LocationStatusActive   LocationStatus = "ACTIVE"
	LocationStatusDisabled LocationStatus = "DISABLED"
)

var validLocationStatuses = []LocationStatus{
	LocationStatusActive,
	LocationStatusDisabled,
}

// String implements fmt.Stringer.
func (s LocationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LocationStatus.
func (s LocationStatus) IsValid() bool {
	for _, candidate := range validLocationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLocationStatus converts raw input into a LocationStatus.
func ParseLocationStatus(value string) (LocationStatus, error) {
	for _, candidate := range validLocationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid location status %q", value)
}
