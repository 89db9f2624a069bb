package enums

// BindingStatus is the derived bound/unbound state of a location or
// container. It is computed from the container table on read and never
// persisted, so it cannot drift from the authoritative binding row.
type BindingStatus string

const (
	BindingStatusBound   BindingStatus = "BOUND"
	BindingStatusUnbound BindingStatus = "UNBOUND"
)

// String implements fmt.Stringer.
func (s BindingStatus) String() string {
	return string(s)
}

// BindingStatusFor maps a has-binding flag to its status value.
func BindingStatusFor(bound bool) BindingStatus {
	if bound {
		return BindingStatusBound
	}
	return BindingStatusUnbound
}
