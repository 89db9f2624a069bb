package enums

import "fmt"

// OrderStatus tracks the lifecycle of an inbound or outbound order.
// Inbound orders move CREATED -> RECEIVED; outbound orders move
// CREATED -> RESERVED -> PICKED -> PACKED -> SHIPPED.
type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "CREATED"
	OrderStatusReceived OrderStatus = "RECEIVED"
	OrderStatusReserved OrderStatus = "RESERVED"
	OrderStatusPicked   OrderStatus = "PICKED"
	OrderStatusPacked   OrderStatus = "PACKED"
	OrderStatusShipped  OrderStatus = "SHIPPED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusReceived,
	OrderStatusReserved,
	OrderStatusPicked,
	OrderStatusPacked,
	OrderStatusShipped,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusReceived || s == OrderStatusShipped
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
