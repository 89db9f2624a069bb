package enums

import "fmt"

// StockMoveType names the ledger mutation a StockMove row records.
// Manual adjustments carry their reason as a suffix, e.g. "ADJUST:damage".
type StockMoveType string

const (
	StockMoveInboundReceive  StockMoveType = "INBOUND_RECEIVE"
	StockMoveOutboundReserve StockMoveType = "OUTBOUND_RESERVE"
	StockMoveOutboundPick    StockMoveType = "OUTBOUND_PICK"
	StockMoveOutboundShip    StockMoveType = "OUTBOUND_SHIP"

	stockMoveAdjustPrefix          = "ADJUST:"
	stockMoveContainerAdjustPrefix = "CONTAINER_ADJUST:"
)

// String implements fmt.Stringer.
func (t StockMoveType) String() string {
	return string(t)
}

// StockMoveAdjust builds the move type for a manual location-level adjustment.
func StockMoveAdjust(reason string) StockMoveType {
	return StockMoveType(stockMoveAdjustPrefix + reason)
}

// StockMoveContainerAdjust builds the move type for a manual container-level adjustment.
func StockMoveContainerAdjust(reason string) StockMoveType {
	return StockMoveType(stockMoveContainerAdjustPrefix + reason)
}

// ParseStockMoveType validates raw input against the known move types,
// accepting reason-suffixed adjustment values.
func ParseStockMoveType(value string) (StockMoveType, error) {
	switch StockMoveType(value) {
	case StockMoveInboundReceive, StockMoveOutboundReserve, StockMoveOutboundPick, StockMoveOutboundShip:
		return StockMoveType(value), nil
	}
	if len(value) > len(stockMoveAdjustPrefix) && value[:len(stockMoveAdjustPrefix)] == stockMoveAdjustPrefix {
		return StockMoveType(value), nil
	}
	if len(value) > len(stockMoveContainerAdjustPrefix) && value[:len(stockMoveContainerAdjustPrefix)] == stockMoveContainerAdjustPrefix {
		return StockMoveType(value), nil
	}
	return "", fmt.Errorf("invalid stock move type %q", value)
}
