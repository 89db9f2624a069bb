package orders

import (
	"github.com/google/uuid"

	"github.com/stocklinehq/stockline-backend/internal/actor"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
)

// LineInput is one requested material/quantity pair at order creation.
type LineInput struct {
	MaterialID uuid.UUID
	Qty        int64
}

// CreateInput creates an inbound or outbound order in CREATED state.
// Outbound orders require a source location; inbound orders require a
// target location.
type CreateInput struct {
	OrderNo          string
	Type             enums.OrderType
	Partner          string
	SourceLocationID *uuid.UUID
	TargetLocationID *uuid.UUID
	Lines            []LineInput
	Actor            actor.Actor
}

// ReceiveInput moves an inbound order CREATED -> RECEIVED.
type ReceiveInput struct {
	OrderID uuid.UUID
	Actor   actor.Actor
}

// ReserveInput moves an outbound order CREATED -> RESERVED. With Force,
// reservation is capped at the available quantity instead of failing.
type ReserveInput struct {
	OrderID uuid.UUID
	Force   bool
	Actor   actor.Actor
}

// PickInput moves an outbound order RESERVED -> PICKED, staging the
// reserved stock at the given location.
type PickInput struct {
	OrderID           uuid.UUID
	StagingLocationID *uuid.UUID
	Actor             actor.Actor
}

// PackInput moves an outbound order PICKED -> PACKED.
type PackInput struct {
	OrderID uuid.UUID
	Actor   actor.Actor
}

// ShipInput moves an outbound order PACKED -> SHIPPED.
type ShipInput struct {
	OrderID uuid.UUID
	Actor   actor.Actor
}

// TransitionResult reports the order state after a transition.
type TransitionResult struct {
	Order *models.Order      `json:"order"`
	Lines []models.OrderLine `json:"lines"`
}
