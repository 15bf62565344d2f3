package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service drives the order lifecycle up to billing.
type Service interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Order, error)

	// Transition moves the order along the status graph.
	Transition(ctx context.Context, id snowflake.ID, to string) (*Order, error)

	// Bill moves a picked order to billed, resolving fiscal rules for
	// every item in strict mode.
	Bill(ctx context.Context, id snowflake.ID) (*Order, error)
}
