package domain

import (
	"context"

	businessdomain "github.com/notazul/notazul/internal/business/domain"
	clientdomain "github.com/notazul/notazul/internal/client/domain"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
)

// ResolveOptions tunes resolution behavior.
type ResolveOptions struct {
	// Strict fails the whole resolution when an item has no matching
	// fiscal operation. Lenient mode leaves such items untouched.
	Strict bool
}

// Resolver applies fiscal operations to order items in memory. The
// caller persists the mutated order.
type Resolver interface {
	ResolveOrder(ctx context.Context, order *orderdomain.Order, business *businessdomain.Business, client *clientdomain.Client, opts ResolveOptions) error
}
