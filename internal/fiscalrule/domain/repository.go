package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	// FindOperationForNCM resolves the fiscal operation for an NCM code.
	// An operation bound to the exact document model wins; otherwise any
	// active operation for the NCM is returned. Nil means no match.
	FindOperationForNCM(ctx context.Context, businessID snowflake.ID, ncm, documentModel string) (*FiscalOperation, error)

	// FindOriginDestination returns the rate matrix entry for the route,
	// or nil when none is registered.
	FindOriginDestination(ctx context.Context, businessID snowflake.ID, origin, destination string, imported bool) (*ICMSOriginDestination, error)
}
