package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Generator turns billed orders into draft fiscal documents.
type Generator interface {
	// Generate allocates a document number and creates the invoice with
	// emitter, recipient, item, payment and transport snapshots. The
	// order must be billed and carry a document model.
	Generate(ctx context.Context, orderID snowflake.ID) (*Invoice, error)

	// RecalculateTotals recomputes the invoice totals from its items and
	// persists them. Only editable invoices may be recalculated.
	RecalculateTotals(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)
}
