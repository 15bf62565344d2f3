package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTrx(tx *gorm.DB) Repository

	FindByID(ctx context.Context, id snowflake.ID) (*Invoice, error)
	FindByAccessKey(ctx context.Context, accessKey string) (*Invoice, error)

	// FindActiveByOrder returns the draft, pending or authorized invoice
	// for the order and model, or nil.
	FindActiveByOrder(ctx context.Context, orderID snowflake.ID, documentModel string) (*Invoice, error)

	Create(ctx context.Context, invoice *Invoice) error
	Save(ctx context.Context, invoice *Invoice) error

	AddEvent(ctx context.Context, event *InvoiceEvent) error
	AddLog(ctx context.Context, log *InvoiceLog) error
}
