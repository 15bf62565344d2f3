package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Business, error)
	Create(ctx context.Context, business *Business) error
	Update(ctx context.Context, business *Business) error

	// LockForUpdate loads the business row under a row lock. Must run
	// inside the supplied transaction.
	LockForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Business, error)

	// NextDocumentNumber increments the sequence for the given document
	// model ("55" or "65") and returns the allocated number. Must run
	// inside the supplied transaction, after LockForUpdate.
	NextDocumentNumber(ctx context.Context, tx *gorm.DB, business *Business, model string) (int64, error)
}
