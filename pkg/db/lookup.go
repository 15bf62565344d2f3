package db

import (
	"context"
	"errors"

	"github.com/notazul/notazul/pkg/db/option"
	"gorm.io/gorm"
)

// FindOne loads the first row matching the non-zero fields of filter.
// A missing row yields (nil, nil) so callers map it to their own
// not-found error.
func FindOne[T any](ctx context.Context, conn *gorm.DB, filter *T, opts ...option.QueryOption) (*T, error) {
	stmt := conn.WithContext(ctx).Where(filter)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var result T
	if err := stmt.First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}
