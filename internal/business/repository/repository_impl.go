package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) businessdomain.Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*businessdomain.Business, error) {
	var business businessdomain.Business
	err := r.db.WithContext(ctx).First(&business, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, businessdomain.ErrNotFound
		}
		return nil, err
	}
	return &business, nil
}

func (r *repository) Create(ctx context.Context, business *businessdomain.Business) error {
	return r.db.WithContext(ctx).Create(business).Error
}

func (r *repository) Update(ctx context.Context, business *businessdomain.Business) error {
	return r.db.WithContext(ctx).Save(business).Error
}

func (r *repository) LockForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*businessdomain.Business, error) {
	var business businessdomain.Business
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM businesses WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&business).Error
	if err != nil {
		return nil, err
	}
	if business.ID == 0 {
		return nil, businessdomain.ErrNotFound
	}
	return &business, nil
}

func (r *repository) NextDocumentNumber(ctx context.Context, tx *gorm.DB, business *businessdomain.Business, model string) (int64, error) {
	var column string
	var next int64
	switch model {
	case "55":
		next = business.NFeLastNumber + 1
		business.NFeLastNumber = next
		column = "nfe_last_number"
	case "65":
		next = business.NFCeLastNumber + 1
		business.NFCeLastNumber = next
		column = "nfce_last_number"
	default:
		return 0, businessdomain.ErrUnknownModel
	}

	err := tx.WithContext(ctx).Model(&businessdomain.Business{}).
		Where("id = ?", business.ID).
		Update(column, next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}
