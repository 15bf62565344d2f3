package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/notazul/notazul/internal/fiscalrule/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) ruledomain.Repository {
	return &repository{db: db}
}

func (r *repository) FindOperationForNCM(ctx context.Context, businessID snowflake.ID, ncm, documentModel string) (*ruledomain.FiscalOperation, error) {
	if documentModel != "" {
		op, err := r.findOperation(ctx, businessID, ncm, documentModel)
		if err != nil {
			return nil, err
		}
		if op != nil {
			return op, nil
		}
	}
	return r.findOperation(ctx, businessID, ncm, "")
}

func (r *repository) findOperation(ctx context.Context, businessID snowflake.ID, ncm, documentModel string) (*ruledomain.FiscalOperation, error) {
	var op ruledomain.FiscalOperation
	stmt := r.db.WithContext(ctx).Raw(
		`SELECT fo.* FROM fiscal_operations fo
		 JOIN ncm_group_items gi ON gi.group_id = fo.ncm_group_id
		 WHERE fo.business_id = ? AND gi.ncm = ? AND fo.active = true
		   AND (? = '' OR fo.document_model = ?)
		 ORDER BY fo.id ASC
		 LIMIT 1`,
		businessID, ncm, documentModel, documentModel,
	)
	if err := stmt.Scan(&op).Error; err != nil {
		return nil, err
	}
	if op.ID == 0 {
		return nil, nil
	}
	return &op, nil
}

func (r *repository) FindOriginDestination(ctx context.Context, businessID snowflake.ID, origin, destination string, imported bool) (*ruledomain.ICMSOriginDestination, error) {
	var entry ruledomain.ICMSOriginDestination
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM icms_origin_destinations
		 WHERE business_id = ? AND origin_state = ? AND destination_state = ? AND imported = ?
		 LIMIT 1`,
		businessID, origin, destination, imported,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}
