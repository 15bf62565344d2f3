package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) invoicedomain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTrx(tx *gorm.DB) invoicedomain.Repository {
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		Preload("Transport").
		First(&invoice, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByAccessKey(ctx context.Context, accessKey string) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		Preload("Transport").
		First(&invoice, "access_key = ?", accessKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindActiveByOrder(ctx context.Context, orderID snowflake.ID, documentModel string) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND document_model = ? AND status IN ?", orderID, documentModel, invoicedomain.ActiveStatuses).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) Create(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) Save(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return r.db.WithContext(ctx).Omit("Items", "Payments", "Transport", "Events").Save(invoice).Error
}

func (r *repository) AddEvent(ctx context.Context, event *invoicedomain.InvoiceEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) AddLog(ctx context.Context, log *invoicedomain.InvoiceLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}
