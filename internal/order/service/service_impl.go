package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	clientdomain "github.com/notazul/notazul/internal/client/domain"
	ruledomain "github.com/notazul/notazul/internal/fiscalrule/domain"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"github.com/notazul/notazul/pkg/db"
	"github.com/notazul/notazul/pkg/db/option"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	BusinessRepo businessdomain.Repository
	Resolver     ruledomain.Resolver
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	businessRepo businessdomain.Repository
	resolver     ruledomain.Resolver
}

func NewService(p ServiceParam) orderdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("order.service"),

		businessRepo: p.BusinessRepo,
		resolver:     p.Resolver,
	}
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := db.FindOne(ctx, s.db, &orderdomain.Order{ID: id},
		option.WithPreload("Items"),
		option.WithPreload("Payments"),
	)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	return order, nil
}

func (s *Service) Transition(ctx context.Context, id snowflake.ID, to string) (*orderdomain.Order, error) {
	order, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := order.Transition(to); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&orderdomain.Order{}).
		Where("id = ?", order.ID).
		Update("status", order.Status).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) Bill(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(order.Items) == 0 {
		return nil, orderdomain.ErrNoItems
	}
	if err := order.Transition(orderdomain.StatusBilled); err != nil {
		return nil, err
	}

	business, err := s.businessRepo.FindByID(ctx, order.BusinessID)
	if err != nil {
		return nil, err
	}
	var client *clientdomain.Client
	if order.ClientID != nil {
		client, err = db.FindOne(ctx, s.db, &clientdomain.Client{ID: *order.ClientID})
		if err != nil {
			return nil, err
		}
	}

	if err := s.resolver.ResolveOrder(ctx, order, business, client, ruledomain.ResolveOptions{Strict: true}); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Model(&orderdomain.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status":           order.Status,
				"nature_operation": order.NatureOperation,
				"cfop":             order.CFOP,
				"document_model":   order.DocumentModel,
			}).Error; err != nil {
			return err
		}
		for i := range order.Items {
			item := &order.Items[i]
			if err := tx.WithContext(ctx).Save(item).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order billed",
		zap.Int64("order_id", int64(order.ID)),
		zap.String("document_model", order.DocumentModel),
	)
	return order, nil
}
