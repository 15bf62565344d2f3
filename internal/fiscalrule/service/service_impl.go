package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	catalogdomain "github.com/notazul/notazul/internal/catalog/domain"
	clientdomain "github.com/notazul/notazul/internal/client/domain"
	ruledomain "github.com/notazul/notazul/internal/fiscalrule/domain"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

type resolverParam struct {
	fx.In

	Repository ruledomain.Repository
	Log        *zap.Logger
}

type resolver struct {
	repo ruledomain.Repository
	log  *zap.Logger
}

func NewResolver(p resolverParam) ruledomain.Resolver {
	return &resolver{
		repo: p.Repository,
		log:  p.Log.Named("fiscalrule.service"),
	}
}

func (r *resolver) ResolveOrder(ctx context.Context, order *orderdomain.Order, business *businessdomain.Business, client *clientdomain.Client, opts ruledomain.ResolveOptions) error {
	for i := range order.Items {
		item := &order.Items[i]

		op, err := r.operationForItem(ctx, business.ID, item, order.DocumentModel)
		if err != nil {
			return err
		}
		if op == nil {
			// The item must not carry tax values from a previous billing
			// attempt, matched or not.
			clearFiscalFields(item)
			if opts.Strict {
				return fmt.Errorf("item %d ncm %q: %w", item.ItemNumber, item.NCM, ruledomain.ErrNoOperationForNCM)
			}
			r.log.Debug("no fiscal operation for item, skipping",
				zap.Int("item_number", item.ItemNumber),
				zap.String("ncm", item.NCM),
			)
			continue
		}

		r.applyOperation(ctx, order, business, client, item, op)
		r.backfillHeader(order, op)
	}
	return nil
}

func clearFiscalFields(item *orderdomain.OrderItem) {
	item.CFOP = ""
	item.CSOSN = ""
	item.CST = ""
	item.ICMSBasis = decimal.Zero
	item.ICMSRate = decimal.Zero
	item.ICMSValue = decimal.Zero
	item.PISCST = ""
	item.PISRate = decimal.Zero
	item.PISValue = decimal.Zero
	item.COFINSCST = ""
	item.COFINSRate = decimal.Zero
	item.COFINSValue = decimal.Zero
}

func (r *resolver) operationForItem(ctx context.Context, businessID snowflake.ID, item *orderdomain.OrderItem, model string) (*ruledomain.FiscalOperation, error) {
	if item.NCM == "" {
		return nil, nil
	}
	return r.repo.FindOperationForNCM(ctx, businessID, item.NCM, model)
}

func (r *resolver) applyOperation(ctx context.Context, order *orderdomain.Order, business *businessdomain.Business, client *clientdomain.Client, item *orderdomain.OrderItem, op *ruledomain.FiscalOperation) {
	item.CFOP = op.CFOP
	item.CSOSN = op.CSOSN
	item.CST = op.CST

	basis := item.NetTotal()

	if op.CalculateICMS {
		rate := op.ICMSRate
		if op.UseOriginDestinationTable {
			rate = r.rateFromRouteTable(ctx, order, business, client, item)
		}
		item.ICMSBasis = basis.Round(2)
		item.ICMSRate = rate
		item.ICMSValue = basis.Mul(rate).Div(hundred).Round(2)
	} else {
		item.ICMSBasis = decimal.Zero
		item.ICMSRate = decimal.Zero
		item.ICMSValue = decimal.Zero
	}

	item.PISCST = op.PISCST
	item.PISRate = op.PISRate
	item.PISValue = basis.Mul(op.PISRate).Div(hundred).Round(2)

	item.COFINSCST = op.COFINSCST
	item.COFINSRate = op.COFINSRate
	item.COFINSValue = basis.Mul(op.COFINSRate).Div(hundred).Round(2)
}

// rateFromRouteTable resolves the ICMS rate from the origin/destination
// matrix. A missing route yields a zero rate so billing is never
// blocked by an incomplete matrix.
func (r *resolver) rateFromRouteTable(ctx context.Context, order *orderdomain.Order, business *businessdomain.Business, client *clientdomain.Client, item *orderdomain.OrderItem) decimal.Decimal {
	origin := business.State
	destination := business.State
	if order.DocumentModel != orderdomain.ModelNFCe && client != nil && client.State != "" {
		destination = client.State
	}
	imported := !catalogdomain.NationalOrigins[item.Origin]

	entry, err := r.repo.FindOriginDestination(ctx, business.ID, origin, destination, imported)
	if err != nil || entry == nil {
		r.log.Warn("icms route not found, using zero rate",
			zap.String("origin", origin),
			zap.String("destination", destination),
			zap.Bool("imported", imported),
			zap.Error(err),
		)
		return decimal.Zero
	}
	if origin == destination {
		return entry.InternalRate
	}
	return entry.InterstateRate
}

func (r *resolver) backfillHeader(order *orderdomain.Order, op *ruledomain.FiscalOperation) {
	if order.NatureOperation == "" {
		order.NatureOperation = op.NatureOperation
	}
	if order.CFOP == "" {
		order.CFOP = op.CFOP
	}
	if order.DocumentModel == "" && op.DocumentModel != "" {
		order.DocumentModel = op.DocumentModel
	}
}
