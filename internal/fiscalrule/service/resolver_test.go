package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	clientdomain "github.com/notazul/notazul/internal/client/domain"
	ruledomain "github.com/notazul/notazul/internal/fiscalrule/domain"
	"github.com/notazul/notazul/internal/fiscalrule/repository"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func setupResolver(t *testing.T) (*gorm.DB, ruledomain.Resolver, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&ruledomain.NCMGroup{},
		&ruledomain.NCMGroupItem{},
		&ruledomain.FiscalOperation{},
		&ruledomain.ICMSOriginDestination{},
	))

	resolver := NewResolver(resolverParam{
		Repository: repository.NewRepository(db),
		Log:        zap.NewNop(),
	})
	return db, resolver, mustNode(t)
}

func seedOperation(t *testing.T, db *gorm.DB, node *snowflake.Node, businessID snowflake.ID, ncm string, op ruledomain.FiscalOperation) ruledomain.FiscalOperation {
	t.Helper()
	group := ruledomain.NCMGroup{ID: node.Generate(), BusinessID: businessID, Name: "grupo " + ncm}
	require.NoError(t, db.Create(&group).Error)
	require.NoError(t, db.Create(&ruledomain.NCMGroupItem{
		ID:      node.Generate(),
		GroupID: group.ID,
		NCM:     ncm,
	}).Error)

	op.ID = node.Generate()
	op.BusinessID = businessID
	op.NCMGroupID = group.ID
	op.Active = true
	require.NoError(t, db.Create(&op).Error)
	return op
}

func TestResolveOrderAppliesRates(t *testing.T) {
	db, resolver, node := setupResolver(t)
	business := &businessdomain.Business{ID: node.Generate(), State: "RS"}

	seedOperation(t, db, node, business.ID, "22021000", ruledomain.FiscalOperation{
		NatureOperation: "VENDA",
		CFOP:            "5102",
		CSOSN:           "102",
		CalculateICMS:   true,
		ICMSRate:        decimal.RequireFromString("18"),
		PISCST:          "01",
		PISRate:         decimal.RequireFromString("1.65"),
		COFINSCST:       "01",
		COFINSRate:      decimal.RequireFromString("7.6"),
	})

	order := &orderdomain.Order{
		ID:         node.Generate(),
		BusinessID: business.ID,
		Items: []orderdomain.OrderItem{{
			ItemNumber: 1,
			NCM:        "22021000",
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  decimal.RequireFromString("33.33"),
		}},
	}

	err := resolver.ResolveOrder(context.Background(), order, business, nil, ruledomain.ResolveOptions{Strict: true})
	require.NoError(t, err)

	item := order.Items[0]
	assert.Equal(t, "5102", item.CFOP)
	assert.Equal(t, "102", item.CSOSN)
	assert.Equal(t, "33.33", item.ICMSBasis.StringFixed(2))
	// 33.33 * 18% = 5.9994, rounded half up
	assert.Equal(t, "6.00", item.ICMSValue.StringFixed(2))
	assert.Equal(t, "0.55", item.PISValue.StringFixed(2))
	assert.Equal(t, "2.53", item.COFINSValue.StringFixed(2))

	// Header backfill
	assert.Equal(t, "VENDA", order.NatureOperation)
	assert.Equal(t, "5102", order.CFOP)
}

func TestResolveOrderStrictVsLenient(t *testing.T) {
	_, resolver, node := setupResolver(t)
	business := &businessdomain.Business{ID: node.Generate(), State: "RS"}

	order := &orderdomain.Order{
		ID:         node.Generate(),
		BusinessID: business.ID,
		Items: []orderdomain.OrderItem{{
			ItemNumber: 1,
			NCM:        "99999999",
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  decimal.NewFromInt(10),
		}},
	}

	err := resolver.ResolveOrder(context.Background(), order, business, nil, ruledomain.ResolveOptions{Strict: true})
	require.ErrorIs(t, err, ruledomain.ErrNoOperationForNCM)

	err = resolver.ResolveOrder(context.Background(), order, business, nil, ruledomain.ResolveOptions{})
	require.NoError(t, err)
	assert.Empty(t, order.Items[0].CFOP)
	assert.True(t, order.Items[0].ICMSValue.IsZero())
}

func TestResolveOrderItemWithoutNCMIsSkipped(t *testing.T) {
	_, resolver, node := setupResolver(t)
	business := &businessdomain.Business{ID: node.Generate(), State: "RS"}

	order := &orderdomain.Order{
		ID:         node.Generate(),
		BusinessID: business.ID,
		Items: []orderdomain.OrderItem{{
			ItemNumber: 1,
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  decimal.NewFromInt(10),
			// Stale values from an earlier billing attempt
			CFOP:      "5102",
			CSOSN:     "102",
			ICMSBasis: decimal.NewFromInt(10),
			ICMSValue: decimal.RequireFromString("1.80"),
			PISCST:    "01",
			PISValue:  decimal.RequireFromString("0.17"),
		}},
	}

	err := resolver.ResolveOrder(context.Background(), order, business, nil, ruledomain.ResolveOptions{})
	require.NoError(t, err)

	item := order.Items[0]
	assert.Empty(t, item.CFOP)
	assert.Empty(t, item.CSOSN)
	assert.Empty(t, item.PISCST)
	assert.True(t, item.ICMSBasis.IsZero())
	assert.True(t, item.ICMSValue.IsZero())
	assert.True(t, item.PISValue.IsZero())
}

func TestResolveOrderClearsStaleFieldsOnUnmatchedItem(t *testing.T) {
	_, resolver, node := setupResolver(t)
	business := &businessdomain.Business{ID: node.Generate(), State: "RS"}

	stale := orderdomain.OrderItem{
		ItemNumber:  1,
		NCM:         "99999999",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.NewFromInt(50),
		CFOP:        "5102",
		CST:         "00",
		ICMSBasis:   decimal.NewFromInt(50),
		ICMSRate:    decimal.RequireFromString("18"),
		ICMSValue:   decimal.NewFromInt(9),
		COFINSCST:   "01",
		COFINSValue: decimal.RequireFromString("3.80"),
	}

	// Lenient: the item is skipped but must not keep its old tax values.
	order := &orderdomain.Order{ID: node.Generate(), BusinessID: business.ID, Items: []orderdomain.OrderItem{stale}}
	err := resolver.ResolveOrder(context.Background(), order, business, nil, ruledomain.ResolveOptions{})
	require.NoError(t, err)

	item := order.Items[0]
	assert.Empty(t, item.CFOP)
	assert.Empty(t, item.CST)
	assert.Empty(t, item.COFINSCST)
	assert.True(t, item.ICMSBasis.IsZero())
	assert.True(t, item.ICMSRate.IsZero())
	assert.True(t, item.ICMSValue.IsZero())
	assert.True(t, item.COFINSValue.IsZero())

	// Strict: fields are cleared before the error surfaces.
	order = &orderdomain.Order{ID: node.Generate(), BusinessID: business.ID, Items: []orderdomain.OrderItem{stale}}
	err = resolver.ResolveOrder(context.Background(), order, business, nil, ruledomain.ResolveOptions{Strict: true})
	require.ErrorIs(t, err, ruledomain.ErrNoOperationForNCM)
	assert.Empty(t, order.Items[0].CFOP)
	assert.True(t, order.Items[0].ICMSValue.IsZero())
}

func TestResolveOrderModelSpecificOperationWins(t *testing.T) {
	db, resolver, node := setupResolver(t)
	business := &businessdomain.Business{ID: node.Generate(), State: "RS"}

	seedOperation(t, db, node, business.ID, "61091000", ruledomain.FiscalOperation{
		CFOP:          "5102",
		CalculateICMS: true,
		ICMSRate:      decimal.RequireFromString("18"),
	})
	seedOperation(t, db, node, business.ID, "61091000", ruledomain.FiscalOperation{
		DocumentModel: orderdomain.ModelNFCe,
		CFOP:          "5405",
		CalculateICMS: false,
	})

	order := &orderdomain.Order{
		ID:            node.Generate(),
		BusinessID:    business.ID,
		DocumentModel: orderdomain.ModelNFCe,
		Items: []orderdomain.OrderItem{{
			ItemNumber: 1,
			NCM:        "61091000",
			Quantity:   decimal.NewFromInt(2),
			UnitPrice:  decimal.NewFromInt(25),
		}},
	}

	err := resolver.ResolveOrder(context.Background(), order, business, nil, ruledomain.ResolveOptions{Strict: true})
	require.NoError(t, err)

	item := order.Items[0]
	assert.Equal(t, "5405", item.CFOP)
	assert.True(t, item.ICMSValue.IsZero())
	assert.True(t, item.ICMSBasis.IsZero())
}

func TestResolveOrderRouteTable(t *testing.T) {
	db, resolver, node := setupResolver(t)
	business := &businessdomain.Business{ID: node.Generate(), State: "RS"}
	client := &clientdomain.Client{ID: node.Generate(), State: "SP"}

	seedOperation(t, db, node, business.ID, "22021000", ruledomain.FiscalOperation{
		CFOP:                      "6102",
		CalculateICMS:             true,
		UseOriginDestinationTable: true,
	})
	require.NoError(t, db.Create(&ruledomain.ICMSOriginDestination{
		ID:               node.Generate(),
		BusinessID:       business.ID,
		OriginState:      "RS",
		DestinationState: "SP",
		InternalRate:     decimal.RequireFromString("17"),
		InterstateRate:   decimal.RequireFromString("12"),
	}).Error)

	order := &orderdomain.Order{
		ID:            node.Generate(),
		BusinessID:    business.ID,
		DocumentModel: orderdomain.ModelNFe,
		Items: []orderdomain.OrderItem{{
			ItemNumber: 1,
			NCM:        "22021000",
			Origin:     "0",
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  decimal.NewFromInt(100),
		}},
	}

	err := resolver.ResolveOrder(context.Background(), order, business, client, ruledomain.ResolveOptions{Strict: true})
	require.NoError(t, err)
	assert.Equal(t, "12", order.Items[0].ICMSRate.String())
	assert.Equal(t, "12.00", order.Items[0].ICMSValue.StringFixed(2))
}

func TestResolveOrderRouteTableNFCeUsesInternalRate(t *testing.T) {
	db, resolver, node := setupResolver(t)
	business := &businessdomain.Business{ID: node.Generate(), State: "RS"}
	client := &clientdomain.Client{ID: node.Generate(), State: "SP"}

	seedOperation(t, db, node, business.ID, "22021000", ruledomain.FiscalOperation{
		CFOP:                      "5102",
		CalculateICMS:             true,
		UseOriginDestinationTable: true,
	})
	require.NoError(t, db.Create(&ruledomain.ICMSOriginDestination{
		ID:               node.Generate(),
		BusinessID:       business.ID,
		OriginState:      "RS",
		DestinationState: "RS",
		InternalRate:     decimal.RequireFromString("17"),
		InterstateRate:   decimal.RequireFromString("12"),
	}).Error)

	// NFC-e always taxes at the counter, regardless of the client address
	order := &orderdomain.Order{
		ID:            node.Generate(),
		BusinessID:    business.ID,
		DocumentModel: orderdomain.ModelNFCe,
		Items: []orderdomain.OrderItem{{
			ItemNumber: 1,
			NCM:        "22021000",
			Origin:     "0",
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  decimal.NewFromInt(100),
		}},
	}

	err := resolver.ResolveOrder(context.Background(), order, business, client, ruledomain.ResolveOptions{Strict: true})
	require.NoError(t, err)
	assert.Equal(t, "17.00", order.Items[0].ICMSValue.StringFixed(2))
}

func TestResolveOrderMissingRouteYieldsZeroRate(t *testing.T) {
	db, resolver, node := setupResolver(t)
	business := &businessdomain.Business{ID: node.Generate(), State: "RS"}

	seedOperation(t, db, node, business.ID, "22021000", ruledomain.FiscalOperation{
		CFOP:                      "5102",
		CalculateICMS:             true,
		UseOriginDestinationTable: true,
	})

	order := &orderdomain.Order{
		ID:            node.Generate(),
		BusinessID:    business.ID,
		DocumentModel: orderdomain.ModelNFe,
		Items: []orderdomain.OrderItem{{
			ItemNumber: 1,
			NCM:        "22021000",
			Origin:     "0",
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  decimal.NewFromInt(100),
		}},
	}

	err := resolver.ResolveOrder(context.Background(), order, business, nil, ruledomain.ResolveOptions{Strict: true})
	require.NoError(t, err)
	assert.True(t, order.Items[0].ICMSRate.IsZero())
	assert.True(t, order.Items[0].ICMSValue.IsZero())
	assert.Equal(t, "100.00", order.Items[0].ICMSBasis.StringFixed(2))
}
