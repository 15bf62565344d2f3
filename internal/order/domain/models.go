package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Document models accepted by the fiscal pipeline.
const (
	ModelNFe  = "55"
	ModelNFCe = "65"
)

// Order statuses.
const (
	StatusDraft    = "DIGITACAO"
	StatusQuote    = "ORCAMENTO"
	StatusPicking  = "EM_SEPARACAO"
	StatusPicked   = "SEPARADO"
	StatusBilled   = "FATURADO"
	StatusCanceled = "CANCELADO"
)

// transitions is the allowed status graph. Billed and canceled orders
// are terminal.
var transitions = map[string][]string{
	StatusDraft:   {StatusQuote, StatusPicking, StatusCanceled},
	StatusQuote:   {StatusPicking, StatusCanceled},
	StatusPicking: {StatusPicked, StatusCanceled},
	StatusPicked:  {StatusBilled, StatusCanceled},
}

// CanTransition reports whether the status change is allowed.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Order is a sale that may be billed into a fiscal document.
type Order struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	BusinessID snowflake.ID  `gorm:"column:business_id;not null;index"`
	ClientID   *snowflake.ID `gorm:"column:client_id;index"`

	Status        string `gorm:"type:varchar(20);not null;default:'DIGITACAO'"`
	DocumentModel string `gorm:"column:document_model;type:varchar(2)"`

	NatureOperation string `gorm:"column:nature_operation;type:text"`
	CFOP            string `gorm:"column:cfop;type:varchar(4)"`

	FreightValue   decimal.Decimal `gorm:"column:freight_value;type:numeric(15,2)"`
	InsuranceValue decimal.Decimal `gorm:"column:insurance_value;type:numeric(15,2)"`
	OtherExpenses  decimal.Decimal `gorm:"column:other_expenses;type:numeric(15,2)"`

	// Mirrored from the invoice after SEFAZ authorization.
	AccessKey string `gorm:"column:access_key;type:varchar(44)"`
	Protocol  string `gorm:"type:varchar(20)"`
	XML       string `gorm:"column:xml;type:text"`

	Items    []OrderItem    `gorm:"foreignKey:OrderID"`
	Payments []OrderPayment `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Order) TableName() string { return "orders" }

// OrderItem snapshots the product and the resolved tax figures at
// billing time.
type OrderItem struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	OrderID    snowflake.ID  `gorm:"column:order_id;not null;index"`
	ProductID  *snowflake.ID `gorm:"column:product_id"`
	ItemNumber int           `gorm:"column:item_number;not null"`

	Code        string `gorm:"type:varchar(60)"`
	Description string `gorm:"type:text;not null"`
	GTIN        string `gorm:"column:gtin;type:varchar(14)"`
	NCM         string `gorm:"column:ncm;type:varchar(8)"`
	CEST        string `gorm:"column:cest;type:varchar(7)"`
	Unit        string `gorm:"type:varchar(6);default:'UN'"`
	Origin      string `gorm:"type:varchar(1);default:'0'"`
	CFOP        string `gorm:"column:cfop;type:varchar(4)"`

	Quantity  decimal.Decimal `gorm:"type:numeric(15,4)"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(15,10)"`
	Discount  decimal.Decimal `gorm:"type:numeric(15,2)"`
	Addition  decimal.Decimal `gorm:"type:numeric(15,2)"`

	// Resolved tax snapshot.
	CSOSN       string          `gorm:"column:csosn;type:varchar(3)"`
	CST         string          `gorm:"column:cst;type:varchar(2)"`
	ICMSBasis   decimal.Decimal `gorm:"column:icms_basis;type:numeric(15,2)"`
	ICMSRate    decimal.Decimal `gorm:"column:icms_rate;type:numeric(7,4)"`
	ICMSValue   decimal.Decimal `gorm:"column:icms_value;type:numeric(15,2)"`
	PISCST      string          `gorm:"column:pis_cst;type:varchar(2)"`
	PISRate     decimal.Decimal `gorm:"column:pis_rate;type:numeric(7,4)"`
	PISValue    decimal.Decimal `gorm:"column:pis_value;type:numeric(15,2)"`
	COFINSCST   string          `gorm:"column:cofins_cst;type:varchar(2)"`
	COFINSRate  decimal.Decimal `gorm:"column:cofins_rate;type:numeric(7,4)"`
	COFINSValue decimal.Decimal `gorm:"column:cofins_value;type:numeric(15,2)"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OrderItem) TableName() string { return "order_items" }

// GrossTotal is quantity times unit price before discount and addition.
func (i *OrderItem) GrossTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// NetTotal is the taxable basis of the item.
func (i *OrderItem) NetTotal() decimal.Decimal {
	return i.GrossTotal().Sub(i.Discount).Add(i.Addition)
}

// OrderPayment is a tender line on the order.
type OrderPayment struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	OrderID snowflake.ID `gorm:"column:order_id;not null;index"`

	// Method is the internal payment method code, mapped to the fiscal
	// tPag domain at billing time.
	Method       int             `gorm:"not null"`
	Amount       decimal.Decimal `gorm:"type:numeric(15,2)"`
	Installments int             `gorm:"not null;default:1"`

	CardBrand         string `gorm:"column:card_brand;type:varchar(30)"`
	CardAuthorization string `gorm:"column:card_authorization;type:varchar(30)"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OrderPayment) TableName() string { return "order_payments" }
