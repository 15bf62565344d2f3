package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Product origins with no imported content. Anything else counts as
// imported for the interstate rate lookup.
var NationalOrigins = map[string]bool{
	"0": true,
	"3": true,
	"4": true,
	"5": true,
}

// Product carries the fiscal attributes snapshotted onto order items.
type Product struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BusinessID snowflake.ID `gorm:"column:business_id;not null;index"`

	Code        string `gorm:"type:varchar(60);not null"`
	Description string `gorm:"type:text;not null"`
	GTIN        string `gorm:"column:gtin;type:varchar(14)"`

	NCM    string `gorm:"column:ncm;type:varchar(8);index"`
	CEST   string `gorm:"column:cest;type:varchar(7)"`
	Unit   string `gorm:"type:varchar(6);default:'UN'"`
	Origin string `gorm:"type:varchar(1);default:'0'"`

	Price decimal.Decimal `gorm:"type:numeric(15,10)"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

// Imported reports whether the origin code represents imported content.
func (p *Product) Imported() bool {
	return !NationalOrigins[p.Origin]
}
