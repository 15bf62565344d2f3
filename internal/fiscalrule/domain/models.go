package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// NCMGroup bundles NCM codes that share fiscal treatment.
type NCMGroup struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BusinessID snowflake.ID `gorm:"column:business_id;not null;index"`
	Name       string       `gorm:"type:text;not null"`

	Items []NCMGroupItem `gorm:"foreignKey:GroupID"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (NCMGroup) TableName() string { return "ncm_groups" }

// NCMGroupItem is a single NCM code inside a group.
type NCMGroupItem struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	GroupID snowflake.ID `gorm:"column:group_id;not null;uniqueIndex:idx_group_ncm"`
	NCM     string       `gorm:"column:ncm;type:varchar(8);not null;uniqueIndex:idx_group_ncm"`
}

func (NCMGroupItem) TableName() string { return "ncm_group_items" }

// FiscalOperation is the tax treatment applied to items whose NCM
// belongs to the group. DocumentModel empty means any model.
type FiscalOperation struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BusinessID snowflake.ID `gorm:"column:business_id;not null;index"`
	NCMGroupID snowflake.ID `gorm:"column:ncm_group_id;not null;index"`

	DocumentModel   string `gorm:"column:document_model;type:varchar(2)"`
	NatureOperation string `gorm:"column:nature_operation;type:text"`
	CFOP            string `gorm:"column:cfop;type:varchar(4)"`

	CSOSN string `gorm:"column:csosn;type:varchar(3)"`
	CST   string `gorm:"column:cst;type:varchar(2)"`

	// No column default: gorm would drop a zero-value field carrying one
	// from the INSERT, turning an explicit false into true.
	CalculateICMS             bool            `gorm:"column:calculate_icms;not null"`
	UseOriginDestinationTable bool            `gorm:"column:use_origin_destination_table;not null;default:false"`
	ICMSRate                  decimal.Decimal `gorm:"column:icms_rate;type:numeric(7,4)"`

	PISCST     string          `gorm:"column:pis_cst;type:varchar(2)"`
	PISRate    decimal.Decimal `gorm:"column:pis_rate;type:numeric(7,4)"`
	COFINSCST  string          `gorm:"column:cofins_cst;type:varchar(2)"`
	COFINSRate decimal.Decimal `gorm:"column:cofins_rate;type:numeric(7,4)"`

	Active bool `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FiscalOperation) TableName() string { return "fiscal_operations" }

// ICMSOriginDestination holds the rate matrix for interstate sales.
type ICMSOriginDestination struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BusinessID snowflake.ID `gorm:"column:business_id;not null;uniqueIndex:idx_icms_route"`

	OriginState      string `gorm:"column:origin_state;type:varchar(2);not null;uniqueIndex:idx_icms_route"`
	DestinationState string `gorm:"column:destination_state;type:varchar(2);not null;uniqueIndex:idx_icms_route"`
	Imported         bool   `gorm:"not null;default:false;uniqueIndex:idx_icms_route"`

	InternalRate   decimal.Decimal `gorm:"column:internal_rate;type:numeric(7,4)"`
	InterstateRate decimal.Decimal `gorm:"column:interstate_rate;type:numeric(7,4)"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ICMSOriginDestination) TableName() string { return "icms_origin_destinations" }
