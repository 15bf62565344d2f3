package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TaxpayerType follows the indIE domain: 1 taxpayer, 2 exempt, 9 non-taxpayer.
const (
	TaxpayerICMS      = "1"
	TaxpayerExempt    = "2"
	TaxpayerNonComply = "9"
)

// Client is the recipient of a fiscal document.
type Client struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BusinessID snowflake.ID `gorm:"column:business_id;not null;index"`

	Name      string `gorm:"type:text;not null"`
	TradeName string `gorm:"column:trade_name;type:text"`

	// Document holds the CPF (11 digits) or CNPJ (14 digits).
	Document          string `gorm:"type:varchar(18)"`
	StateRegistration string `gorm:"column:state_registration;type:varchar(20)"`
	TaxpayerType      string `gorm:"column:taxpayer_type;type:varchar(1);default:'9'"`
	IsExempt          bool   `gorm:"column:is_exempt;not null;default:false"`

	Street      string `gorm:"type:text"`
	Number      string `gorm:"type:varchar(20)"`
	Complement  string `gorm:"type:text"`
	District    string `gorm:"type:text"`
	City        string `gorm:"type:text"`
	CityIBGE    string `gorm:"column:city_ibge;type:varchar(7)"`
	State       string `gorm:"type:varchar(2)"`
	CEP         string `gorm:"column:cep;type:varchar(10)"`
	Country     string `gorm:"type:text;default:'BRASIL'"`
	CountryIBGE string `gorm:"column:country_ibge;type:varchar(4);default:'1058'"`

	Phone string `gorm:"type:varchar(20)"`
	Email string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Client) TableName() string { return "clients" }

// DocumentDigits returns the CPF/CNPJ stripped to bare digits.
func (c *Client) DocumentDigits() string {
	var sb strings.Builder
	for _, r := range c.Document {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// IndIE resolves the recipient indicator for the fiscal document.
func (c *Client) IndIE() string {
	if c.IsExempt {
		return TaxpayerExempt
	}
	if strings.TrimSpace(c.TaxpayerType) != "" {
		return c.TaxpayerType
	}
	return TaxpayerNonComply
}
