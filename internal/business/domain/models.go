package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TaxRegime follows the federal registration codes.
const (
	TaxRegimeSimples       = 1
	TaxRegimeSimplesExcess = 2
	TaxRegimeNormal        = 3
)

// Environment selects the SEFAZ endpoint set.
const (
	EnvironmentProduction = 1
	EnvironmentHomolog    = 2
)

// Business is an emitter of fiscal documents. It owns the document
// number sequences and the signing certificate.
type Business struct {
	ID snowflake.ID `gorm:"primaryKey"`

	Name      string `gorm:"type:text;not null"`
	TradeName string `gorm:"column:trade_name;type:text"`
	CNPJ      string `gorm:"column:cnpj;type:varchar(18);not null;uniqueIndex"`

	StateRegistration     string `gorm:"column:state_registration;type:varchar(20)"`
	MunicipalRegistration string `gorm:"column:municipal_registration;type:varchar(20)"`
	TaxRegime             int    `gorm:"column:tax_regime;not null;default:1"`

	Street     string `gorm:"type:text"`
	Number     string `gorm:"type:varchar(20)"`
	Complement string `gorm:"type:text"`
	District   string `gorm:"type:text"`
	City       string `gorm:"type:text"`
	CityIBGE   string `gorm:"column:city_ibge;type:varchar(7)"`
	State      string `gorm:"type:varchar(2)"`
	CEP        string `gorm:"column:cep;type:varchar(10)"`
	Phone      string `gorm:"type:varchar(20)"`
	Email      string `gorm:"type:text"`

	NFeSeries      int   `gorm:"column:nfe_series;not null;default:1"`
	NFeLastNumber  int64 `gorm:"column:nfe_last_number;not null;default:0"`
	NFCeSeries     int   `gorm:"column:nfce_series;not null;default:1"`
	NFCeLastNumber int64 `gorm:"column:nfce_last_number;not null;default:0"`

	// NFeEnvironment is 1 for production, 2 for homologation.
	NFeEnvironment int    `gorm:"column:nfe_environment;not null;default:2"`
	NFCeCSC        string `gorm:"column:nfce_csc;type:text"`
	NFCeCSCID      string `gorm:"column:nfce_csc_id;type:varchar(6)"`

	CertificateFile       []byte     `gorm:"column:certificate_file;type:bytea"`
	CertificatePassword   string     `gorm:"column:certificate_password;type:text"`
	CertificateExpiration *time.Time `gorm:"column:certificate_expiration"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Business) TableName() string { return "businesses" }

// CNPJDigits returns the CNPJ stripped to bare digits.
func (b *Business) CNPJDigits() string {
	return onlyDigits(b.CNPJ)
}

func (b *Business) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrInvalidName
	}
	if len(onlyDigits(b.CNPJ)) != 14 {
		return ErrInvalidCNPJ
	}
	if len(b.State) != 2 {
		return ErrInvalidState
	}
	switch b.TaxRegime {
	case TaxRegimeSimples, TaxRegimeSimplesExcess, TaxRegimeNormal:
	default:
		return ErrInvalidTaxRegime
	}
	switch b.NFeEnvironment {
	case EnvironmentProduction, EnvironmentHomolog:
	default:
		return ErrInvalidEnvironment
	}
	return nil
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
