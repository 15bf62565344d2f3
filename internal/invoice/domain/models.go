package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Invoice is a fiscal document derived from a billed order. Emitter and
// recipient data are denormalized so the document stays reproducible
// after registration changes.
type Invoice struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BusinessID snowflake.ID `gorm:"column:business_id;not null;index"`
	// The unique index is partial: only live invoices block a new one for
	// the same order and model, rejected and canceled rows stay as history.
	OrderID    snowflake.ID `gorm:"column:order_id;not null;uniqueIndex:idx_order_model,where:status = 'RASCUNHO' OR status = 'PENDENTE' OR status = 'AUTORIZADA'"`

	DocumentModel string `gorm:"column:document_model;type:varchar(2);not null;uniqueIndex:idx_order_model"`
	Series        int    `gorm:"not null"`
	Number        int64  `gorm:"not null"`

	// CNF is the 8 digit random code composed into the access key.
	CNF          string `gorm:"column:cnf;type:varchar(8)"`
	AccessKey    string `gorm:"column:access_key;type:varchar(44);index"`
	EmissionType string `gorm:"column:emission_type;type:varchar(1);default:'1'"`
	Environment  int    `gorm:"not null;default:2"`

	Status string `gorm:"type:varchar(20);not null;default:'RASCUNHO';index"`

	NatureOperation string `gorm:"column:nature_operation;type:text"`

	// OperationType is tpNF: 0 incoming, 1 outgoing.
	OperationType     string `gorm:"column:operation_type;type:varchar(1);default:'1'"`
	Finality          string `gorm:"type:varchar(1);default:'1'"`
	PresenceIndicator string `gorm:"column:presence_indicator;type:varchar(1);default:'9'"`

	AdditionalInfo string `gorm:"column:additional_info;type:text"`
	FiscalInfo     string `gorm:"column:fiscal_info;type:text"`

	EmitName       string `gorm:"column:emit_name;type:text"`
	EmitTradeName  string `gorm:"column:emit_trade_name;type:text"`
	EmitCNPJ       string `gorm:"column:emit_cnpj;type:varchar(14)"`
	EmitIE         string `gorm:"column:emit_ie;type:varchar(20)"`
	EmitIM         string `gorm:"column:emit_im;type:varchar(20)"`
	EmitCRT        int    `gorm:"column:emit_crt"`
	EmitStreet     string `gorm:"column:emit_street;type:text"`
	EmitNumber     string `gorm:"column:emit_number;type:varchar(20)"`
	EmitComplement string `gorm:"column:emit_complement;type:text"`
	EmitDistrict   string `gorm:"column:emit_district;type:text"`
	EmitCity       string `gorm:"column:emit_city;type:text"`
	EmitCityIBGE   string `gorm:"column:emit_city_ibge;type:varchar(7)"`
	EmitState      string `gorm:"column:emit_state;type:varchar(2)"`
	EmitCEP        string `gorm:"column:emit_cep;type:varchar(8)"`
	EmitPhone      string `gorm:"column:emit_phone;type:varchar(14)"`

	DestName        string `gorm:"column:dest_name;type:text"`
	DestDocument    string `gorm:"column:dest_document;type:varchar(14)"`
	DestIE          string `gorm:"column:dest_ie;type:varchar(20)"`
	DestIndIE       string `gorm:"column:dest_ind_ie;type:varchar(1);default:'9'"`
	DestStreet      string `gorm:"column:dest_street;type:text"`
	DestNumber      string `gorm:"column:dest_number;type:varchar(20)"`
	DestComplement  string `gorm:"column:dest_complement;type:text"`
	DestDistrict    string `gorm:"column:dest_district;type:text"`
	DestCity        string `gorm:"column:dest_city;type:text"`
	DestCityIBGE    string `gorm:"column:dest_city_ibge;type:varchar(7)"`
	DestState       string `gorm:"column:dest_state;type:varchar(2)"`
	DestCEP         string `gorm:"column:dest_cep;type:varchar(8)"`
	DestCountry     string `gorm:"column:dest_country;type:text"`
	DestCountryIBGE string `gorm:"column:dest_country_ibge;type:varchar(4)"`
	DestPhone       string `gorm:"column:dest_phone;type:varchar(14)"`
	DestEmail       string `gorm:"column:dest_email;type:text"`

	TotalProducts  decimal.Decimal `gorm:"column:total_products;type:numeric(15,2)"`
	TotalDiscount  decimal.Decimal `gorm:"column:total_discount;type:numeric(15,2)"`
	TotalFreight   decimal.Decimal `gorm:"column:total_freight;type:numeric(15,2)"`
	TotalInsurance decimal.Decimal `gorm:"column:total_insurance;type:numeric(15,2)"`
	TotalOther     decimal.Decimal `gorm:"column:total_other;type:numeric(15,2)"`
	TotalICMSBasis decimal.Decimal `gorm:"column:total_icms_basis;type:numeric(15,2)"`
	TotalICMS      decimal.Decimal `gorm:"column:total_icms;type:numeric(15,2)"`
	TotalICMSST    decimal.Decimal `gorm:"column:total_icms_st;type:numeric(15,2)"`
	TotalPIS       decimal.Decimal `gorm:"column:total_pis;type:numeric(15,2)"`
	TotalCOFINS    decimal.Decimal `gorm:"column:total_cofins;type:numeric(15,2)"`
	TotalInvoice   decimal.Decimal `gorm:"column:total_invoice;type:numeric(15,2)"`

	Protocol        string `gorm:"type:varchar(20)"`
	XML             string `gorm:"column:xml;type:text"`
	QRCodeURL       string `gorm:"column:qr_code_url;type:text"`
	RejectionCode   string `gorm:"column:rejection_code;type:varchar(4)"`
	RejectionReason string `gorm:"column:rejection_reason;type:text"`

	EmissionDate *time.Time `gorm:"column:emission_date"`

	// DepartureDate fills dhSaiEnt on model 55 documents when set.
	DepartureDate *time.Time `gorm:"column:departure_date"`
	AuthorizedAt  *time.Time `gorm:"column:authorized_at"`
	CanceledAt    *time.Time `gorm:"column:canceled_at"`

	Items     []InvoiceItem     `gorm:"foreignKey:InvoiceID"`
	Payments  []InvoicePayment  `gorm:"foreignKey:InvoiceID"`
	Transport *InvoiceTransport `gorm:"foreignKey:InvoiceID"`
	Events    []InvoiceEvent    `gorm:"foreignKey:InvoiceID"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Invoice) TableName() string { return "invoices" }

// IsEditable reports whether the invoice may still be regenerated.
func (i *Invoice) IsEditable() bool {
	return i.Status == StatusDraft || i.Status == StatusRejected
}

// IsCancelable reports whether a cancel event may be registered.
func (i *Invoice) IsCancelable() bool {
	return i.Status == StatusAuthorized
}

// InvoiceItem mirrors the order item at generation time.
type InvoiceItem struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	InvoiceID  snowflake.ID `gorm:"column:invoice_id;not null;uniqueIndex:idx_invoice_item"`
	ItemNumber int          `gorm:"column:item_number;not null;uniqueIndex:idx_invoice_item"`

	Code        string `gorm:"type:varchar(60)"`
	Description string `gorm:"type:text;not null"`
	GTIN        string `gorm:"column:gtin;type:varchar(14)"`
	NCM         string `gorm:"column:ncm;type:varchar(8)"`
	CEST        string `gorm:"column:cest;type:varchar(7)"`
	Unit        string `gorm:"type:varchar(6)"`
	Origin      string `gorm:"type:varchar(1)"`
	CFOP        string `gorm:"column:cfop;type:varchar(4)"`

	Quantity  decimal.Decimal `gorm:"type:numeric(15,4)"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(15,10)"`
	Discount  decimal.Decimal `gorm:"type:numeric(15,2)"`
	Addition  decimal.Decimal `gorm:"type:numeric(15,2)"`
	Total     decimal.Decimal `gorm:"type:numeric(15,2)"`

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

	// Simples Nacional credit transfer, used by CSOSN 101 and 900.
	SNCreditRate  decimal.Decimal `gorm:"column:sn_credit_rate;type:numeric(7,4)"`
	SNCreditValue decimal.Decimal `gorm:"column:sn_credit_value;type:numeric(15,2)"`

	// ICMS ST retained or charged, used by CST 10 and 60.
	ICMSSTBasis decimal.Decimal `gorm:"column:icms_st_basis;type:numeric(15,2)"`
	ICMSSTRate  decimal.Decimal `gorm:"column:icms_st_rate;type:numeric(7,4)"`
	ICMSSTValue decimal.Decimal `gorm:"column:icms_st_value;type:numeric(15,2)"`

	Info string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoicePayment is a tender line already mapped to the fiscal tPag
// code domain.
type InvoicePayment struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"column:invoice_id;not null;index"`

	Code         string          `gorm:"type:varchar(2);not null"`
	Amount       decimal.Decimal `gorm:"type:numeric(15,2)"`
	Installments int             `gorm:"not null;default:1"`

	CardBrand         string `gorm:"column:card_brand;type:varchar(30)"`
	CardAuthorization string `gorm:"column:card_authorization;type:varchar(30)"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoicePayment) TableName() string { return "invoice_payments" }

// InvoiceTransport describes freight for the document.
type InvoiceTransport struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"column:invoice_id;not null;uniqueIndex"`

	// FreightMode follows the modFrete domain. 9 means no transport.
	FreightMode string `gorm:"column:freight_mode;type:varchar(1);default:'9'"`

	CarrierName     string `gorm:"column:carrier_name;type:text"`
	CarrierDocument string `gorm:"column:carrier_document;type:varchar(14)"`
	CarrierIE       string `gorm:"column:carrier_ie;type:varchar(20)"`
	CarrierAddress  string `gorm:"column:carrier_address;type:text"`
	CarrierCity     string `gorm:"column:carrier_city;type:text"`
	CarrierState    string `gorm:"column:carrier_state;type:varchar(2)"`
	VehiclePlate    string `gorm:"column:vehicle_plate;type:varchar(8)"`
	VehicleState    string `gorm:"column:vehicle_state;type:varchar(2)"`

	VolumeQuantity int             `gorm:"column:volume_quantity"`
	VolumeSpecies  string          `gorm:"column:volume_species;type:varchar(60)"`
	VolumeBrand    string          `gorm:"column:volume_brand;type:varchar(60)"`
	VolumeNumber   string          `gorm:"column:volume_number;type:varchar(60)"`
	NetWeight      decimal.Decimal `gorm:"column:net_weight;type:numeric(15,3)"`
	GrossWeight    decimal.Decimal `gorm:"column:gross_weight;type:numeric(15,3)"`

	Seals datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceTransport) TableName() string { return "invoice_transports" }

// InvoiceEvent is a fiscal event registered against SEFAZ.
type InvoiceEvent struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"column:invoice_id;not null;index"`

	Type          string `gorm:"type:varchar(6);not null"`
	Sequence      int    `gorm:"not null;default:1"`
	Protocol      string `gorm:"type:varchar(20)"`
	Justification string `gorm:"type:text"`
	XML           string `gorm:"column:xml;type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceEvent) TableName() string { return "invoice_events" }

// InvoiceLog is the audit trail of every fiscal operation attempt.
type InvoiceLog struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"column:invoice_id;not null;index"`

	Action     string `gorm:"type:varchar(12);not null"`
	Result     string `gorm:"type:varchar(8);not null"`
	Message    string `gorm:"type:text"`
	DurationMS int64  `gorm:"column:duration_ms"`
	XML        string `gorm:"column:xml;type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceLog) TableName() string { return "invoice_logs" }

// MaxLoggedXML bounds the XML stored on a log row.
const MaxLoggedXML = 5000

// TruncateXML clips payloads persisted to the log table.
func TruncateXML(xml string) string {
	if len(xml) > MaxLoggedXML {
		return xml[:MaxLoggedXML]
	}
	return xml
}
