package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	clientdomain "github.com/notazul/notazul/internal/client/domain"
	"github.com/notazul/notazul/internal/clock"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	"github.com/notazul/notazul/internal/observability/metrics"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"github.com/notazul/notazul/pkg/db"
	"github.com/notazul/notazul/pkg/db/option"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UnidentifiedConsumer is used when an NFC-e has no identified client.
const UnidentifiedConsumer = "CONSUMIDOR NAO IDENTIFICADO"

// paymentCodes maps internal payment methods to the fiscal tPag domain.
var paymentCodes = map[int]string{
	1:  "01",
	2:  "02",
	3:  "03",
	4:  "04",
	5:  "05",
	10: "10",
	11: "11",
	12: "12",
	13: "13",
	14: "14",
	15: "15",
	16: "16",
	17: "17",
	90: "90",
	99: "99",
}

type GeneratorParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Metrics      *metrics.Metrics `optional:"true"`
	BusinessRepo businessdomain.Repository
	InvoiceRepo  invoicedomain.Repository
}

type Generator struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	metrics      *metrics.Metrics
	businessRepo businessdomain.Repository
	invoiceRepo  invoicedomain.Repository
}

func NewGenerator(p GeneratorParam) invoicedomain.Generator {
	return &Generator{
		db:    p.DB,
		log:   p.Log.Named("invoice.generator"),
		genID: p.GenID,
		clock: p.Clock,

		metrics:      p.Metrics,
		businessRepo: p.BusinessRepo,
		invoiceRepo:  p.InvoiceRepo,
	}
}

func (s *Generator) Generate(ctx context.Context, orderID snowflake.ID) (*invoicedomain.Invoice, error) {
	start := s.clock.Now()

	var invoice *invoicedomain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := db.FindOne(ctx, tx, &orderdomain.Order{ID: orderID},
			option.WithPreload("Items"),
			option.WithPreload("Payments"),
		)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrNotFound
		}
		if order.Status != orderdomain.StatusBilled {
			return invoicedomain.ErrOrderNotBilled
		}
		if order.DocumentModel == "" {
			return invoicedomain.ErrOrderMissingModel
		}
		if len(order.Items) == 0 {
			return invoicedomain.ErrOrderWithoutItems
		}

		invoiceRepo := s.invoiceRepo.WithTrx(tx)
		existing, err := invoiceRepo.FindActiveByOrder(ctx, order.ID, order.DocumentModel)
		if err != nil {
			return err
		}
		if existing != nil {
			return invoicedomain.ErrAlreadyExists
		}

		business, err := s.businessRepo.LockForUpdate(ctx, tx, order.BusinessID)
		if err != nil {
			return err
		}
		number, err := s.businessRepo.NextDocumentNumber(ctx, tx, business, order.DocumentModel)
		if err != nil {
			return err
		}

		var client *clientdomain.Client
		if order.ClientID != nil {
			client, err = db.FindOne(ctx, tx, &clientdomain.Client{ID: *order.ClientID})
			if err != nil {
				return err
			}
		}

		invoice, err = s.assemble(order, business, client, number)
		if err != nil {
			return err
		}

		if err := invoiceRepo.Create(ctx, invoice); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrAlreadyExists
			}
			return err
		}

		return invoiceRepo.AddLog(ctx, &invoicedomain.InvoiceLog{
			ID:         s.genID.Generate(),
			InvoiceID:  invoice.ID,
			Action:     invoicedomain.ActionGenerate,
			Result:     invoicedomain.ResultSuccess,
			Message:    fmt.Sprintf("document %s series %d number %d generated", invoice.DocumentModel, invoice.Series, invoice.Number),
			DurationMS: s.clock.Now().Sub(start).Milliseconds(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoiceGenerated(invoice.DocumentModel)
	s.log.Info("invoice generated",
		zap.Int64("invoice_id", int64(invoice.ID)),
		zap.String("model", invoice.DocumentModel),
		zap.Int64("number", invoice.Number),
	)
	return invoice, nil
}

func (s *Generator) assemble(order *orderdomain.Order, business *businessdomain.Business, client *clientdomain.Client, number int64) (*invoicedomain.Invoice, error) {
	cnf, err := randomNumericCode()
	if err != nil {
		return nil, err
	}

	series := business.NFeSeries
	if order.DocumentModel == orderdomain.ModelNFCe {
		series = business.NFCeSeries
	}

	now := s.clock.Now()
	invoice := &invoicedomain.Invoice{
		ID:         s.genID.Generate(),
		BusinessID: business.ID,
		OrderID:    order.ID,

		DocumentModel: order.DocumentModel,
		Series:        series,
		Number:        number,
		CNF:           cnf,
		EmissionType:  "1",
		Environment:   business.NFeEnvironment,
		Status:        invoicedomain.StatusDraft,

		NatureOperation:   order.NatureOperation,
		OperationType:     "1",
		Finality:          "1",
		PresenceIndicator: "9",
		EmissionDate:      &now,
	}
	if order.DocumentModel == orderdomain.ModelNFCe {
		invoice.PresenceIndicator = "1"
	}

	s.snapshotEmitter(invoice, business)
	s.snapshotRecipient(invoice, client)
	s.snapshotItems(invoice, order)
	s.snapshotTransport(invoice)
	s.computeTotals(invoice, order)
	// Totals first: a payment-less order gets a fallback row covering the
	// full invoice value.
	s.snapshotPayments(invoice, order)

	return invoice, nil
}

func (s *Generator) snapshotEmitter(invoice *invoicedomain.Invoice, business *businessdomain.Business) {
	invoice.EmitName = business.Name
	invoice.EmitTradeName = business.TradeName
	invoice.EmitCNPJ = business.CNPJDigits()
	invoice.EmitIE = business.StateRegistration
	invoice.EmitIM = business.MunicipalRegistration
	invoice.EmitCRT = business.TaxRegime
	invoice.EmitStreet = business.Street
	invoice.EmitNumber = business.Number
	invoice.EmitComplement = business.Complement
	invoice.EmitDistrict = business.District
	invoice.EmitCity = business.City
	invoice.EmitCityIBGE = business.CityIBGE
	invoice.EmitState = business.State
	invoice.EmitCEP = onlyDigits(business.CEP)
	invoice.EmitPhone = onlyDigits(business.Phone)
}

func (s *Generator) snapshotRecipient(invoice *invoicedomain.Invoice, client *clientdomain.Client) {
	if client == nil {
		invoice.DestName = UnidentifiedConsumer
		invoice.DestIndIE = clientdomain.TaxpayerNonComply
		return
	}

	invoice.DestName = client.Name
	invoice.DestDocument = client.DocumentDigits()
	invoice.DestIE = client.StateRegistration
	invoice.DestIndIE = client.IndIE()
	invoice.DestStreet = client.Street
	invoice.DestNumber = client.Number
	invoice.DestComplement = client.Complement
	invoice.DestDistrict = client.District
	invoice.DestCity = client.City
	invoice.DestCityIBGE = client.CityIBGE
	invoice.DestState = client.State
	invoice.DestCEP = onlyDigits(client.CEP)
	invoice.DestCountry = client.Country
	invoice.DestCountryIBGE = client.CountryIBGE
	invoice.DestPhone = onlyDigits(client.Phone)
	invoice.DestEmail = client.Email
}

func (s *Generator) snapshotItems(invoice *invoicedomain.Invoice, order *orderdomain.Order) {
	invoice.Items = make([]invoicedomain.InvoiceItem, 0, len(order.Items))
	for i := range order.Items {
		src := &order.Items[i]
		invoice.Items = append(invoice.Items, invoicedomain.InvoiceItem{
			ID:         s.genID.Generate(),
			InvoiceID:  invoice.ID,
			ItemNumber: i + 1,

			Code:        src.Code,
			Description: src.Description,
			GTIN:        src.GTIN,
			NCM:         src.NCM,
			CEST:        src.CEST,
			Unit:        src.Unit,
			Origin:      src.Origin,
			CFOP:        src.CFOP,

			Quantity:  src.Quantity,
			UnitPrice: src.UnitPrice,
			Discount:  src.Discount,
			Addition:  src.Addition,
			Total:     src.NetTotal().Round(2),

			CSOSN:       src.CSOSN,
			CST:         src.CST,
			ICMSBasis:   src.ICMSBasis,
			ICMSRate:    src.ICMSRate,
			ICMSValue:   src.ICMSValue,
			PISCST:      src.PISCST,
			PISRate:     src.PISRate,
			PISValue:    src.PISValue,
			COFINSCST:   src.COFINSCST,
			COFINSRate:  src.COFINSRate,
			COFINSValue: src.COFINSValue,
		})
	}
}

func (s *Generator) snapshotPayments(invoice *invoicedomain.Invoice, order *orderdomain.Order) {
	if len(order.Payments) == 0 {
		// SEFAZ rejects a document without a pag group, so an order with
		// no recorded tender still gets one "other" payment for the total.
		invoice.Payments = []invoicedomain.InvoicePayment{{
			ID:        s.genID.Generate(),
			InvoiceID: invoice.ID,

			Code:         "99",
			Amount:       invoice.TotalInvoice,
			Installments: 1,
		}}
		return
	}

	invoice.Payments = make([]invoicedomain.InvoicePayment, 0, len(order.Payments))
	for i := range order.Payments {
		src := &order.Payments[i]
		code, ok := paymentCodes[src.Method]
		if !ok {
			code = "99"
		}
		invoice.Payments = append(invoice.Payments, invoicedomain.InvoicePayment{
			ID:        s.genID.Generate(),
			InvoiceID: invoice.ID,

			Code:         code,
			Amount:       src.Amount,
			Installments: src.Installments,

			CardBrand:         src.CardBrand,
			CardAuthorization: src.CardAuthorization,
		})
	}
}

func (s *Generator) snapshotTransport(invoice *invoicedomain.Invoice) {
	invoice.Transport = &invoicedomain.InvoiceTransport{
		ID:          s.genID.Generate(),
		InvoiceID:   invoice.ID,
		FreightMode: "9",
	}
}

func (s *Generator) computeTotals(invoice *invoicedomain.Invoice, order *orderdomain.Order) {
	var gross, discount, addition, icmsBasis, icms, pis, cofins decimal.Decimal
	for i := range order.Items {
		src := &order.Items[i]
		gross = gross.Add(src.GrossTotal())
		discount = discount.Add(src.Discount)
		addition = addition.Add(src.Addition)
		icmsBasis = icmsBasis.Add(src.ICMSBasis)
		icms = icms.Add(src.ICMSValue)
		pis = pis.Add(src.PISValue)
		cofins = cofins.Add(src.COFINSValue)
	}

	invoice.TotalProducts = gross.Sub(discount).Add(addition).Round(2)
	invoice.TotalDiscount = discount.Round(2)
	invoice.TotalFreight = order.FreightValue
	invoice.TotalInsurance = order.InsuranceValue
	invoice.TotalOther = order.OtherExpenses
	invoice.TotalICMSBasis = icmsBasis.Round(2)
	invoice.TotalICMS = icms.Round(2)
	invoice.TotalICMSST = decimal.Zero
	invoice.TotalPIS = pis.Round(2)
	invoice.TotalCOFINS = cofins.Round(2)
	invoice.TotalInvoice = invoice.TotalProducts.
		Add(invoice.TotalFreight).
		Add(invoice.TotalInsurance).
		Add(invoice.TotalOther).
		Add(invoice.TotalICMSST).
		Round(2)
}

func (s *Generator) RecalculateTotals(ctx context.Context, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !invoice.IsEditable() {
		return nil, invoicedomain.ErrNotEditable
	}

	var gross, discount, addition, icmsBasis, icms, pis, cofins decimal.Decimal
	for i := range invoice.Items {
		item := &invoice.Items[i]
		gross = gross.Add(item.Quantity.Mul(item.UnitPrice))
		discount = discount.Add(item.Discount)
		addition = addition.Add(item.Addition)
		icmsBasis = icmsBasis.Add(item.ICMSBasis)
		icms = icms.Add(item.ICMSValue)
		pis = pis.Add(item.PISValue)
		cofins = cofins.Add(item.COFINSValue)
	}

	invoice.TotalProducts = gross.Sub(discount).Add(addition).Round(2)
	invoice.TotalDiscount = discount.Round(2)
	invoice.TotalICMSBasis = icmsBasis.Round(2)
	invoice.TotalICMS = icms.Round(2)
	invoice.TotalPIS = pis.Round(2)
	invoice.TotalCOFINS = cofins.Round(2)
	invoice.TotalInvoice = invoice.TotalProducts.
		Add(invoice.TotalFreight).
		Add(invoice.TotalInsurance).
		Add(invoice.TotalOther).
		Add(invoice.TotalICMSST).
		Round(2)

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func randomNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

func onlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
