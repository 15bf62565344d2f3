package transmitter

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	"github.com/notazul/notazul/internal/clock"
	"github.com/notazul/notazul/internal/config"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	"github.com/notazul/notazul/internal/nfe/builder"
	"github.com/notazul/notazul/internal/nfe/certmanager"
	"github.com/notazul/notazul/internal/nfe/signer"
	"github.com/notazul/notazul/internal/observability/metrics"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result is the outcome of a SEFAZ round trip.
type Result struct {
	Success  bool   `json:"success"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Protocol string `json:"protocol,omitempty"`
	Status   string `json:"status"`
}

type TransmitterParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Fiscal  *config.FiscalConfigHolder

	BusinessRepo businessdomain.Repository
	InvoiceRepo  invoicedomain.Repository
	Certs        *certmanager.Manager
	Builder      *builder.Builder
	Signer       *signer.Signer
}

// Transmitter drives the invoice status machine against the SEFAZ web
// services: authorization, protocol query and the cancel event.
type Transmitter struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
	fiscal  *config.FiscalConfigHolder

	businessRepo businessdomain.Repository
	invoiceRepo  invoicedomain.Repository
	certs        *certmanager.Manager
	builder      *builder.Builder
	signer       *signer.Signer

	// newClient is replaceable in tests.
	newClient func(cred *certmanager.Credential, timeout time.Duration) *http.Client
}

func NewTransmitter(p TransmitterParam) *Transmitter {
	return &Transmitter{
		db:      p.DB,
		log:     p.Log.Named("nfe.transmitter"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		fiscal:  p.Fiscal,

		businessRepo: p.BusinessRepo,
		invoiceRepo:  p.InvoiceRepo,
		certs:        p.Certs,
		builder:      p.Builder,
		signer:       p.Signer,

		newClient: mtlsClient,
	}
}

// mtlsClient presents the business certificate to the authorizer.
func mtlsClient(cred *certmanager.Credential, timeout time.Duration) *http.Client {
	chain := [][]byte{cred.Certificate.Raw}
	for _, ca := range cred.Chain {
		chain = append(chain, ca.Raw)
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{{
					Certificate: chain,
					PrivateKey:  cred.PrivateKey,
					Leaf:        cred.Certificate,
				}},
			},
		},
	}
}

// Submit builds, signs and transmits the invoice. NFC-e is sent in
// synchronous mode, NF-e asynchronous.
func (t *Transmitter) Submit(ctx context.Context, invoiceID snowflake.ID) (*Result, error) {
	start := t.clock.Now()

	invoice, err := t.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if !invoice.IsEditable() {
		return nil, fmt.Errorf("%w: status %s", invoicedomain.ErrNotTransmittable, invoice.Status)
	}

	business, err := t.businessRepo.FindByID(ctx, invoice.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, businessdomain.ErrNotFound
	}

	doc, err := t.builder.Build(invoice, business)
	if err != nil {
		return nil, err
	}
	cred, err := t.certs.Load(business)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrMissingCertificate, err)
	}
	signed, err := t.signer.Sign([]byte(doc.XML), cred, signer.DocumentReference(doc.AccessKey))
	if err != nil {
		return nil, err
	}

	invoice.AccessKey = doc.AccessKey
	invoice.XML = string(signed)
	invoice.QRCodeURL = doc.QRCode
	if err := t.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, err
	}

	cfg := t.fiscal.Get()
	endpoint, err := ResolveEndpoint(cfg, invoice.DocumentModel, invoice.Environment, invoice.EmitState, ServiceAuthorize)
	if err != nil {
		return nil, err
	}

	indSinc := "0"
	if invoice.DocumentModel == orderdomain.ModelNFCe {
		indSinc = "1"
	}
	batch := `<enviNFe xmlns="` + builder.Namespace + `" versao="` + builder.LayoutVersion + `">` +
		`<idLote>` + t.batchID() + `</idLote>` +
		`<indSinc>` + indSinc + `</indSinc>` +
		stripDeclaration(string(signed)) +
		`</enviNFe>`
	envelope := soapEnvelope(ServiceAuthorize, builder.StateCode(invoice.EmitState), batch)

	body, err := postSOAP(ctx, t.newClient(cred, cfg.Timeout()), endpoint, envelope)
	if err != nil {
		return t.transportFailure(ctx, invoice, invoicedomain.ActionTransmit, start, err)
	}
	ret := parseReturn(body)

	switch {
	case ret.Authorized():
		now := t.clock.Now()
		invoice.Status = invoicedomain.StatusAuthorized
		invoice.Protocol = ret.Protocol
		invoice.AuthorizedAt = &now
		invoice.RejectionCode = ""
		invoice.RejectionReason = ""
	case ret.Rejected():
		invoice.Status = invoicedomain.StatusRejected
		invoice.RejectionCode = ret.Code
		invoice.RejectionReason = ret.Message
	default:
		invoice.Status = invoicedomain.StatusPending
	}
	if err := t.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, err
	}

	if invoice.Status == invoicedomain.StatusAuthorized {
		err := t.db.WithContext(ctx).Model(&orderdomain.Order{}).
			Where("id = ?", invoice.OrderID).
			Updates(map[string]any{
				"access_key": invoice.AccessKey,
				"protocol":   invoice.Protocol,
				"xml":        invoice.XML,
			}).Error
		if err != nil {
			t.log.Error("failed to mirror authorization onto order",
				zap.Int64("order_id", int64(invoice.OrderID)),
				zap.Error(err),
			)
		}
	}

	t.logOperation(ctx, invoice, invoicedomain.ActionTransmit, ret, start, string(body))
	t.observe(invoicedomain.ActionTransmit, invoice.Status, start)
	t.log.Info("invoice transmitted",
		zap.Int64("invoice_id", int64(invoice.ID)),
		zap.String("access_key", invoice.AccessKey),
		zap.String("cstat", ret.Code),
		zap.String("status", invoice.Status),
	)

	return &Result{
		Success:  ret.Authorized(),
		Code:     ret.Code,
		Message:  ret.Message,
		Protocol: ret.Protocol,
		Status:   invoice.Status,
	}, nil
}

// Query asks the authorizer for the current protocol of the invoice
// and promotes it to authorized when SEFAZ already accepted it.
func (t *Transmitter) Query(ctx context.Context, invoiceID snowflake.ID) (*Result, error) {
	start := t.clock.Now()

	invoice, err := t.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if invoice.AccessKey == "" {
		return nil, fmt.Errorf("%w: no access key", invoicedomain.ErrNotTransmittable)
	}

	business, err := t.businessRepo.FindByID(ctx, invoice.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, businessdomain.ErrNotFound
	}
	cred, err := t.certs.Load(business)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrMissingCertificate, err)
	}

	cfg := t.fiscal.Get()
	endpoint, err := ResolveEndpoint(cfg, invoice.DocumentModel, invoice.Environment, invoice.EmitState, ServiceQuery)
	if err != nil {
		return nil, err
	}

	payload := `<consSitNFe xmlns="` + builder.Namespace + `" versao="` + builder.LayoutVersion + `">` +
		`<tpAmb>` + strconv.Itoa(invoice.Environment) + `</tpAmb>` +
		`<xServ>CONSULTAR</xServ>` +
		`<chNFe>` + invoice.AccessKey + `</chNFe>` +
		`</consSitNFe>`
	envelope := soapEnvelope(ServiceQuery, builder.StateCode(invoice.EmitState), payload)

	body, err := postSOAP(ctx, t.newClient(cred, cfg.Timeout()), endpoint, envelope)
	if err != nil {
		return t.transportFailure(ctx, invoice, invoicedomain.ActionQuery, start, err)
	}
	ret := parseReturn(body)

	if ret.Authorized() && invoice.Status != invoicedomain.StatusCanceled {
		now := t.clock.Now()
		invoice.Status = invoicedomain.StatusAuthorized
		invoice.Protocol = ret.Protocol
		invoice.AuthorizedAt = &now
		if err := t.invoiceRepo.Save(ctx, invoice); err != nil {
			return nil, err
		}
	}

	t.logOperation(ctx, invoice, invoicedomain.ActionQuery, ret, start, string(body))
	t.observe(invoicedomain.ActionQuery, invoice.Status, start)

	return &Result{
		Success:  ret.Authorized(),
		Code:     ret.Code,
		Message:  ret.Message,
		Protocol: ret.Protocol,
		Status:   invoice.Status,
	}, nil
}

// Cancel registers the 110111 event. Only authorized invoices can be
// canceled, and the justification must have at least 15 characters.
func (t *Transmitter) Cancel(ctx context.Context, invoiceID snowflake.ID, justification string) (*Result, error) {
	start := t.clock.Now()

	if len(justification) < 15 {
		return nil, invoicedomain.ErrJustificationTooShort
	}

	invoice, err := t.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if !invoice.IsCancelable() {
		return nil, fmt.Errorf("%w: status %s", invoicedomain.ErrNotCancelable, invoice.Status)
	}

	business, err := t.businessRepo.FindByID(ctx, invoice.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, businessdomain.ErrNotFound
	}
	cred, err := t.certs.Load(business)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrMissingCertificate, err)
	}

	cfg := t.fiscal.Get()
	endpoint, err := ResolveEndpoint(cfg, invoice.DocumentModel, invoice.Environment, invoice.EmitState, ServiceEvent)
	if err != nil {
		return nil, err
	}

	eventID := "ID" + invoicedomain.EventCancel + invoice.AccessKey + "01"
	eventXML := t.cancelEventXML(invoice, eventID, justification)
	signedEvent, err := t.signer.Sign([]byte(eventXML), cred, eventID)
	if err != nil {
		return nil, err
	}

	batch := `<envEvento xmlns="` + builder.Namespace + `" versao="1.00">` +
		`<idLote>` + t.batchID() + `</idLote>` +
		stripDeclaration(string(signedEvent)) +
		`</envEvento>`
	envelope := soapEnvelope(ServiceEvent, builder.StateCode(invoice.EmitState), batch)

	body, err := postSOAP(ctx, t.newClient(cred, cfg.Timeout()), endpoint, envelope)
	if err != nil {
		return t.transportFailure(ctx, invoice, invoicedomain.ActionCancel, start, err)
	}
	ret := parseReturn(body)

	// 135 = event registered and bound to the document
	canceled := ret.Code == "135"
	if canceled {
		now := t.clock.Now()
		invoice.Status = invoicedomain.StatusCanceled
		invoice.CanceledAt = &now
		if err := t.invoiceRepo.Save(ctx, invoice); err != nil {
			return nil, err
		}
		if err := t.invoiceRepo.AddEvent(ctx, &invoicedomain.InvoiceEvent{
			ID:            t.genID.Generate(),
			InvoiceID:     invoice.ID,
			Type:          invoicedomain.EventCancel,
			Sequence:      1,
			Protocol:      ret.Protocol,
			Justification: justification,
			XML:           string(signedEvent),
		}); err != nil {
			return nil, err
		}
	}

	t.logOperation(ctx, invoice, invoicedomain.ActionCancel, ret, start, string(body))
	t.observe(invoicedomain.ActionCancel, invoice.Status, start)
	t.log.Info("cancel event processed",
		zap.Int64("invoice_id", int64(invoice.ID)),
		zap.String("cstat", ret.Code),
		zap.Bool("canceled", canceled),
	)

	return &Result{
		Success:  canceled,
		Code:     ret.Code,
		Message:  ret.Message,
		Protocol: ret.Protocol,
		Status:   invoice.Status,
	}, nil
}

func (t *Transmitter) cancelEventXML(invoice *invoicedomain.Invoice, eventID, justification string) string {
	emission := t.clock.Now().In(time.FixedZone("-03:00", -3*60*60))

	doc := etree.NewDocument()
	evento := doc.CreateElement("evento")
	evento.CreateAttr("xmlns", builder.Namespace)
	evento.CreateAttr("versao", "1.00")

	infEvento := evento.CreateElement("infEvento")
	infEvento.CreateAttr("Id", eventID)
	addText(infEvento, "cOrgao", builder.StateCode(invoice.EmitState))
	addText(infEvento, "tpAmb", strconv.Itoa(invoice.Environment))
	addText(infEvento, "CNPJ", invoice.EmitCNPJ)
	addText(infEvento, "chNFe", invoice.AccessKey)
	addText(infEvento, "dhEvento", emission.Format("2006-01-02T15:04:05-07:00"))
	addText(infEvento, "tpEvento", invoicedomain.EventCancel)
	addText(infEvento, "nSeqEvento", "1")
	addText(infEvento, "verEvento", "1.00")

	detEvento := infEvento.CreateElement("detEvento")
	detEvento.CreateAttr("versao", "1.00")
	addText(detEvento, "descEvento", "Cancelamento")
	addText(detEvento, "nProt", invoice.Protocol)
	just := justification
	if len(just) > 255 {
		just = just[:255]
	}
	addText(detEvento, "xJust", just)

	out, _ := doc.WriteToString()
	return out
}

func addText(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(value)
}

func (t *Transmitter) batchID() string {
	return t.clock.Now().Format("20060102150405") + "1"
}

// transportFailure handles a round trip that never produced a SEFAZ
// response. Authorization marks the invoice rejected with code 999;
// query and cancel leave the status alone.
func (t *Transmitter) transportFailure(ctx context.Context, invoice *invoicedomain.Invoice, action string, start time.Time, cause error) (*Result, error) {
	if action == invoicedomain.ActionTransmit {
		invoice.Status = invoicedomain.StatusRejected
		invoice.RejectionCode = "999"
		invoice.RejectionReason = cause.Error()
		if err := t.invoiceRepo.Save(ctx, invoice); err != nil {
			return nil, err
		}
	}

	if err := t.invoiceRepo.AddLog(ctx, &invoicedomain.InvoiceLog{
		ID:         t.genID.Generate(),
		InvoiceID:  invoice.ID,
		Action:     action,
		Result:     invoicedomain.ResultError,
		Message:    cause.Error(),
		DurationMS: t.clock.Now().Sub(start).Milliseconds(),
	}); err != nil {
		return nil, err
	}
	t.observe(action, invoice.Status, start)
	t.log.Warn("sefaz communication failed",
		zap.Int64("invoice_id", int64(invoice.ID)),
		zap.String("action", action),
		zap.Error(cause),
	)

	return &Result{
		Success: false,
		Code:    "999",
		Message: "communication error: " + cause.Error(),
		Status:  invoice.Status,
	}, nil
}

func (t *Transmitter) logOperation(ctx context.Context, invoice *invoicedomain.Invoice, action string, ret sefazReturn, start time.Time, responseXML string) {
	result := invoicedomain.ResultError
	if ret.Authorized() || (action == invoicedomain.ActionCancel && ret.Code == "135") || action == invoicedomain.ActionQuery {
		result = invoicedomain.ResultSuccess
	}
	err := t.invoiceRepo.AddLog(ctx, &invoicedomain.InvoiceLog{
		ID:         t.genID.Generate(),
		InvoiceID:  invoice.ID,
		Action:     action,
		Result:     result,
		Message:    fmt.Sprintf("[%s] %s", ret.Code, ret.Message),
		DurationMS: t.clock.Now().Sub(start).Milliseconds(),
		XML:        invoicedomain.TruncateXML(responseXML),
	})
	if err != nil {
		t.log.Error("failed to persist operation log", zap.Error(err))
	}
}

func (t *Transmitter) observe(action, status string, start time.Time) {
	t.metrics.RecordTransmission(action, status, t.clock.Now().Sub(start).Seconds())
}
