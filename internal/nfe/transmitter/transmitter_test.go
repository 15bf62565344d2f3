package transmitter

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	businessrepo "github.com/notazul/notazul/internal/business/repository"
	"github.com/notazul/notazul/internal/clock"
	"github.com/notazul/notazul/internal/config"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	invoicerepo "github.com/notazul/notazul/internal/invoice/repository"
	"github.com/notazul/notazul/internal/migration"
	"github.com/notazul/notazul/internal/nfe/builder"
	"github.com/notazul/notazul/internal/nfe/certmanager"
	"github.com/notazul/notazul/internal/nfe/signer"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"software.sslmate.com/src/go-pkcs12"
)

// sefazStub plays the authorizer, recording every request body.
type sefazStub struct {
	mu       sync.Mutex
	status   int
	body     string
	requests []string
}

func (s *sefazStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, string(raw))
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *sefazStub) respond(status int, body string) {
	s.mu.Lock()
	s.status = status
	s.body = body
	s.mu.Unlock()
}

func (s *sefazStub) lastRequest(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

type transmitterFixture struct {
	db       *gorm.DB
	tr       *Transmitter
	stub     *sefazStub
	node     *snowflake.Node
	business *businessdomain.Business
}

func newFixture(t *testing.T) *transmitterFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	strip := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", strip))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", strip))
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	stub := &sefazStub{status: http.StatusOK, body: authorizedResponse}
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	overrides := map[string]string{}
	for _, model := range []string{"55", "65"} {
		for _, svc := range []Service{ServiceAuthorize, ServiceQuery, ServiceEvent} {
			overrides[model+":2:RS:"+string(svc)] = server.URL
		}
	}
	fiscal := config.NewStaticFiscalConfigHolder(config.FiscalConfig{
		TimeoutSeconds:    5,
		EndpointOverrides: overrides,
	})

	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	certs := certmanager.NewManager(certmanager.ManagerParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
	})

	tr := NewTransmitter(TransmitterParam{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fakeClock,
		Fiscal:       fiscal,
		BusinessRepo: businessrepo.NewRepository(db),
		InvoiceRepo:  invoicerepo.NewRepository(db),
		Certs:        certs,
		Builder:      builder.New(),
		Signer:       signer.NewSigner(signer.SignerParam{Log: zap.NewNop()}),
	})
	tr.newClient = func(_ *certmanager.Credential, timeout time.Duration) *http.Client {
		return &http.Client{Timeout: timeout}
	}

	business := &businessdomain.Business{
		ID:              node.Generate(),
		Name:            "ACME COMERCIO LTDA",
		CNPJ:            "12345678000195",
		State:           "RS",
		NFeEnvironment:  businessdomain.EnvironmentHomolog,
		NFCeCSC:         "SEGREDO-CSC",
		NFCeCSCID:       "1",
		CertificateFile: testPFX(t),
	}
	require.NoError(t, db.Create(business).Error)

	return &transmitterFixture{db: db, tr: tr, stub: stub, node: node, business: business}
}

// testPFX builds a password-less bundle with a fresh RSA identity.
func testPFX(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ACME:12345678000195", SerialNumber: "12345678000195"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	bundle, err := pkcs12.Modern.Encode(key, cert, nil, "")
	require.NoError(t, err)
	return bundle
}

func (f *transmitterFixture) seedInvoice(t *testing.T, model, status string) *invoicedomain.Invoice {
	t.Helper()
	emission := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	invoice := &invoicedomain.Invoice{
		ID:         f.node.Generate(),
		BusinessID: f.business.ID,
		OrderID:    f.node.Generate(),

		DocumentModel: model,
		Series:        1,
		Number:        42,
		CNF:           "12345678",
		EmissionType:  "1",
		Environment:   businessdomain.EnvironmentHomolog,
		Status:        status,

		NatureOperation:   "VENDA",
		OperationType:     "1",
		Finality:          "1",
		PresenceIndicator: "9",

		EmitName:     "ACME COMERCIO LTDA",
		EmitCNPJ:     "12345678000195",
		EmitCRT:      1,
		EmitStreet:   "Rua das Flores",
		EmitNumber:   "100",
		EmitDistrict: "Centro",
		EmitCity:     "Porto Alegre",
		EmitCityIBGE: "4314902",
		EmitState:    "RS",
		EmitCEP:      "90000000",

		DestName:     "CLIENTE TESTE",
		DestDocument: "11122233344",
		DestIndIE:    "9",

		TotalProducts: decimal.RequireFromString("50.00"),
		TotalInvoice:  decimal.RequireFromString("50.00"),

		EmissionDate: &emission,

		Items: []invoicedomain.InvoiceItem{{
			ID:          f.node.Generate(),
			ItemNumber:  1,
			Code:        "SKU-1",
			Description: "Produto Teste",
			NCM:         "22021000",
			Unit:        "UN",
			Origin:      "0",
			CFOP:        "5102",
			Quantity:    decimal.NewFromInt(10),
			UnitPrice:   decimal.RequireFromString("5.00"),
			Total:       decimal.RequireFromString("50.00"),
			CSOSN:       "102",
		}},
	}
	require.NoError(t, f.db.Create(invoice).Error)

	order := &orderdomain.Order{
		ID:            invoice.OrderID,
		BusinessID:    f.business.ID,
		Status:        orderdomain.StatusBilled,
		DocumentModel: model,
	}
	require.NoError(t, f.db.Create(order).Error)
	return invoice
}

func TestSubmitAuthorized(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusDraft)

	res, err := f.tr.Submit(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "100", res.Code)
	assert.Equal(t, "143260000000001", res.Protocol)
	assert.Equal(t, invoicedomain.StatusAuthorized, res.Status)

	var stored invoicedomain.Invoice
	require.NoError(t, f.db.First(&stored, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.StatusAuthorized, stored.Status)
	assert.Len(t, stored.AccessKey, 44)
	assert.Equal(t, "143260000000001", stored.Protocol)
	assert.NotNil(t, stored.AuthorizedAt)
	assert.Contains(t, stored.XML, "<Signature")

	// authorization is mirrored back onto the order
	var order orderdomain.Order
	require.NoError(t, f.db.First(&order, "id = ?", invoice.OrderID).Error)
	assert.Equal(t, stored.AccessKey, order.AccessKey)
	assert.Equal(t, stored.Protocol, order.Protocol)
	assert.NotEmpty(t, order.XML)

	// NF-e goes out asynchronously
	request := f.stub.lastRequest(t)
	assert.Contains(t, request, "<enviNFe")
	assert.Contains(t, request, "<indSinc>0</indSinc>")
	assert.Contains(t, request, "<nfeCabecMsg")

	var logs []invoicedomain.InvoiceLog
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, invoicedomain.ActionTransmit, logs[0].Action)
	assert.Equal(t, invoicedomain.ResultSuccess, logs[0].Result)
	assert.Contains(t, logs[0].Message, "[100]")
	// Durations come from the injected clock, which never advances here
	assert.Zero(t, logs[0].DurationMS)
}

func TestSubmitNFCeIsSynchronous(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, orderdomain.ModelNFCe, invoicedomain.StatusDraft)

	_, err := f.tr.Submit(context.Background(), invoice.ID)
	require.NoError(t, err)

	assert.Contains(t, f.stub.lastRequest(t), "<indSinc>1</indSinc>")

	var stored invoicedomain.Invoice
	require.NoError(t, f.db.First(&stored, "id = ?", invoice.ID).Error)
	assert.NotEmpty(t, stored.QRCodeURL)
}

func TestSubmitRejected(t *testing.T) {
	f := newFixture(t)
	f.stub.respond(http.StatusOK, rejectedResponse)
	invoice := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusDraft)

	res, err := f.tr.Submit(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "539", res.Code)
	assert.Equal(t, invoicedomain.StatusRejected, res.Status)

	var stored invoicedomain.Invoice
	require.NoError(t, f.db.First(&stored, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.StatusRejected, stored.Status)
	assert.Equal(t, "539", stored.RejectionCode)
	assert.Contains(t, stored.RejectionReason, "Duplicidade")

	// a rejected invoice stays editable for another attempt
	f.stub.respond(http.StatusOK, authorizedResponse)
	res, err = f.tr.Submit(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestSubmitTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.stub.respond(http.StatusInternalServerError, "boom")
	invoice := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusDraft)

	res, err := f.tr.Submit(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "999", res.Code)
	assert.Contains(t, res.Message, "communication error")

	var stored invoicedomain.Invoice
	require.NoError(t, f.db.First(&stored, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.StatusRejected, stored.Status)
	assert.Equal(t, "999", stored.RejectionCode)

	var logs []invoicedomain.InvoiceLog
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, invoicedomain.ResultError, logs[0].Result)
}

func TestSubmitGuards(t *testing.T) {
	f := newFixture(t)

	authorized := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusAuthorized)
	_, err := f.tr.Submit(context.Background(), authorized.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrNotTransmittable)

	_, err = f.tr.Submit(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)

	// business without a certificate cannot sign
	require.NoError(t, f.db.Model(&businessdomain.Business{}).
		Where("id = ?", f.business.ID).
		Update("certificate_file", []byte(nil)).Error)
	draft := f.seedInvoice(t, orderdomain.ModelNFCe, invoicedomain.StatusDraft)
	_, err = f.tr.Submit(context.Background(), draft.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrMissingCertificate)
}

func TestQueryPromotesPendingInvoice(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusPending)
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("access_key", strings.Repeat("4", 44)).Error)

	res, err := f.tr.Query(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "100", res.Code)

	var stored invoicedomain.Invoice
	require.NoError(t, f.db.First(&stored, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.StatusAuthorized, stored.Status)
	assert.Equal(t, "143260000000001", stored.Protocol)
	assert.NotNil(t, stored.AuthorizedAt)

	request := f.stub.lastRequest(t)
	assert.Contains(t, request, "<consSitNFe")
	assert.Contains(t, request, "<xServ>CONSULTAR</xServ>")
	assert.Contains(t, request, "<chNFe>"+strings.Repeat("4", 44)+"</chNFe>")
}

func TestQueryWithoutAccessKey(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusDraft)

	_, err := f.tr.Query(context.Background(), invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrNotTransmittable)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.stub.respond(http.StatusOK, canceledResponse)

	invoice := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusAuthorized)
	accessKey := strings.Repeat("4", 44)
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{"access_key": accessKey, "protocol": "143260000000001"}).Error)

	res, err := f.tr.Cancel(context.Background(), invoice.ID, "desistencia da compra pelo cliente")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "135", res.Code)
	assert.Equal(t, invoicedomain.StatusCanceled, res.Status)

	var stored invoicedomain.Invoice
	require.NoError(t, f.db.First(&stored, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.StatusCanceled, stored.Status)
	assert.NotNil(t, stored.CanceledAt)

	var events []invoicedomain.InvoiceEvent
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, invoicedomain.EventCancel, events[0].Type)
	assert.Equal(t, 1, events[0].Sequence)
	assert.Equal(t, "143260000000099", events[0].Protocol)
	assert.Contains(t, events[0].XML, "<Signature")

	request := f.stub.lastRequest(t)
	assert.Contains(t, request, "<envEvento")
	assert.Contains(t, request, "ID110111"+accessKey+"01")
	assert.Contains(t, request, "<descEvento>Cancelamento</descEvento>")
	assert.Contains(t, request, "<nProt>143260000000001</nProt>")
}

func TestCancelEventNotBound(t *testing.T) {
	f := newFixture(t)
	f.stub.respond(http.StatusOK, `<retEnvEvento xmlns="http://www.portalfiscal.inf.br/nfe"><cStat>128</cStat><retEvento><infEvento><cStat>573</cStat><xMotivo>Rejeicao: Duplicidade de evento</xMotivo></infEvento></retEvento></retEnvEvento>`)

	invoice := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusAuthorized)
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{"access_key": strings.Repeat("4", 44), "protocol": "143260000000001"}).Error)

	res, err := f.tr.Cancel(context.Background(), invoice.ID, "desistencia da compra pelo cliente")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "573", res.Code)

	var stored invoicedomain.Invoice
	require.NoError(t, f.db.First(&stored, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.StatusAuthorized, stored.Status)

	var events []invoicedomain.InvoiceEvent
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Find(&events).Error)
	assert.Empty(t, events)
}

func TestCancelGuards(t *testing.T) {
	f := newFixture(t)

	invoice := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusAuthorized)
	_, err := f.tr.Cancel(context.Background(), invoice.ID, "curta")
	assert.ErrorIs(t, err, invoicedomain.ErrJustificationTooShort)

	draft := f.seedInvoice(t, orderdomain.ModelNFe, invoicedomain.StatusDraft)
	_, err = f.tr.Cancel(context.Background(), draft.ID, "desistencia da compra pelo cliente")
	assert.ErrorIs(t, err, invoicedomain.ErrNotCancelable)
}
