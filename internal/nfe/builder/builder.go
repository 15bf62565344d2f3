package builder

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
)

const (
	// Namespace is the fiscal document namespace.
	Namespace = "http://www.portalfiscal.inf.br/nfe"

	// LayoutVersion is the document layout version.
	LayoutVersion = "4.00"
)

// Brasília offset used for emission timestamps and the QR hash.
var brasilia = time.FixedZone("-03:00", -3*60*60)

// nfceQueryURLs per environment. States without a dedicated entry fall
// back to the first registered URL.
var nfceQueryURLs = map[int]map[string]string{
	businessdomain.EnvironmentProduction: {
		"RS": "https://www.sefaz.rs.gov.br/NFCE/NFCE-COM.aspx",
	},
	businessdomain.EnvironmentHomolog: {
		"RS": "https://homologacao.sefaz.rs.gov.br/NFCE/NFCE-COM.aspx",
	},
}

// Document is a rendered fiscal XML ready for signing.
type Document struct {
	XML       string
	AccessKey string
	QRCode    string
	URLChave  string
}

// Builder renders invoices into the 4.00 layout. It is stateless; all
// inputs come from the invoice snapshot and the business record.
type Builder struct{}

func New() *Builder {
	return &Builder{}
}

// Build renders the document. The invoice must already carry its cNF
// and emission date; the access key is derived here.
func (b *Builder) Build(invoice *invoicedomain.Invoice, business *businessdomain.Business) (*Document, error) {
	if invoice.EmissionDate == nil {
		return nil, fmt.Errorf("invoice %d has no emission date", invoice.ID)
	}
	if len(invoice.CNF) != 8 {
		return nil, fmt.Errorf("invoice %d has invalid cNF %q", invoice.ID, invoice.CNF)
	}

	emission := invoice.EmissionDate.In(brasilia)
	accessKey := ComposeAccessKey(
		invoice.EmitState,
		emission,
		invoice.EmitCNPJ,
		invoice.DocumentModel,
		invoice.Series,
		invoice.Number,
		invoice.EmissionType,
		invoice.CNF,
	)

	doc := etree.NewDocument()
	nfe := doc.CreateElement("NFe")
	nfe.CreateAttr("xmlns", Namespace)

	infNFe := nfe.CreateElement("infNFe")
	infNFe.CreateAttr("Id", "NFe"+accessKey)
	infNFe.CreateAttr("versao", LayoutVersion)

	b.buildIDE(infNFe, invoice, emission, accessKey)
	b.buildEmit(infNFe, invoice)
	b.buildDest(infNFe, invoice)
	for i := range invoice.Items {
		b.buildDet(infNFe, &invoice.Items[i])
	}
	b.buildTotal(infNFe, invoice)
	b.buildTransp(infNFe, invoice)
	b.buildPag(infNFe, invoice)
	b.buildInfAdic(infNFe, invoice)

	result := &Document{AccessKey: accessKey}
	if invoice.DocumentModel == orderdomain.ModelNFCe {
		b.buildNFCeSupplement(nfe, invoice, business, emission, accessKey, result)
	}

	xml, err := doc.WriteToString()
	if err != nil {
		return nil, err
	}
	result.XML = xml
	return result, nil
}

func (b *Builder) buildIDE(infNFe *etree.Element, invoice *invoicedomain.Invoice, emission time.Time, accessKey string) {
	ide := infNFe.CreateElement("ide")
	addText(ide, "cUF", StateCode(invoice.EmitState))
	addText(ide, "cNF", invoice.CNF)
	addText(ide, "natOp", clip(invoice.NatureOperation, 60))
	addText(ide, "mod", invoice.DocumentModel)
	addText(ide, "serie", fmt.Sprintf("%03d", invoice.Series))
	addText(ide, "nNF", fmt.Sprintf("%09d", invoice.Number))
	addText(ide, "dhEmi", emission.Format("2006-01-02T15:04:05-07:00"))
	// dhSaiEnt is not allowed on model 65
	if invoice.DepartureDate != nil && invoice.DocumentModel != orderdomain.ModelNFCe {
		addText(ide, "dhSaiEnt", invoice.DepartureDate.In(emission.Location()).Format("2006-01-02T15:04:05-07:00"))
	}
	addText(ide, "tpNF", invoice.OperationType)
	addText(ide, "idDest", "1")
	addText(ide, "cMunFG", invoice.EmitCityIBGE)
	if invoice.DocumentModel == orderdomain.ModelNFCe {
		addText(ide, "tpImp", "4")
	} else {
		addText(ide, "tpImp", "1")
	}
	addText(ide, "tpEmis", invoice.EmissionType)
	addText(ide, "cDV", accessKey[len(accessKey)-1:])
	addText(ide, "tpAmb", strconv.Itoa(invoice.Environment))
	addText(ide, "finNFe", invoice.Finality)
	if invoice.DocumentModel == orderdomain.ModelNFCe {
		addText(ide, "indFinal", "1")
	} else {
		addText(ide, "indFinal", "0")
	}
	addText(ide, "indPres", invoice.PresenceIndicator)
	addText(ide, "procEmi", "0")
	addText(ide, "verProc", "1.0")
}

func (b *Builder) buildEmit(infNFe *etree.Element, invoice *invoicedomain.Invoice) {
	emit := infNFe.CreateElement("emit")
	addText(emit, "CNPJ", invoice.EmitCNPJ)
	addText(emit, "xNome", clip(invoice.EmitName, 60))
	if invoice.EmitTradeName != "" {
		addText(emit, "xFant", clip(invoice.EmitTradeName, 60))
	}

	ender := emit.CreateElement("enderEmit")
	addText(ender, "xLgr", clip(invoice.EmitStreet, 60))
	addText(ender, "nro", clip(invoice.EmitNumber, 60))
	if invoice.EmitComplement != "" {
		addText(ender, "xCpl", clip(invoice.EmitComplement, 60))
	}
	addText(ender, "xBairro", clip(invoice.EmitDistrict, 60))
	addText(ender, "cMun", invoice.EmitCityIBGE)
	addText(ender, "xMun", clip(invoice.EmitCity, 60))
	addText(ender, "UF", invoice.EmitState)
	addText(ender, "CEP", invoice.EmitCEP)
	addText(ender, "cPais", "1058")
	addText(ender, "xPais", "Brasil")
	if invoice.EmitPhone != "" {
		addText(ender, "fone", invoice.EmitPhone)
	}

	if invoice.EmitIE != "" {
		addText(emit, "IE", invoice.EmitIE)
	}
	if invoice.EmitIM != "" {
		addText(emit, "IM", invoice.EmitIM)
	}
	addText(emit, "CRT", strconv.Itoa(invoice.EmitCRT))
}

// buildDest emits the recipient group. An NFC-e without an identified
// consumer has no dest group at all.
func (b *Builder) buildDest(infNFe *etree.Element, invoice *invoicedomain.Invoice) {
	if invoice.DocumentModel == orderdomain.ModelNFCe && invoice.DestDocument == "" {
		return
	}

	dest := infNFe.CreateElement("dest")
	switch len(invoice.DestDocument) {
	case 14:
		addText(dest, "CNPJ", invoice.DestDocument)
	case 11:
		addText(dest, "CPF", invoice.DestDocument)
	}
	addText(dest, "xNome", clip(invoice.DestName, 60))

	if invoice.DestStreet != "" {
		ender := dest.CreateElement("enderDest")
		addText(ender, "xLgr", clip(invoice.DestStreet, 60))
		addText(ender, "nro", clip(orDefault(invoice.DestNumber, "SN"), 60))
		if invoice.DestComplement != "" {
			addText(ender, "xCpl", clip(invoice.DestComplement, 60))
		}
		addText(ender, "xBairro", clip(orDefault(invoice.DestDistrict, "N/A"), 60))
		addText(ender, "cMun", orDefault(invoice.DestCityIBGE, "9999999"))
		addText(ender, "xMun", clip(orDefault(invoice.DestCity, "N/A"), 60))
		addText(ender, "UF", orDefault(invoice.DestState, "SP"))
		if invoice.DestCEP != "" {
			addText(ender, "CEP", invoice.DestCEP)
		}
		addText(ender, "cPais", orDefault(invoice.DestCountryIBGE, "1058"))
		addText(ender, "xPais", orDefault(invoice.DestCountry, "Brasil"))
		if invoice.DestPhone != "" {
			addText(ender, "fone", invoice.DestPhone)
		}
	}

	addText(dest, "indIEDest", invoice.DestIndIE)
	if invoice.DestIE != "" {
		addText(dest, "IE", invoice.DestIE)
	}
	if invoice.DestEmail != "" {
		addText(dest, "email", invoice.DestEmail)
	}
}

func (b *Builder) buildDet(infNFe *etree.Element, item *invoicedomain.InvoiceItem) {
	det := infNFe.CreateElement("det")
	det.CreateAttr("nItem", strconv.Itoa(item.ItemNumber))

	prod := det.CreateElement("prod")
	addText(prod, "cProd", clip(item.Code, 60))
	addText(prod, "cEAN", orDefault(item.GTIN, "SEM GTIN"))
	addText(prod, "xProd", clip(item.Description, 120))
	addText(prod, "NCM", item.NCM)
	if item.CEST != "" {
		addText(prod, "CEST", item.CEST)
	}
	addText(prod, "CFOP", item.CFOP)
	addText(prod, "uCom", item.Unit)
	addText(prod, "qCom", quantity(item.Quantity))
	addText(prod, "vUnCom", unitPrice(item.UnitPrice))
	addText(prod, "vProd", money(item.Quantity.Mul(item.UnitPrice)))
	addText(prod, "cEANTrib", orDefault(item.GTIN, "SEM GTIN"))
	addText(prod, "uTrib", item.Unit)
	addText(prod, "qTrib", quantity(item.Quantity))
	addText(prod, "vUnTrib", unitPrice(item.UnitPrice))
	if !item.Discount.IsZero() {
		addText(prod, "vDesc", money(item.Discount))
	}
	if !item.Addition.IsZero() {
		addText(prod, "vOutro", money(item.Addition))
	}
	addText(prod, "indTot", "1")

	imposto := det.CreateElement("imposto")
	buildICMS(imposto, item)
	buildPIS(imposto, item)
	buildCOFINS(imposto, item)

	if item.Info != "" {
		addText(det, "infAdProd", item.Info)
	}
}

func (b *Builder) buildTotal(infNFe *etree.Element, invoice *invoicedomain.Invoice) {
	total := infNFe.CreateElement("total")
	tot := total.CreateElement("ICMSTot")
	addText(tot, "vBC", money(invoice.TotalICMSBasis))
	addText(tot, "vICMS", money(invoice.TotalICMS))
	addText(tot, "vICMSDeson", "0.00")
	addText(tot, "vFCPST", "0.00")
	addText(tot, "vBCST", "0.00")
	addText(tot, "vST", money(invoice.TotalICMSST))
	addText(tot, "vFCP", "0.00")
	addText(tot, "vProd", money(invoice.TotalProducts))
	addText(tot, "vFrete", money(invoice.TotalFreight))
	addText(tot, "vSeg", money(invoice.TotalInsurance))
	addText(tot, "vDesc", money(invoice.TotalDiscount))
	addText(tot, "vII", "0.00")
	addText(tot, "vIPI", "0.00")
	addText(tot, "vIPIDevol", "0.00")
	addText(tot, "vPIS", money(invoice.TotalPIS))
	addText(tot, "vCOFINS", money(invoice.TotalCOFINS))
	addText(tot, "vOutro", money(invoice.TotalOther))
	addText(tot, "vNF", money(invoice.TotalInvoice))
}

func (b *Builder) buildTransp(infNFe *etree.Element, invoice *invoicedomain.Invoice) {
	transp := infNFe.CreateElement("transp")
	mode := "9"
	t := invoice.Transport
	if t != nil && t.FreightMode != "" {
		mode = t.FreightMode
	}
	addText(transp, "modFrete", mode)
	if t == nil {
		return
	}

	if t.CarrierName != "" {
		carrier := transp.CreateElement("transporta")
		switch len(t.CarrierDocument) {
		case 14:
			addText(carrier, "CNPJ", t.CarrierDocument)
		case 11:
			addText(carrier, "CPF", t.CarrierDocument)
		}
		addText(carrier, "xNome", clip(t.CarrierName, 60))
		if t.CarrierIE != "" {
			addText(carrier, "IE", t.CarrierIE)
		}
		if t.CarrierAddress != "" {
			addText(carrier, "xEnder", clip(t.CarrierAddress, 60))
		}
		if t.CarrierCity != "" {
			addText(carrier, "xMun", clip(t.CarrierCity, 60))
		}
		if t.CarrierState != "" {
			addText(carrier, "UF", t.CarrierState)
		}
	}

	if t.VolumeQuantity > 0 {
		vol := transp.CreateElement("vol")
		addText(vol, "qVol", strconv.Itoa(t.VolumeQuantity))
		if t.VolumeSpecies != "" {
			addText(vol, "esp", t.VolumeSpecies)
		}
		if t.VolumeBrand != "" {
			addText(vol, "marca", t.VolumeBrand)
		}
		if t.VolumeNumber != "" {
			addText(vol, "nVol", t.VolumeNumber)
		}
		if !t.NetWeight.IsZero() {
			addText(vol, "pesoL", weight(t.NetWeight))
		}
		if !t.GrossWeight.IsZero() {
			addText(vol, "pesoB", weight(t.GrossWeight))
		}
	}
}

func (b *Builder) buildPag(infNFe *etree.Element, invoice *invoicedomain.Invoice) {
	pag := infNFe.CreateElement("pag")
	if len(invoice.Payments) == 0 {
		detPag := pag.CreateElement("detPag")
		addText(detPag, "tPag", "90")
		addText(detPag, "vPag", money(invoice.TotalInvoice))
		return
	}
	for i := range invoice.Payments {
		p := &invoice.Payments[i]
		detPag := pag.CreateElement("detPag")
		addText(detPag, "tPag", p.Code)
		addText(detPag, "vPag", money(p.Amount))
	}
}

func (b *Builder) buildInfAdic(infNFe *etree.Element, invoice *invoicedomain.Invoice) {
	if invoice.AdditionalInfo == "" && invoice.FiscalInfo == "" {
		return
	}
	infAdic := infNFe.CreateElement("infAdic")
	if invoice.FiscalInfo != "" {
		addText(infAdic, "infAdFisco", clip(invoice.FiscalInfo, 500))
	}
	if invoice.AdditionalInfo != "" {
		addText(infAdic, "infCpl", clip(invoice.AdditionalInfo, 5000))
	}
}

// buildNFCeSupplement appends infNFeSupl with the consumer QR code. The
// hash covers the access key, environment, emission timestamp and
// totals, salted with the CSC token.
func (b *Builder) buildNFCeSupplement(nfe *etree.Element, invoice *invoicedomain.Invoice, business *businessdomain.Business, emission time.Time, accessKey string, result *Document) {
	urls := nfceQueryURLs[invoice.Environment]
	if urls == nil {
		urls = nfceQueryURLs[businessdomain.EnvironmentHomolog]
	}
	urlBase, ok := urls[strings.ToUpper(invoice.EmitState)]
	if !ok {
		for _, u := range urls {
			urlBase = u
			break
		}
	}

	cscID := leftPad(business.NFCeCSCID, 6)
	cscToken := business.NFCeCSC

	dhHex := strings.ToUpper(hex.EncodeToString([]byte(emission.Format("2006-01-02T15:04:05-07:00"))))
	vNF := money(invoice.TotalInvoice)
	vICMS := money(invoice.TotalICMS)

	qrInput := fmt.Sprintf("%s|2|%d|%s|%s|%s|%s%s", accessKey, invoice.Environment, dhHex, vNF, vICMS, cscID, cscToken)
	sum := sha1.Sum([]byte(qrInput))
	qrHash := strings.ToUpper(hex.EncodeToString(sum[:]))

	qrCode := fmt.Sprintf("%s?chNFe=%s&nVersao=2&tpAmb=%d&dhEmi=%s&vNF=%s&vICMS=%s&digVal=&cIdToken=%s&cHashQRCode=%s",
		urlBase, accessKey, invoice.Environment, dhHex, vNF, vICMS, cscID, qrHash)
	urlChave := fmt.Sprintf("%s?chNFe=%s&tpAmb=%d", urlBase, accessKey, invoice.Environment)

	supl := nfe.CreateElement("infNFeSupl")
	addText(supl, "qrCode", qrCode)
	addText(supl, "urlChave", urlChave)

	result.QRCode = qrCode
	result.URLChave = urlChave
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
