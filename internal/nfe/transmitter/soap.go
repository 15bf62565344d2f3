package transmitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/notazul/notazul/internal/nfe/builder"
)

const soapEnvelopeNS = "http://www.w3.org/2003/05/soap-envelope"

// soapEnvelope wraps the fiscal payload in the SOAP 1.2 envelope the
// authorizers expect, with the nfeCabecMsg header carrying the state
// code and layout version.
func soapEnvelope(svc Service, stateCode, payload string) string {
	ns := WSDLNamespace(svc)
	var b strings.Builder
	b.WriteString(`<soap12:Envelope xmlns:soap12="` + soapEnvelopeNS + `">`)
	b.WriteString(`<soap12:Header>`)
	b.WriteString(`<nfeCabecMsg xmlns="` + ns + `">`)
	b.WriteString(`<cUF>` + stateCode + `</cUF>`)
	b.WriteString(`<versaoDados>` + builder.LayoutVersion + `</versaoDados>`)
	b.WriteString(`</nfeCabecMsg>`)
	b.WriteString(`</soap12:Header>`)
	b.WriteString(`<soap12:Body>`)
	b.WriteString(`<nfeDadosMsg xmlns="` + ns + `">`)
	b.WriteString(payload)
	b.WriteString(`</nfeDadosMsg>`)
	b.WriteString(`</soap12:Body>`)
	b.WriteString(`</soap12:Envelope>`)
	return b.String()
}

func postSOAP(ctx context.Context, client *http.Client, url, envelope string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(envelope))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sefaz returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// sefazReturn is the common shape of every authorizer response.
type sefazReturn struct {
	Code     string
	Message  string
	Protocol string
}

func (r sefazReturn) Authorized() bool {
	return r.Code == "100" || r.Code == "150"
}

func (r sefazReturn) Rejected() bool {
	return strings.HasPrefix(r.Code, "2") ||
		strings.HasPrefix(r.Code, "5") ||
		strings.HasPrefix(r.Code, "7")
}

// parseReturn extracts cStat, xMotivo and nProt from a response. The
// per-document result (infProt on authorization and query, infEvento on
// events) wins over the batch level fields when present.
func parseReturn(raw []byte) sefazReturn {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return sefazReturn{Code: "999", Message: err.Error()}
	}
	root := doc.Root()
	if root == nil {
		return sefazReturn{Code: "999", Message: "empty response"}
	}

	scope := root
	if prot := findLocal(root, "infProt"); prot != nil {
		scope = prot
	} else if evt := findLocal(root, "infEvento"); evt != nil {
		scope = evt
	}

	ret := sefazReturn{
		Code:     textOf(scope, "cStat"),
		Message:  textOf(scope, "xMotivo"),
		Protocol: textOf(scope, "nProt"),
	}
	if ret.Code == "" {
		ret.Code = textOf(root, "cStat")
		ret.Message = textOf(root, "xMotivo")
	}
	if ret.Code == "" {
		ret.Code = "999"
		ret.Message = "response without cStat"
	}
	if ret.Protocol == "" {
		ret.Protocol = textOf(root, "nProt")
	}
	return ret
}

// findLocal walks the tree for the first element with the given local
// name, ignoring namespace prefixes.
func findLocal(el *etree.Element, local string) *etree.Element {
	if el.Tag == local {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findLocal(child, local); found != nil {
			return found
		}
	}
	return nil
}

func textOf(el *etree.Element, local string) string {
	if found := findLocal(el, local); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}

// stripDeclaration drops a leading XML declaration so the document can
// be embedded in a batch envelope.
func stripDeclaration(xml string) string {
	trimmed := strings.TrimSpace(xml)
	if strings.HasPrefix(trimmed, "<?") {
		if idx := strings.Index(trimmed, "?>"); idx >= 0 {
			trimmed = strings.TrimSpace(trimmed[idx+2:])
		}
	}
	return trimmed
}
