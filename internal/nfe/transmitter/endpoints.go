package transmitter

import (
	"errors"
	"fmt"

	"github.com/notazul/notazul/internal/business/domain"
	"github.com/notazul/notazul/internal/config"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
)

// Service identifies a SEFAZ web service.
type Service string

const (
	ServiceAuthorize Service = "autorizacao"
	ServiceQuery     Service = "consulta"
	ServiceEvent     Service = "evento"
)

var ErrNoEndpoint = errors.New("no_sefaz_endpoint_for_state")

// servicePaths are the NT 2023.001 endpoint names appended to the
// authorizer base URL.
var servicePaths = map[Service]string{
	ServiceAuthorize: "NFeAutorizacao4",
	ServiceQuery:     "NFeConsultaProtocolo4",
	ServiceEvent:     "NFeRecepcaoEvento4",
}

// WSDLNamespace is the SOAP namespace of a service.
func WSDLNamespace(svc Service) string {
	return "http://www.portalfiscal.inf.br/nfe/wsdl/" + servicePaths[svc]
}

// svrsKey marks the shared virtual authorizer serving the states
// without their own servers (AC, AL, AP, DF, ES, PB, PI, RJ, RN, RO,
// RR, SC, SE and TO).
const svrsKey = "SVRS"

var baseURLs = map[string]map[int]map[string]string{
	orderdomain.ModelNFe: {
		domain.EnvironmentProduction: {
			"SP":    "https://nfe.fazenda.sp.gov.br/ws",
			"MG":    "https://nfe.fazenda.mg.gov.br/nfe/services",
			"PR":    "https://nfe.fazenda.pr.gov.br/nfe/services",
			"RS":    "https://nfe.sefazrs.rs.gov.br/ws",
			"MT":    "https://nfe.sefaz.mt.gov.br/ws",
			"MS":    "https://nfe.sefaz.ms.gov.br/ws",
			"GO":    "https://nfe.sefaz.go.gov.br/nfe/services",
			"BA":    "https://nfe.sefaz.ba.gov.br/webservices",
			"AM":    "https://nfe.sefaz.am.gov.br/services/services",
			"MA":    "https://www.sefazvirtual.fazenda.gov.br/NFeAutorizacao4",
			"PE":    "https://nfe.sefaz.pe.gov.br/nfe-service",
			"CE":    "https://nfe.sefaz.ce.gov.br/nfe4/services",
			"PA":    "https://www.sefa.pa.gov.br/nfe/services",
			svrsKey: "https://nfe.svrs.rs.gov.br/ws",
		},
		domain.EnvironmentHomolog: {
			"SP":    "https://homologacao.nfe.fazenda.sp.gov.br/ws",
			"MG":    "https://hnfe.fazenda.mg.gov.br/nfe/services",
			"PR":    "https://homologacao.nfe.fazenda.pr.gov.br/nfe/services",
			"RS":    "https://nfe-homologacao.sefazrs.rs.gov.br/ws",
			"MT":    "https://homologacao.nfe.sefaz.mt.gov.br/ws",
			"MS":    "https://homologacao.nfe.sefaz.ms.gov.br/ws",
			"GO":    "https://homologacao.nfe.sefaz.go.gov.br/nfe/services",
			"BA":    "https://hnfe.sefaz.ba.gov.br/webservices",
			"AM":    "https://homnfe.sefaz.am.gov.br/services/services",
			svrsKey: "https://homologacao.nfe.svrs.rs.gov.br/ws",
		},
	},
	orderdomain.ModelNFCe: {
		domain.EnvironmentProduction: {
			"SP":    "https://nfce.fazenda.sp.gov.br/ws",
			"PR":    "https://nfce.fazenda.pr.gov.br/nfce/services",
			"RS":    "https://nfce.sefazrs.rs.gov.br/ws",
			"MG":    "https://nfce.fazenda.mg.gov.br/nfce/services",
			"MT":    "https://nfce.sefaz.mt.gov.br/ws",
			"MS":    "https://nfce.sefaz.ms.gov.br/ws",
			"GO":    "https://nfce.sefaz.go.gov.br/nfce/services",
			"BA":    "https://nfce.sefaz.ba.gov.br/webservices",
			"AM":    "https://nfce.sefaz.am.gov.br/services/services",
			svrsKey: "https://nfce.svrs.rs.gov.br/ws",
		},
		domain.EnvironmentHomolog: {
			"SP":    "https://homologacao.nfce.fazenda.sp.gov.br/ws",
			"PR":    "https://homologacao.nfce.fazenda.pr.gov.br/nfce/services",
			"RS":    "https://homologacao.nfce.sefazrs.rs.gov.br/ws",
			"MG":    "https://hnfce.fazenda.mg.gov.br/nfce/services",
			svrsKey: "https://homologacao.nfce.svrs.rs.gov.br/ws",
		},
	},
}

// ResolveEndpoint picks the web service URL for the document. Runtime
// overrides win over the built-in tables; states without a dedicated
// authorizer fall back to SVRS.
func ResolveEndpoint(cfg config.FiscalConfig, model string, environment int, uf string, svc Service) (string, error) {
	key := fmt.Sprintf("%s:%d:%s:%s", model, environment, uf, svc)
	if url, ok := cfg.EndpointOverrides[key]; ok && url != "" {
		return url, nil
	}

	byEnv, ok := baseURLs[model]
	if !ok {
		byEnv = baseURLs[orderdomain.ModelNFe]
	}
	byUF := byEnv[environment]
	base := byUF[uf]
	if base == "" {
		base = byUF[svrsKey]
	}
	if base == "" {
		return "", fmt.Errorf("%w: %s model %s environment %d", ErrNoEndpoint, uf, model, environment)
	}
	return base + "/" + servicePaths[svc], nil
}
