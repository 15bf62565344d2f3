package transmitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const authorizedResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <nfeResultMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4">
      <retEnviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
        <tpAmb>2</tpAmb>
        <cStat>104</cStat>
        <xMotivo>Lote processado</xMotivo>
        <protNFe versao="4.00">
          <infProt>
            <tpAmb>2</tpAmb>
            <chNFe>43260312345678000195550010000000421123456789</chNFe>
            <cStat>100</cStat>
            <xMotivo>Autorizado o uso da NF-e</xMotivo>
            <nProt>143260000000001</nProt>
          </infProt>
        </protNFe>
      </retEnviNFe>
    </nfeResultMsg>
  </soap:Body>
</soap:Envelope>`

const rejectedResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <nfeResultMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4">
      <retEnviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
        <cStat>104</cStat>
        <xMotivo>Lote processado</xMotivo>
        <protNFe versao="4.00">
          <infProt>
            <cStat>539</cStat>
            <xMotivo>Rejeicao: Duplicidade de NF-e</xMotivo>
          </infProt>
        </protNFe>
      </retEnviNFe>
    </nfeResultMsg>
  </soap:Body>
</soap:Envelope>`

const canceledResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <nfeResultMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeRecepcaoEvento4">
      <retEnvEvento xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.00">
        <cStat>128</cStat>
        <xMotivo>Lote de evento processado</xMotivo>
        <retEvento versao="1.00">
          <infEvento>
            <cStat>135</cStat>
            <xMotivo>Evento registrado e vinculado a NF-e</xMotivo>
            <nProt>143260000000099</nProt>
          </infEvento>
        </retEvento>
      </retEnvEvento>
    </nfeResultMsg>
  </soap:Body>
</soap:Envelope>`

func TestParseReturnPrefersProcessingProtocol(t *testing.T) {
	ret := parseReturn([]byte(authorizedResponse))
	assert.Equal(t, "100", ret.Code)
	assert.Equal(t, "Autorizado o uso da NF-e", ret.Message)
	assert.Equal(t, "143260000000001", ret.Protocol)
	assert.True(t, ret.Authorized())
	assert.False(t, ret.Rejected())
}

func TestParseReturnRejection(t *testing.T) {
	ret := parseReturn([]byte(rejectedResponse))
	assert.Equal(t, "539", ret.Code)
	assert.True(t, ret.Rejected())
	assert.False(t, ret.Authorized())
}

func TestParseReturnEventResultWinsOverBatch(t *testing.T) {
	ret := parseReturn([]byte(canceledResponse))
	assert.Equal(t, "135", ret.Code)
	assert.Equal(t, "143260000000099", ret.Protocol)
}

func TestParseReturnBatchOnly(t *testing.T) {
	ret := parseReturn([]byte(`<retEnviNFe xmlns="http://www.portalfiscal.inf.br/nfe"><cStat>225</cStat><xMotivo>Falha no Schema XML</xMotivo></retEnviNFe>`))
	assert.Equal(t, "225", ret.Code)
	assert.True(t, ret.Rejected())
}

func TestParseReturnDegenerateResponses(t *testing.T) {
	ret := parseReturn([]byte(`<ok/>`))
	assert.Equal(t, "999", ret.Code)

	ret = parseReturn([]byte(`not xml at all`))
	assert.Equal(t, "999", ret.Code)
}

func TestRejectedPrefixes(t *testing.T) {
	assert.True(t, sefazReturn{Code: "204"}.Rejected())
	assert.True(t, sefazReturn{Code: "539"}.Rejected())
	assert.True(t, sefazReturn{Code: "778"}.Rejected())
	assert.False(t, sefazReturn{Code: "103"}.Rejected())
	assert.False(t, sefazReturn{Code: "135"}.Rejected())
}

func TestSoapEnvelope(t *testing.T) {
	envelope := soapEnvelope(ServiceAuthorize, "43", "<payload/>")

	assert.Contains(t, envelope, `xmlns:soap12="http://www.w3.org/2003/05/soap-envelope"`)
	assert.Contains(t, envelope, `<nfeCabecMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4">`)
	assert.Contains(t, envelope, "<cUF>43</cUF>")
	assert.Contains(t, envelope, "<versaoDados>4.00</versaoDados>")
	assert.Contains(t, envelope, "<nfeDadosMsg xmlns=\"http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4\"><payload/></nfeDadosMsg>")
}

func TestStripDeclaration(t *testing.T) {
	assert.Equal(t, "<NFe/>", stripDeclaration(`<?xml version="1.0" encoding="utf-8"?>`+"\n<NFe/>"))
	assert.Equal(t, "<NFe/>", stripDeclaration("<NFe/>"))
}
