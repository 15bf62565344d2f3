package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/notazul/notazul/internal/nfe/certmanager"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCredential(t *testing.T) *certmanager.Credential {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "ACME COMERCIO LTDA:12345678000195",
			SerialNumber: "12345678000195",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &certmanager.Credential{PrivateKey: key, Certificate: cert}
}

const testDocument = `<NFe xmlns="http://www.portalfiscal.inf.br/nfe">` +
	`<infNFe Id="NFe43260312345678000195550010000000421123456789" versao="4.00">` +
	`<ide><cUF>43</cUF><mod>55</mod></ide>` +
	`</infNFe></NFe>`

func TestDocumentReference(t *testing.T) {
	assert.Equal(t, "NFeABC", DocumentReference("ABC"))
}

func TestSign(t *testing.T) {
	cred := newTestCredential(t)
	s := NewSigner(SignerParam{Log: zap.NewNop()})
	refID := "NFe43260312345678000195550010000000421123456789"

	// Digest of the reference element before the signature is injected
	pre := etree.NewDocument()
	require.NoError(t, pre.ReadFromString(testDocument))
	refC14N, err := dsig.MakeC14N10RecCanonicalizer().Canonicalize(pre.FindElement("//infNFe"))
	require.NoError(t, err)
	wantDigest := sha1.Sum(refC14N)

	signed, err := s.Sign([]byte(testDocument), cred, refID)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))

	// Signature is enveloped inside the referenced element
	infNFe := doc.FindElement("//infNFe")
	require.NotNil(t, infNFe)
	signature := infNFe.SelectElement("Signature")
	require.NotNil(t, signature)

	reference := signature.FindElement("SignedInfo/Reference")
	require.NotNil(t, reference)
	assert.Equal(t, "#"+refID, reference.SelectAttrValue("URI", ""))

	digestValue := reference.FindElement("DigestValue")
	require.NotNil(t, digestValue)
	assert.Equal(t, base64.StdEncoding.EncodeToString(wantDigest[:]), digestValue.Text())

	certEl := signature.FindElement("KeyInfo/X509Data/X509Certificate")
	require.NotNil(t, certEl)
	assert.Equal(t, base64.StdEncoding.EncodeToString(cred.Certificate.Raw), certEl.Text())

	// The SignatureValue must verify against the canonical SignedInfo
	sigValue := signature.FindElement("SignatureValue")
	require.NotNil(t, sigValue)
	rawSig, err := base64.StdEncoding.DecodeString(sigValue.Text())
	require.NoError(t, err)

	signedInfo := buildSignedInfo(refID, digestValue.Text())
	siC14N, err := dsig.MakeC14N10RecCanonicalizer().Canonicalize(signedInfo)
	require.NoError(t, err)
	siDigest := sha1.Sum(siC14N)
	require.NoError(t, rsa.VerifyPKCS1v15(&cred.PrivateKey.PublicKey, crypto.SHA1, siDigest[:], rawSig))
}

func TestSignEventElement(t *testing.T) {
	cred := newTestCredential(t)
	s := NewSigner(SignerParam{Log: zap.NewNop()})

	event := `<evento xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.00">` +
		`<infEvento Id="ID110111432603123456780001955500100000004211234567890101">` +
		`<tpEvento>110111</tpEvento>` +
		`</infEvento></evento>`

	signed, err := s.Sign([]byte(event), cred, "ID110111432603123456780001955500100000004211234567890101")
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	assert.NotNil(t, doc.FindElement("//infEvento/Signature"))
}

func TestSignMissingReference(t *testing.T) {
	cred := newTestCredential(t)
	s := NewSigner(SignerParam{Log: zap.NewNop()})

	_, err := s.Sign([]byte(testDocument), cred, "NFe000")
	assert.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestSignInvalidXML(t *testing.T) {
	cred := newTestCredential(t)
	s := NewSigner(SignerParam{Log: zap.NewNop()})

	_, err := s.Sign([]byte("<NFe><unclosed>"), cred, "NFe000")
	assert.Error(t, err)
}
