package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"github.com/notazul/notazul/internal/nfe/certmanager"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	nsXMLDSig = "http://www.w3.org/2000/09/xmldsig#"
	nsC14N    = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"

	algRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	algSHA1      = "http://www.w3.org/2000/09/xmldsig#sha1"
	algEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

var ErrReferenceNotFound = errors.New("signature_reference_not_found")

type SignerParam struct {
	fx.In

	Log *zap.Logger
}

// Signer produces the enveloped XMLDSig signature required by the
// fiscal document layout: inclusive C14N 1.0, SHA-1 digest and
// RSA-SHA1, with the Signature element injected into the referenced
// element.
type Signer struct {
	log *zap.Logger
}

func NewSigner(p SignerParam) *Signer {
	return &Signer{log: p.Log.Named("nfe.signer")}
}

// DocumentReference is the Id of the signed infNFe element.
func DocumentReference(accessKey string) string {
	return "NFe" + accessKey
}

// Sign signs the element carrying Id=refID and returns the whole
// document serialized with the signature in place.
func (s *Signer) Sign(xml []byte, cred *certmanager.Credential, refID string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xml); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	ref := findByID(doc.Root(), refID)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrReferenceNotFound, refID)
	}

	canonicalizer := dsig.MakeC14N10RecCanonicalizer()

	refC14N, err := canonicalizer.Canonicalize(ref)
	if err != nil {
		return nil, fmt.Errorf("canonicalize reference: %w", err)
	}
	refDigest := sha1.Sum(refC14N)
	digestValue := base64.StdEncoding.EncodeToString(refDigest[:])

	signedInfo := buildSignedInfo(refID, digestValue)

	siC14N, err := canonicalizer.Canonicalize(signedInfo)
	if err != nil {
		return nil, fmt.Errorf("canonicalize SignedInfo: %w", err)
	}
	siDigest := sha1.Sum(siC14N)
	rawSig, err := rsa.SignPKCS1v15(rand.Reader, cred.PrivateKey, crypto.SHA1, siDigest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	signature := etree.NewElement("Signature")
	signature.CreateAttr("xmlns", nsXMLDSig)
	signature.AddChild(signedInfo)
	sigValue := signature.CreateElement("SignatureValue")
	sigValue.SetText(base64.StdEncoding.EncodeToString(rawSig))
	keyInfo := signature.CreateElement("KeyInfo")
	x509Data := keyInfo.CreateElement("X509Data")
	x509Cert := x509Data.CreateElement("X509Certificate")
	x509Cert.SetText(base64.StdEncoding.EncodeToString(cred.Certificate.Raw))

	ref.AddChild(signature)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildSignedInfo(refID, digestValue string) *etree.Element {
	signedInfo := etree.NewElement("SignedInfo")
	signedInfo.CreateAttr("xmlns", nsXMLDSig)

	c14nMethod := signedInfo.CreateElement("CanonicalizationMethod")
	c14nMethod.CreateAttr("Algorithm", nsC14N)
	sigMethod := signedInfo.CreateElement("SignatureMethod")
	sigMethod.CreateAttr("Algorithm", algRSASHA1)

	reference := signedInfo.CreateElement("Reference")
	reference.CreateAttr("URI", "#"+refID)
	transforms := reference.CreateElement("Transforms")
	transforms.CreateElement("Transform").CreateAttr("Algorithm", algEnveloped)
	transforms.CreateElement("Transform").CreateAttr("Algorithm", nsC14N)
	digestMethod := reference.CreateElement("DigestMethod")
	digestMethod.CreateAttr("Algorithm", algSHA1)
	digest := reference.CreateElement("DigestValue")
	digest.SetText(digestValue)

	return signedInfo
}

func findByID(el *etree.Element, id string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.SelectAttrValue("Id", "") == id {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}
