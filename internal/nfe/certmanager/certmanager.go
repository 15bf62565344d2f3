package certmanager

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fernet/fernet-go"
	"github.com/hashicorp/go-multierror"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	"github.com/notazul/notazul/internal/clock"
	"github.com/notazul/notazul/internal/config"
	"github.com/notazul/notazul/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"software.sslmate.com/src/go-pkcs12"
)

var (
	ErrMissingEncryptionKey = errors.New("certificate_encryption_key_not_configured")
	ErrNoCertificate        = errors.New("business_has_no_certificate")
	ErrEmptyBundle          = errors.New("certificate_bundle_empty")
	ErrUnsupportedKey       = errors.New("certificate_key_not_rsa")
)

// Credential is an opened signing identity.
type Credential struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
}

type ManagerParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

// Manager opens PKCS#12 bundles and protects stored passwords.
type Manager struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.Metrics

	encryptionKey string
}

func NewManager(p ManagerParam) *Manager {
	return &Manager{
		db:      p.DB,
		log:     p.Log.Named("nfe.certmanager"),
		clock:   p.Clock,
		metrics: p.Metrics,

		encryptionKey: p.Config.CertificateEncryptionKey,
	}
}

func (m *Manager) fernetKey() (*fernet.Key, error) {
	if strings.TrimSpace(m.encryptionKey) == "" {
		return nil, ErrMissingEncryptionKey
	}
	return fernet.DecodeKey(m.encryptionKey)
}

// EncryptPassword protects a certificate password for storage.
func (m *Manager) EncryptPassword(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	key, err := m.fernetKey()
	if err != nil {
		return "", err
	}
	token, err := fernet.EncryptAndSign([]byte(plain), key)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// DecryptPassword recovers the stored password. Values that fail to
// verify are treated as plaintext left over from before encryption was
// enabled.
func (m *Manager) DecryptPassword(stored string) string {
	if stored == "" {
		return ""
	}
	key, err := m.fernetKey()
	if err != nil {
		return stored
	}
	plain := fernet.VerifyAndDecrypt([]byte(stored), 0, []*fernet.Key{key})
	if plain == nil {
		return stored
	}
	return string(plain)
}

// IsPasswordEncrypted reports whether the value is a valid fernet token.
func (m *Manager) IsPasswordEncrypted(stored string) bool {
	if stored == "" {
		return false
	}
	key, err := m.fernetKey()
	if err != nil {
		return false
	}
	return fernet.VerifyAndDecrypt([]byte(stored), 0, []*fernet.Key{key}) != nil
}

// NormalizeBundle accepts DER bytes, base64 wrapped DER or a filesystem
// path pointing at the bundle. PKCS#12 starts with the 0x30 SEQUENCE
// tag. Path support exists for rows imported from installs that stored
// the file on disk and only its location in the column.
func NormalizeBundle(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyBundle
	}
	if decoded, ok := decodeBundle(raw); ok {
		return decoded, nil
	}
	if path := strings.TrimSpace(string(raw)); looksLikePath(path) {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("certificate file %q: %w", path, err)
		}
		if len(content) == 0 {
			return nil, ErrEmptyBundle
		}
		if decoded, ok := decodeBundle(content); ok {
			return decoded, nil
		}
		return content, nil
	}
	// Hand the raw bytes to the PKCS#12 parser for a clearer error.
	return raw, nil
}

func decodeBundle(raw []byte) ([]byte, bool) {
	if raw[0] == 0x30 {
		return raw, true
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(raw)); err == nil && len(decoded) > 0 && decoded[0] == 0x30 {
		return decoded, true
	}
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw))); err == nil && len(decoded) > 0 && decoded[0] == 0x30 {
		return decoded, true
	}
	return nil, false
}

func looksLikePath(s string) bool {
	if s == "" || len(s) > 4096 || strings.ContainsAny(s, "\x00\n\r") {
		return false
	}
	info, err := os.Stat(s)
	return err == nil && info.Mode().IsRegular()
}

// Load opens the business certificate. The password is tried in several
// encodings because legacy bundles were exported with inconsistent
// tooling.
func (m *Manager) Load(business *businessdomain.Business) (*Credential, error) {
	if len(business.CertificateFile) == 0 {
		return nil, fmt.Errorf("business %q: %w", business.Name, ErrNoCertificate)
	}

	bundle, err := NormalizeBundle(business.CertificateFile)
	if err != nil {
		return nil, err
	}
	password := m.DecryptPassword(business.CertificatePassword)

	var attempts []struct {
		label    string
		password string
	}
	if password != "" {
		attempts = append(attempts,
			struct{ label, password string }{"utf-8", password},
			struct{ label, password string }{"latin-1", latin1(password)},
		)
	}
	attempts = append(attempts, struct{ label, password string }{"empty", ""})

	var errs *multierror.Error
	for _, attempt := range attempts {
		key, cert, chain, err := pkcs12.DecodeChain(bundle, attempt.password)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("[%s]: %w", attempt.label, err))
			continue
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
		}
		return &Credential{PrivateKey: rsaKey, Certificate: cert, Chain: chain}, nil
	}

	return nil, fmt.Errorf("unable to open certificate with any password variant: %w", errs.ErrorOrNil())
}

// latin1 reinterprets the UTF-8 bytes of s as Latin-1 characters.
func latin1(s string) string {
	b := []byte(s)
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// Diagnostics summarizes the certificate state for the configuration UI.
type Diagnostics struct {
	Valid             bool     `json:"valid"`
	FileOK            bool     `json:"file_ok"`
	PasswordEncrypted bool     `json:"password_encrypted"`
	Expiration        string   `json:"expiration,omitempty"`
	DaysRemaining     int      `json:"days_remaining"`
	Name              string   `json:"name,omitempty"`
	CNPJ              string   `json:"cnpj,omitempty"`
	Algorithm         string   `json:"algorithm,omitempty"`
	KeyBits           int      `json:"key_bits,omitempty"`
	Message           string   `json:"message"`
	Errors            []string `json:"errors,omitempty"`
}

// Diagnose inspects the business certificate without failing hard.
func (m *Manager) Diagnose(business *businessdomain.Business) *Diagnostics {
	diag := &Diagnostics{}

	if len(business.CertificateFile) == 0 {
		diag.Message = "no certificate uploaded"
		diag.Errors = append(diag.Errors, ErrNoCertificate.Error())
		return diag
	}
	diag.FileOK = true
	diag.PasswordEncrypted = m.IsPasswordEncrypted(business.CertificatePassword)

	cred, err := m.Load(business)
	if err != nil {
		diag.Message = "unable to open the PKCS#12 bundle, check password and file"
		diag.Errors = append(diag.Errors, err.Error())
		return diag
	}

	cert := cred.Certificate
	expiration := cert.NotAfter
	days := int(expiration.Sub(m.clock.Now()).Hours() / 24)

	diag.Expiration = expiration.Format("2006-01-02")
	diag.DaysRemaining = days
	diag.Valid = days > 0
	diag.Name = cert.Subject.CommonName
	diag.CNPJ = certificateCNPJ(cert)
	diag.Algorithm, diag.KeyBits = keyInfo(cred)

	if days > 0 {
		diag.Message = fmt.Sprintf("certificate valid until %s (%d days remaining)", diag.Expiration, days)
	} else {
		diag.Message = fmt.Sprintf("certificate expired on %s", diag.Expiration)
	}
	if days <= 30 {
		diag.Errors = append(diag.Errors, fmt.Sprintf("certificate expires in %d days, renew it", days))
	}

	m.metrics.SetCertificateDaysRemaining(business.ID.String(), float64(days))
	return diag
}

// certificateCNPJ extracts the CNPJ from the subject serial number, or
// from a "NAME:CNPJ" common name used by older ICP-Brasil issuers.
func certificateCNPJ(cert *x509.Certificate) string {
	if cert.Subject.SerialNumber != "" {
		return cert.Subject.SerialNumber
	}
	cn := cert.Subject.CommonName
	if idx := strings.LastIndex(cn, ":"); idx >= 0 {
		return strings.TrimSpace(cn[idx+1:])
	}
	return ""
}

func keyInfo(cred *Credential) (string, int) {
	switch pub := cred.Certificate.PublicKey.(type) {
	case *rsa.PublicKey:
		return "RSA", pub.N.BitLen()
	case *ecdsa.PublicKey:
		return "EC", pub.Curve.Params().BitSize
	default:
		return fmt.Sprintf("%T", pub), 0
	}
}

// EncryptStoredPasswords encrypts every plaintext certificate password
// still in the database. Returns migrated and failed counts.
func (m *Manager) EncryptStoredPasswords(ctx context.Context) (int, int, error) {
	var businesses []businessdomain.Business
	err := m.db.WithContext(ctx).
		Where("certificate_password IS NOT NULL AND certificate_password <> ''").
		Find(&businesses).Error
	if err != nil {
		return 0, 0, err
	}

	migrated, failed := 0, 0
	for i := range businesses {
		b := &businesses[i]
		if m.IsPasswordEncrypted(b.CertificatePassword) {
			continue
		}
		encrypted, err := m.EncryptPassword(b.CertificatePassword)
		if err != nil {
			failed++
			m.log.Error("failed to encrypt certificate password",
				zap.Int64("business_id", int64(b.ID)),
				zap.Error(err),
			)
			continue
		}
		err = m.db.WithContext(ctx).Model(&businessdomain.Business{}).
			Where("id = ?", b.ID).
			Update("certificate_password", encrypted).Error
		if err != nil {
			failed++
			continue
		}
		migrated++
	}

	m.log.Info("certificate password migration finished",
		zap.Int("migrated", migrated),
		zap.Int("failed", failed),
	)
	return migrated, failed, nil
}
