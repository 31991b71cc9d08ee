package signer

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/alapierre/gocosign/common"
	"github.com/miekg/pkcs11"
)

type Pkcs11Config struct {
	Pkcs11ModulePath string
	Pin              string
	SlotNumber       uint
}

// Pkcs11Module signs on a PKCS#11 token (smart card or HSM).
type Pkcs11Module struct {
	config Pkcs11Config
	log    common.Logger

	mu         sync.Mutex
	pkcs       *pkcs11.Ctx
	session    pkcs11.SessionHandle
	opened     bool
	hash       crypto.Hash
	publicKey  crypto.PublicKey
	privateKey pkcs11.ObjectHandle
	cert       *x509.Certificate
	certChain  [][]byte
}

var _ Module = (*Pkcs11Module)(nil)

func NewPkcs11Module(config Pkcs11Config, log common.Logger) (*Pkcs11Module, error) {
	ctx := pkcs11.New(config.Pkcs11ModulePath)
	if ctx == nil {
		return nil, fmt.Errorf("failed to load pkcs11 module %s", config.Pkcs11ModulePath)
	}
	if err := ctx.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize pkcs11: %w", err)
	}

	m := &Pkcs11Module{
		config: config,
		log:    common.OrDiscard(log),
		pkcs:   ctx,
		hash:   crypto.SHA256,
	}

	if err := m.cardInit(); err != nil {
		return nil, errors.Join(err, m.Close())
	}

	if err := m.findSigningKeys(); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to find signing keys: %w", err), m.Close())
	}

	return m, nil
}

// SetDigest selects the digest used by Sign. It is validated when signing.
func (m *Pkcs11Module) SetDigest(hash crypto.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash = hash
}

func (m *Pkcs11Module) Digest() crypto.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hash
}

// Sign returns a detached CMS signature over the source content, signed on the token.
func (m *Pkcs11Module) Sign(ctx context.Context, path string) ([]byte, error) {
	hash := m.Digest()
	if !Supported(hash) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, hash)
	}

	content, err := ReadSource(path)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return nil, errors.New("pkcs11 session is closed")
	}

	key := rawRSAKey{public: m.publicKey, sign: m.signOnToken}
	return signDetached(content, hash, m.cert, key)
}

// signOnToken applies CKM_RSA_PKCS to a DigestInfo block. Callers hold m.mu.
func (m *Pkcs11Module) signOnToken(digestInfo []byte) ([]byte, error) {
	err := m.pkcs.SignInit(m.session, []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}, m.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signing: %w", err)
	}

	signature, err := m.pkcs.Sign(m.session, digestInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return signature, nil
}

func (m *Pkcs11Module) Certificate() *x509.Certificate {
	return m.cert
}

func (m *Pkcs11Module) Certificates() [][]byte {
	return m.certChain
}

func (m *Pkcs11Module) Public() crypto.PublicKey {
	return m.publicKey
}

func (m *Pkcs11Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pkcs == nil {
		return nil
	}

	var errs []error
	if m.opened {
		if err := m.pkcs.Logout(m.session); err != nil && !errors.Is(err, pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN)) {
			errs = append(errs, err)
		}
		if err := m.pkcs.CloseSession(m.session); err != nil {
			errs = append(errs, err)
		}
		m.opened = false
	}

	if err := m.pkcs.Finalize(); err != nil {
		errs = append(errs, err)
	}
	m.pkcs.Destroy()
	m.pkcs = nil

	return errors.Join(errs...)
}

func (m *Pkcs11Module) cardInit() error {
	slots, err := m.pkcs.GetSlotList(true)
	if err != nil {
		return fmt.Errorf("failed to get slot list: %w", err)
	}
	if len(slots) <= int(m.config.SlotNumber) {
		return fmt.Errorf("invalid slot number %d, %d slots with token present", m.config.SlotNumber, len(slots))
	}

	session, err := m.pkcs.OpenSession(slots[m.config.SlotNumber], pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	m.session = session
	m.opened = true

	if err := m.pkcs.Login(m.session, pkcs11.CKU_USER, m.config.Pin); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	return nil
}

func (m *Pkcs11Module) findSigningKeys() error {
	privateKey, err := m.findObject(pkcs11.CKO_PRIVATE_KEY)
	if err != nil {
		return fmt.Errorf("no signing key found: %w", err)
	}
	m.privateKey = privateKey

	publicKey, err := m.findObject(pkcs11.CKO_PUBLIC_KEY)
	if err != nil {
		return fmt.Errorf("no public key found: %w", err)
	}

	attrs, err := m.pkcs.GetAttributeValue(m.session, publicKey, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
	})
	if err != nil {
		return fmt.Errorf("failed to get public key attributes: %w", err)
	}
	m.publicKey = &rsa.PublicKey{
		N: new(big.Int).SetBytes(attrs[0].Value),
		E: int(new(big.Int).SetBytes(attrs[1].Value).Int64()),
	}

	cert, err := m.findObject(pkcs11.CKO_CERTIFICATE)
	if err != nil {
		return fmt.Errorf("no certificate found: %w", err)
	}

	certAttrs, err := m.pkcs.GetAttributeValue(m.session, cert, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
	})
	if err != nil {
		return fmt.Errorf("failed to get certificate attributes: %w", err)
	}

	parsedCert, err := x509.ParseCertificate(certAttrs[0].Value)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	m.cert = parsedCert
	m.certChain = [][]byte{parsedCert.Raw}

	return nil
}

// findObject returns the first object of the given class visible in the session.
func (m *Pkcs11Module) findObject(class uint) (pkcs11.ObjectHandle, error) {
	if err := m.pkcs.FindObjectsInit(m.session, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
	}); err != nil {
		return 0, fmt.Errorf("failed to initialize object search: %w", err)
	}

	objects, _, err := m.pkcs.FindObjects(m.session, 1)
	if finalErr := m.pkcs.FindObjectsFinal(m.session); finalErr != nil {
		m.log.Error(finalErr, "FindObjectsFinal operation failed", "class", class)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find objects: %w", err)
	}
	if len(objects) == 0 {
		return 0, errors.New("object not present on token")
	}
	return objects[0], nil
}
