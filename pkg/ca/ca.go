// Package ca implements the Certificate Authority: one long-lived
// self-signed ECDSA P-256 key pair per process that issues short-lived
// leaf certificates for enrolling agents and validates certificate
// chains by date window only. Revocation is tracked by the identity
// registry, not by this package.
package ca

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"math/big"
	"strings"
	"time"

	pwerrors "github.com/pathwell/agentcore/pkg/shared/errors"
)

const (
	leafValidity  = 365 * 24 * time.Hour
	caValidity    = 10 * 365 * 24 * time.Hour
	certBlockType = "CERTIFICATE"
	endCertMarker = "-----END CERTIFICATE-----"
)

// Authority holds the process-wide CA key pair. It is read-only after
// New and may be shared across goroutines freely.
type Authority struct {
	key  *ecdsa.PrivateKey
	cert *x509.Certificate
	der  []byte
	pem  string
}

// New generates a fresh self-signed CA key pair and certificate. Called
// once at process startup.
func New() (*Authority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, pwerrors.FailedToWithDetails("generate CA key", "ca", "", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Pathwell CA",
			Organization: []string{"Pathwell"},
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, pwerrors.FailedToWithDetails("self-sign CA certificate", "ca", "", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, pwerrors.FailedToWithDetails("parse self-signed CA certificate", "ca", "", err)
	}

	return &Authority{
		key:  key,
		cert: cert,
		der:  der,
		pem:  string(pem.EncodeToMemory(&pem.Block{Type: certBlockType, Bytes: der})),
	}, nil
}

// Issue builds a leaf certificate for agentExternalID and returns the
// concatenation "<leaf PEM>\n<CA PEM>".
//
// If publicKeyPEM parses as an EC or RSA public key, the leaf is bound
// to that key; otherwise a fresh key pair is generated for the leaf —
// the identity registry, not the certificate, is the source of truth
// for the agent's public key.
func (a *Authority) Issue(agentExternalID, publicKeyPEM string) (string, error) {
	pub, err := parsePublicKeyPEM(publicKeyPEM)
	if err != nil || pub == nil {
		generated, genErr := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if genErr != nil {
			return "", pwerrors.FailedToWithDetails("issue agent certificate", "ca", agentExternalID, genErr)
		}
		pub = &generated.PublicKey
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: randSerial(),
		Subject: pkix.Name{
			CommonName:   agentExternalID,
			Organization: []string{"Pathwell Agent"},
		},
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(leafValidity),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.cert, pub, a.key)
	if err != nil {
		return "", pwerrors.FailedToWithDetails("issue agent certificate", "ca", agentExternalID, err)
	}

	leafPEM := string(pem.EncodeToMemory(&pem.Block{Type: certBlockType, Bytes: der}))
	return leafPEM + "\n" + a.pem, nil
}

// Validate splits chainPEM on the end-certificate delimiter, parses the
// first (leaf) certificate, and returns whether now lies within its
// validity window. No revocation list or signature chain check is
// performed — the identity registry's revoked_at is authoritative.
func (a *Authority) Validate(chainPEM string) (bool, error) {
	leaf, err := firstCertificate(chainPEM)
	if err != nil {
		return false, pwerrors.FailedToWithDetails("validate certificate chain", "ca", "", err)
	}
	now := time.Now()
	return !now.Before(leaf.NotBefore) && !now.After(leaf.NotAfter), nil
}

func firstCertificate(chainPEM string) (*x509.Certificate, error) {
	parts := strings.SplitAfter(chainPEM, endCertMarker)
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		block, _ := pem.Decode([]byte(p))
		if block == nil {
			continue
		}
		return x509.ParseCertificate(block.Bytes)
	}
	return nil, errNoCertificate
}

// GenerateKeyPair generates a fresh ECDSA P-256 key pair, PEM-encoded,
// for local bootstrap tooling (cmd/pathwell-agentctl) and test fixtures.
func GenerateKeyPair() (privatePEM, publicPEM string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", pwerrors.FailedTo("generate key pair", err)
	}
	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", "", pwerrors.FailedTo("marshal private key", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", pwerrors.FailedTo("marshal public key", err)
	}
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}))
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privatePEM, publicPEM, nil
}

// HashPublicKey returns the SHA-256 hex fingerprint of a PEM-encoded
// public key, stored by the identity registry alongside the key itself.
func HashPublicKey(publicKeyPEM string) string {
	sum := sha256.Sum256([]byte(publicKeyPEM))
	return hex.EncodeToString(sum[:])
}

func parsePublicKeyPEM(s string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errNoPublicKey
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

func randSerial() *big.Int {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return n
}

var (
	errNoCertificate = errors.New("no certificate found in chain")
	errNoPublicKey   = errors.New("no PEM block found in public key")
)
