// Package crypto wraps RSA-PSS signing for holder key pairs.
//
// Keys travel as base64-encoded DER (PKIX for public keys, PKCS#8 for private
// keys) so they can be stored and transported as plain strings.
package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	apperrors "github.com/tekiplanet/vortexid/internal/platform/errors"
)

const (
	// KeyType tags key records produced by this provider.
	KeyType = "RSA-PSS"

	modulusBits = 2048
	saltLength  = 32
)

// KeyPair holds one freshly generated signing key pair, encoded for transport.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair produces a fresh RSA-PSS key pair. PSS signing is
// probabilistic: signing the same message twice yields different signatures.
func GenerateKeyPair() (KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, modulusBits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate rsa key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal public key: %w", err)
	}
	privateDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal private key: %w", err)
	}

	return KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(publicDER),
		PrivateKey: base64.StdEncoding.EncodeToString(privateDER),
	}, nil
}

// Sign signs a message with an encoded private key and returns the signature
// base64-encoded. Malformed key material yields a KEY_IMPORT error.
func Sign(message []byte, privateKey string) (string, error) {
	key, err := ImportPrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(message)
	signature, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: saltLength,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// Verify checks a signature against a message and an encoded public key. A
// signature that does not match returns (false, nil); only unparsable public
// key material is an error.
func Verify(message []byte, signature string, publicKey string) (bool, error) {
	key, err := ImportPublicKey(publicKey)
	if err != nil {
		return false, err
	}
	sigBytes, err := decodeBase64(signature)
	if err != nil {
		return false, nil
	}
	digest := sha256.Sum256(message)
	if err := rsa.VerifyPSS(key, crypto.SHA256, digest[:], sigBytes, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	}); err != nil {
		return false, nil
	}
	return true, nil
}

// ImportPublicKey decodes a base64 PKIX RSA public key.
func ImportPublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := decodeBase64(encoded)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeKeyImport, "public key is not valid base64", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeKeyImport, "public key is not valid PKIX DER", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, apperrors.New(apperrors.CodeKeyImport, "public key is not an RSA key")
	}
	return key, nil
}

// ImportPrivateKey decodes a base64 PKCS#8 RSA private key.
func ImportPrivateKey(encoded string) (*rsa.PrivateKey, error) {
	der, err := decodeBase64(encoded)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeKeyImport, "private key is not valid base64", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeKeyImport, "private key is not valid PKCS#8 DER", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, apperrors.New(apperrors.CodeKeyImport, "private key is not an RSA key")
	}
	return key, nil
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
