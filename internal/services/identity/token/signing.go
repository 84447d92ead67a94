package token

import (
	"crypto"
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
)

// AlgRSAPSS is the JOSE algorithm tag carried in disclosure token headers.
// The wire format predates the PS256 registration, so the tag is the literal
// algorithm family name rather than "PS256".
const AlgRSAPSS = "RSA-PSS"

// signingMethodRSAPSS verifies RSA-PSS/SHA-256 signatures under the
// "RSA-PSS" algorithm tag. Salt length is left to the verifier so signatures
// produced with a fixed 32-byte salt (Web Crypto style) still verify.
var signingMethodRSAPSS = &jwt.SigningMethodRSAPSS{
	SigningMethodRSA: &jwt.SigningMethodRSA{
		Name: AlgRSAPSS,
		Hash: crypto.SHA256,
	},
	Options: &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	},
	VerifyOptions: &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	},
}

func init() {
	jwt.RegisterSigningMethod(AlgRSAPSS, func() jwt.SigningMethod {
		return signingMethodRSAPSS
	})
}
