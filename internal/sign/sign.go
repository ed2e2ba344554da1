// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package sign implements the database's detached-signature scheme: an
// RSA/SHA-512 signature (PKCS#1 v1.5) computed over the file with the
// signature fields themselves zeroed out. Up to two independent keys may
// sign a database; verification succeeds if either one checks out.
//
// No third-party PEM/RSA signing library appears anywhere in the example
// pack (the only crypto import elsewhere is transport TLS), so this is
// built directly on the standard library's crypto/rsa, crypto/x509, and
// crypto/sha512 -- the smallest surface that reproduces the original
// project's RSA-SHA512 dual-key scheme.
package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrNoSignature is returned by Verify when neither signature slot is
// populated.
var ErrNoSignature = errors.New("sign: database has no signature")

// ErrBadSignature is returned by Verify when at least one signature slot is
// populated but none verifies against the provided key.
var ErrBadSignature = errors.New("sign: signature verification failed")

// Digest returns the SHA-512 digest of data, which the caller must already
// have prepared with the signature fields zeroed.
func Digest(data []byte) [64]byte {
	return sha512.Sum512(data)
}

// ParsePrivateKey parses a PEM-encoded PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("sign: no PEM block found in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("sign: parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("sign: private key is not RSA")
	}
	return rsaKey, nil
}

// ParsePublicKey parses a PEM-encoded PKIX or PKCS#1 RSA public key.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("sign: no PEM block found in public key")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("sign: parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("sign: public key is not RSA")
	}
	return rsaKey, nil
}

// Sign produces a PKCS#1 v1.5 RSA/SHA-512 signature over digest.
func Sign(key *rsa.PrivateKey, digest [64]byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA512, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// Verify checks digest against sig1/sig2 using pub, returning nil if either
// non-empty signature verifies. It returns ErrNoSignature if both are
// empty, or ErrBadSignature if at least one is present but none verify.
func Verify(pub *rsa.PublicKey, digest [64]byte, sig1, sig2 []byte) error {
	if len(sig1) == 0 && len(sig2) == 0 {
		return ErrNoSignature
	}
	for _, sig := range [][]byte{sig1, sig2} {
		if len(sig) == 0 {
			continue
		}
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA512, digest[:], sig); err == nil {
			return nil
		}
	}
	return ErrBadSignature
}
