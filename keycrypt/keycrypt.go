// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keycrypt provides the symmetric encryption primitive the wallet
// engine delegates private key protection to.  A SecretKey is derived from a
// passphrase with scrypt and encrypts fixed blobs with AES-256-CBC under a
// fresh random IV per call.  The engine itself only ever persists the cipher
// descriptor (type and IV); the key lives here.
package keycrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the size of the derived AES key.
	KeySize = 32

	// IVSize is the size of the initialization vector handed back to the
	// caller on every Encrypt.  It matches the AES block size.
	IVSize = aes.BlockSize
)

// Defaults for the scrypt key derivation parameters.
const (
	DefaultN = 262144 // 2^18
	DefaultR = 8
	DefaultP = 1
)

var (
	// ErrLocked is returned when an encryption or decryption is attempted
	// after the secret key has been locked and its material zeroed.
	ErrLocked = errors.New("secret key is locked")

	// ErrMalformed is returned when a ciphertext or IV does not have the
	// shape this package produces.
	ErrMalformed = errors.New("malformed ciphertext")

	// ErrDecryptFailed is returned when a ciphertext fails its padding
	// check after decryption, which almost always means the wrong key.
	ErrDecryptFailed = errors.New("unable to decrypt")
)

// Parameters are the scrypt parameters a SecretKey was derived with.  They
// are not secret and may be persisted by the caller so the key can be derived
// again from the passphrase.
type Parameters struct {
	Salt [32]byte
	N    int
	R    int
	P    int
}

// SecretKey houses a derived AES key along with the parameters used to derive
// it from a passphrase.
type SecretKey struct {
	key    [KeySize]byte
	locked bool

	// Parameters are exported so callers can persist them alongside the
	// data they protect.
	Parameters Parameters
}

// NewSecretKey derives a new secret key from the passed passphrase with a
// fresh random salt and the given scrypt parameters.
func NewSecretKey(passphrase []byte, n, r, p int) (*SecretKey, error) {
	sk := &SecretKey{
		Parameters: Parameters{N: n, R: r, P: p},
	}
	if _, err := io.ReadFull(rand.Reader, sk.Parameters.Salt[:]); err != nil {
		return nil, err
	}
	if err := sk.deriveKey(passphrase); err != nil {
		return nil, err
	}
	return sk, nil
}

// DeriveSecretKey re-derives a secret key from a passphrase and previously
// persisted parameters.
func DeriveSecretKey(passphrase []byte, params Parameters) (*SecretKey, error) {
	sk := &SecretKey{Parameters: params}
	if err := sk.deriveKey(passphrase); err != nil {
		return nil, err
	}
	return sk, nil
}

func (sk *SecretKey) deriveKey(passphrase []byte) error {
	key, err := scrypt.Key(passphrase, sk.Parameters.Salt[:],
		sk.Parameters.N, sk.Parameters.R, sk.Parameters.P, KeySize)
	if err != nil {
		return err
	}
	copy(sk.key[:], key)
	for i := range key {
		key[i] = 0
	}
	sk.locked = false
	return nil
}

// Encrypt encrypts the passed plaintext with a fresh random IV and returns
// both.  The plaintext is padded to the AES block size, so ciphertexts are
// always longer than their plaintexts.
func (sk *SecretKey) Encrypt(plaintext []byte) (iv, ciphertext []byte, err error) {
	if sk.locked {
		return nil, nil, ErrLocked
	}

	block, err := aes.NewCipher(sk.key[:])
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, err
	}

	padded := pad(plaintext)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return iv, ciphertext, nil
}

// Decrypt reverses Encrypt.  The IV must be the one returned alongside the
// ciphertext.
func (sk *SecretKey) Decrypt(iv, ciphertext []byte) ([]byte, error) {
	if sk.locked {
		return nil, ErrLocked
	}
	if len(iv) != IVSize || len(ciphertext) == 0 ||
		len(ciphertext)%aes.BlockSize != 0 {

		return nil, ErrMalformed
	}

	block, err := aes.NewCipher(sk.key[:])
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, ok := unpad(padded)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Lock zeroes the key material.  Encrypt and Decrypt fail with ErrLocked
// until the key is derived again from the passphrase.
func (sk *SecretKey) Lock() {
	sk.key = [KeySize]byte{}
	sk.locked = true
}

// Unlock re-derives the key from the passphrase and the stored parameters.
func (sk *SecretKey) Unlock(passphrase []byte) error {
	return sk.deriveKey(passphrase)
}

// pad applies PKCS#7 padding up to the AES block size.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

// unpad strips PKCS#7 padding, reporting whether the padding was well formed.
func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
