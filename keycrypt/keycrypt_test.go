// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keycrypt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fastScrypt parameters keep the tests quick.
const (
	fastN = 16
	fastR = 8
	fastP = 1
)

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()

	sk, err := NewSecretKey([]byte("test password"), fastN, fastR, fastP)
	require.NoError(t, err)

	plaintext := []byte{
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
	}
	iv, ciphertext, err := sk.Encrypt(plaintext)
	require.NoError(t, err)
	require.Len(t, iv, IVSize)
	require.NotEqual(t, plaintext, ciphertext[:len(plaintext)])

	decrypted, err := sk.Decrypt(iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)

	// Two encryptions of the same plaintext must not share an IV.
	iv2, _, err := sk.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, iv, iv2)
}

func TestDeriveSecretKey(t *testing.T) {
	t.Parallel()

	passphrase := []byte("test password")
	sk, err := NewSecretKey(passphrase, fastN, fastR, fastP)
	require.NoError(t, err)

	iv, ciphertext, err := sk.Encrypt([]byte("secret"))
	require.NoError(t, err)

	// A key derived from the same passphrase and parameters must be able
	// to decrypt.
	sk2, err := DeriveSecretKey(passphrase, sk.Parameters)
	require.NoError(t, err)
	decrypted, err := sk2.Decrypt(iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), decrypted)

	// The wrong passphrase must not.
	sk3, err := DeriveSecretKey([]byte("wrong"), sk.Parameters)
	require.NoError(t, err)
	_, err = sk3.Decrypt(iv, ciphertext)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestLock(t *testing.T) {
	t.Parallel()

	passphrase := []byte("test password")
	sk, err := NewSecretKey(passphrase, fastN, fastR, fastP)
	require.NoError(t, err)

	iv, ciphertext, err := sk.Encrypt([]byte("secret"))
	require.NoError(t, err)

	sk.Lock()
	_, _, err = sk.Encrypt([]byte("secret"))
	require.ErrorIs(t, err, ErrLocked)
	_, err = sk.Decrypt(iv, ciphertext)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, sk.Unlock(passphrase))
	decrypted, err := sk.Decrypt(iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), decrypted)
}
