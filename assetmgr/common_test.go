// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verdinjoshua1982/armorywallet/netparams"
)

var (
	// seed is the private root used throughout the tests.
	seed = []byte{
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
	}

	testNet = &netparams.MainNetParams
)

// errLockedForTest is what the mock encryptor reports once locked.
var errLockedForTest = errors.New("primitive is locked")

// mockEncryptor is a stand-in for the external symmetric primitive.  It
// XORs with a fixed pad under a fixed IV so results are deterministic, and
// can be set to start failing after a number of successful decrypts to
// exercise pubkey-only derivation.
type mockEncryptor struct {
	decrypts    int
	failAfter   int // 0 means never fail
	failEncrypt bool
}

func (m *mockEncryptor) xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ 0x5a
	}
	return out
}

func (m *mockEncryptor) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	if m.failEncrypt {
		return nil, nil, errLockedForTest
	}
	iv := make([]byte, aesIVSize)
	for i := range iv {
		iv[i] = 0xa5
	}
	return iv, m.xor(plaintext), nil
}

func (m *mockEncryptor) Decrypt(iv, ciphertext []byte) ([]byte, error) {
	if m.failAfter > 0 && m.decrypts >= m.failAfter {
		return nil, errLockedForTest
	}
	m.decrypts++
	return m.xor(ciphertext), nil
}

// requireWalletError asserts err is a WalletError carrying the wanted code.
func requireWalletError(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, IsError(err, code), "got %v, want error code %v",
		err, code)
}

// requireAssetEqual asserts two single assets serialize to identical bytes.
func requireAssetEqual(t *testing.T, want, got *AssetEntrySingle) {
	t.Helper()
	require.Equal(t, want.Index(), got.Index())
	require.Equal(t, want.serializePayload(), got.serializePayload())
}
