// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// newTestRootAsset builds the root asset for the test seed with an optional
// encryptor protecting the private key.
func newTestRootAsset(t *testing.T, enc Encryptor) *AssetEntrySingle {
	t.Helper()

	rootPriv, _ := btcec.PrivKeyFromBytes(seed)
	pubKey := rootPriv.PubKey()
	cipher := NewCipherAES()
	privKey := dupBytes(seed)
	if enc != nil {
		iv, ciphertext, err := enc.Encrypt(seed)
		require.NoError(t, err)
		cipher.iv = iv
		privKey = ciphertext
	}
	root, err := newAssetEntrySingle(RootAssetIndex,
		pubKey.SerializeUncompressed(), pubKey.SerializeCompressed(),
		privKey, cipher)
	require.NoError(t, err)
	return root
}

// TestLegacySchemeRoundTrip verifies serialize/deserialize is the identity
// for the legacy scheme.
func TestLegacySchemeRoundTrip(t *testing.T) {
	t.Parallel()

	scheme, err := NewLegacyScheme(computeChaincode(seed))
	require.NoError(t, err)

	decoded, err := deserializeScheme(scheme.serialize())
	require.NoError(t, err)
	legacy, ok := decoded.(*LegacyScheme)
	require.True(t, ok)
	require.Equal(t, scheme.Chaincode(), legacy.Chaincode())
}

// TestMultisigSchemeRoundTrip verifies serialize/deserialize is the
// identity for the multisig scheme, including canonical id ordering.
func TestMultisigSchemeRoundTrip(t *testing.T) {
	t.Parallel()

	ids := [][]byte{
		{0x0c, 0x0c}, {0x0a, 0x0a}, {0x0b, 0x0b},
	}
	scheme, err := NewMultisigScheme(ids, 2, 3)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x0a, 0x0a}, {0x0b, 0x0b}, {0x0c, 0x0c}},
		scheme.IDs())

	decoded, err := deserializeScheme(scheme.serialize())
	require.NoError(t, err)
	multisig, ok := decoded.(*MultisigScheme)
	require.True(t, ok)
	require.Equal(t, scheme.M(), multisig.M())
	require.Equal(t, scheme.N(), multisig.N())
	require.Equal(t, scheme.IDs(), multisig.IDs())
}

// TestMultisigSchemeDecodeMismatch ensures a persisted id count that does
// not match N is fatal.
func TestMultisigSchemeDecodeMismatch(t *testing.T) {
	t.Parallel()

	var w binaryWriter
	w.putUint8(derivationSchemeMultisig)
	w.putUint32(2)
	w.putUint32(3)
	for _, id := range [][]byte{{0x01}, {0x02}} {
		w.putVarInt(uint64(len(id)))
		w.putBytes(id)
	}
	_, err := deserializeScheme(w.bytes())
	requireWalletError(t, err, ErrWalletCorrupt)
}

// TestMultisigSchemeParams exercises the M,N bounds.
func TestMultisigSchemeParams(t *testing.T) {
	t.Parallel()

	_, err := NewMultisigScheme([][]byte{{0x01}, {0x02}, {0x03}}, 4, 3)
	requireWalletError(t, err, ErrInvalidParameter)
	_, err = NewMultisigScheme(nil, 0, 0)
	requireWalletError(t, err, ErrInvalidParameter)
	_, err = NewMultisigScheme(nil, 1, 17)
	requireWalletError(t, err, ErrInvalidParameter)
}

// TestChainedDerivationConsistency extends a chain with private keys and
// verifies every derived private key regenerates exactly the derived public
// key, and that derivation is deterministic.
func TestChainedDerivationConsistency(t *testing.T) {
	t.Parallel()

	scheme, err := NewLegacyScheme(computeChaincode(seed))
	require.NoError(t, err)
	root := newTestRootAsset(t, nil)

	assets, err := scheme.ExtendChain(root, 5)
	require.NoError(t, err)
	require.Len(t, assets, 5)

	for i, asset := range assets {
		require.Equal(t, int32(i), asset.Index())
		require.True(t, asset.HasPrivKey())

		privKey, err := asset.PrivKeyBytes()
		require.NoError(t, err)
		parsedPriv, _ := btcec.PrivKeyFromBytes(privKey)
		pubKey := parsedPriv.PubKey()
		require.Equal(t, pubKey.SerializeUncompressed(),
			asset.PubKeyUncompressed())
		require.Equal(t, pubKey.SerializeCompressed(),
			asset.PubKeyCompressed())
	}

	// A second extension from the same root yields identical bytes.
	again, err := scheme.ExtendChain(root, 5)
	require.NoError(t, err)
	for i := range assets {
		requireAssetEqual(t, assets[i], again[i])
	}
}

// TestExtendChainLockedKeys derives a chain whose encryption primitive
// locks partway through.  The remaining assets must still be derived with
// valid public keys and no private halves.
func TestExtendChainLockedKeys(t *testing.T) {
	t.Parallel()

	// The primitive succeeds for the parents of assets 0, 1, and 2, then
	// reports locked.
	enc := &mockEncryptor{failAfter: 3}
	scheme, err := NewLegacyScheme(computeChaincode(seed))
	require.NoError(t, err)
	scheme.bindEncryptor(enc)
	root := newTestRootAsset(t, enc)

	assets, err := scheme.ExtendChain(root, 5)
	require.NoError(t, err)
	require.Len(t, assets, 5)

	// Compare public keys against a fully unlocked derivation.
	unlockedScheme, err := NewLegacyScheme(computeChaincode(seed))
	require.NoError(t, err)
	unlocked, err := unlockedScheme.ExtendChain(newTestRootAsset(t, nil), 5)
	require.NoError(t, err)

	for i, asset := range assets {
		require.Equal(t, unlocked[i].PubKeyUncompressed(),
			asset.PubKeyUncompressed())
		if i < 3 {
			require.True(t, asset.HasPrivKey(), "asset %d", i)
		} else {
			require.False(t, asset.HasPrivKey(), "asset %d", i)
		}

		// Address materialization works for every asset either way.
		entry, err := NewAddressEntry(asset, AddressP2PKH, testNet)
		require.NoError(t, err)
		addr, err := entry.Address()
		require.NoError(t, err)
		require.NotEmpty(t, addr)
	}
}

// TestEncryptedDerivationRoundTrip ensures derived private keys are stored
// as ciphertext with per-asset IVs and decrypt back to the plaintext chain.
func TestEncryptedDerivationRoundTrip(t *testing.T) {
	t.Parallel()

	enc := &mockEncryptor{}
	scheme, err := NewLegacyScheme(computeChaincode(seed))
	require.NoError(t, err)
	scheme.bindEncryptor(enc)

	assets, err := scheme.ExtendChain(newTestRootAsset(t, enc), 3)
	require.NoError(t, err)

	plainScheme, err := NewLegacyScheme(computeChaincode(seed))
	require.NoError(t, err)
	plain, err := plainScheme.ExtendChain(newTestRootAsset(t, nil), 3)
	require.NoError(t, err)

	for i, asset := range assets {
		require.True(t, asset.HasPrivKey())
		require.NotEmpty(t, asset.Cipher().IV())

		ciphertext, err := asset.PrivKeyBytes()
		require.NoError(t, err)
		decrypted, err := enc.Decrypt(asset.Cipher().IV(), ciphertext)
		require.NoError(t, err)

		expected, err := plain[i].PrivKeyBytes()
		require.NoError(t, err)
		require.Equal(t, expected, decrypted)
	}
}
