// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// testKeyPair returns the serialized public key pair of a deterministic test
// key.
func testKeyPair(t *testing.T, fill byte) (uncompressed, compressed, priv []byte) {
	t.Helper()
	privKey := make([]byte, 32)
	for i := range privKey {
		privKey[i] = fill
	}
	parsedPriv, _ := btcec.PrivKeyFromBytes(privKey)
	pubKey := parsedPriv.PubKey()
	return pubKey.SerializeUncompressed(), pubKey.SerializeCompressed(), privKey
}

// TestCipherRoundTrip verifies the cipher descriptor record layout.
func TestCipherRoundTrip(t *testing.T) {
	t.Parallel()

	cipher := NewCipherAES()
	cipher.iv = bytes.Repeat([]byte{0xa5}, aesIVSize)

	serialized := cipher.serialize()
	require.Equal(t, cipherByte, serialized[0])
	require.Equal(t, byte(CipherTypeAES), serialized[1])

	r := newBinaryReader(serialized[1:])
	got, err := deserializeCipher(r)
	require.NoError(t, err)
	require.Equal(t, cipher.Type(), got.Type())
	require.Equal(t, cipher.IV(), got.IV())

	// A fresh descriptor with no IV round-trips too.
	fresh := NewCipherAES()
	r = newBinaryReader(fresh.serialize()[1:])
	got, err = deserializeCipher(r)
	require.NoError(t, err)
	require.Empty(t, got.IV())

	// Unknown cipher types are fatal.
	r = newBinaryReader([]byte{0x7e, 0x00})
	_, err = deserializeCipher(r)
	requireWalletError(t, err, ErrWalletCorrupt)
}

// TestAssetEntryRoundTrip serializes assets with and without private key
// material and verifies deserialization yields identical records.
func TestAssetEntryRoundTrip(t *testing.T) {
	t.Parallel()

	uncompressed, compressed, priv := testKeyPair(t, 0x22)

	cipher := NewCipherAES()
	cipher.iv = bytes.Repeat([]byte{0x33}, aesIVSize)
	withPriv, err := newAssetEntrySingle(7, uncompressed, compressed, priv, cipher)
	require.NoError(t, err)

	got, err := deserializeAssetEntry(assetEntryKey(7),
		frame(withPriv.serializePayload()))
	require.NoError(t, err)
	requireAssetEqual(t, withPriv, got)
	require.True(t, got.HasPrivKey())
	require.Equal(t, cipher.IV(), got.Cipher().IV())

	pubOnly, err := newAssetEntrySingle(0, uncompressed, compressed, nil, nil)
	require.NoError(t, err)
	got, err = deserializeAssetEntry(assetEntryKey(0),
		frame(pubOnly.serializePayload()))
	require.NoError(t, err)
	requireAssetEqual(t, pubOnly, got)
	require.False(t, got.HasPrivKey())
}

// TestAssetEntryDecodeFailures exercises the fatal decode paths: duplicated
// tags, unknown tags, and private keys missing their cipher descriptor.
func TestAssetEntryDecodeFailures(t *testing.T) {
	t.Parallel()

	uncompressed, compressed, _ := testKeyPair(t, 0x22)

	record := func(tag byte, body []byte) []byte {
		var w binaryWriter
		w.putVarInt(uint64(len(body)) + 1)
		w.putUint8(tag)
		w.putBytes(body)
		return w.bytes()
	}
	payload := func(records ...[]byte) []byte {
		var w binaryWriter
		w.putUint8(assetEntryTypeSingle)
		for _, rec := range records {
			w.putBytes(rec)
		}
		return w.bytes()
	}

	// Duplicate pubkey tag.
	_, err := deserializeAssetPayload(0, payload(
		record(pubKeyUncompressedByte, uncompressed),
		record(pubKeyUncompressedByte, uncompressed),
		record(pubKeyCompressedByte, compressed)))
	requireWalletError(t, err, ErrAssetDeserialization)

	// Unknown tag byte.
	_, err = deserializeAssetPayload(0, payload(
		record(pubKeyUncompressedByte, uncompressed),
		record(pubKeyCompressedByte, compressed),
		record(0x7f, []byte{0x01})))
	requireWalletError(t, err, ErrAssetDeserialization)

	// Missing pubkeys.
	_, err = deserializeAssetPayload(0, payload())
	requireWalletError(t, err, ErrAssetDeserialization)

	// Private key with no cipher descriptor.
	_, err = deserializeAssetPayload(0, payload(
		record(pubKeyUncompressedByte, uncompressed),
		record(pubKeyCompressedByte, compressed),
		record(privKeyByte, bytes.Repeat([]byte{0x44}, 32))))
	requireWalletError(t, err, ErrAssetDeserialization)
}

// TestAssetHashes verifies the memoized hash accessors against the raw
// primitives.
func TestAssetHashes(t *testing.T) {
	t.Parallel()

	uncompressed, compressed, _ := testKeyPair(t, 0x22)
	asset, err := newAssetEntrySingle(0, uncompressed, compressed, nil, nil)
	require.NoError(t, err)

	require.Equal(t, btcutil.Hash160(uncompressed), asset.Hash160Uncompressed())
	require.Equal(t, btcutil.Hash160(compressed), asset.Hash160Compressed())
	require.Equal(t, chainhash.DoubleHashB(compressed), asset.Hash256Compressed())
}

// multisigFixture assembles a 2-of-3 multisig asset from three test keys
// with ids chosen so canonical ordering differs from insertion order.
func multisigFixture(t *testing.T, populate int) *AssetEntryMultisig {
	t.Helper()

	ids := [][]byte{{0x03}, {0x01}, {0x02}}
	sortIDs(ids)

	assets := make(map[string]*AssetEntrySingle)
	for i := 0; i < populate; i++ {
		uncompressed, compressed, _ := testKeyPair(t, byte(0x50+i))
		asset, err := newAssetEntrySingle(0, uncompressed, compressed, nil, nil)
		require.NoError(t, err)
		assets[string(ids[i])] = asset
	}
	return newAssetEntryMultisig(0, ids, assets, 2, 3)
}

// TestMultisigScript verifies the redeem script layout: OP_2, three 33-byte
// pushes in id order, OP_3, OP_CHECKMULTISIG.
func TestMultisigScript(t *testing.T) {
	t.Parallel()

	asset := multisigFixture(t, 3)
	script, err := asset.Script()
	require.NoError(t, err)
	require.Len(t, script, 1+3*34+1+1)

	var expected binaryWriter
	expected.putUint8(txscript.OP_2)
	for _, id := range asset.ids {
		expected.putUint8(33)
		expected.putBytes(asset.assets[string(id)].PubKeyCompressed())
	}
	expected.putUint8(txscript.OP_3)
	expected.putUint8(txscript.OP_CHECKMULTISIG)
	require.Equal(t, expected.bytes(), script)

	hash160, err := asset.Hash160()
	require.NoError(t, err)
	require.Equal(t, btcutil.Hash160(script), hash160)

	// P2WSH commits to the single SHA256 of the script, not the double.
	hash256, err := asset.Hash256()
	require.NoError(t, err)
	require.Equal(t, chainhash.HashB(script), hash256)
}

// TestMultisigIncomplete ensures hashing a multisig asset missing sub
// assets fails instead of producing a short script.
func TestMultisigIncomplete(t *testing.T) {
	t.Parallel()

	asset := multisigFixture(t, 2)
	_, err := asset.Hash160()
	requireWalletError(t, err, ErrInvalidParameter)
	_, err = asset.Hash256()
	requireWalletError(t, err, ErrInvalidParameter)
}
