// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// AssetEntryType identifies the variant of a stored asset.
type AssetEntryType uint8

// These constants define the supported asset entry types.
const (
	AssetEntrySingleType   AssetEntryType = AssetEntryType(assetEntryTypeSingle)
	AssetEntryMultisigType AssetEntryType = AssetEntryType(assetEntryTypeMultisig)
)

// RootAssetIndex is the chain index of the root asset.  The derived chain
// itself starts at index 0.
const RootAssetIndex int32 = -1

// AssetEntry is the unit of key material at a given chain index.  The two
// variants are AssetEntrySingle, a persisted record of one keypair, and
// AssetEntryMultisig, an in-memory composition of N single assets at the
// same index.
type AssetEntry interface {
	// Index returns the chain index of the asset.
	Index() int32

	// Type returns the asset variant.
	Type() AssetEntryType
}

// assetPublicKey is the public half of a single asset: the same EC point in
// both uncompressed and compressed encodings.
type assetPublicKey struct {
	uncompressed []byte // 65 bytes
	compressed   []byte // 33 bytes
}

// serialize returns the two tagged pubkey records.
func (k *assetPublicKey) serialize() []byte {
	var w binaryWriter
	w.putVarInt(uint64(len(k.uncompressed)) + 1)
	w.putUint8(pubKeyUncompressedByte)
	w.putBytes(k.uncompressed)

	w.putVarInt(uint64(len(k.compressed)) + 1)
	w.putUint8(pubKeyCompressedByte)
	w.putBytes(k.compressed)
	return w.bytes()
}

// assetPrivateKey is the optional private half of a single asset.  The key
// bytes are ciphertext whenever the cipher descriptor carries an IV.  A
// private key is only ever written together with its descriptor.
type assetPrivateKey struct {
	key    []byte // 32 bytes plaintext, longer when encrypted
	cipher *Cipher
}

// serialize returns the tagged private key record followed by the framed
// cipher descriptor.
func (k *assetPrivateKey) serialize() []byte {
	var w binaryWriter
	w.putVarInt(uint64(len(k.key)) + 1)
	w.putUint8(privKeyByte)
	w.putBytes(k.key)

	cipherData := k.cipher.serialize()
	w.putVarInt(uint64(len(cipherData)))
	w.putBytes(cipherData)
	return w.bytes()
}

// AssetEntrySingle is one keypair at a chain index.  The hash accessors
// memoize their results without locking; the owning wallet calls them with
// its mutex held.
type AssetEntrySingle struct {
	index   int32
	pubKey  *assetPublicKey
	privKey *assetPrivateKey // nil for pubkey-only assets

	h160Uncompressed []byte
	h160Compressed   []byte
	h256Compressed   []byte
}

// newAssetEntrySingle wires up a single asset from its components.  privKey
// and cipher may both be nil for a pubkey-only asset, but a private key
// without a cipher descriptor is rejected.
func newAssetEntrySingle(index int32, uncompressed, compressed, privKey []byte,
	cipher *Cipher) (*AssetEntrySingle, error) {

	if len(uncompressed) != 65 || len(compressed) != 33 {
		str := fmt.Sprintf("invalid public key lengths %d/%d",
			len(uncompressed), len(compressed))
		return nil, walletError(ErrInvalidParameter, str, nil)
	}

	entry := &AssetEntrySingle{
		index:  index,
		pubKey: &assetPublicKey{uncompressed: uncompressed, compressed: compressed},
	}
	if len(privKey) > 0 {
		if cipher == nil {
			str := "private key without cipher descriptor"
			return nil, walletError(ErrWalletCorrupt, str, nil)
		}
		entry.privKey = &assetPrivateKey{key: privKey, cipher: cipher}
	}
	return entry, nil
}

// Index returns the chain index of the asset.
func (a *AssetEntrySingle) Index() int32 {
	return a.index
}

// Type returns AssetEntrySingleType.
func (a *AssetEntrySingle) Type() AssetEntryType {
	return AssetEntrySingleType
}

// PubKeyUncompressed returns the 65-byte uncompressed public key.
func (a *AssetEntrySingle) PubKeyUncompressed() []byte {
	return a.pubKey.uncompressed
}

// PubKeyCompressed returns the 33-byte compressed public key.
func (a *AssetEntrySingle) PubKeyCompressed() []byte {
	return a.pubKey.compressed
}

// HasPrivKey returns whether the asset carries private key material.
func (a *AssetEntrySingle) HasPrivKey() bool {
	return a.privKey != nil
}

// Cipher returns the cipher descriptor of the private key, or nil for a
// pubkey-only asset.
func (a *AssetEntrySingle) Cipher() *Cipher {
	if a.privKey == nil {
		return nil
	}
	return a.privKey.cipher
}

// PrivKeyBytes returns the stored private key bytes, which are ciphertext
// when the descriptor carries an IV.  It fails for pubkey-only assets.
func (a *AssetEntrySingle) PrivKeyBytes() ([]byte, error) {
	if a.privKey == nil {
		str := fmt.Sprintf("no private key for asset %d", a.index)
		return nil, walletError(ErrAssetUnavailable, str, nil)
	}
	return a.privKey.key, nil
}

// Hash160Uncompressed returns HASH160 of the uncompressed public key.
func (a *AssetEntrySingle) Hash160Uncompressed() []byte {
	if a.h160Uncompressed == nil {
		a.h160Uncompressed = btcutil.Hash160(a.pubKey.uncompressed)
	}
	return a.h160Uncompressed
}

// Hash160Compressed returns HASH160 of the compressed public key.
func (a *AssetEntrySingle) Hash160Compressed() []byte {
	if a.h160Compressed == nil {
		a.h160Compressed = btcutil.Hash160(a.pubKey.compressed)
	}
	return a.h160Compressed
}

// Hash256Compressed returns the double-SHA256 of the compressed public key.
func (a *AssetEntrySingle) Hash256Compressed() []byte {
	if a.h256Compressed == nil {
		a.h256Compressed = chainhash.DoubleHashB(a.pubKey.compressed)
	}
	return a.h256Compressed
}

// serializePayload returns the asset value payload (without the outer
// envelope): type byte, pubkey records, and private key records when
// present.
func (a *AssetEntrySingle) serializePayload() []byte {
	var w binaryWriter
	w.putUint8(assetEntryTypeSingle)
	w.putBytes(a.pubKey.serialize())
	if a.privKey != nil {
		w.putBytes(a.privKey.serialize())
	}
	return w.bytes()
}

// deserializeAssetEntry decodes an asset from its store key and framed
// value.
func deserializeAssetEntry(key, value []byte) (*AssetEntrySingle, error) {
	r := newBinaryReader(key)
	prefix, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if prefix != assetEntryPrefix {
		str := "invalid asset entry key prefix"
		return nil, walletError(ErrAssetDeserialization, str, nil)
	}
	index, err := r.int32()
	if err != nil || r.remaining() != 0 {
		str := "invalid asset entry key length"
		return nil, walletError(ErrAssetDeserialization, str, nil)
	}

	payload, err := unframe(value)
	if err != nil {
		return nil, err
	}
	return deserializeAssetPayload(index, payload)
}

// deserializeAssetPayload decodes the value payload of a single asset.  Each
// inner record is bound to its slot by tag byte; duplicate and unknown tags
// are fatal.
func deserializeAssetPayload(index int32, payload []byte) (*AssetEntrySingle, error) {
	r := newBinaryReader(payload)
	entryType, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if entryType != assetEntryTypeSingle {
		str := fmt.Sprintf("invalid asset entry type %#x", entryType)
		return nil, walletError(ErrAssetDeserialization, str, nil)
	}

	var (
		uncompressed []byte
		compressed   []byte
		privKey      []byte
		cipher       *Cipher
	)
	deserErr := func(str string) error {
		return walletError(ErrAssetDeserialization, str, nil)
	}

	for r.remaining() > 0 {
		recLen, err := r.varInt()
		if err != nil {
			return nil, err
		}
		record, err := r.bytes(int(recLen))
		if err != nil {
			return nil, err
		}

		rr := newBinaryReader(record)
		tag, err := rr.uint8()
		if err != nil {
			return nil, err
		}
		switch tag {
		case pubKeyUncompressedByte:
			if uncompressed != nil {
				return nil, deserErr("multiple uncompressed pub keys for entry")
			}
			uncompressed = dupBytes(record[1:])

		case pubKeyCompressedByte:
			if compressed != nil {
				return nil, deserErr("multiple compressed pub keys for entry")
			}
			compressed = dupBytes(record[1:])

		case privKeyByte:
			if privKey != nil {
				return nil, deserErr("multiple private keys for entry")
			}
			privKey = dupBytes(record[1:])

		case cipherByte:
			if cipher != nil {
				return nil, deserErr("multiple ciphers for entry")
			}
			cipher, err = deserializeCipher(rr)
			if err != nil {
				return nil, err
			}

		default:
			return nil, deserErr(fmt.Sprintf("unknown record tag byte %#x", tag))
		}
	}

	if uncompressed == nil || compressed == nil {
		return nil, deserErr("asset entry is missing public keys")
	}
	if privKey != nil && cipher == nil {
		return nil, deserErr("private key without cipher descriptor")
	}
	return newAssetEntrySingle(index, uncompressed, compressed, privKey, cipher)
}

// dupBytes returns a copy of the passed slice, or nil for an empty one.
func dupBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	dup := make([]byte, len(b))
	copy(dup, b)
	return dup
}

// AssetEntryMultisig composes the single assets of every sub wallet at one
// chain index.  It is never persisted; it is reconstituted from the sub
// wallets on open and on chain extension.
type AssetEntryMultisig struct {
	index int32

	// ids holds the sub wallet ids in their canonical lexicographic
	// order; assets maps each raw id to the sub wallet's asset at this
	// index.
	ids    [][]byte
	assets map[string]*AssetEntrySingle

	m uint32
	n uint32

	script  []byte
	hash160 []byte
	hash256 []byte
}

// newAssetEntryMultisig builds the composed asset at the given index from
// the passed id-ordered asset map.
func newAssetEntryMultisig(index int32, ids [][]byte,
	assets map[string]*AssetEntrySingle, m, n uint32) *AssetEntryMultisig {

	return &AssetEntryMultisig{
		index:  index,
		ids:    ids,
		assets: assets,
		m:      m,
		n:      n,
	}
}

// Index returns the chain index of the asset.
func (a *AssetEntryMultisig) Index() int32 {
	return a.index
}

// Type returns AssetEntryMultisigType.
func (a *AssetEntryMultisig) Type() AssetEntryType {
	return AssetEntryMultisigType
}

// M returns the number of required signers.
func (a *AssetEntryMultisig) M() uint32 {
	return a.m
}

// N returns the total number of signers.
func (a *AssetEntryMultisig) N() uint32 {
	return a.n
}

// Script returns the redeem script OP_M || (0x21 || pubkey_i)* || OP_N ||
// OP_CHECKMULTISIG with the compressed sub wallet public keys concatenated
// in lexicographic id order.  The script is memoized.
func (a *AssetEntryMultisig) Script() ([]byte, error) {
	if a.script != nil {
		return a.script, nil
	}

	if a.m < 1 || a.m > a.n {
		str := fmt.Sprintf("invalid multisig M=%d N=%d", a.m, a.n)
		return nil, walletError(ErrInvalidParameter, str, nil)
	}
	mOp := txscript.OP_1 + int(a.m) - 1
	nOp := txscript.OP_1 + int(a.n) - 1
	if nOp > txscript.OP_16 {
		str := fmt.Sprintf("multisig N=%d exceeds OP_16", a.n)
		return nil, walletError(ErrInvalidParameter, str, nil)
	}

	var w binaryWriter
	w.putUint8(uint8(mOp))
	for _, id := range a.ids {
		asset, ok := a.assets[string(id)]
		if !ok {
			str := "asset count mismatch in multisig entry"
			return nil, walletError(ErrInvalidParameter, str, nil)
		}
		compressed := asset.PubKeyCompressed()
		if len(compressed) != 33 {
			str := fmt.Sprintf("unexpected compressed pub key length %d",
				len(compressed))
			return nil, walletError(ErrInvalidParameter, str, nil)
		}
		w.putUint8(33)
		w.putBytes(compressed)
	}
	w.putUint8(uint8(nOp))
	w.putUint8(txscript.OP_CHECKMULTISIG)

	a.script = w.bytes()
	return a.script, nil
}

// Hash160 returns HASH160 of the redeem script, used for P2SH addresses.
func (a *AssetEntryMultisig) Hash160() ([]byte, error) {
	if err := a.checkComplete(); err != nil {
		return nil, err
	}
	if a.hash160 == nil {
		script, err := a.Script()
		if err != nil {
			return nil, err
		}
		a.hash160 = btcutil.Hash160(script)
	}
	return a.hash160, nil
}

// Hash256 returns the single SHA256 of the redeem script, used for P2WSH
// witness programs.
func (a *AssetEntryMultisig) Hash256() ([]byte, error) {
	if err := a.checkComplete(); err != nil {
		return nil, err
	}
	if a.hash256 == nil {
		script, err := a.Script()
		if err != nil {
			return nil, err
		}
		a.hash256 = chainhash.HashB(script)
	}
	return a.hash256, nil
}

// checkComplete verifies every sub wallet contributed an asset.
func (a *AssetEntryMultisig) checkComplete() error {
	if uint32(len(a.assets)) != a.n || uint32(len(a.ids)) != a.n {
		str := fmt.Sprintf("asset count mismatch in multisig entry: "+
			"have %d of %d", len(a.assets), a.n)
		return walletError(ErrInvalidParameter, str, nil)
	}
	return nil
}
