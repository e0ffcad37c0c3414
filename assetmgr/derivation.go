// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// chaincodeMessage is the HMAC message used to derive the legacy chaincode
// from the private root, matching the Armory 1.35 wallet format.
const chaincodeMessage = "Derive Chaincode from Root Key"

// SchemeType identifies a derivation scheme variant.
type SchemeType uint8

// These constants define the supported derivation schemes.
const (
	SchemeLegacy   SchemeType = SchemeType(derivationSchemeLegacy)
	SchemeMultisig SchemeType = SchemeType(derivationSchemeMultisig)
)

// DerivationScheme produces the assets at indices i+1..i+k given the asset
// at index i.  The two variants are the Armory-style legacy chain and the
// multisig composition over sub wallets.
type DerivationScheme interface {
	// Type returns the scheme variant.
	Type() SchemeType

	// serialize returns the scheme payload (without the outer value
	// envelope).
	serialize() []byte
}

// hmac256 computes HMAC-SHA256 of the message under the passed key.
func hmac256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// computeChaincode derives the 32-byte legacy chaincode from the private
// root.
func computeChaincode(privateRoot []byte) []byte {
	return hmac256(privateRoot, []byte(chaincodeMessage))
}

// chainModifier returns the 32-byte scalar mixed into each legacy chain
// step: the double-SHA256 of the parent's uncompressed public key XORed with
// the chaincode.
func chainModifier(pubKeyUncompressed, chaincode []byte) []byte {
	chainMod := chainhash.DoubleHashB(pubKeyUncompressed)
	xorBytes := make([]byte, 32)
	for i := range xorBytes {
		xorBytes[i] = chainMod[i] ^ chaincode[i]
	}
	return xorBytes
}

// chainedPubKey derives the next public key in a legacy chain by multiplying
// the parent point with the chain modifier.  Both encodings of the child key
// are returned.
func chainedPubKey(pubKeyUncompressed, chaincode []byte) (uncompressed, compressed []byte, err error) {
	pubKey, err := btcec.ParsePubKey(pubKeyUncompressed)
	if err != nil {
		str := "failed to parse chain parent public key"
		return nil, nil, walletError(ErrCrypto, str, err)
	}

	var scalar btcec.ModNScalar
	scalar.SetByteSlice(chainModifier(pubKeyUncompressed, chaincode))

	var point, result btcec.JacobianPoint
	pubKey.AsJacobian(&point)
	btcec.ScalarMultNonConst(&scalar, &point, &result)
	result.ToAffine()

	next := btcec.NewPublicKey(&result.X, &result.Y)
	return next.SerializeUncompressed(), next.SerializeCompressed(), nil
}

// chainedPrivKey derives the next private key in a legacy chain:
// priv * (sha256d(pubkey) XOR chaincode) mod N.  The parent public key must
// be the uncompressed encoding matching the private key.
func chainedPrivKey(privKey, pubKeyUncompressed, chaincode []byte) ([]byte, error) {
	if len(privKey) != 32 {
		str := fmt.Sprintf("invalid private key length %d", len(privKey))
		return nil, walletError(ErrInvalidParameter, str, nil)
	}

	var priv, mod secp256k1.ModNScalar
	priv.SetByteSlice(privKey)
	mod.SetByteSlice(chainModifier(pubKeyUncompressed, chaincode))
	priv.Mul(&mod)

	next := priv.Bytes()
	priv.Zero()
	return next[:], nil
}

// LegacyScheme is the Armory-style linear chain: each child key is the
// parent key multiplied by a modifier mixed from the chaincode.
type LegacyScheme struct {
	chaincode []byte

	// encryptor is the optional primitive used to decrypt parent private
	// keys and protect derived ones.  It is bound by the owning wallet
	// and may be nil for pubkey-only operation.
	encryptor Encryptor
}

// NewLegacyScheme returns a legacy scheme for the passed 32-byte chaincode.
func NewLegacyScheme(chaincode []byte) (*LegacyScheme, error) {
	if len(chaincode) != 32 {
		str := fmt.Sprintf("invalid chaincode length %d", len(chaincode))
		return nil, walletError(ErrInvalidParameter, str, nil)
	}
	return &LegacyScheme{chaincode: chaincode}, nil
}

// Type returns SchemeLegacy.
func (s *LegacyScheme) Type() SchemeType {
	return SchemeLegacy
}

// Chaincode returns the scheme's 32-byte chaincode.
func (s *LegacyScheme) Chaincode() []byte {
	return s.chaincode
}

// bindEncryptor attaches the encryption primitive used for private key
// derivation.
func (s *LegacyScheme) bindEncryptor(enc Encryptor) {
	s.encryptor = enc
}

// serialize returns DERIVATIONSCHEME_LEGACY || var_int(32) || chaincode.
func (s *LegacyScheme) serialize() []byte {
	var w binaryWriter
	w.putUint8(derivationSchemeLegacy)
	w.putVarInt(uint64(len(s.chaincode)))
	w.putBytes(s.chaincode)
	return w.bytes()
}

// plainPrivKey returns the plaintext private key of the passed asset, or nil
// when the key is absent, locked, or fails to decrypt.  It never fails: a
// locked or undecryptable key yields pubkey-only derivation.
func (s *LegacyScheme) plainPrivKey(asset *AssetEntrySingle) []byte {
	if !asset.HasPrivKey() {
		return nil
	}
	keyBytes, err := asset.PrivKeyBytes()
	if err != nil {
		return nil
	}

	cipher := asset.Cipher()
	if len(cipher.IV()) == 0 {
		// Stored in the clear.
		return keyBytes
	}
	if s.encryptor == nil {
		log.Debugf("no encryptor bound, deriving asset %d without "+
			"private key", asset.Index()+1)
		return nil
	}
	plain, err := s.encryptor.Decrypt(cipher.IV(), keyBytes)
	if err != nil {
		log.Debugf("private key for asset %d unavailable: %v",
			asset.Index(), err)
		return nil
	}
	return plain
}

// ExtendChain derives count new single assets following firstAsset.  Private
// key derivation failures are non-fatal: the affected assets are created
// with public keys only.
func (s *LegacyScheme) ExtendChain(firstAsset *AssetEntrySingle,
	count uint32) ([]*AssetEntrySingle, error) {

	assets := make([]*AssetEntrySingle, 0, count)
	current := firstAsset
	for i := uint32(0); i < count; i++ {
		next, err := s.nextAsset(current)
		if err != nil {
			return nil, err
		}
		assets = append(assets, next)
		current = next
	}
	return assets, nil
}

// nextAsset derives the asset at current.Index()+1.
func (s *LegacyScheme) nextAsset(current *AssetEntrySingle) (*AssetEntrySingle, error) {
	nextUncompressed, nextCompressed, err := chainedPubKey(
		current.PubKeyUncompressed(), s.chaincode)
	if err != nil {
		return nil, err
	}

	var (
		nextPrivKey []byte
		nextCipher  *Cipher
	)
	if plain := s.plainPrivKey(current); plain != nil {
		derived, err := chainedPrivKey(plain,
			current.PubKeyUncompressed(), s.chaincode)
		if err != nil {
			return nil, err
		}

		// New entries encrypt under the same scheme as their parent,
		// with a fresh IV chosen by the primitive.
		nextCipher = current.Cipher().Copy()
		if s.encryptor != nil {
			iv, ciphertext, err := s.encryptor.Encrypt(derived)
			if err != nil {
				log.Debugf("failed to encrypt derived key for "+
					"asset %d: %v", current.Index()+1, err)
				nextCipher = nil
			} else {
				nextCipher.iv = iv
				nextPrivKey = ciphertext
			}
		} else {
			nextPrivKey = derived
		}
	}
	if nextPrivKey == nil {
		nextCipher = nil
	}

	return newAssetEntrySingle(current.Index()+1, nextUncompressed,
		nextCompressed, nextPrivKey, nextCipher)
}

// MultisigScheme composes N sub wallets into a joint chain.  The persisted
// state is M, N, and the ordered set of sub wallet ids; the sub wallet
// handles are bound after the sub wallets themselves are open.
type MultisigScheme struct {
	m   uint32
	n   uint32
	ids [][]byte // lexicographically sorted

	subWallets map[string]*Wallet
}

// NewMultisigScheme returns a multisig scheme over the passed sub wallet
// ids.  The ids are stored in canonical lexicographic order.
func NewMultisigScheme(ids [][]byte, m, n uint32) (*MultisigScheme, error) {
	if err := validateMultisigParams(m, n); err != nil {
		return nil, err
	}
	if uint32(len(ids)) != n {
		str := fmt.Sprintf("id count mismatch: have %d, want %d",
			len(ids), n)
		return nil, walletError(ErrSchemeMismatch, str, nil)
	}

	sorted := make([][]byte, len(ids))
	copy(sorted, ids)
	sortIDs(sorted)
	return &MultisigScheme{m: m, n: n, ids: sorted}, nil
}

// validateMultisigParams enforces 1 <= M <= N <= 16.
func validateMultisigParams(m, n uint32) error {
	if m < 1 || n < m || n > 16 {
		str := fmt.Sprintf("invalid multisig parameters M=%d N=%d", m, n)
		return walletError(ErrInvalidParameter, str, nil)
	}
	return nil
}

// sortIDs orders wallet ids lexicographically in place.
func sortIDs(ids [][]byte) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i], ids[j]) < 0
	})
}

// Type returns SchemeMultisig.
func (s *MultisigScheme) Type() SchemeType {
	return SchemeMultisig
}

// M returns the number of required signers.
func (s *MultisigScheme) M() uint32 {
	return s.m
}

// N returns the total number of signers.
func (s *MultisigScheme) N() uint32 {
	return s.n
}

// IDs returns the sub wallet ids in canonical order.
func (s *MultisigScheme) IDs() [][]byte {
	return s.ids
}

// serialize returns DERIVATIONSCHEME_MULTISIG || u32(M) || u32(N) ||
// (var_int(len) || id)*N.
func (s *MultisigScheme) serialize() []byte {
	var w binaryWriter
	w.putUint8(derivationSchemeMultisig)
	w.putUint32(s.m)
	w.putUint32(s.n)
	for _, id := range s.ids {
		w.putVarInt(uint64(len(id)))
		w.putBytes(id)
	}
	return w.bytes()
}

// SetSubwalletPointers binds the opened sub wallets to the scheme.  The key
// set of the passed map must match the persisted id set exactly.
func (s *MultisigScheme) SetSubwalletPointers(subWallets map[string]*Wallet) error {
	if len(subWallets) != len(s.ids) {
		str := "sub wallet id set mismatch"
		return walletError(ErrSchemeMismatch, str, nil)
	}
	for _, id := range s.ids {
		if _, ok := subWallets[string(id)]; !ok {
			str := fmt.Sprintf("sub wallet %x missing from id set", id)
			return walletError(ErrSchemeMismatch, str, nil)
		}
	}
	s.subWallets = subWallets
	return nil
}

// ExtendChain tops up every sub wallet so each holds assets through index
// firstIndex+count, then assembles the multisig assets for the new indices.
// Sub wallets that are already long enough are left untouched.
func (s *MultisigScheme) ExtendChain(firstIndex int32, count uint32) ([]*AssetEntryMultisig, error) {
	if s.subWallets == nil {
		str := "multisig scheme has no bound sub wallets"
		return nil, walletError(ErrWalletUninitialized, str, nil)
	}

	total := int64(firstIndex) + 1 + int64(count)
	for _, id := range s.ids {
		sub := s.subWallets[string(id)]
		delta := total - int64(sub.AssetCount())
		if delta <= 0 {
			continue
		}
		if err := sub.ExtendChain(uint32(delta)); err != nil {
			return nil, err
		}
	}

	assets := make([]*AssetEntryMultisig, 0, count)
	for i := int64(firstIndex) + 1; i < total; i++ {
		asset, err := s.AssetForIndex(int32(i))
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// AssetForIndex assembles the multisig asset at the passed index from each
// sub wallet's single asset at the same index.
func (s *MultisigScheme) AssetForIndex(index int32) (*AssetEntryMultisig, error) {
	assets := make(map[string]*AssetEntrySingle, len(s.ids))
	for _, id := range s.ids {
		sub := s.subWallets[string(id)]
		asset, err := sub.AssetForIndex(index)
		if err != nil {
			return nil, err
		}
		assets[string(id)] = asset
	}
	return newAssetEntryMultisig(index, s.ids, assets, s.m, s.n), nil
}

// deserializeScheme decodes a derivation scheme payload.
func deserializeScheme(payload []byte) (DerivationScheme, error) {
	r := newBinaryReader(payload)
	schemeType, err := r.uint8()
	if err != nil {
		return nil, err
	}

	switch schemeType {
	case derivationSchemeLegacy:
		n, err := r.varInt()
		if err != nil {
			return nil, err
		}
		chaincode, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		return NewLegacyScheme(dupBytes(chaincode))

	case derivationSchemeMultisig:
		m, err := r.uint32()
		if err != nil {
			return nil, err
		}
		n, err := r.uint32()
		if err != nil {
			return nil, err
		}
		var ids [][]byte
		for r.remaining() > 0 {
			idLen, err := r.varInt()
			if err != nil {
				return nil, err
			}
			id, err := r.bytes(int(idLen))
			if err != nil {
				return nil, err
			}
			ids = append(ids, dupBytes(id))
		}
		if uint64(len(ids)) != uint64(n) {
			str := fmt.Sprintf("sub wallet id count mismatch: "+
				"have %d, want %d", len(ids), n)
			return nil, walletError(ErrWalletCorrupt, str, nil)
		}
		return NewMultisigScheme(ids, m, n)

	default:
		str := fmt.Sprintf("unsupported derivation scheme %#x", schemeType)
		return nil, walletError(ErrWalletCorrupt, str, nil)
	}
}
