// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

// CipherType identifies the symmetric scheme a private key is protected
// with.
type CipherType uint8

// These constants define the supported cipher types.
const (
	CipherTypeAES CipherType = 1 // not iota as it needs to be stable on disk
)

// aesIVSize is the IV length produced by the AES primitive.
const aesIVSize = 16

// Encryptor is the delegation point for the symmetric primitive.  The engine
// never encrypts or decrypts on its own; it persists the cipher descriptor
// and hands key material to an Encryptor supplied by the caller.  Both
// methods may fail when the primitive is locked, which chain derivation
// treats as a non-fatal, pubkey-only outcome.
type Encryptor interface {
	// Encrypt protects the passed plaintext and returns the IV it chose
	// along with the ciphertext.
	Encrypt(plaintext []byte) (iv, ciphertext []byte, err error)

	// Decrypt reverses Encrypt given the persisted IV.
	Decrypt(iv, ciphertext []byte) ([]byte, error)
}

// Cipher is the non-secret descriptor persisted alongside every encrypted
// private key: the cipher type and the IV the ciphertext was produced under.
// A descriptor with an empty IV marks a private key stored in the clear; the
// IV is filled in by the primitive on first use.
type Cipher struct {
	cipherType CipherType
	iv         []byte
}

// NewCipherAES returns a fresh AES cipher descriptor with no IV.
func NewCipherAES() *Cipher {
	return &Cipher{cipherType: CipherTypeAES}
}

// Type returns the cipher type tag.
func (c *Cipher) Type() CipherType {
	return c.cipherType
}

// IV returns the stored initialization vector.  It is empty for descriptors
// whose key material is not encrypted.
func (c *Cipher) IV() []byte {
	return c.iv
}

// Copy returns a fresh descriptor of the same type with no IV, suitable for
// protecting newly derived key material under the same scheme.
func (c *Cipher) Copy() *Cipher {
	return &Cipher{cipherType: c.cipherType}
}

// serialize returns the cipher record: CIPHER_BYTE || type || var_int(len)
// || iv.
func (c *Cipher) serialize() []byte {
	var w binaryWriter
	w.putUint8(cipherByte)
	w.putUint8(uint8(c.cipherType))
	w.putVarInt(uint64(len(c.iv)))
	w.putBytes(c.iv)
	return w.bytes()
}

// deserializeCipher decodes a cipher record.  The reader is positioned just
// past the CIPHER_BYTE tag.
func deserializeCipher(r *binaryReader) (*Cipher, error) {
	typ, err := r.uint8()
	if err != nil {
		return nil, err
	}

	switch CipherType(typ) {
	case CipherTypeAES:
		ivLen, err := r.varInt()
		if err != nil {
			return nil, err
		}
		iv, err := r.bytes(int(ivLen))
		if err != nil {
			return nil, err
		}
		c := &Cipher{cipherType: CipherTypeAES}
		if len(iv) > 0 {
			c.iv = make([]byte, len(iv))
			copy(c.iv, iv)
		}
		return c, nil

	default:
		str := "unexpected cipher type"
		return nil, walletError(ErrWalletCorrupt, str, nil)
	}
}
