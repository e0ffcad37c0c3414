// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/txscript"

	"github.com/verdinjoshua1982/armorywallet/netparams"
)

// AddressType identifies the payment scheme an address entry materializes.
type AddressType uint8

// These constants define the supported address entry types.
const (
	AddressP2PKH  AddressType = 1 // not iota as they need to be stable on disk
	AddressP2WPKH AddressType = 2
	AddressP2SH   AddressType = 3
	AddressP2WSH  AddressType = 4
)

// String returns the AddressType as a human-readable name.
func (t AddressType) String() string {
	switch t {
	case AddressP2PKH:
		return "P2PKH"
	case AddressP2WPKH:
		return "P2WPKH"
	case AddressP2SH:
		return "P2SH"
	case AddressP2WSH:
		return "P2WSH"
	}
	return fmt.Sprintf("Unknown AddressType (%d)", int(t))
}

// validAddressType rejects address type tags outside the defined set.
func validAddressType(addrType AddressType) error {
	switch addrType {
	case AddressP2PKH, AddressP2WPKH, AddressP2SH, AddressP2WSH:
		return nil
	}
	str := fmt.Sprintf("unsupported address entry type %d", addrType)
	return walletError(ErrInvalidParameter, str, nil)
}

// ScriptRecipient pairs an output value with the payment script a
// transaction builder consumes.
type ScriptRecipient struct {
	value  btcutil.Amount
	script []byte
}

// Value returns the output value.
func (r *ScriptRecipient) Value() btcutil.Amount {
	return r.value
}

// Script returns the serialized payment script.
func (r *ScriptRecipient) Script() []byte {
	return r.script
}

// AddressEntry wraps an asset and materializes its user-visible address and
// payment script on demand.  Entries are cached by the owning wallet; the
// memoized address is set without locking, so an entry is not safe for
// concurrent use.
type AddressEntry interface {
	// Index returns the chain index of the wrapped asset.
	Index() int32

	// Type returns the address scheme of this entry.
	Type() AddressType

	// Address returns the canonical address bytes, memoized after the
	// first call.  For the witness types no encoding envelope is defined
	// yet, so the raw program (P2WPKH) or prefixed program (P2WSH) is
	// returned.
	Address() ([]byte, error)

	// Recipient returns the script recipient paying the given value to
	// this address.
	Recipient(value btcutil.Amount) (*ScriptRecipient, error)
}

// NewAddressEntry constructs the address entry for the given asset and
// address type.  Unsupported pairings fail with ErrInvalidParameter.
func NewAddressEntry(asset AssetEntry, addrType AddressType,
	net *netparams.Params) (AddressEntry, error) {

	switch addrType {
	case AddressP2PKH:
		single, ok := asset.(*AssetEntrySingle)
		if !ok {
			str := "P2PKH addresses require a single asset"
			return nil, walletError(ErrInvalidParameter, str, nil)
		}
		return &addressEntryP2PKH{asset: single, net: net}, nil

	case AddressP2WPKH:
		single, ok := asset.(*AssetEntrySingle)
		if !ok {
			str := "P2WPKH addresses require a single asset"
			return nil, walletError(ErrInvalidParameter, str, nil)
		}
		return &addressEntryP2WPKH{asset: single}, nil

	case AddressP2SH:
		switch asset.(type) {
		case *AssetEntrySingle, *AssetEntryMultisig:
			return &addressEntryP2SH{asset: asset, net: net}, nil
		}
		return nil, unexpectedAssetErr(asset)

	case AddressP2WSH:
		switch asset.(type) {
		case *AssetEntrySingle, *AssetEntryMultisig:
			return &addressEntryP2WSH{asset: asset, net: net}, nil
		}
		return nil, unexpectedAssetErr(asset)

	default:
		str := fmt.Sprintf("unsupported address entry type %d", addrType)
		return nil, walletError(ErrInvalidParameter, str, nil)
	}
}

func unexpectedAssetErr(asset AssetEntry) error {
	str := fmt.Sprintf("unexpected asset entry type %T", asset)
	return walletError(ErrUnexpectedAssetType, str, nil)
}

// addressEntryP2PKH pays to the HASH160 of the uncompressed public key.
type addressEntryP2PKH struct {
	asset   *AssetEntrySingle
	net     *netparams.Params
	address []byte
}

func (a *addressEntryP2PKH) Index() int32 {
	return a.asset.Index()
}

func (a *addressEntryP2PKH) Type() AddressType {
	return AddressP2PKH
}

func (a *addressEntryP2PKH) Address() ([]byte, error) {
	if a.address == nil {
		a.address = []byte(base58.CheckEncode(
			a.asset.Hash160Uncompressed(),
			a.net.PubkeyHashPrefix()))
	}
	return a.address, nil
}

func (a *addressEntryP2PKH) Recipient(value btcutil.Amount) (*ScriptRecipient, error) {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(a.asset.Hash160Uncompressed()).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, walletError(ErrCrypto, "failed to build P2PKH script", err)
	}
	return &ScriptRecipient{value: value, script: script}, nil
}

// addressEntryP2WPKH pays to the HASH160 of the compressed public key.
type addressEntryP2WPKH struct {
	asset   *AssetEntrySingle
	address []byte
}

func (a *addressEntryP2WPKH) Index() int32 {
	return a.asset.Index()
}

func (a *addressEntryP2WPKH) Type() AddressType {
	return AddressP2WPKH
}

func (a *addressEntryP2WPKH) Address() ([]byte, error) {
	// No address standard for witness outputs yet; the raw program is
	// returned until bech32 support lands.
	if a.address == nil {
		a.address = a.asset.Hash160Compressed()
	}
	return a.address, nil
}

func (a *addressEntryP2WPKH) Recipient(value btcutil.Amount) (*ScriptRecipient, error) {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(a.asset.Hash160Compressed()).
		Script()
	if err != nil {
		return nil, walletError(ErrCrypto, "failed to build P2WPKH script", err)
	}
	return &ScriptRecipient{value: value, script: script}, nil
}

// addressEntryP2SH pays to a script hash: the compressed pubkey hash for a
// single asset, the redeem script hash for a multisig asset.
type addressEntryP2SH struct {
	asset   AssetEntry
	net     *netparams.Params
	address []byte
}

func (a *addressEntryP2SH) Index() int32 {
	return a.asset.Index()
}

func (a *addressEntryP2SH) Type() AddressType {
	return AddressP2SH
}

// scriptHash returns the 20-byte payload hashed into the address.
func (a *addressEntryP2SH) scriptHash() ([]byte, error) {
	switch asset := a.asset.(type) {
	case *AssetEntrySingle:
		return asset.Hash160Compressed(), nil
	case *AssetEntryMultisig:
		return asset.Hash160()
	default:
		return nil, unexpectedAssetErr(a.asset)
	}
}

func (a *addressEntryP2SH) Address() ([]byte, error) {
	if a.address == nil {
		hash, err := a.scriptHash()
		if err != nil {
			return nil, err
		}
		a.address = []byte(base58.CheckEncode(hash,
			a.net.ScriptHashPrefix()))
	}
	return a.address, nil
}

func (a *addressEntryP2SH) Recipient(value btcutil.Amount) (*ScriptRecipient, error) {
	hash, err := a.scriptHash()
	if err != nil {
		return nil, err
	}
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUAL).
		Script()
	if err != nil {
		return nil, walletError(ErrCrypto, "failed to build P2SH script", err)
	}
	return &ScriptRecipient{value: value, script: script}, nil
}

// addressEntryP2WSH pays to a 32-byte witness program: the double-SHA256 of
// the compressed pubkey for a single asset, the single SHA256 of the redeem
// script for a multisig asset.
type addressEntryP2WSH struct {
	asset   AssetEntry
	net     *netparams.Params
	address []byte
}

func (a *addressEntryP2WSH) Index() int32 {
	return a.asset.Index()
}

func (a *addressEntryP2WSH) Type() AddressType {
	return AddressP2WSH
}

// witnessProgram returns the 32-byte program committed to by the address.
func (a *addressEntryP2WSH) witnessProgram() ([]byte, error) {
	switch asset := a.asset.(type) {
	case *AssetEntrySingle:
		return asset.Hash256Compressed(), nil
	case *AssetEntryMultisig:
		return asset.Hash256()
	default:
		return nil, unexpectedAssetErr(a.asset)
	}
}

func (a *addressEntryP2WSH) Address() ([]byte, error) {
	// No address standard for witness outputs yet; the program is
	// returned behind the script hash network byte.
	if a.address == nil {
		program, err := a.witnessProgram()
		if err != nil {
			return nil, err
		}
		address := make([]byte, 0, len(program)+1)
		address = append(address, a.net.ScriptHashPrefix())
		address = append(address, program...)
		a.address = address
	}
	return a.address, nil
}

func (a *addressEntryP2WSH) Recipient(value btcutil.Amount) (*ScriptRecipient, error) {
	program, err := a.witnessProgram()
	if err != nil {
		return nil, err
	}
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(program).
		Script()
	if err != nil {
		return nil, walletError(ErrCrypto, "failed to build P2WSH script", err)
	}
	return &ScriptRecipient{value: value, script: script}, nil
}
