// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcwallet/walletdb"

	"github.com/verdinjoshua1982/armorywallet/netparams"
)

// MultisigWallet composes N single sub wallets stored in the same file and
// indexes them jointly.  Sub wallet i lives under the Subwallet-i
// sub-database; the parent's own sub-database holds the multisig header and
// the chain length.  Multisig assets themselves are never persisted; they
// are reassembled from the sub wallets.
type MultisigWallet struct {
	mtx sync.Mutex

	db   walletdb.DB
	path string

	net       *netparams.Params
	encryptor Encryptor

	walletID []byte
	parentID []byte

	scheme      *MultisigScheme
	defaultType AddressType

	highestUsed atomic.Int32
	chainLength uint32

	subWallets map[string]*Wallet
	assets     map[int32]*AssetEntryMultisig
	addresses  map[int32]AddressEntry
}

// CreateMultisig creates a new M-of-N multisig wallet file from a private
// root.  The address type must be P2SH or P2WSH.  Each sub wallet is rooted
// at HMAC-SHA256(privateRoot, "Subwallet-<i>") and extended by lookup
// assets; the handle returned is reloaded purely from disk after creation.
func CreateMultisig(dbDir string, net *netparams.Params, addrType AddressType,
	m, n uint32, privateRoot []byte, lookup uint32,
	encryptor Encryptor) (*MultisigWallet, error) {

	if addrType != AddressP2SH && addrType != AddressP2WSH {
		str := fmt.Sprintf("invalid address entry type %s for "+
			"multisig wallet", addrType)
		return nil, walletError(ErrInvalidParameter, str, nil)
	}
	if err := validateMultisigParams(m, n); err != nil {
		return nil, err
	}
	if len(privateRoot) == 0 {
		str := "empty private root"
		return nil, walletError(ErrInvalidParameter, str, nil)
	}
	if lookup == LookupDefault {
		lookup = DerivationLookup
	}

	// The multisig wallet id commits to both the root public key and the
	// M-of-N shape.
	privKey, _ := btcec.PrivKeyFromBytes(privateRoot)
	pubKey := privKey.PubKey()
	longID := hmac256(pubKey.SerializeUncompressed(),
		[]byte(fmt.Sprintf("%d_of_%d", m, n)))
	walletID := walletIDForPubKey(longID)
	path := filepath.Join(dbDir, WalletFileName(walletID))

	db, err := openDB(path, true)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*MultisigWallet, error) {
		db.Close()
		return nil, err
	}

	// Create the N sub wallets within the same file.
	ids := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		subRoot := hmac256(privateRoot,
			[]byte(fmt.Sprintf("Subwallet-%d", i)))
		sub, err := initSingleWallet(db, false, subWalletBucketName(i),
			path, net, walletID, AddressP2PKH, subRoot, lookup,
			encryptor)
		if err != nil {
			return fail(err)
		}
		ids = append(ids, sub.WalletID())
	}

	scheme, err := NewMultisigScheme(ids, m, n)
	if err != nil {
		return fail(err)
	}

	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		bucket, err := tx.CreateTopLevelBucket(mainWalletBucketName)
		if err != nil {
			str := "failed to create multisig wallet bucket"
			return walletError(ErrDatabase, str, err)
		}
		if err := putWalletType(bucket, walletTypeMultisig); err != nil {
			return err
		}
		err = putHeaderData(bucket, walletID, walletID, scheme,
			addrType, 0)
		if err != nil {
			return err
		}
		return putChainLength(bucket, lookup)
	})
	if err != nil {
		return fail(err)
	}

	// Drop the creation-time handles and reload everything from disk so
	// the returned wallet reflects exactly what was persisted.
	wallet, err := loadMultisigWallet(db, path, net, encryptor)
	if err != nil {
		return fail(err)
	}
	return wallet, nil
}

// loadMultisigWallet reconstitutes a multisig wallet: header records, the
// persisted scheme and chain length, every sub wallet, and finally the
// composed assets for all indices below the chain length.
func loadMultisigWallet(db walletdb.DB, path string, net *netparams.Params,
	encryptor Encryptor) (*MultisigWallet, error) {

	w := &MultisigWallet{
		db:        db,
		path:      path,
		net:       net,
		encryptor: encryptor,
		assets:    make(map[int32]*AssetEntryMultisig),
		addresses: make(map[int32]AddressEntry),
	}

	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(mainWalletBucketName)
		if bucket == nil {
			str := "wallet file is missing its main database"
			return walletError(ErrWalletCorrupt, str, nil)
		}

		walletType, err := fetchWalletType(bucket)
		if err != nil {
			return err
		}
		if walletType != walletTypeMultisig {
			str := "wallet bucket does not hold a multisig wallet"
			return walletError(ErrWalletCorrupt, str, nil)
		}

		if w.parentID, err = fetchValue(bucket, uint32Key(parentIDKey)); err != nil {
			return err
		}
		if w.walletID, err = fetchValue(bucket, uint32Key(walletIDKey)); err != nil {
			return err
		}
		if w.defaultType, err = fetchAddressEntryType(bucket); err != nil {
			return err
		}

		topUsed, err := fetchTopUsedIndex(bucket)
		if err != nil {
			return err
		}
		w.highestUsed.Store(topUsed)

		schemePayload, err := fetchValue(bucket, uint32Key(derivationSchemeKey))
		if err != nil {
			return err
		}
		scheme, err := deserializeScheme(schemePayload)
		if err != nil {
			return err
		}
		multisig, ok := scheme.(*MultisigScheme)
		if !ok {
			str := "multisig wallet with non-multisig derivation scheme"
			return walletError(ErrWalletCorrupt, str, nil)
		}
		w.scheme = multisig

		w.chainLength, err = fetchChainLength(bucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Open every sub wallet and bind the handles into the scheme.
	w.subWallets = make(map[string]*Wallet, w.scheme.N())
	for i := uint32(0); i < w.scheme.N(); i++ {
		sub, err := loadSingleWallet(db, false, subWalletBucketName(i),
			path, net, encryptor)
		if err != nil {
			return nil, err
		}
		w.subWallets[string(sub.WalletID())] = sub
	}
	if err := w.scheme.SetSubwalletPointers(w.subWallets); err != nil {
		return nil, err
	}

	// Materialize the composed assets.
	for i := uint32(0); i < w.chainLength; i++ {
		asset, err := w.scheme.AssetForIndex(int32(i))
		if err != nil {
			return nil, err
		}
		w.assets[int32(i)] = asset
	}
	return w, nil
}

// ID returns the wallet id as a hex string.
func (w *MultisigWallet) ID() string {
	return hex.EncodeToString(w.walletID)
}

// WalletID returns the raw 20-byte wallet id.
func (w *MultisigWallet) WalletID() []byte {
	return w.walletID
}

// M returns the number of required signers.
func (w *MultisigWallet) M() uint32 {
	return w.scheme.M()
}

// N returns the total number of signers.
func (w *MultisigWallet) N() uint32 {
	return w.scheme.N()
}

// DefaultAddressType returns the address type GetNewAddress materializes.
func (w *MultisigWallet) DefaultAddressType() AddressType {
	return w.defaultType
}

// SubWallet returns the sub wallet with the passed raw id.
func (w *MultisigWallet) SubWallet(id []byte) (*Wallet, error) {
	sub, ok := w.subWallets[string(id)]
	if !ok {
		str := fmt.Sprintf("no sub wallet with id %x", id)
		return nil, walletError(ErrAssetUnavailable, str, nil)
	}
	return sub, nil
}

// SubWalletIDs returns the sub wallet ids in canonical order.
func (w *MultisigWallet) SubWalletIDs() [][]byte {
	return w.scheme.IDs()
}

// ChainLength returns the number of composed assets.
func (w *MultisigWallet) ChainLength() uint32 {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.chainLength
}

// AssetForIndex returns the composed asset at the passed index.
func (w *MultisigWallet) AssetForIndex(index int32) (*AssetEntryMultisig, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	asset, ok := w.assets[index]
	if !ok {
		str := fmt.Sprintf("no asset at index %d", index)
		return nil, walletError(ErrAssetUnavailable, str, nil)
	}
	return asset, nil
}

// TopUsedIndex returns the number of addresses handed out so far.
func (w *MultisigWallet) TopUsedIndex() int32 {
	return w.highestUsed.Load()
}

// bumpHighestUsedIndex advances the used index counter and persists the new
// value, returning the index handed out.
func (w *MultisigWallet) bumpHighestUsedIndex() (int32, error) {
	var index int32
	err := walletdb.Update(w.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(mainWalletBucketName)
		if bucket == nil {
			str := "wallet database is not initialized"
			return walletError(ErrWalletUninitialized, str, nil)
		}
		index = w.highestUsed.Add(1) - 1
		return putTopUsedIndex(bucket, w.highestUsed.Load())
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// GetNewAddress atomically hands out the next unused index and returns its
// address entry for the wallet's default address type, extending every sub
// wallet chain when the lookahead is exhausted.
func (w *MultisigWallet) GetNewAddress() (AddressEntry, error) {
	index, err := w.bumpHighestUsedIndex()
	if err != nil {
		return nil, err
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if entry, ok := w.addresses[index]; ok {
		return entry, nil
	}

	asset, ok := w.assets[index]
	if !ok {
		if len(w.assets) == 0 {
			str := "wallet has no derived assets"
			return nil, walletError(ErrWalletUninitialized, str, nil)
		}
		if err := w.extendChainLocked(DerivationLookup); err != nil {
			return nil, err
		}
		if asset, ok = w.assets[index]; !ok {
			str := "requested index overflows max lookup"
			return nil, walletError(ErrAssetUnavailable, str, nil)
		}
	}

	entry, err := NewAddressEntry(asset, w.defaultType, w.net)
	if err != nil {
		return nil, err
	}
	w.addresses[index] = entry
	return entry, nil
}

// ExtendChain appends count composed assets after the current highest
// index, topping up every sub wallet as needed.  Already-derived indices
// are skipped.
func (w *MultisigWallet) ExtendChain(count uint32) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.extendChainLocked(count)
}

// extendChainLocked grows the composed chain by count assets and persists
// the new chain length.
//
// This function MUST be called with the wallet lock held.
func (w *MultisigWallet) extendChainLocked(count uint32) error {
	firstIndex := int32(w.chainLength) - 1
	newAssets, err := w.scheme.ExtendChain(firstIndex, count)
	if err != nil {
		return err
	}

	for _, asset := range newAssets {
		if _, ok := w.assets[asset.Index()]; ok {
			continue
		}
		w.assets[asset.Index()] = asset
	}
	newLength := uint32(len(w.assets))
	if newLength == w.chainLength {
		return nil
	}

	err = walletdb.Update(w.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(mainWalletBucketName)
		if bucket == nil {
			str := "wallet database is not initialized"
			return walletError(ErrWalletUninitialized, str, nil)
		}
		return putChainLength(bucket, newLength)
	})
	if err != nil {
		return err
	}
	w.chainLength = newLength
	return nil
}

// AddrHashVec returns one network-prefixed hash per composed asset in
// ascending index order: the HASH160 of the redeem script for P2SH wallets,
// the SHA256 of the redeem script for P2WSH wallets.
func (w *MultisigWallet) AddrHashVec() ([][]byte, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	indices := make([]int32, 0, len(w.assets))
	for index := range w.assets {
		indices = append(indices, index)
	}
	sortInt32s(indices)

	hashes := make([][]byte, 0, len(indices))
	prefix := w.net.ScriptHashPrefix()
	for _, index := range indices {
		asset := w.assets[index]

		var (
			hash []byte
			err  error
		)
		switch w.defaultType {
		case AddressP2SH:
			hash, err = asset.Hash160()
		case AddressP2WSH:
			hash, err = asset.Hash256()
		default:
			str := fmt.Sprintf("unexpected address entry type %s "+
				"for multisig wallet", w.defaultType)
			return nil, walletError(ErrInvalidParameter, str, nil)
		}
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, prefixedHash(prefix, hash))
	}
	return hashes, nil
}

// Close zeroes the sub wallets' in-memory key material and closes the
// shared database handle.
func (w *MultisigWallet) Close() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	for _, sub := range w.subWallets {
		sub.mtx.Lock()
		sub.zeroAssets()
		sub.mtx.Unlock()
	}
	if err := w.db.Close(); err != nil {
		return walletError(ErrDatabase, "failed to close wallet database", err)
	}
	return nil
}
