// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/walletdb"

	"github.com/verdinjoshua1982/armorywallet/internal/zero"
	"github.com/verdinjoshua1982/armorywallet/netparams"
)

const (
	// DerivationLookup is the default number of lookahead assets derived
	// past the highest used index.
	DerivationLookup = 100

	// LookupDefault may be passed as the lookup argument of the create
	// functions to select DerivationLookup.
	LookupDefault = ^uint32(0)
)

// AssetWallet is the public contract shared by the single and multisig
// wallet flavors.
type AssetWallet interface {
	// ID returns the wallet id as a hex string.
	ID() string

	// GetNewAddress atomically advances the persistent used index
	// counter and returns the address entry at the handed out index,
	// extending the chain if the lookahead is exhausted.
	GetNewAddress() (AddressEntry, error)

	// ExtendChain appends count assets after the current highest index.
	ExtendChain(count uint32) error

	// AddrHashVec returns the network-prefixed address hashes of every
	// chain asset for bulk scanning.
	AddrHashVec() ([][]byte, error)

	// Close releases the wallet, zeroing in-memory key material.
	Close() error
}

// WalletFileName returns the database file name for a wallet id.
func WalletFileName(walletID []byte) string {
	return fmt.Sprintf("armory_%x_wallet.lmdb", walletID)
}

// walletIDForPubKey derives the 20-byte wallet id from serialized public key
// material.
func walletIDForPubKey(pubKey []byte) []byte {
	return btcutil.Hash160(pubKey)
}

// Wallet is a single-key wallet deriving an Armory-style linear chain from
// one private root.  It is also the building block of multisig wallets,
// which store N of these under sub-databases of a shared file.
type Wallet struct {
	mtx sync.Mutex

	db         walletdb.DB
	ownsDB     bool
	bucketName []byte
	path       string

	net       *netparams.Params
	encryptor Encryptor

	walletID []byte
	parentID []byte

	scheme      *LegacyScheme
	defaultType AddressType

	highestUsed atomic.Int32

	root      *AssetEntrySingle
	top       *AssetEntrySingle
	assets    map[int32]*AssetEntrySingle
	addresses map[int32]AddressEntry
}

// CreateSingle creates a new single wallet file from a private root.  The
// wallet id is derived from the root public key and determines the file
// name within dbDir.  The chain is extended by lookup assets before the
// handle is returned; passing LookupDefault selects DerivationLookup.  The
// encryptor may be nil, in which case private keys are stored in the clear.
func CreateSingle(dbDir string, net *netparams.Params, addrType AddressType,
	privateRoot []byte, lookup uint32, encryptor Encryptor) (*Wallet, error) {

	if len(privateRoot) == 0 {
		str := "empty private root"
		return nil, walletError(ErrInvalidParameter, str, nil)
	}
	if err := validAddressType(addrType); err != nil {
		return nil, err
	}

	privKey, _ := btcec.PrivKeyFromBytes(privateRoot)
	pubKey := privKey.PubKey()
	walletID := walletIDForPubKey(pubKey.SerializeUncompressed())
	path := filepath.Join(dbDir, WalletFileName(walletID))

	db, err := openDB(path, true)
	if err != nil {
		return nil, err
	}

	w, err := initSingleWallet(db, true, mainWalletBucketName, path, net,
		nil, addrType, privateRoot, lookup, encryptor)
	if err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// initSingleWallet writes the header records and root asset of a fresh
// single wallet into the passed bucket, reloads the wallet from disk, and
// extends its chain by lookup assets.  A nil parentID marks a top-level
// wallet whose parent is itself.
func initSingleWallet(db walletdb.DB, ownsDB bool, bucketName []byte,
	path string, net *netparams.Params, parentID []byte,
	addrType AddressType, privateRoot []byte, lookup uint32,
	encryptor Encryptor) (*Wallet, error) {

	privKey, _ := btcec.PrivKeyFromBytes(privateRoot)
	pubKey := privKey.PubKey()
	uncompressed := pubKey.SerializeUncompressed()
	compressed := pubKey.SerializeCompressed()

	walletID := walletIDForPubKey(uncompressed)
	if parentID == nil {
		parentID = walletID
	}

	scheme, err := NewLegacyScheme(computeChaincode(privateRoot))
	if err != nil {
		return nil, err
	}

	// Protect the root private key when an encryptor is available; the
	// cipher descriptor records the IV either way.
	cipher := NewCipherAES()
	rootPrivKey := dupBytes(privateRoot)
	if encryptor != nil {
		iv, ciphertext, err := encryptor.Encrypt(privateRoot)
		if err != nil {
			str := "failed to encrypt wallet root"
			return nil, walletError(ErrCrypto, str, err)
		}
		cipher.iv = iv
		rootPrivKey = ciphertext
	}
	rootAsset, err := newAssetEntrySingle(RootAssetIndex, uncompressed,
		compressed, rootPrivKey, cipher)
	if err != nil {
		return nil, err
	}

	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		bucket, err := tx.CreateTopLevelBucket(bucketName)
		if err != nil {
			str := fmt.Sprintf("failed to create wallet bucket %s",
				bucketName)
			return walletError(ErrDatabase, str, err)
		}
		if err := putWalletType(bucket, walletTypeSingle); err != nil {
			return err
		}
		err = putHeaderData(bucket, parentID, walletID, scheme,
			addrType, 0)
		if err != nil {
			return err
		}
		return putValue(bucket, uint32Key(rootAssetKey),
			rootAsset.serializePayload())
	})
	if err != nil {
		return nil, err
	}

	w, err := loadSingleWallet(db, ownsDB, bucketName, path, net, encryptor)
	if err != nil {
		return nil, err
	}

	if lookup == LookupDefault {
		lookup = DerivationLookup
	}
	if err := w.ExtendChain(lookup); err != nil {
		return nil, err
	}
	return w, nil
}

// loadSingleWallet reconstitutes a single wallet from its bucket: all header
// records, the root asset, and a prefix scan over the asset entries.  A
// malformed asset stops the scan early and truncates the in-memory chain
// there; everything before it is retained.
func loadSingleWallet(db walletdb.DB, ownsDB bool, bucketName []byte,
	path string, net *netparams.Params, encryptor Encryptor) (*Wallet, error) {

	w := &Wallet{
		db:         db,
		ownsDB:     ownsDB,
		bucketName: bucketName,
		path:       path,
		net:        net,
		encryptor:  encryptor,
		assets:     make(map[int32]*AssetEntrySingle),
		addresses:  make(map[int32]AddressEntry),
	}

	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(bucketName)
		if bucket == nil {
			str := fmt.Sprintf("wallet bucket %s does not exist",
				bucketName)
			return walletError(ErrWalletUninitialized, str, nil)
		}

		walletType, err := fetchWalletType(bucket)
		if err != nil {
			return err
		}
		if walletType != walletTypeSingle {
			str := "wallet bucket does not hold a single wallet"
			return walletError(ErrWalletCorrupt, str, nil)
		}

		if w.parentID, err = fetchValue(bucket, uint32Key(parentIDKey)); err != nil {
			return err
		}
		if w.walletID, err = fetchValue(bucket, uint32Key(walletIDKey)); err != nil {
			return err
		}

		schemePayload, err := fetchValue(bucket, uint32Key(derivationSchemeKey))
		if err != nil {
			return err
		}
		scheme, err := deserializeScheme(schemePayload)
		if err != nil {
			return err
		}
		legacy, ok := scheme.(*LegacyScheme)
		if !ok {
			str := "single wallet with non-legacy derivation scheme"
			return walletError(ErrWalletCorrupt, str, nil)
		}
		w.scheme = legacy

		if w.defaultType, err = fetchAddressEntryType(bucket); err != nil {
			return err
		}

		topUsed, err := fetchTopUsedIndex(bucket)
		if err != nil {
			return err
		}
		w.highestUsed.Store(topUsed)

		rootPayload, err := fetchValue(bucket, uint32Key(rootAssetKey))
		if err != nil {
			return err
		}
		w.root, err = deserializeAssetPayload(RootAssetIndex, rootPayload)
		if err != nil {
			return err
		}

		return w.scanAssets(bucket)
	})
	if err != nil {
		return nil, err
	}

	w.scheme.bindEncryptor(encryptor)

	w.top = w.root
	for _, asset := range w.assets {
		if asset.Index() > w.top.Index() {
			w.top = asset
		}
	}
	return w, nil
}

// scanAssets iterates the asset entry key range in ascending order and
// rebuilds the in-memory index.  The scan stops at the first malformed
// record.
func (w *Wallet) scanAssets(bucket walletdb.ReadBucket) error {
	prefix := []byte{assetEntryPrefix}
	cursor := bucket.ReadCursor()
	for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
		// The bare prefix key holds the multisig chain length header,
		// not an asset.
		if len(k) == 1 {
			continue
		}

		entry, err := deserializeAssetEntry(k, v)
		if err != nil {
			log.Errorf("Asset scan of wallet %x stopped at key %x: %v",
				w.walletID, k, err)
			break
		}
		w.assets[entry.Index()] = entry
	}
	return nil
}

// ID returns the wallet id as a hex string.
func (w *Wallet) ID() string {
	return hex.EncodeToString(w.walletID)
}

// WalletID returns the raw 20-byte wallet id.
func (w *Wallet) WalletID() []byte {
	return w.walletID
}

// ParentID returns the raw parent wallet id.  It equals the wallet id for
// top-level wallets and the multisig parent's id for sub wallets.
func (w *Wallet) ParentID() []byte {
	return w.parentID
}

// Path returns the backing database file path.
func (w *Wallet) Path() string {
	return w.path
}

// DefaultAddressType returns the address type GetNewAddress materializes.
func (w *Wallet) DefaultAddressType() AddressType {
	return w.defaultType
}

// RootAsset returns the root asset at index -1.
func (w *Wallet) RootAsset() *AssetEntrySingle {
	return w.root
}

// AssetCount returns the number of chain assets, excluding the root.
func (w *Wallet) AssetCount() int {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return len(w.assets)
}

// AssetForIndex returns the chain asset at the passed index, failing with
// ErrAssetUnavailable if no asset exists there.
func (w *Wallet) AssetForIndex(index int32) (*AssetEntrySingle, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.assetForIndexLocked(index)
}

func (w *Wallet) assetForIndexLocked(index int32) (*AssetEntrySingle, error) {
	asset, ok := w.assets[index]
	if !ok {
		str := fmt.Sprintf("no asset at index %d", index)
		return nil, walletError(ErrAssetUnavailable, str, nil)
	}
	return asset, nil
}

// PrivKeyForIndex returns the plaintext private key of the chain asset at
// the passed index, delegating decryption to the wallet's encryption
// primitive.  It fails with ErrKeyLocked when the key is encrypted and the
// primitive is absent or locked.
func (w *Wallet) PrivKeyForIndex(index int32) ([]byte, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	asset, err := w.assetForIndexLocked(index)
	if err != nil {
		return nil, err
	}
	keyBytes, err := asset.PrivKeyBytes()
	if err != nil {
		return nil, err
	}
	if len(asset.Cipher().IV()) == 0 {
		return keyBytes, nil
	}
	if w.encryptor == nil {
		str := fmt.Sprintf("private key for index %d requires the "+
			"encryption primitive", index)
		return nil, walletError(ErrKeyLocked, str, nil)
	}
	plain, err := w.encryptor.Decrypt(asset.Cipher().IV(), keyBytes)
	if err != nil {
		str := fmt.Sprintf("failed to decrypt private key for index %d",
			index)
		return nil, walletError(ErrKeyLocked, str, err)
	}
	return plain, nil
}

// TopUsedIndex returns the number of addresses handed out so far.
func (w *Wallet) TopUsedIndex() int32 {
	return w.highestUsed.Load()
}

// bumpHighestUsedIndex advances the used index counter and persists the new
// value, returning the index handed out.  The counter commits before any
// in-memory state is touched, so concurrent callers receive distinct
// indices and the persisted value reflects the maximum.
func (w *Wallet) bumpHighestUsedIndex() (int32, error) {
	var index int32
	err := walletdb.Update(w.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(w.bucketName)
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
// address entry for the wallet's default address type, deriving more chain
// assets when the lookahead is exhausted.
func (w *Wallet) GetNewAddress() (AddressEntry, error) {
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
		if err := w.extendChainLocked(w.top, DerivationLookup); err != nil {
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

// ExtendChain appends count assets after the current highest index and
// persists them in one transaction.  Each call derives from the highest
// existing asset, so repeated calls keep growing the chain; an asset already
// present at a derived index is skipped rather than rewritten.
func (w *Wallet) ExtendChain(count uint32) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.extendChainLocked(w.top, count)
}

// extendChainLocked derives count assets following firstAsset and persists
// the new ones atomically.
//
// This function MUST be called with the wallet lock held.
func (w *Wallet) extendChainLocked(firstAsset *AssetEntrySingle, count uint32) error {
	if firstAsset == nil {
		str := "wallet has no root asset"
		return walletError(ErrWalletUninitialized, str, nil)
	}

	newAssets, err := w.scheme.ExtendChain(firstAsset, count)
	if err != nil {
		return err
	}

	err = walletdb.Update(w.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(w.bucketName)
		if bucket == nil {
			str := "wallet database is not initialized"
			return walletError(ErrWalletUninitialized, str, nil)
		}
		for _, asset := range newAssets {
			if _, ok := w.assets[asset.Index()]; ok {
				continue
			}
			if err := putAssetEntry(bucket, asset); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, asset := range newAssets {
		if _, ok := w.assets[asset.Index()]; ok {
			continue
		}
		w.assets[asset.Index()] = asset
		if asset.Index() > w.top.Index() {
			w.top = asset
		}
	}
	return nil
}

// sortedAssetIndices returns the chain asset indices in ascending order.
//
// This function MUST be called with the wallet lock held.
func (w *Wallet) sortedAssetIndices() []int32 {
	indices := make([]int32, 0, len(w.assets))
	for index := range w.assets {
		indices = append(indices, index)
	}
	sortInt32s(indices)
	return indices
}

// AddrHashVec returns the network-prefixed HASH160 of every chain asset's
// public key, both the uncompressed and compressed variants, in ascending
// index order.
func (w *Wallet) AddrHashVec() ([][]byte, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	hashes := make([][]byte, 0, 2*len(w.assets))
	prefix := w.net.PubkeyHashPrefix()
	for _, index := range w.sortedAssetIndices() {
		asset := w.assets[index]
		hashes = append(hashes,
			prefixedHash(prefix, asset.Hash160Uncompressed()),
			prefixedHash(prefix, asset.Hash160Compressed()))
	}
	return hashes, nil
}

// Hash160VecUncompressed returns the network-prefixed uncompressed pubkey
// hashes of every chain asset in ascending index order.
func (w *Wallet) Hash160VecUncompressed() [][]byte {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	hashes := make([][]byte, 0, len(w.assets))
	prefix := w.net.PubkeyHashPrefix()
	for _, index := range w.sortedAssetIndices() {
		hashes = append(hashes,
			prefixedHash(prefix, w.assets[index].Hash160Uncompressed()))
	}
	return hashes
}

// Hash160VecCompressed returns the network-prefixed compressed pubkey hashes
// of every chain asset in ascending index order.
func (w *Wallet) Hash160VecCompressed() [][]byte {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	hashes := make([][]byte, 0, len(w.assets))
	prefix := w.net.PubkeyHashPrefix()
	for _, index := range w.sortedAssetIndices() {
		hashes = append(hashes,
			prefixedHash(prefix, w.assets[index].Hash160Compressed()))
	}
	return hashes
}

// prefixedHash prepends a network byte to a hash.
func prefixedHash(prefix byte, hash []byte) []byte {
	out := make([]byte, 0, len(hash)+1)
	out = append(out, prefix)
	return append(out, hash...)
}

// sortInt32s orders the passed slice ascending in place.
func sortInt32s(s []int32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

// zeroAssets clears private key material from the wallet's in-memory
// assets.
//
// This function MUST be called with the wallet lock held.
func (w *Wallet) zeroAssets() {
	if w.root != nil && w.root.privKey != nil {
		zero.Bytes(w.root.privKey.key)
	}
	for _, asset := range w.assets {
		if asset.privKey != nil {
			zero.Bytes(asset.privKey.key)
		}
	}
}

// Close zeroes in-memory private key material and, for wallets owning their
// database handle, closes the backing file.  Sub wallets of a multisig
// wallet share the parent's handle and leave it open.
func (w *Wallet) Close() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.zeroAssets()
	if !w.ownsDB {
		return nil
	}
	if err := w.db.Close(); err != nil {
		return walletError(ErrDatabase, "failed to close wallet database", err)
	}
	return nil
}

// Open loads an existing wallet file, dispatching on the persisted wallet
// type byte to the single or multisig flavor.
func Open(path string, net *netparams.Params, encryptor Encryptor) (AssetWallet, error) {
	db, err := openDB(path, false)
	if err != nil {
		return nil, err
	}

	var walletType byte
	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(mainWalletBucketName)
		if bucket == nil {
			str := "wallet file is missing its main database"
			return walletError(ErrWalletCorrupt, str, nil)
		}
		walletType, err = fetchWalletType(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	var wallet AssetWallet
	switch walletType {
	case walletTypeSingle:
		wallet, err = loadSingleWallet(db, true, mainWalletBucketName,
			path, net, encryptor)
	case walletTypeMultisig:
		wallet, err = loadMultisigWallet(db, path, net, encryptor)
	default:
		str := fmt.Sprintf("unknown wallet type %#x", walletType)
		err = walletError(ErrWalletCorrupt, str, nil)
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return wallet, nil
}
