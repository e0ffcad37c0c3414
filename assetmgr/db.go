// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

// The key space of a wallet database.  Header records live under fixed
// 32-bit little-endian keys; per-index assets live under a single byte
// prefix followed by the little-endian signed index.  The prefix byte is
// distinct from the low byte of every header key so the two ranges cannot
// collide.  These values are part of the on-disk format and must never be
// renumbered.
const (
	walletTypeKey       uint32 = 0x00000001
	parentIDKey         uint32 = 0x00000002
	walletIDKey         uint32 = 0x00000003
	derivationSchemeKey uint32 = 0x00000004
	addressEntryTypeKey uint32 = 0x00000005
	topUsedIndexKey     uint32 = 0x00000006
	rootAssetKey        uint32 = 0x00000007

	assetEntryPrefix byte = 0xAA
)

// Record tag bytes used inside serialized assets and schemes.
const (
	pubKeyUncompressedByte byte = 0x80
	pubKeyCompressedByte   byte = 0x81
	privKeyByte            byte = 0x82
	cipherByte             byte = 0x90

	derivationSchemeLegacy   byte = 0xA0
	derivationSchemeMultisig byte = 0xA1
)

// Wallet type bytes stored under walletTypeKey.
const (
	walletTypeSingle   byte = 0x01
	walletTypeMultisig byte = 0x02
)

// Asset entry type bytes.
const (
	assetEntryTypeSingle   byte = 0x01
	assetEntryTypeMultisig byte = 0x02
)

var (
	// mainWalletBucketName is the sub-database holding a standalone
	// single wallet.
	mainWalletBucketName = []byte("MainWallet")
)

// subWalletBucketName returns the name of the sub-database holding the i'th
// sub wallet of a multisig wallet.
func subWalletBucketName(i uint32) []byte {
	return []byte(fmt.Sprintf("Subwallet-%d", i))
}

// dbTimeout is how long the bolt backend waits on the file lock before
// giving up.  Concurrent multi-process opens are not supported, so a short
// wait is fine.
const dbTimeout = 10 * time.Second

// openDB opens or creates the wallet database file.
func openDB(path string, create bool) (walletdb.DB, error) {
	var (
		db  walletdb.DB
		err error
	)
	if create {
		db, err = walletdb.Create("bdb", path, true, dbTimeout, false)
	} else {
		db, err = walletdb.Open("bdb", path, true, dbTimeout, false)
	}
	if err != nil {
		str := fmt.Sprintf("failed to open wallet database %s", path)
		return nil, walletError(ErrDatabase, str, err)
	}
	return db, nil
}

// uint32Key returns the serialized form of a 32-bit header key.
func uint32Key(key uint32) []byte {
	var w binaryWriter
	w.putUint32(key)
	return w.bytes()
}

// assetEntryKey returns the store key of the asset at the passed index:
// ASSETENTRY_PREFIX || int32(index).
func assetEntryKey(index int32) []byte {
	var w binaryWriter
	w.putUint8(assetEntryPrefix)
	w.putInt32(index)
	return w.bytes()
}

// putValue writes a value under the standard var_int(len) || payload
// envelope.
func putValue(bucket walletdb.ReadWriteBucket, key, payload []byte) error {
	if err := bucket.Put(key, frame(payload)); err != nil {
		str := "failed to store wallet record"
		return walletError(ErrDatabase, str, err)
	}
	return nil
}

// fetchValue reads a value, validates its length envelope, and returns a
// copy of the payload.  A missing key is reported as corruption since every
// caller reads required records.
func fetchValue(bucket walletdb.ReadBucket, key []byte) ([]byte, error) {
	value := bucket.Get(key)
	if value == nil {
		str := "missing required wallet record"
		return nil, walletError(ErrWalletCorrupt, str, nil)
	}
	payload, err := unframe(value)
	if err != nil {
		return nil, err
	}

	// The value slice is only valid for the lifetime of the transaction,
	// so hand back a copy.
	dup := make([]byte, len(payload))
	copy(dup, payload)
	return dup, nil
}

// putHeaderData writes the header records shared by both wallet flavors:
// parent id, wallet id, derivation scheme, default address entry type, and
// top used index.
func putHeaderData(bucket walletdb.ReadWriteBucket, parentID, walletID []byte,
	scheme DerivationScheme, addrType AddressType, topUsedIndex int32) error {

	if err := putValue(bucket, uint32Key(parentIDKey), parentID); err != nil {
		return err
	}
	if err := putValue(bucket, uint32Key(walletIDKey), walletID); err != nil {
		return err
	}
	err := putValue(bucket, uint32Key(derivationSchemeKey), scheme.serialize())
	if err != nil {
		return err
	}
	err = putValue(bucket, uint32Key(addressEntryTypeKey),
		[]byte{byte(addrType)})
	if err != nil {
		return err
	}
	return putTopUsedIndex(bucket, topUsedIndex)
}

// putWalletType stores the wallet flavor byte.
func putWalletType(bucket walletdb.ReadWriteBucket, walletType byte) error {
	return putValue(bucket, uint32Key(walletTypeKey), []byte{walletType})
}

// fetchWalletType reads the wallet flavor byte.
func fetchWalletType(bucket walletdb.ReadBucket) (byte, error) {
	payload, err := fetchValue(bucket, uint32Key(walletTypeKey))
	if err != nil {
		return 0, err
	}
	if len(payload) != 1 {
		str := "invalid wallet type length"
		return 0, walletError(ErrWalletCorrupt, str, nil)
	}
	return payload[0], nil
}

// putTopUsedIndex stores the highest used address index counter.
func putTopUsedIndex(bucket walletdb.ReadWriteBucket, index int32) error {
	var w binaryWriter
	w.putInt32(index)
	return putValue(bucket, uint32Key(topUsedIndexKey), w.bytes())
}

// fetchTopUsedIndex reads the highest used address index counter.
func fetchTopUsedIndex(bucket walletdb.ReadBucket) (int32, error) {
	payload, err := fetchValue(bucket, uint32Key(topUsedIndexKey))
	if err != nil {
		return 0, err
	}
	if len(payload) != 4 {
		str := "invalid top used index length"
		return 0, walletError(ErrWalletCorrupt, str, nil)
	}
	return newBinaryReader(payload).int32()
}

// fetchAddressEntryType reads the default address entry type.
func fetchAddressEntryType(bucket walletdb.ReadBucket) (AddressType, error) {
	payload, err := fetchValue(bucket, uint32Key(addressEntryTypeKey))
	if err != nil {
		return 0, err
	}
	if len(payload) != 1 {
		str := "invalid address entry type length"
		return 0, walletError(ErrWalletCorrupt, str, nil)
	}
	return AddressType(payload[0]), nil
}

// putChainLength stores the multisig chain length under the bare asset entry
// prefix key.
func putChainLength(bucket walletdb.ReadWriteBucket, length uint32) error {
	var w binaryWriter
	w.putUint32(length)
	return putValue(bucket, []byte{assetEntryPrefix}, w.bytes())
}

// fetchChainLength reads the multisig chain length.
func fetchChainLength(bucket walletdb.ReadBucket) (uint32, error) {
	payload, err := fetchValue(bucket, []byte{assetEntryPrefix})
	if err != nil {
		return 0, err
	}
	if len(payload) != 4 {
		str := "invalid chain length record"
		return 0, walletError(ErrWalletCorrupt, str, nil)
	}
	return newBinaryReader(payload).uint32()
}

// putAssetEntry stores a single asset under its index key.
func putAssetEntry(bucket walletdb.ReadWriteBucket, asset *AssetEntrySingle) error {
	return putValue(bucket, assetEntryKey(asset.index), asset.serializePayload())
}
