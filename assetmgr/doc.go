// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package assetmgr provides a deterministic wallet engine with durable storage
of derived key material.

Overview

A wallet is rooted at a single private key.  From the root, a derivation
scheme produces a chain of assets: records of key material at consecutive
indices, each holding an uncompressed and compressed public key and,
optionally, a private key protected by a delegated encryption primitive.
Assets are persisted one record per index in a transactional key/value store
and reloaded by a prefix scan on open, so a wallet can always be rebuilt from
its file alone.

Two wallet flavors are provided.  A single wallet derives an Armory-style
linear chain from a 32-byte chaincode.  A multisig wallet composes N
independent single wallets stored as sub-databases of the same file and
indexes them jointly, producing M-of-N redeem scripts from the sub wallet
public keys at each index.

Addresses are materialized lazily.  GetNewAddress atomically advances a
persistent counter, extends the chain when the lookahead is exhausted, and
returns an address entry for the wallet's default address type (P2PKH,
P2WPKH, P2SH, or P2WSH).  Address entries also produce the payment script a
transaction builder consumes.

The methods of Wallet and MultisigWallet are safe for concurrent access by
multiple goroutines.  The asset and address entry values they return memoize
their hashes and addresses without locking of their own and are not safe for
concurrent use.
*/
package assetmgr
