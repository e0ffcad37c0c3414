// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import "github.com/btcsuite/btcd/chaincfg"

// Params is used to group wallet parameters for various networks such as the
// main network and test networks.  The only pieces the wallet engine consults
// are the address version bytes, but the full chain parameters are embedded so
// callers can reach the rest without a second lookup table.
type Params struct {
	*chaincfg.Params
}

// MainNetParams contains parameters specific to the main network
// (wire.MainNet).
var MainNetParams = Params{
	Params: &chaincfg.MainNetParams,
}

// TestNet3Params contains parameters specific to the test network (version 3)
// (wire.TestNet3).
var TestNet3Params = Params{
	Params: &chaincfg.TestNet3Params,
}

// SimNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var SimNetParams = Params{
	Params: &chaincfg.SimNetParams,
}

// PubkeyHashPrefix returns the network byte prepended to pay-to-pubkey-hash
// address payloads.
func (p Params) PubkeyHashPrefix() byte {
	return p.PubKeyHashAddrID
}

// ScriptHashPrefix returns the network byte prepended to pay-to-script-hash
// address payloads.
func (p Params) ScriptHashPrefix() byte {
	return p.ScriptHashAddrID
}
