// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific WalletError.
const (
	// ErrDatabase indicates an error with the underlying database.  When
	// this error code is set, the Err field of the WalletError will be
	// set to the underlying error returned from the database.
	ErrDatabase ErrorCode = iota

	// ErrWalletUninitialized indicates an operation was attempted against
	// a wallet whose backing store has not been initialized or has already
	// been closed.
	ErrWalletUninitialized

	// ErrWalletCorrupt indicates the on-disk wallet data is structurally
	// invalid: a length prefix that does not match the record, an unknown
	// or duplicated tag byte, or a missing header record.
	ErrWalletCorrupt

	// ErrAssetDeserialization indicates a malformed asset record was
	// encountered.  During a chain scan this is recovered locally by
	// truncating the in-memory chain at the failing record.
	ErrAssetDeserialization

	// ErrAssetUnavailable indicates an asset was requested at an index
	// that is not present and the chain cannot be extended far enough to
	// cover it.
	ErrAssetUnavailable

	// ErrKeyLocked indicates private key material could not be accessed
	// because the encryption primitive is locked.  Chain derivation treats
	// this as a non-fatal condition and continues with public keys only.
	ErrKeyLocked

	// ErrSchemeMismatch indicates the set of sub wallet ids bound to a
	// multisig derivation scheme does not match the persisted set.
	ErrSchemeMismatch

	// ErrInvalidParameter indicates a caller-supplied parameter is
	// invalid, such as an unsupported asset and address type pairing or
	// multisig M and N values outside [1,16].
	ErrInvalidParameter

	// ErrUnexpectedAssetType indicates an asset of one variant was used
	// where the other variant is required.
	ErrUnexpectedAssetType

	// ErrCrypto indicates a fatal failure in a cryptographic or script
	// primitive: encrypting the wallet root, parsing a chain parent public
	// key, or building a payment script.
	ErrCrypto
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:             "ErrDatabase",
	ErrWalletUninitialized:  "ErrWalletUninitialized",
	ErrWalletCorrupt:        "ErrWalletCorrupt",
	ErrAssetDeserialization: "ErrAssetDeserialization",
	ErrAssetUnavailable:     "ErrAssetUnavailable",
	ErrKeyLocked:            "ErrKeyLocked",
	ErrSchemeMismatch:       "ErrSchemeMismatch",
	ErrInvalidParameter:     "ErrInvalidParameter",
	ErrUnexpectedAssetType:  "ErrUnexpectedAssetType",
	ErrCrypto:               "ErrCrypto",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// WalletError provides a single type for errors that can happen during wallet
// operation.  It is used to indicate several types of failures including
// errors with caller requests such as invalid parameters, corruption of the
// stored data, and errors returned from the backing database.
//
// The caller can use type assertions to determine if an error is a
// WalletError and access the ErrorCode field to ascertain the specific reason
// for the failure.
type WalletError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e WalletError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e WalletError) Unwrap() error {
	return e.Err
}

// walletError creates a WalletError given a set of arguments.
func walletError(c ErrorCode, desc string, err error) WalletError {
	return WalletError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether the error is a WalletError with a matching error
// code.
func IsError(err error, code ErrorCode) bool {
	var e WalletError
	return errors.As(err, &e) && e.ErrorCode == code
}
