// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAddressPrefixes ensures the wallet-visible version bytes track the
// embedded chain parameters.
func TestAddressPrefixes(t *testing.T) {
	t.Parallel()

	require.Equal(t, byte(0x00), MainNetParams.PubkeyHashPrefix())
	require.Equal(t, byte(0x05), MainNetParams.ScriptHashPrefix())
	require.Equal(t, byte(0x6f), TestNet3Params.PubkeyHashPrefix())
	require.Equal(t, byte(0xc4), TestNet3Params.ScriptHashPrefix())
}
