// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cbor_test

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/blinklabs-io/remoteblock/cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testKeyed struct {
	Name  string   `cbor:"1,keyasint"`
	Id    uint16   `cbor:"0,keyasint"`
	Items []uint16 `cbor:"2,keyasint"`
}

func TestEncodeDeterministic(t *testing.T) {
	testDefs := []struct {
		name     string
		object   any
		expected string
	}{
		{
			name:     "KeyAsIntSorted",
			object:   testKeyed{Id: 2, Name: "a"},
			expected: "a3000201616102" + "80",
		},
		{
			name:     "MapKeysSorted",
			object:   map[string]int{"bb": 1, "a": 2},
			expected: "a2616102626262" + "01",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			data, err := cbor.Encode(testDef.object)
			require.NoError(t, err)
			assert.Equal(t, testDef.expected, hex.EncodeToString(data))
		})
	}
}

func TestEncodeTime(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	data, err := cbor.Encode(ts)
	require.NoError(t, err)
	var decoded string
	_, err = cbor.Decode(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", decoded)
}

func TestDecode(t *testing.T) {
	data, err := hex.DecodeString("a30002016161028201020ff6")
	require.NoError(t, err)
	var dest testKeyed
	n, err := cbor.Decode(data, &dest)
	require.NoError(t, err)
	// Only the first item is consumed
	assert.Equal(t, len(data)-2, n)
	assert.Equal(t, testKeyed{Id: 2, Name: "a", Items: []uint16{1, 2}}, dest)
}

func TestDecodeUnknownField(t *testing.T) {
	data, err := hex.DecodeString("a1056178")
	require.NoError(t, err)
	var dest testKeyed
	_, err = cbor.Decode(data, &dest)
	assert.Error(t, err)
}
