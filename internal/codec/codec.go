// Package codec provides the deterministic CBOR encoding shared by the memory
// journal, the redis session store and record sizing, plus BLAKE3 payload
// digests.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so that two
// semantically identical payloads always produce the same bytes. Sizes and
// digests computed from the encoding are therefore stable across processes.
package codec

import (
	"encoding/hex"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	// Decode untyped maps as map[string]any so payloads round-trip into the
	// same shape agents produced them in.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Size returns the length of the deterministic encoding of v.
func Size(v any) (int, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Digest returns the hex BLAKE3-256 digest of the deterministic encoding of v.
func Digest(v any) (string, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
