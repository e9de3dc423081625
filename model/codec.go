package model

import (
	"github.com/fxamacker/cbor/v2"
)

// The canonical encoder is shared by every wire- and disk-bound type.
// Core deterministic encoding keeps map ordering and float forms stable so
// that hash(serialize(x)) is reproducible across nodes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	decOpts := cbor.DecOptions{
		MaxArrayElements: 1 << 22,
		MaxMapPairs:      1 << 22,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCanonical encodes v with the canonical deterministic mode.
func MarshalCanonical(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// UnmarshalCanonical decodes canonical CBOR into v.
func UnmarshalCanonical(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}
