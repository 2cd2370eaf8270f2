package update

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same record always
// produces the same bytes. Nil slices encode as CBOR null and empty slices
// as empty arrays, which keeps "absent" and "empty" apart.
var encMode cbor.EncMode

// decMode rejects unknown fields: both ends of the wire are built from this
// package.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.NilContainers = cbor.NilContainerAsNull

	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("update: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("update: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal serializes an update into an opaque payload.
func Marshal(u *Update) ([]byte, error) {
	data, err := encMode.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("update: encoding seq %d: %w", u.SeqNum, err)
	}

	return data, nil
}

// Unmarshal decodes a payload produced by Marshal. Every field round-trips,
// including the distinction between nil and empty change lists.
func Unmarshal(data []byte) (*Update, error) {
	var u Update
	if err := decMode.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("update: decoding payload: %w", err)
	}

	return &u, nil
}
