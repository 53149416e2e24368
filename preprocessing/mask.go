package preprocessing

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/wire"
)

// maskSecretsToFieldBytes serializes the per-secret constant terms a
// dealer hands to the AVSS oracle for a mask batch (§4.4 "every party
// acts as a dealer in AVSS for a batch of random output-mask secrets").
func maskSecretsToFieldBytes(secrets []field.Element) []external.FieldBytes {
	out := make([]external.FieldBytes, len(secrets))
	for i, s := range secrets {
		out[i] = external.FieldBytes(s.Bytes())
	}
	return out
}

// shareTripleToElements decodes one AVSS share-triple delivery into the
// field elements this party holds a share of. The AVSS oracle treats
// its wire format as opaque (§6 "external package ... must stay a
// leaf"), so this module defines its own canonical CBOR encoding for
// the triple: an ordered list of 32-byte field elements.
func shareTripleToElements(st external.ShareTriple) ([]field.Element, error) {
	var raw [][]byte
	if err := wire.Unmarshal(st, &raw); err != nil {
		return nil, fmt.Errorf("preprocessing: decoding share triple: %w", err)
	}
	out := make([]field.Element, len(raw))
	for i, b := range raw {
		e, err := field.FromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("preprocessing: decoding share triple element %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}
