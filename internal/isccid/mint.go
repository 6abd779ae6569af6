package isccid

import (
	"encoding/binary"
	"errors"
	"fmt"

	"isccObserver/internal/iscc"
)

// BodyLength is the number of similarity-hash bytes in an ISCC-ID.
const BodyLength = 7

var ErrNoSimilarityComponents = errors.New("no similarity components")

// ID is a decoded ISCC-ID.
type ID struct {
	Header  byte
	Body    []byte
	Counter uint64
}

// Mint derives the ISCC-ID candidate for a code on a ledger with the given
// disambiguation counter. It is a pure function of its inputs.
func Mint(header byte, code string, counter uint64) (string, error) {
	body, err := Fingerprint(code)
	if err != nil {
		return "", err
	}

	raw := make([]byte, 0, 1+BodyLength+binary.MaxVarintLen64)
	raw = append(raw, header)
	raw = append(raw, body...)
	raw = binary.AppendUvarint(raw, counter)
	return iscc.Encode(raw)
}

// Fingerprint returns the similarity hash over the truncated digests of all
// non-instance components of code.
func Fingerprint(code string) ([]byte, error) {
	components, err := iscc.Components(code)
	if err != nil {
		return nil, err
	}

	digests := make([][]byte, 0, len(components))
	for _, component := range components {
		if iscc.IsInstance(component) {
			continue
		}
		digest, err := iscc.Decode(component)
		if err != nil {
			return nil, fmt.Errorf("decode component %s: %w", component, err)
		}
		digests = append(digests, digest[:BodyLength])
	}
	if len(digests) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSimilarityComponents, code)
	}
	return iscc.SimilarityHash(digests)
}

// Parse decodes an ISCC-ID into its header, body, and counter.
func Parse(id string) (ID, error) {
	raw, err := iscc.Decode(iscc.Clean(id))
	if err != nil {
		return ID{}, err
	}
	if len(raw) < 1+BodyLength+1 {
		return ID{}, fmt.Errorf("%w: iscc-id too short", iscc.ErrMalformedCode)
	}
	counter, n := binary.Uvarint(raw[1+BodyLength:])
	if n <= 0 || 1+BodyLength+n != len(raw) {
		return ID{}, fmt.Errorf("%w: bad counter in %s", iscc.ErrMalformedCode, id)
	}
	return ID{
		Header:  raw[0],
		Body:    raw[1 : 1+BodyLength],
		Counter: counter,
	}, nil
}
