package iscc

import (
	"bytes"
	"errors"
	"testing"
)

func TestSimilarityHashMajority(t *testing.T) {
	got, err := SimilarityHash([][]byte{{0b1100}, {0b1010}, {0b1001}})
	if err != nil {
		t.Fatalf("similarity hash: %v", err)
	}
	if !bytes.Equal(got, []byte{0b1000}) {
		t.Fatalf("unexpected hash: %08b", got)
	}
}

func TestSimilarityHashTiesSetBit(t *testing.T) {
	got, err := SimilarityHash([][]byte{{0x0f, 0x00}, {0xf0, 0x00}})
	if err != nil {
		t.Fatalf("similarity hash: %v", err)
	}
	if !bytes.Equal(got, []byte{0xff, 0x00}) {
		t.Fatalf("unexpected hash: %x", got)
	}
}

func TestSimilarityHashOrderIndependent(t *testing.T) {
	a := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	b := []byte{0x10, 0xf0, 0x0f, 0xaa, 0x55, 0x01, 0x80}
	c := []byte{0x20, 0xff, 0x00, 0xff, 0x00, 0x10, 0x20}

	first, err := SimilarityHash([][]byte{a, b, c})
	if err != nil {
		t.Fatalf("similarity hash: %v", err)
	}
	second, err := SimilarityHash([][]byte{c, a, b})
	if err != nil {
		t.Fatalf("similarity hash: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("order changed hash: %x != %x", first, second)
	}
	if !bytes.Equal(first, []byte{0x00, 0xf1, 0x02, 0xab, 0x04, 0x01, 0x00}) {
		t.Fatalf("unexpected hash: %x", first)
	}
}

func TestSimilarityHashSingleDigest(t *testing.T) {
	digest := []byte{0xde, 0xad, 0xbe, 0xef}
	got, err := SimilarityHash([][]byte{digest})
	if err != nil {
		t.Fatalf("similarity hash: %v", err)
	}
	if !bytes.Equal(got, digest) {
		t.Fatalf("single digest changed: %x", got)
	}
}

func TestSimilarityHashErrors(t *testing.T) {
	if _, err := SimilarityHash(nil); !errors.Is(err, ErrNoDigests) {
		t.Fatalf("expected ErrNoDigests, got %v", err)
	}
	if _, err := SimilarityHash([][]byte{{1, 2}, {1}}); !errors.Is(err, ErrInvalidDigestLength) {
		t.Fatalf("expected ErrInvalidDigestLength, got %v", err)
	}
}
