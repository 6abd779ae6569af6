package iscc

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Symbols is the ISCC base58 alphabet.
const Symbols = "C23456789rB1ZEFGTtYiAaVvMmHUPWXKDNbcdefghLjkSnopRqsJuQwxyz"

// ComponentLength is the number of symbols in one ISCC component.
const ComponentLength = 13

const (
	headerSymbols = 2
	groupSymbols  = 11
	groupBytes    = 8
)

var (
	ErrMalformedCode          = errors.New("malformed iscc code")
	ErrInvalidSymbol          = errors.New("invalid iscc symbol")
	ErrInvalidComponentLength = errors.New("invalid component length")
	ErrUnknownComponentHeader = errors.New("unknown component header")
	ErrInvalidDigestLength    = errors.New("invalid digest length")
)

// symbolsForBytes maps a byte width (1..8) to its encoded symbol count.
var symbolsForBytes = [groupBytes + 1]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

var symbolValues = func() [256]int8 {
	var table [256]int8
	for i := range table {
		table[i] = -1
	}
	for i := 0; i < len(Symbols); i++ {
		table[Symbols[i]] = int8(i)
	}
	return table
}()

// Clean removes a leading scheme, surrounding whitespace, and dashes.
func Clean(code string) string {
	if idx := strings.LastIndex(code, ":"); idx >= 0 {
		code = code[idx+1:]
	}
	return strings.ReplaceAll(strings.TrimSpace(code), "-", "")
}

// Split chunks a cleaned code into component strings. The last chunk is
// shorter than ComponentLength when the code length is not a multiple of it.
func Split(code string) []string {
	code = Clean(code)
	parts := make([]string, 0, (len(code)+ComponentLength-1)/ComponentLength)
	for len(code) > ComponentLength {
		parts = append(parts, code[:ComponentLength])
		code = code[ComponentLength:]
	}
	if code != "" {
		parts = append(parts, code)
	}
	return parts
}

// SplitStrict is Split but rejects codes that are empty or not a whole number of components.
func SplitStrict(code string) ([]string, error) {
	cleaned := Clean(code)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty code", ErrMalformedCode)
	}
	if len(cleaned)%ComponentLength != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrMalformedCode, len(cleaned), ComponentLength)
	}
	return Split(cleaned), nil
}

// Encode converts a digest into ISCC symbols. Accepted widths are 1 byte
// (a header), 8 bytes (a body), or 9 bytes and more (header followed by
// 8-byte groups and an optional trailing short group).
func Encode(digest []byte) (string, error) {
	switch n := len(digest); {
	case n == 1 || n == groupBytes:
		return encodeGroup(digest), nil
	case n > groupBytes:
		var sb strings.Builder
		sb.WriteString(encodeGroup(digest[:1]))
		rest := digest[1:]
		for len(rest) > 0 {
			size := min(len(rest), groupBytes)
			sb.WriteString(encodeGroup(rest[:size]))
			rest = rest[size:]
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidDigestLength, n)
	}
}

// Decode converts ISCC symbols back into a digest.
func Decode(text string) ([]byte, error) {
	switch n := len(text); {
	case n == headerSymbols:
		return decodeGroup(text, 1)
	case n == groupSymbols:
		return decodeGroup(text, groupBytes)
	case n >= ComponentLength:
		out, err := decodeGroup(text[:headerSymbols], 1)
		if err != nil {
			return nil, err
		}
		rest := text[headerSymbols:]
		for len(rest) >= groupSymbols {
			group, err := decodeGroup(rest[:groupSymbols], groupBytes)
			if err != nil {
				return nil, err
			}
			out = append(out, group...)
			rest = rest[groupSymbols:]
		}
		if rest != "" {
			size := bytesForSymbols(len(rest))
			if size == 0 {
				return nil, fmt.Errorf("%w: trailing group of %d symbols", ErrMalformedCode, len(rest))
			}
			group, err := decodeGroup(rest, size)
			if err != nil {
				return nil, err
			}
			out = append(out, group...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d symbols", ErrMalformedCode, n)
	}
}

// VerifyComponent checks the length and type header of a single component.
func VerifyComponent(component string) error {
	if len(component) != ComponentLength {
		return fmt.Errorf("%w: %d for %s", ErrInvalidComponentLength, len(component), component)
	}
	header := component[:headerSymbols]
	if !IsComponentHeader(header) {
		return fmt.Errorf("%w: %s", ErrUnknownComponentHeader, header)
	}
	return nil
}

// Verify validates every symbol and component of a code.
func Verify(code string) error {
	_, err := Components(code)
	return err
}

// Components returns the verified components of a code.
func Components(code string) ([]string, error) {
	cleaned := Clean(code)
	for i := 0; i < len(cleaned); i++ {
		if symbolValues[cleaned[i]] < 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrInvalidSymbol, cleaned[i], code)
		}
	}
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty code", ErrMalformedCode)
	}
	components := Split(cleaned)
	for _, component := range components {
		if err := VerifyComponent(component); err != nil {
			return nil, err
		}
	}
	return components, nil
}

func encodeGroup(group []byte) string {
	var value uint64
	for _, b := range group {
		value = value<<8 | uint64(b)
	}
	out := make([]byte, symbolsForBytes[len(group)])
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = Symbols[value%58]
		value /= 58
	}
	return string(out)
}

func decodeGroup(text string, size int) ([]byte, error) {
	var value uint64
	for i := 0; i < len(text); i++ {
		digit := symbolValues[text[i]]
		if digit < 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrInvalidSymbol, text[i], text)
		}
		hi, lo := bits.Mul64(value, 58)
		lo, carry := bits.Add64(lo, uint64(digit), 0)
		if hi != 0 || carry != 0 {
			return nil, fmt.Errorf("%w: %s overflows %d bytes", ErrMalformedCode, text, size)
		}
		value = lo
	}
	if size < groupBytes && value>>(8*size) != 0 {
		return nil, fmt.Errorf("%w: %s overflows %d bytes", ErrMalformedCode, text, size)
	}
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(value)
		value >>= 8
	}
	return out, nil
}

func bytesForSymbols(n int) int {
	for size, symbols := range symbolsForBytes {
		if size > 0 && symbols == n {
			return size
		}
	}
	return 0
}
