package flatconf

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Number is a numeric literal carried through to the output verbatim.
// FromNode produces Numbers so large YAML integers keep full precision.
type Number string

// valid reports whether n looks like a single numeric token. Literals
// outside float64 range are still numbers.
func (n Number) valid() bool {
	s := string(n)
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil || errors.Is(err, strconv.ErrRange)
}

// FormatFloat renders f using the shortest representation that reads back
// to the same value: plain decimal notation between 1e-4 and 1e16, exponent
// notation outside it, and always with a fractional part or exponent so the
// literal stays recognisably a float.
func FormatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, bitSize)
	}

	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
