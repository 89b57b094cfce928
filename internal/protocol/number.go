package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	posInfLiteral = "1e999"
	negInfLiteral = "-1e999"
)

// Number is a float64 with a stable wire form for NaN and the infinities.
type Number float64

// Float returns n as a float64.
func (n Number) Float() float64 {
	return float64(n)
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return []byte("null"), nil
	case math.IsInf(f, 1):
		return []byte(posInfLiteral), nil
	case math.IsInf(f, -1):
		return []byte(negInfLiteral), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*n = Number(math.NaN())
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out-of-range literals saturate to ±Inf (or 0 on underflow).
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			*n = Number(f)
			return nil
		}
		return fmt.Errorf("invalid number %q: %w", s, err)
	}

	*n = Number(f)
	return nil
}
