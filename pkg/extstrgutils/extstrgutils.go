package extstrgutils

import (
	"errors"
	"strings"
	"unicode"
)

// ErrOddValues a pair list with a missing partner
var ErrOddValues = errors.New("odd number of values")

// SplitMultiValueParam splits a string into multiple values, white space,
// comma and semicolon are separators
func SplitMultiValueParam(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';'
	})
}

// SplitPairs splits like SplitMultiValueParam and groups the values in pairs
func SplitPairs(value string) ([][2]string, error) {
	vals := SplitMultiValueParam(value)
	if len(vals)%2 != 0 {
		return nil, ErrOddValues
	}
	pairs := make([][2]string, 0, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		pairs = append(pairs, [2]string{vals[i], vals[i+1]})
	}
	return pairs, nil
}
