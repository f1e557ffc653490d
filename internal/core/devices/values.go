package devices

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
)

// ToFloat converts any numeric representation (including json.Number and
// numeric strings) to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}

// ValuesEqual compares two property values, treating all numeric types as
// interchangeable.
func ValuesEqual(a, b interface{}) bool {
	if isNumber(a) && isNumber(b) {
		fa, _ := ToFloat(a)
		fb, _ := ToFloat(b)
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// CompareValues orders two numeric values. ok is false when either side is
// not numeric.
func CompareValues(a, b interface{}) (cmp int, ok bool) {
	fa, okA := ToFloat(a)
	fb, okB := ToFloat(b)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	}
	return 0, true
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
