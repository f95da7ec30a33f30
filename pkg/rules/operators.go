package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Operator compares a resolved field value with a condition value.
type Operator string

const (
	OpGreaterThan  Operator = ">"
	OpLessThan     Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpContains     Operator = "contains"
	OpRegex        Operator = "regex"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpBetween      Operator = "between"
	OpIsEmpty      Operator = "is_empty"
	OpIsNotEmpty   Operator = "is_not_empty"
)

var operatorAliases = map[string]Operator{
	"gt":           OpGreaterThan,
	"greater_than": OpGreaterThan,
	"lt":           OpLessThan,
	"less_than":    OpLessThan,
	"gte":          OpGreaterEqual,
	"ge":           OpGreaterEqual,
	"lte":          OpLessEqual,
	"le":           OpLessEqual,
	"eq":           OpEqual,
	"equals":       OpEqual,
	"=":            OpEqual,
	"ne":           OpNotEqual,
	"not_equals":   OpNotEqual,
	"matches":      OpRegex,
	"not in":       OpNotIn,
}

// IsValid reports whether op is a known operator.
func (op Operator) IsValid() bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual,
		OpContains, OpRegex, OpIn, OpNotIn, OpBetween, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

// ParseOperator parses an operator symbol or one of its word aliases.
func ParseOperator(s string) (Operator, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if op := Operator(key); op.IsValid() {
		return op, nil
	}
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operator: %q", s)
}

// regexCache holds compiled patterns for the regex operator.
var regexCache = newRegexCache(256)

func newRegexCache(size int) *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic(fmt.Sprintf("rules: regex cache: %v", err))
	}
	return c
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	regexCache.Add(pattern, re)
	return re, nil
}

// evaluateOperator evaluates an operator comparison between actual and expected values.
func evaluateOperator(op Operator, actual, expected any) (bool, error) {
	switch op {
	case OpEqual:
		return evaluateEqual(actual, expected), nil

	case OpNotEqual:
		return !evaluateEqual(actual, expected), nil

	case OpLessThan:
		a, e, err := toNumeric(actual, expected)
		return err == nil && a < e, err

	case OpGreaterThan:
		a, e, err := toNumeric(actual, expected)
		return err == nil && a > e, err

	case OpLessEqual:
		a, e, err := toNumeric(actual, expected)
		return err == nil && a <= e, err

	case OpGreaterEqual:
		a, e, err := toNumeric(actual, expected)
		return err == nil && a >= e, err

	case OpContains:
		return evaluateContains(actual, expected)

	case OpRegex:
		return evaluateRegex(actual, expected)

	case OpIn:
		return evaluateIn(actual, expected)

	case OpNotIn:
		in, err := evaluateIn(actual, expected)
		return err == nil && !in, err

	case OpBetween:
		return evaluateBetween(actual, expected)

	case OpIsEmpty:
		return isEmpty(actual), nil

	case OpIsNotEmpty:
		return !isEmpty(actual), nil

	default:
		return false, fmt.Errorf("unknown operator: %q", op)
	}
}

// evaluateEqual checks if two values are equal.
func evaluateEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	// Numeric comparison first so int and float64 compare by value
	actualNum, actualErr := convertToFloat64(actual)
	expectedNum, expectedErr := convertToFloat64(expected)
	if actualErr == nil && expectedErr == nil {
		return actualNum == expectedNum
	}

	if as, ok := actual.(string); ok {
		if es, ok := expected.(string); ok {
			return as == es
		}
	}

	return reflect.DeepEqual(actual, expected)
}

// evaluateContains checks substring, element or key membership.
func evaluateContains(actual, expected any) (bool, error) {
	if s, ok := actual.(string); ok {
		expectedStr, ok := toString(expected)
		if !ok {
			return false, fmt.Errorf("contains operator requires string value for expected")
		}
		return strings.Contains(s, expectedStr), nil
	}

	v := reflect.ValueOf(actual)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return containsElement(v, expected), nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return false, fmt.Errorf("contains operator on map requires string keys")
		}
		key, ok := expected.(string)
		if !ok {
			return false, nil
		}
		return v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key())).IsValid(), nil
	}

	// Fall back to the string form, e.g. for fmt.Stringer values
	actualStr, _ := toString(actual)
	expectedStr, _ := toString(expected)
	return strings.Contains(actualStr, expectedStr), nil
}

// evaluateRegex checks if actual matches the expected regex pattern.
func evaluateRegex(actual, expected any) (bool, error) {
	actualStr, ok := toString(actual)
	if !ok {
		return false, fmt.Errorf("regex operator requires string or convertible value for actual")
	}

	pattern, ok := expected.(string)
	if !ok {
		return false, fmt.Errorf("regex operator requires string pattern for expected")
	}

	re, err := compileRegex(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(actualStr), nil
}

// evaluateIn checks if actual is in the expected list.
func evaluateIn(actual, expected any) (bool, error) {
	v := reflect.ValueOf(expected)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return false, fmt.Errorf("in operator requires slice or array for expected, got %s", v.Kind())
	}
	return containsElement(v, actual), nil
}

// evaluateBetween checks lo <= actual <= hi.
func evaluateBetween(actual, expected any) (bool, error) {
	lo, hi, err := bounds(expected)
	if err != nil {
		return false, err
	}

	n, err := convertToFloat64(actual)
	if err != nil {
		return false, fmt.Errorf("between operator requires numeric actual: %w", err)
	}
	return n >= lo && n <= hi, nil
}

// bounds extracts a two-element numeric range.
func bounds(v any) (float64, float64, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0, 0, fmt.Errorf("between operator requires a [low, high] pair, got %T", v)
	}
	if rv.Len() != 2 {
		return 0, 0, fmt.Errorf("between operator requires exactly 2 bounds, got %d", rv.Len())
	}

	lo, err := convertToFloat64(rv.Index(0).Interface())
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lower bound: %w", err)
	}
	hi, err := convertToFloat64(rv.Index(1).Interface())
	if err != nil {
		return 0, 0, fmt.Errorf("invalid upper bound: %w", err)
	}
	return lo, hi, nil
}

// isEmpty treats nil, zero numbers, false and empty strings, slices and maps as empty.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if n, err := convertToFloat64(v); err == nil {
		return n == 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// containsElement checks if a slice/array value contains an element.
func containsElement(list reflect.Value, elem any) bool {
	for i := 0; i < list.Len(); i++ {
		if evaluateEqual(list.Index(i).Interface(), elem) {
			return true
		}
	}
	return false
}

// toNumeric converts values to float64 for numeric comparison.
func toNumeric(actual, expected any) (float64, float64, error) {
	actualNum, err := convertToFloat64(actual)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot convert actual value to number: %w", err)
	}

	expectedNum, err := convertToFloat64(expected)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot convert expected value to number: %w", err)
	}

	return actualNum, expectedNum, nil
}

// convertToFloat64 converts a value to float64.
func convertToFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// toString converts a value to string.
func toString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprint(v), true
	}
}
