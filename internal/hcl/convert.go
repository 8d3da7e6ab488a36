package hcl

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// StringFromCty extracts a Go string from a cty string value.
func StringFromCty(v cty.Value) (string, error) {
	if v.IsNull() || v.Type() != cty.String {
		return "", fmt.Errorf("expected a string, got %s", v.Type().FriendlyName())
	}
	return v.AsString(), nil
}

// BoolFromCty extracts a Go bool from a cty bool value.
func BoolFromCty(v cty.Value) (bool, error) {
	if v.IsNull() || v.Type() != cty.Bool {
		return false, fmt.Errorf("expected a bool, got %s", v.Type().FriendlyName())
	}
	return v.True(), nil
}

// IntFromCty extracts a Go int from a cty number value.
func IntFromCty(v cty.Value) (int, error) {
	if v.IsNull() || v.Type() != cty.Number {
		return 0, fmt.Errorf("expected a number, got %s", v.Type().FriendlyName())
	}
	var out int
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return 0, err
	}
	return out, nil
}

// StringsFromCty extracts a string slice from a cty list, set, or tuple of
// strings.
func StringsFromCty(v cty.Value) ([]string, error) {
	if v.IsNull() {
		return nil, nil
	}
	t := v.Type()
	if !t.IsListType() && !t.IsTupleType() && !t.IsSetType() {
		return nil, fmt.Errorf("expected a list of strings, got %s", t.FriendlyName())
	}
	var out []string
	for it := v.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		s, err := StringFromCty(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// StringMapFromCty extracts a string map from a cty map or object of
// strings.
func StringMapFromCty(v cty.Value) (map[string]string, error) {
	if v.IsNull() {
		return nil, nil
	}
	t := v.Type()
	if !t.IsMapType() && !t.IsObjectType() {
		return nil, fmt.Errorf("expected a map of strings, got %s", t.FriendlyName())
	}
	out := make(map[string]string)
	for it := v.ElementIterator(); it.Next(); {
		key, elem := it.Element()
		k, err := StringFromCty(key)
		if err != nil {
			return nil, err
		}
		s, err := StringFromCty(elem)
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}
