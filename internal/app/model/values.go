package model

import (
	"sort"
	"strings"
)

// MultiValues holds headers or query parameters: each name maps to an ordered
// sequence of values addressed by index.
type MultiValues map[string][]string

// Set stores value at index for name, padding the sequence with empty values
// when the index is past its end. Existing values are never reordered.
func (m MultiValues) Set(name string, index int, value string) {
	values := m[name]
	for len(values) <= index {
		values = append(values, "")
	}
	values[index] = value
	m[name] = values
}

// Key returns the stored spelling of name, ignoring case.
func (m MultiValues) Key(name string) (string, bool) {
	if _, ok := m[name]; ok {
		return name, true
	}
	for key := range m {
		if strings.EqualFold(key, name) {
			return key, true
		}
	}
	return "", false
}

// SetFold is Set for case-insensitive names such as headers.
func (m MultiValues) SetFold(name string, index int, value string) {
	if key, ok := m.Key(name); ok {
		name = key
	}
	m.Set(name, index, value)
}

// GetFold returns the values for name, ignoring case.
func (m MultiValues) GetFold(name string) ([]string, bool) {
	key, ok := m.Key(name)
	if !ok {
		return nil, false
	}
	return m[key], true
}

func (m MultiValues) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m MultiValues) Clone() MultiValues {
	if m == nil {
		return nil
	}
	out := make(MultiValues, len(m))
	for name, values := range m {
		out[name] = append([]string(nil), values...)
	}
	return out
}
