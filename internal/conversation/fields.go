package conversation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldValue holds a collected field, either free text or a list of values.
type FieldValue struct {
	Text string
	List []string
}

// TextValue builds a scalar field value.
func TextValue(s string) FieldValue { return FieldValue{Text: s} }

// ListValue builds a list field value.
func ListValue(items ...string) FieldValue { return FieldValue{List: items} }

// IsEmpty is true for blank text with no list entries.
func (v FieldValue) IsEmpty() bool {
	if len(v.List) > 0 {
		for _, item := range v.List {
			if strings.TrimSpace(item) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(v.Text) == ""
}

// String renders the value for prompts and notifications.
func (v FieldValue) String() string {
	if len(v.List) > 0 {
		return strings.Join(v.List, ", ")
	}
	return v.Text
}

// MarshalJSON encodes list values as arrays and scalars as strings.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if len(v.List) > 0 {
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Text)
}

// UnmarshalJSON accepts either a string or an array of strings.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = FieldValue{Text: s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("conversation: field value must be string or list: %w", err)
	}
	*v = FieldValue{List: list}
	return nil
}

// Fields maps canonical field names to collected values.
type Fields map[string]FieldValue

// Clone copies the map and any list slices.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if v.List != nil {
			v.List = append([]string(nil), v.List...)
		}
		out[k] = v
	}
	return out
}

// Has reports whether key holds a non-empty value.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	return ok && !v.IsEmpty()
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Strings flattens the fields for payloads and logs.
func (f Fields) Strings() map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		out[k] = v.String()
	}
	return out
}

// MergeFields upserts every non-empty value from update into a copy of base.
// Existing keys are never removed and empty updates never clear a value.
func MergeFields(base, update Fields) Fields {
	out := base.Clone()
	for key, value := range update {
		key = strings.TrimSpace(key)
		if key == "" || value.IsEmpty() {
			continue
		}
		if value.List != nil {
			value.List = append([]string(nil), value.List...)
		}
		out[key] = value
	}
	return out
}
