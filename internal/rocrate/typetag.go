package rocrate

import (
	"encoding/json"
	"fmt"
	"slices"
)

// TypeTag is an entity's @type, which the metadata may give either as a
// single string or as an ordered list of strings. It marshals back to the
// shape it was read in: a one-element tag is written as a plain string.
type TypeTag []string

// Has reports whether the tag contains t.
func (tt TypeTag) Has(t string) bool {
	return slices.Contains(tt, t)
}

// Equal reports whether both tags list the same types in the same order.
func (tt TypeTag) Equal(other []string) bool {
	return slices.Equal(tt, other)
}

func (tt TypeTag) String() string {
	if len(tt) == 1 {
		return tt[0]
	}
	return fmt.Sprint([]string(tt))
}

// MarshalJSON implements json.Marshaler.
func (tt TypeTag) MarshalJSON() ([]byte, error) {
	switch len(tt) {
	case 0:
		return []byte(`""`), nil
	case 1:
		return json.Marshal(tt[0])
	default:
		return json.Marshal([]string(tt))
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (tt *TypeTag) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*tt = nil
		} else {
			*tt = TypeTag{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("type must be a string or a list of strings: %w", err)
	}
	*tt = TypeTag(list)
	return nil
}
