package layers

import (
	"encoding/json"
	"fmt"
)

// Descriptor is a partial layer description waiting in the merge queue.
// Fields keeps the JSON shape of the description so that catalogue keys
// the typed Record does not know survive the merge untouched.
type Descriptor struct {
	Fields map[string]any `json:"fields"`
	Source SourceKind     `json:"source"`
	// FromJSON marks descriptors whose values take precedence over
	// capability-derived ones during the fold.
	FromJSON bool `json:"fromJson"`
}

func (d Descriptor) ID() string {
	id, _ := d.Fields["id"].(string)
	return id
}

func (d Descriptor) Type() Type {
	t, _ := d.Fields["type"].(string)
	return Type(t)
}

func (d Descriptor) Title() string {
	t, _ := d.Fields["title"].(string)
	return t
}

func (d Descriptor) Clone() Descriptor {
	return Descriptor{Fields: cloneMap(d.Fields), Source: d.Source, FromJSON: d.FromJSON}
}

// toFields converts any JSON-tagged value into the generic field shape
// used by the merge (objects as map[string]any, numbers as float64).
func toFields(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	ret := map[string]any{}
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, fmt.Errorf("descriptor fields, %w", err)
	}
	return ret, nil
}
