package capabilities

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseCatalogue reads a {"layers": [...]} JSON layer catalogue. Each
// object element is returned as its decoded field map; other elements are
// reported in the joined error.
func ParseCatalogue(doc []byte) ([]map[string]any, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: catalogue is not json", ErrMalformed)
	}
	layers := gjson.GetBytes(doc, "layers")
	if !layers.IsArray() {
		return nil, fmt.Errorf("%w: catalogue has no layers array", ErrMalformed)
	}
	var ret []map[string]any
	var errs []error
	for i, l := range layers.Array() {
		m, ok := l.Value().(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: catalogue element %d is %s", ErrMalformed, i, l.Type))
			continue
		}
		ret = append(ret, m)
	}
	return ret, errors.Join(errs...)
}
