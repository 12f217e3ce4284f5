package layers

// mergeDeep returns a new map holding every key of dst and src. Where
// both hold a map the maps are merged recursively; for any other
// conflict the value of src wins. Lists are replaced, not concatenated.
func mergeDeep(dst, src map[string]any) map[string]any {
	ret := cloneMap(dst)
	if ret == nil {
		ret = map[string]any{}
	}
	for k, sv := range src {
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := ret[k].(map[string]any); ok {
				ret[k] = mergeDeep(dm, sm)
				continue
			}
		}
		ret[k] = cloneValue(sv)
	}
	return ret
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	ret := make(map[string]any, len(m))
	for k, v := range m {
		ret[k] = cloneValue(v)
	}
	return ret
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		ret := make([]any, len(val))
		for i, e := range val {
			ret[i] = cloneValue(e)
		}
		return ret
	default:
		return v
	}
}

// foldPartial merges one matching partial into the accumulator.
// A JSON-sourced partial is laid over the accumulator so its fields win.
// Anything else becomes the base and the accumulator is laid over it, so
// values that came from JSON earlier keep precedence over capability
// documents whatever order the sources arrived in.
func foldPartial(acc, partial Descriptor) Descriptor {
	if partial.FromJSON {
		return Descriptor{
			Fields:   mergeDeep(acc.Fields, partial.Fields),
			Source:   partial.Source,
			FromJSON: true,
		}
	}
	return Descriptor{
		Fields:   mergeDeep(partial.Fields, acc.Fields),
		Source:   acc.Source,
		FromJSON: acc.FromJSON,
	}
}

// layerTemplate fills the gaps of a merged layer. It carries no type so a
// layer that never received one stays unmatched.
func layerTemplate() map[string]any {
	return map[string]any{
		"title":        "",
		"handleAs":     "",
		"opacity":      1.0,
		"isActive":     false,
		"isSelected":   true,
		"isDisabled":   false,
		"isDefault":    false,
		"displayIndex": 1.0,
		"mappingOptions": map[string]any{
			"urlFunctions":  map[string]any{},
			"tileFunctions": map[string]any{},
		},
		"updateParameters": map[string]any{
			"time": true,
		},
	}
}

// BaseLayerOps are the ingestion options every loaded source starts from.
func BaseLayerOps() map[string]any {
	return map[string]any{
		"type":     string(TypeData),
		"handleAs": string(HandleAsWMSRaster),
		"mappingOptions": map[string]any{
			"urlFunctions": map[string]any{
				"flat":  "kvpTimeParam_wms",
				"globe": "kvpTimeParam_wms",
			},
		},
	}
}

// DefaultLayerOps are laid over every partial parsed from a capability
// document of the given kind, beneath the caller's own options. JSON
// catalogues and tileset metadata carry their own type and handleAs and
// get none; SourceOptions.FillDefaults fills their gaps from BaseLayerOps.
func DefaultLayerOps(kind SourceKind) map[string]any {
	switch kind {
	case SourceWMTSXML:
		return mergeDeep(BaseLayerOps(), map[string]any{
			"handleAs": string(HandleAsWMTSRaster),
			"mappingOptions": map[string]any{
				"urlFunctions": map[string]any{
					"flat":  "kvpTimeParam_wmts",
					"globe": "kvpTimeParam_wmts",
				},
			},
		})
	case SourceWMSXML:
		return BaseLayerOps()
	default:
		return nil
	}
}
