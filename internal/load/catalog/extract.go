package catalog

import (
	"github.com/tidwall/gjson"
)

// Extractor looks up a value in a response body. A miss is an ordinary
// result: extractors never report errors.
type Extractor func(body []byte) (string, bool)

// Field extracts a string or number at a gjson path, e.g. "data.token" or
// "data.0.id". Empty strings, nulls, objects and arrays are misses.
func Field(path string) Extractor {
	return func(body []byte) (string, bool) {
		if !gjson.ValidBytes(body) {
			return "", false
		}

		res := gjson.GetBytes(body, path)
		switch res.Type {
		case gjson.String, gjson.Number:
			if v := res.String(); v != "" {
				return v, true
			}
		}
		return "", false
	}
}

// FirstOf tries each strategy in order; the first hit wins.
func FirstOf(strategies ...Extractor) Extractor {
	return func(body []byte) (string, bool) {
		for _, extract := range strategies {
			if v, ok := extract(body); ok {
				return v, true
			}
		}
		return "", false
	}
}
