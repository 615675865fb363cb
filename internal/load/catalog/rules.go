package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Failure reasons reported for body-level problems.
const (
	ReasonParse  = "Failed to parse response"
	ReasonFormat = "Invalid response format"
)

// Response is the part of an HTTP exchange that rules and extractors see.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Outcome is the classification of one exchange. It feeds reporting only.
type Outcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Pass is a successful outcome.
func Pass() Outcome {
	return Outcome{Success: true}
}

// Fail is a failed outcome with the given reason.
func Fail(reason string) Outcome {
	return Outcome{Reason: reason}
}

// StatusReason is the failure reason for an unexpected status code.
func StatusReason(code int) string {
	return fmt.Sprintf("Status code: %d", code)
}

// Rule decides whether a response counts as a success.
type Rule func(resp *Response) Outcome

// AcceptStatus accepts exactly the listed status codes, regardless of body.
func AcceptStatus(codes ...int) Rule {
	allowed := make(map[int]bool, len(codes))
	for _, c := range codes {
		allowed[c] = true
	}
	return func(resp *Response) Outcome {
		if allowed[resp.StatusCode] {
			return Pass()
		}
		return Fail(StatusReason(resp.StatusCode))
	}
}

// AcceptSuccessful accepts any 2xx status plus the extra codes.
func AcceptSuccessful(extra ...int) Rule {
	listed := AcceptStatus(extra...)
	return func(resp *Response) Outcome {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return Pass()
		}
		return listed(resp)
	}
}

// AcceptJSON accepts a 200 whose body is any well-formed JSON document.
func AcceptJSON() Rule {
	return func(resp *Response) Outcome {
		if resp.StatusCode != http.StatusOK {
			return Fail(StatusReason(resp.StatusCode))
		}
		if _, err := decodeJSON(resp.Body); err != nil {
			return Fail(ReasonParse)
		}
		return Pass()
	}
}

// AcceptSchema accepts a 200 whose JSON body validates against schema.
func AcceptSchema(schema *jsonschema.Schema) Rule {
	return func(resp *Response) Outcome {
		if resp.StatusCode != http.StatusOK {
			return Fail(StatusReason(resp.StatusCode))
		}
		doc, err := decodeJSON(resp.Body)
		if err != nil {
			return Fail(ReasonParse)
		}
		if err := schema.Validate(doc); err != nil {
			return Fail(ReasonFormat)
		}
		return Pass()
	}
}

// MustSchema compiles an inline JSON schema and panics on error. It is
// meant for package-level schema variables.
func MustSchema(name, source string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name, source)
}

var (
	// CollectionSchema matches {"data": [...]}.
	CollectionSchema = MustSchema("collection.json", `{
		"type": "object",
		"required": ["data"],
		"properties": {"data": {"type": "array"}}
	}`)

	// EnvelopeOrListSchema matches either {"data": ...} or a bare array.
	EnvelopeOrListSchema = MustSchema("envelope-or-list.json", `{
		"anyOf": [
			{"type": "array"},
			{"type": "object", "required": ["data"]}
		]
	}`)
)

func decodeJSON(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return doc, nil
}
