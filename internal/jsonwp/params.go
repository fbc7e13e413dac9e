package jsonwp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// PathParam is one named path capture and its value.
type PathParam struct {
	Name  string
	Value string
}

// DecodeBody parses a request body into a generic JSON value.
// An empty body decodes to an empty object.
func DecodeBody(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, Errorf(KindBadParameters, "Parameters were incorrect. The request body is not valid JSON: %v", err)
	}
	return body, nil
}

// WrapParams nests a non-object (or array) body under params.Wrap.
// Object bodies, or specs without a wrap field, pass through unchanged.
func WrapParams(params *PayloadParams, body any) any {
	if params == nil || params.Wrap == "" {
		return body
	}
	if _, isObject := body.(map[string]any); isObject {
		return body
	}
	return map[string]any{params.Wrap: body}
}

// UnwrapParams replaces an object body with its params.Unwrap field.
// Non-object bodies, or specs without an unwrap field, pass through unchanged.
func UnwrapParams(params *PayloadParams, body any) any {
	if params == nil || params.Unwrap == "" {
		return body
	}
	obj, isObject := body.(map[string]any)
	if !isObject {
		return body
	}
	return obj[params.Unwrap]
}

// bodyFields returns the sorted field names of an object body.
// Any other body has no fields.
func bodyFields(body any) []string {
	obj, ok := body.(map[string]any)
	if !ok {
		return []string{}
	}
	fields := make([]string, 0, len(obj))
	for k := range obj {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// CheckParams verifies that body's fields match one required alternative
// exactly, optionally extended with optional fields.
// A spec without required sets accepts any body.
func CheckParams(params *PayloadParams, body any) error {
	if params == nil || len(params.Required) == 0 {
		return nil
	}

	received := bodyFields(body)
	receivedSet := make(map[string]struct{}, len(received))
	for _, f := range received {
		receivedSet[f] = struct{}{}
	}

	optional := make(map[string]struct{}, len(params.Optional))
	for _, f := range params.Optional {
		optional[f] = struct{}{}
	}

	for _, required := range params.Required {
		if matchesAlternative(required, optional, receivedSet) {
			return nil
		}
	}
	return NewBadParametersError(params, received)
}

// matchesAlternative reports whether received contains every required field
// and nothing outside required ∪ optional.
func matchesAlternative(required []string, optional, received map[string]struct{}) bool {
	allowed := make(map[string]struct{}, len(required)+len(optional))
	for _, f := range required {
		if _, ok := received[f]; !ok {
			return false
		}
		allowed[f] = struct{}{}
	}
	for f := range optional {
		allowed[f] = struct{}{}
	}
	for f := range received {
		if _, ok := allowed[f]; !ok {
			return false
		}
	}
	return true
}

// MakeArgs builds the positional argument list for a driver command:
// every required field (flattened, in declared order), then every optional
// field, then the path captures in path order with sessionId moved last.
// Fields absent from body are passed as nil.
func MakeArgs(captures []PathParam, body any, params *PayloadParams) []any {
	obj, _ := body.(map[string]any) //nolint:errcheck // non-object bodies have no fields

	var args []any
	if params != nil {
		for _, f := range params.Required.Flatten() {
			args = append(args, obj[f])
		}
		for _, f := range params.Optional {
			args = append(args, obj[f])
		}
	}

	var session *PathParam
	for i := range captures {
		if captures[i].Name == SessionIDParam {
			session = &captures[i]
			continue
		}
		args = append(args, captures[i].Value)
	}
	if session != nil {
		args = append(args, session.Value)
	}

	if args == nil {
		args = []any{}
	}
	return args
}

// describeArgs renders args for logging, truncated to maxLen characters.
func describeArgs(args []any, maxLen int) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return truncate(string(data), maxLen)
}

// truncate shortens s to at most maxLen characters, marking the cut with "...".
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
