package jsonwp

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    any
		wantErr bool
	}{
		{"empty", "", map[string]any{}, false},
		{"whitespace", "  \n", map[string]any{}, false},
		{"object", `{"url":"http://x"}`, map[string]any{"url": "http://x"}, false},
		{"array", `[1,2]`, []any{1.0, 2.0}, false},
		{"invalid", `{"url":`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrBadParameters) {
					t.Fatalf("DecodeBody() error = %v, want BadParameters", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeBody() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeBody() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestWrapParams(t *testing.T) {
	params := &PayloadParams{Wrap: "actions"}

	arr := []any{"tap"}
	got := WrapParams(params, arr)
	want := map[string]any{"actions": arr}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WrapParams(array) = %#v, want %#v", got, want)
	}

	if got := WrapParams(params, "x"); !reflect.DeepEqual(got, map[string]any{"actions": "x"}) {
		t.Errorf("WrapParams(scalar) = %#v", got)
	}

	obj := map[string]any{"actions": arr}
	if got := WrapParams(params, obj); !reflect.DeepEqual(got, obj) {
		t.Errorf("WrapParams(object) should pass through, got %#v", got)
	}

	if got := WrapParams(&PayloadParams{}, arr); !reflect.DeepEqual(got, arr) {
		t.Errorf("WrapParams(no wrap) should pass through, got %#v", got)
	}
	if got := WrapParams(nil, arr); !reflect.DeepEqual(got, arr) {
		t.Errorf("WrapParams(nil) should pass through, got %#v", got)
	}
}

func TestUnwrapParams(t *testing.T) {
	params := &PayloadParams{Unwrap: "inner"}

	obj := map[string]any{"inner": map[string]any{"a": 1.0}, "other": true}
	if got := UnwrapParams(params, obj); !reflect.DeepEqual(got, map[string]any{"a": 1.0}) {
		t.Errorf("UnwrapParams(object) = %#v", got)
	}

	arr := []any{1.0}
	if got := UnwrapParams(params, arr); !reflect.DeepEqual(got, arr) {
		t.Errorf("UnwrapParams(array) should pass through, got %#v", got)
	}
}

func TestWrapThenUnwrap_RoundTrip(t *testing.T) {
	params := &PayloadParams{Wrap: "value", Unwrap: "value"}

	for _, body := range []any{[]any{"a", "b"}, "text", 42.0} {
		got := UnwrapParams(params, WrapParams(params, body))
		if !reflect.DeepEqual(got, body) {
			t.Errorf("round trip of %#v = %#v", body, got)
		}
	}
}

func TestCheckParams(t *testing.T) {
	single := &PayloadParams{Required: RequiredSets{{"url"}}}
	alternatives := &PayloadParams{Required: RequiredSets{{"id"}, {"name"}}}
	withOptional := &PayloadParams{Required: RequiredSets{{"type", "ms"}}, Optional: []string{"extra"}}

	tests := []struct {
		name    string
		params  *PayloadParams
		body    any
		wantErr bool
	}{
		{"nil spec accepts anything", nil, map[string]any{"x": 1.0}, false},
		{"no required sets accepts anything", &PayloadParams{Optional: []string{"a"}}, map[string]any{"zzz": 1.0}, false},
		{"exact match", single, map[string]any{"url": "http://x"}, false},
		{"missing required", single, map[string]any{}, true},
		{"extra field", single, map[string]any{"url": "http://x", "foo": 1.0}, true},
		{"non-object body", single, []any{"url"}, true},
		{"first alternative", alternatives, map[string]any{"id": 1.0}, false},
		{"second alternative", alternatives, map[string]any{"name": "n"}, false},
		{"both alternatives", alternatives, map[string]any{"id": 1.0, "name": "n"}, true},
		{"required without optional", withOptional, map[string]any{"type": "script", "ms": 1.0}, false},
		{"required with optional", withOptional, map[string]any{"type": "script", "ms": 1.0, "extra": true}, false},
		{"only optional", withOptional, map[string]any{"extra": true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckParams(tt.params, tt.body)
			if tt.wantErr && !errors.Is(err, ErrBadParameters) {
				t.Errorf("CheckParams() error = %v, want BadParameters", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("CheckParams() unexpected error: %v", err)
			}
		})
	}
}

func TestCheckParams_MessageNamesFields(t *testing.T) {
	params := &PayloadParams{Required: RequiredSets{{"url"}}}
	err := CheckParams(params, map[string]any{"uri": "http://x"})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{`"url"`, `"uri"`, "We wanted", "you sent"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
}

func TestMakeArgs(t *testing.T) {
	tests := []struct {
		name     string
		captures []PathParam
		body     any
		params   *PayloadParams
		want     []any
	}{
		{
			name:     "required then session",
			captures: []PathParam{{Name: "sessionId", Value: "foo"}},
			body:     map[string]any{"url": "http://x"},
			params:   &PayloadParams{Required: RequiredSets{{"url"}}},
			want:     []any{"http://x", "foo"},
		},
		{
			name: "session moved after other captures",
			captures: []PathParam{
				{Name: "sessionId", Value: "s1"},
				{Name: "elementId", Value: "e1"},
				{Name: "name", Value: "href"},
			},
			body: map[string]any{},
			want: []any{"e1", "href", "s1"},
		},
		{
			name:     "optional after required and missing as nil",
			captures: []PathParam{{Name: "sessionId", Value: "s"}},
			body:     map[string]any{"type": "implicit", "ms": 5.0},
			params:   &PayloadParams{Required: RequiredSets{{"type", "ms"}}, Optional: []string{"extra"}},
			want:     []any{"implicit", 5.0, nil, "s"},
		},
		{
			name:   "alternatives flattened in order",
			body:   map[string]any{"name": "n"},
			params: &PayloadParams{Required: RequiredSets{{"id"}, {"name"}}},
			want:   []any{nil, "n"},
		},
		{
			name: "no params no captures",
			body: map[string]any{},
			want: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MakeArgs(tt.captures, tt.body, tt.params)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MakeArgs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	long := strings.Repeat("a", 200)
	got := truncate(long, 150)
	if len(got) != 150 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() len = %d, value %q", len(got), got)
	}
}
