package jsonwp

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultValidators(t *testing.T) {
	reg := NewValidatorRegistry(DefaultValidators())

	tests := []struct {
		command string
		args    []any
		wantMsg string // empty means valid
	}{
		{"createSession", []any{map[string]any{"platformName": "Fake"}, nil, nil}, ""},
		{"createSession", []any{nil, nil, map[string]any{"alwaysMatch": map[string]any{}}}, ""},
		{"createSession", []any{nil, nil, nil}, "capabilities"},
		{"createSession", []any{map[string]any{}, "x", nil}, "requiredCapabilities"},

		{"setUrl", []any{"http://google.com", "s"}, ""},
		{"setUrl", []any{"https://google.com", "s"}, ""},
		{"setUrl", []any{"google.com", "s"}, "Url must start with http"},
		{"setUrl", []any{nil, "s"}, "Url must start with http"},

		{"implicitWait", []any{0.0, "s"}, ""},
		{"implicitWait", []any{1500.0, "s"}, ""},
		{"implicitWait", []any{nil, "s"}, "ms"},
		{"implicitWait", []any{"five", "s"}, "ms"},
		{"implicitWait", []any{-1.0, "s"}, "ms"},
		{"asyncScriptTimeout", []any{-5.0, "s"}, "ms"},

		{"timeouts", []any{"implicit", 100.0, "s"}, ""},
		{"timeouts", []any{"page load", 0.0, "s"}, ""},
		{"timeouts", []any{"bogus", 100.0, "s"}, "type is not supported"},
		{"timeouts", []any{"script", -1.0, "s"}, "ms"},

		{"clickCurrent", []any{0.0, "s"}, ""},
		{"clickCurrent", []any{2.0, "s"}, ""},
		{"clickCurrent", []any{nil, "s"}, ""},
		{"clickCurrent", []any{4.0, "s"}, "0, 1, or 2"},
		{"clickCurrent", []any{"left", "s"}, "0, 1, or 2"},

		{"setNetworkConnection", []any{6.0, "s"}, ""},
		{"setNetworkConnection", []any{3.0, "s"}, "0, 1, 2, 4, 6"},
		{"setNetworkConnection", []any{"wifi", "s"}, "0, 1, 2, 4, 6"},

		{"setOrientation", []any{"LANDSCAPE", "s"}, ""},
		{"setOrientation", []any{"portrait", "s"}, ""},
		{"setOrientation", []any{"SIDEWAYS", "s"}, "Orientation"},

		{"findElement", []any{"xpath", "//a", "s"}, ""},
		{"findElements", []any{"accessibility id", "btn", "s"}, ""},
		{"findElement", []any{"magic", "//a", "s"}, "Locator strategy"},
		{"findElementFromElement", []any{"id", "", "e", "s"}, "Selector"},

		{"getUrl", []any{"s"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			err := reg.Validate(tt.command, tt.args)
			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("Validate(%s, %v) unexpected error: %v", tt.command, tt.args, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%s, %v) expected error containing %q", tt.command, tt.args, tt.wantMsg)
			}
			if !errors.Is(err, ErrBadParameters) {
				t.Errorf("Validate() error kind = %v, want BadParameters", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidatorRegistry_Immutable(t *testing.T) {
	src := map[string]Validator{
		"custom": func(...any) error { return errors.New("always fails") },
	}
	reg := NewValidatorRegistry(src)

	delete(src, "custom")
	src["other"] = func(...any) error { return errors.New("late") }

	if !reg.Has("custom") {
		t.Error("registry lost a validator after the source map changed")
	}
	if reg.Has("other") {
		t.Error("registry picked up a validator added after construction")
	}
	if err := reg.Validate("other", nil); err != nil {
		t.Errorf("Validate(other) = %v, want nil", err)
	}
}

func TestValidatorRegistry_Nil(t *testing.T) {
	var reg *ValidatorRegistry
	if err := reg.Validate("setUrl", []any{"bad"}); err != nil {
		t.Errorf("nil registry Validate() = %v, want nil", err)
	}
	if reg.Has("setUrl") {
		t.Error("nil registry Has() = true")
	}
}
