package jsonwp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validator checks the marshalled arguments of one command.
// A non-nil error is reported to the client as bad parameters.
type Validator func(args ...any) error

// ValidatorRegistry maps command names to semantic validators.
// It is built once and never modified, so it is safe for concurrent use.
type ValidatorRegistry struct {
	validators map[string]Validator
}

// NewValidatorRegistry copies validators into an immutable registry.
func NewValidatorRegistry(validators map[string]Validator) *ValidatorRegistry {
	m := make(map[string]Validator, len(validators))
	for cmd, v := range validators {
		if v != nil {
			m[cmd] = v
		}
	}
	return &ValidatorRegistry{validators: m}
}

// Has reports whether a validator is registered for command.
func (r *ValidatorRegistry) Has(command string) bool {
	if r == nil {
		return false
	}
	_, ok := r.validators[command]
	return ok
}

// Validate runs the validator for command, if any.
// Failures are returned as BadParameters protocol errors.
func (r *ValidatorRegistry) Validate(command string, args []any) error {
	if r == nil {
		return nil
	}
	v, ok := r.validators[command]
	if !ok {
		return nil
	}
	if err := v(args...); err != nil {
		if IsKind(err, KindBadParameters) {
			return err
		}
		return Errorf(KindBadParameters, "%s", err.Error())
	}
	return nil
}

// Validation value sets.
var (
	timeoutTypes      = []string{"script", "implicit", "page load", "command"}
	mouseButtons      = []float64{0, 1, 2}
	networkTypes      = []float64{0, 1, 2, 4, 6}
	orientations      = []string{"LANDSCAPE", "PORTRAIT"}
	locatorStrategies = []string{
		"id", "name", "class name", "css selector", "link text", "partial link text",
		"tag name", "xpath", "accessibility id", "-android uiautomator",
		"-ios uiautomation", "-ios predicate string", "-ios class chain",
	}
)

// DefaultValidators returns the validators for the standard command set.
// The returned map is a fresh copy owned by the caller.
func DefaultValidators() map[string]Validator {
	return map[string]Validator{
		"createSession":           validateCapabilities,
		"setUrl":                  validateURL,
		"implicitWait":            validateWaitMS,
		"asyncScriptTimeout":      validateWaitMS,
		"timeouts":                validateTimeouts,
		"clickCurrent":            validateMouseButton,
		"setNetworkConnection":    validateNetworkType,
		"setOrientation":          validateOrientation,
		"findElement":             validateLocator,
		"findElements":            validateLocator,
		"findElementFromElement":  validateLocator,
		"findElementsFromElement": validateLocator,
	}
}

// arg returns args[i], or nil if it was not supplied.
func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// validateCapabilities expects desiredCapabilities, requiredCapabilities
// and capabilities, in that order.
func validateCapabilities(args ...any) error {
	_, desired := arg(args, 0).(map[string]any)
	_, w3c := arg(args, 2).(map[string]any)
	if !desired && !w3c {
		return errors.New("You must include a desiredCapabilities or capabilities object") //nolint:stylecheck // client-facing message
	}
	if req := arg(args, 1); req != nil {
		if _, ok := req.(map[string]any); !ok {
			return errors.New("requiredCapabilities must be an object") //nolint:stylecheck // client-facing message
		}
	}
	return nil
}

func validateURL(args ...any) error {
	url, ok := arg(args, 0).(string)
	if !ok || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return errors.New("Url must start with http:// or https://") //nolint:stylecheck // client-facing message
	}
	return nil
}

func validateWaitMS(args ...any) error {
	raw := arg(args, 0)
	if raw == nil {
		return errors.New("Missing ms parameter") //nolint:stylecheck // client-facing message
	}
	if ms, ok := raw.(float64); !ok || ms < 0 || math.IsNaN(ms) {
		return errors.New("Wait ms must be a number equal to 0 or greater") //nolint:stylecheck // client-facing message
	}
	return nil
}

func validateTimeouts(args ...any) error {
	kind, _ := arg(args, 0).(string) //nolint:errcheck // non-strings fail the membership test
	if ms, ok := arg(args, 1).(float64); !ok || ms < 0 {
		return errors.New("Wait ms must be a number equal to 0 or greater") //nolint:stylecheck // client-facing message
	}
	for _, t := range timeoutTypes {
		if kind == t {
			return nil
		}
	}
	return fmt.Errorf("'%s' type is not supported. Only '%s' are supported", kind, strings.Join(timeoutTypes, "', '"))
}

// validateMouseButton allows an omitted button; the driver picks the default.
func validateMouseButton(args ...any) error {
	button := arg(args, 0)
	if button == nil {
		return nil
	}
	if !numberIn(button, mouseButtons) {
		return errors.New("Click button must be 0, 1, or 2") //nolint:stylecheck // client-facing message
	}
	return nil
}

func validateNetworkType(args ...any) error {
	if !numberIn(arg(args, 0), networkTypes) {
		return errors.New("Network type must be one of 0, 1, 2, 4, 6") //nolint:stylecheck // client-facing message
	}
	return nil
}

func validateOrientation(args ...any) error {
	o, _ := arg(args, 0).(string) //nolint:errcheck // non-strings fail the membership test
	for _, valid := range orientations {
		if strings.EqualFold(o, valid) {
			return nil
		}
	}
	return fmt.Errorf("Orientation must be one of %s", strings.Join(orientations, ", ")) //nolint:stylecheck // client-facing message
}

func validateLocator(args ...any) error {
	strategy, _ := arg(args, 0).(string) //nolint:errcheck // checked below
	selector, _ := arg(args, 1).(string) //nolint:errcheck // checked below
	valid := false
	for _, s := range locatorStrategies {
		if strategy == s {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("Locator strategy '%s' is not supported", strategy) //nolint:stylecheck // client-facing message
	}
	if selector == "" {
		return errors.New("Selector must be a non-empty string") //nolint:stylecheck // client-facing message
	}
	return nil
}

// numberIn reports whether v is a JSON number equal to one of set.
func numberIn(v any, set []float64) bool {
	n, ok := v.(float64)
	if !ok {
		return false
	}
	for _, s := range set {
		if n == s {
			return true
		}
	}
	return false
}
