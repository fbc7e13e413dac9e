package jsonwp

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultBasePath is where the protocol routes are mounted.
const DefaultBasePath = "/wd/hub"

// AvoidRule exempts matching requests from proxying.
// Method is one of GET, POST or DELETE; Pattern is matched against the
// request path with the base path removed.
type AvoidRule struct {
	Method  string
	Pattern *regexp.Regexp
}

// ValidateAvoidRule reports whether r is well formed.
func ValidateAvoidRule(r AvoidRule) error {
	if _, ok := allowedMethods[r.Method]; !ok {
		return fmt.Errorf("%w: method %q must be GET, POST or DELETE", ErrInvalidAvoidRule, r.Method)
	}
	if r.Pattern == nil {
		return fmt.Errorf("%w: %s rule has no pattern", ErrInvalidAvoidRule, r.Method)
	}
	return nil
}

// ParseAvoidRules builds rules from [method, pattern] pairs, as found in
// configuration files.
func ParseAvoidRules(pairs [][]string) ([]AvoidRule, error) {
	rules := make([]AvoidRule, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: rule %d has %d elements, want [method, pattern]", ErrInvalidAvoidRule, i, len(pair))
		}
		re, err := regexp.Compile(pair[1])
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidAvoidRule, i, err)
		}
		rule := AvoidRule{Method: strings.ToUpper(pair[0]), Pattern: re}
		if err := ValidateAvoidRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ProxyRequest is the part of an HTTP request the proxy decision looks at.
type ProxyRequest struct {
	Method    string
	Path      string
	SessionID string
}

// NormalizePath strips basePath from the front of path.
// The result always starts with "/".
func NormalizePath(path, basePath string) string {
	basePath = strings.TrimRight(basePath, "/")
	if basePath != "" && (path == basePath || strings.HasPrefix(path, basePath+"/")) {
		path = path[len(basePath):]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// ShouldProxy decides whether a request for command goes upstream.
//
// deleteSession is always handled locally, so the backend can tidy up its
// own state. Avoid rules are expected to be validated when the Proxier is
// built (see ParseAvoidRules); one that still fails ValidateAvoidRule here
// yields ErrInvalidAvoidRule.
func ShouldProxy(backend Driver, req ProxyRequest, command, basePath string) (bool, error) {
	proxier, ok := backend.(Proxier)
	if !ok {
		return false, nil
	}
	if command == CommandDeleteSession {
		return false, nil
	}
	if !proxier.ProxyActive(req.SessionID) {
		return false, nil
	}

	path := NormalizePath(req.Path, basePath)
	for _, rule := range proxier.ProxyAvoidList(req.SessionID) {
		if err := ValidateAvoidRule(rule); err != nil {
			return false, err
		}
		if rule.Method == req.Method && rule.Pattern.MatchString(path) {
			return false, nil
		}
	}
	return true, nil
}
