package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// maxResponseBytes bounds how much of an upstream reply is read for
// locally handled commands. Proxied responses are streamed unbounded.
const maxResponseBytes = 16 << 20

// response is an upstream reply in either JSONWP or W3C shape.
//
//	JSONWP: {"status": 0, "sessionId": "...", "value": {...}}
//	W3C:    {"value": {"sessionId": "...", "capabilities": {...}}}
type response struct {
	Status    *int            `json:"status"`
	SessionID string          `json:"sessionId"`
	Value     json.RawMessage `json:"value"`
}

// w3cValue holds the fields of a W3C-shaped value object.
type w3cValue struct {
	SessionID    string          `json:"sessionId"`
	Capabilities json.RawMessage `json:"capabilities"`
	Error        string          `json:"error"`
	Message      string          `json:"message"`
}

// client issues locally handled commands against the upstream server.
type client struct {
	base *url.URL
	http *http.Client
}

// endpoint joins p onto the upstream base path.
func (c *client) endpoint(p string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + p
	u.RawPath = ""
	return u.String()
}

// do sends one JSON request and decodes the protocol response.
// Upstream protocol failures come back as *jsonwp.Error.
func (c *client) do(ctx context.Context, method, p string, body any) (*response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p), reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, p, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s %s response: %w", method, p, err)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, jsonwp.Errorf(jsonwp.KindUnknownError, "upstream returned HTTP %d: %s",
				resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrBadResponse, method, p, err)
	}

	if err := out.protocolError(); err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, jsonwp.Errorf(jsonwp.KindUnknownError, "upstream returned HTTP %d", resp.StatusCode)
	}
	return &out, nil
}

// protocolError reports a JSONWP non-zero status or a W3C error value.
func (r *response) protocolError() error {
	if r.Status != nil && *r.Status != 0 {
		return jsonwp.ErrorFromCode(*r.Status, valueMessage(r.Value))
	}
	var v w3cValue
	if json.Unmarshal(r.Value, &v) == nil && v.Error != "" {
		msg := v.Message
		if msg == "" {
			msg = v.Error
		}
		if v.Error == "session not created" {
			return jsonwp.Errorf(jsonwp.KindSessionNotCreated, "%s", msg)
		}
		return jsonwp.Errorf(jsonwp.KindUnknownError, "%s", msg)
	}
	return nil
}

// decodeValue returns the value as generic JSON.
func (r *response) decodeValue() (any, error) {
	if len(r.Value) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return nil, fmt.Errorf("%w: decoding value: %w", ErrBadResponse, err)
	}
	return v, nil
}

// session extracts the new session id and capabilities from a
// createSession reply.
func (r *response) session() (string, any, error) {
	if r.SessionID != "" {
		caps, err := r.decodeValue()
		if err != nil {
			return "", nil, err
		}
		return r.SessionID, caps, nil
	}

	var v w3cValue
	if err := json.Unmarshal(r.Value, &v); err != nil || v.SessionID == "" {
		return "", nil, jsonwp.Errorf(jsonwp.KindSessionNotCreated, "upstream returned no session id")
	}
	var caps any
	if len(v.Capabilities) > 0 {
		if err := json.Unmarshal(v.Capabilities, &caps); err != nil {
			return "", nil, fmt.Errorf("%w: decoding capabilities: %w", ErrBadResponse, err)
		}
	}
	return v.SessionID, caps, nil
}

// valueMessage pulls a human-readable message out of an error value.
func valueMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var v struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &v) == nil {
		return v.Message
	}
	return ""
}
