// Package routes holds the protocol route table served by the gateway.
//
// The default table is embedded from routes.yaml. A deployment may replace
// it with its own file via LoadFile; both go through the same parser and
// the same structural validation.
package routes

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// DefaultDigest is the fingerprint of the embedded table.
// Update it only when the protocol shape changes on purpose.
const DefaultDigest = "e55469f8"

//go:embed routes.yaml
var defaultTable []byte

// ErrEmptyTable is returned when a route file defines no routes.
var ErrEmptyTable = errors.New("routes: table is empty")

// entry is one routes.yaml line.
type entry struct {
	Path                 string `yaml:"path"`
	Method               string `yaml:"method"`
	Command              string `yaml:"command"`
	jsonwp.PayloadParams `yaml:",inline"`
}

type document struct {
	Routes []entry `yaml:"routes"`
}

// Parse decodes and validates a YAML route table.
func Parse(data []byte) (jsonwp.RouteTable, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing route table: %w", err)
	}
	if len(doc.Routes) == 0 {
		return nil, ErrEmptyTable
	}

	table := make(jsonwp.RouteTable, 0, len(doc.Routes))
	for _, e := range doc.Routes {
		route := jsonwp.Route{
			Method: e.Method,
			Path:   e.Path,
			Spec:   jsonwp.CommandSpec{Command: e.Command},
		}
		if hasParams(e.PayloadParams) {
			params := e.PayloadParams
			route.Spec.Params = &params
		}
		table = append(table, route)
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func hasParams(p jsonwp.PayloadParams) bool {
	return len(p.Required) > 0 || len(p.Optional) > 0 || p.Wrap != "" || p.Unwrap != ""
}

// LoadFile reads a route table from path.
func LoadFile(path string) (jsonwp.RouteTable, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading route table: %w", err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Default returns the embedded route table.
func Default() jsonwp.RouteTable {
	table, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("routes: embedded table is invalid: %v", err))
	}
	return table
}

// Load returns the table at path, or the embedded table when path is empty.
func Load(path string) (jsonwp.RouteTable, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
