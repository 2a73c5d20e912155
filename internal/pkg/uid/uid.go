// Package uid provides identifier generators used across the service.
//
// Callers depend on StringID so tests can swap in a deterministic generator.
package uid

// StringID generates string identifiers.
type StringID interface {
	Generate() string
}
