// Package native provides the CGO bindings to the optimized C++ processing
// routine. This package should ONLY be imported by pkg/openbot.
// All CGO complexity is isolated here.
package native
