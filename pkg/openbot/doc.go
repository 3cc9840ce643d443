// Package openbot exposes the Go API for the openbot SDK's processing core.
// The exported types compile with or without the native C++ backend so that
// downstream projects can adopt the package before enabling cgo; builds
// without the backend select the pure Go pass-through processor.
package openbot
