// Package domain defines domain-specific errors.
// These errors represent pipeline failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that components can return.
var (
	// ErrChannelFull is returned when a bounded channel has no free slot.
	// Real-time producers treat it as a silent drop.
	ErrChannelFull = errors.New("channel full")

	// ErrInvalidCapacity is returned when a channel capacity is not a positive power of two.
	ErrInvalidCapacity = errors.New("capacity must be a positive power of two")

	// ErrInvalidPresetSource is returned when a preset path cannot be read or resolved.
	ErrInvalidPresetSource = errors.New("invalid preset source")

	// ErrStaleCacheEntry marks a cache entry whose source changed. It never leaves the cache.
	ErrStaleCacheEntry = errors.New("stale cache entry")

	// ErrThreadJoinTimeout is returned when the worker does not exit within the stop timeout.
	ErrThreadJoinTimeout = errors.New("worker did not stop in time")

	// ErrNotRunning is returned when an operation needs a running worker.
	ErrNotRunning = errors.New("worker not running")

	// ErrInvalidParameter is returned for unknown control-plane parameters.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotInitialized is returned when a renderer is used before Initialize.
	ErrNotInitialized = errors.New("component not initialized")

	// ErrUnsupportedFormat is returned when an audio or preset file format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// PresetError represents a failure to resolve or load a preset.
type PresetError struct {
	Op      string // Operation that failed (e.g., "stat", "addref", "load")
	Path    string // Preset path
	Message string // Error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *PresetError) Error() string {
	return fmt.Sprintf("preset %s failed for '%s': %s", e.Op, e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *PresetError) Unwrap() error {
	return e.Err
}

// NewPresetError creates a new PresetError.
func NewPresetError(op, path, message string, err error) *PresetError {
	return &PresetError{
		Op:      op,
		Path:    path,
		Message: message,
		Err:     err,
	}
}

// RendererError wraps failures reported by a renderer backend.
type RendererError struct {
	Renderer string // Renderer variant (e.g., "raster", "script")
	Op       string // Operation that failed (e.g., "initialize", "load", "render")
	Path     string // Resource path (if applicable)
	Err      error  // Underlying error
}

// Error implements the error interface.
func (e *RendererError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("renderer %s %s failed for '%s': %v", e.Renderer, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("renderer %s %s failed: %v", e.Renderer, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RendererError) Unwrap() error {
	return e.Err
}

// NewRendererError creates a new RendererError.
func NewRendererError(renderer, op, path string, err error) *RendererError {
	return &RendererError{
		Renderer: renderer,
		Op:       op,
		Path:     path,
		Err:      err,
	}
}

// RepositoryError represents an error from a repository.
// This wraps persistence layer errors with additional context.
type RepositoryError struct {
	Op      string // Operation that failed (e.g., "save", "load")
	Type    string // Repository type (e.g., "state")
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s.%s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new RepositoryError.
func NewRepositoryError(op, repoType, message string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      op,
		Type:    repoType,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string      // Field that failed validation
	Value   interface{} // Value that failed validation
	Message string      // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidParameter for parameter validation failures.
func (e *ValidationError) Unwrap() error {
	if e.Field == "param" {
		return ErrInvalidParameter
	}
	return nil
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ServiceError represents an error from a service layer operation.
type ServiceError struct {
	Service string // Service name (e.g., "VisualizationWorker", "PresetPlaylist")
	Op      string // Operation that failed
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s.%s failed: %s", e.Service, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{
		Service: service,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
