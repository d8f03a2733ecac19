package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrSourceMissing indicates the source database file does not exist
	ErrSourceMissing = errors.New("source database missing")

	// ErrCriticalTableMissing indicates the source lacks shots or takes
	ErrCriticalTableMissing = errors.New("critical table missing")

	// ErrSchemaLoad indicates the schema catalog could not be read or parsed
	ErrSchemaLoad = errors.New("schema catalog load failed")

	// ErrTargetNotWritable indicates the target location cannot be written
	ErrTargetNotWritable = errors.New("target not writable")

	// ErrMappingFrozen indicates a write to an already frozen identifier mapping
	ErrMappingFrozen = errors.New("mapping is frozen")

	// ErrDuplicate indicates a duplicate key
	ErrDuplicate = errors.New("duplicate key")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPermission indicates a permission error
	ErrPermission = errors.New("permission denied")

	// ErrSizeMismatch indicates a copied file does not match its source
	ErrSizeMismatch = errors.New("size mismatch")
)
