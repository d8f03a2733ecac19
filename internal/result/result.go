// Package result holds the diagnostics every migration stage accumulates.
package result

import (
	"fmt"

	"github.com/franz/shot-migrator/internal/util"
)

// Result accumulates errors, warnings and informational notes.
// Success means no errors were recorded
type Result struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Info     []string `json:"info"`
}

// New returns an empty result
func New() *Result {
	return &Result{}
}

// Success reports whether no errors were recorded
func (r *Result) Success() bool {
	return len(r.Errors) == 0
}

// Errorf records and logs an error
func (r *Result) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	util.ErrorLog("%s", msg)
	r.Errors = append(r.Errors, msg)
}

// Warnf records and logs a warning
func (r *Result) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	util.WarnLog("%s", msg)
	r.Warnings = append(r.Warnings, msg)
}

// Infof records and logs an informational note
func (r *Result) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	util.DebugLog("%s", msg)
	r.Info = append(r.Info, msg)
}

// AddError records an unexpected failure at a phase boundary
func (r *Result) AddError(context string, err error) {
	r.Errorf("%s: %v", context, err)
}

// Merge appends other's entries without logging them again
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Info = append(r.Info, other.Info...)
}

// Counts returns the number of errors, warnings and info entries
func (r *Result) Counts() (errs, warnings, info int) {
	return len(r.Errors), len(r.Warnings), len(r.Info)
}
