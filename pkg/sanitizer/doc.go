// Package sanitizer normalizes free-text and identifier input before it is
// validated and stored.
//
// All functions are idempotent and never fail: invalid input collapses to an
// empty string or is dropped from a slice.
package sanitizer
