// Package testutil provides shared test helper utilities.
package testutil

// Ptr returns a pointer to v. Handy for the optional *string refs on turns
// and metadata payloads.
func Ptr[T any](v T) *T { return &v }
