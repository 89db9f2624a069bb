// Package env reads raw process environment values for the few
// settings needed before the typed config is loaded, such as the log
// format the logger bootstraps with.
package env

import "os"

// Get returns the value of key, or fallback when the variable is unset
// or empty. Blank values count as unset so an empty override cannot
// wipe a default.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
