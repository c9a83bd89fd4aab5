// Package device opens and drives a session against a single secure
// coprocessor, layering request/reply size validation and lifecycle
// management on top of package transport's call_application state
// machine.
package device
