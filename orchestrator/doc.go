// Package orchestrator runs a firmware update as a fixed sequence of
// independent actions — erase, version check, write RW, write RO, change
// password, enable, reboot — stopping at the first one that fails.
package orchestrator
