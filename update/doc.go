// Package update drives the device's firmware-update app: writing flash
// blocks, changing the update password, enabling a newly written slot,
// and the A/B retry policy that ties block writes together into a slot
// update.
package update
