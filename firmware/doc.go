// Package firmware models a dual-slot device firmware image: the raw
// byte-exact file layout, the flash geometry of the target chip, and the
// signed header each slot carries.
package firmware
