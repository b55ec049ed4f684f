// Package share encrypts plaintext exports to age recipients, so a copy of
// the configuration can be handed to a teammate without sharing the
// password. Output is ASCII armored.
package share
