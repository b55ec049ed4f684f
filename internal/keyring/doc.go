// Package keyring remembers vault passwords in the OS keyring (macOS
// Keychain, Secret Service, Windows Credential Manager), keyed by vault ID.
package keyring
