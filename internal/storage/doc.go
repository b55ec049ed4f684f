// Package storage persists encrypted artifacts.
//
// Two backends are available:
//   - file: the artifact bytes in a single file, replaced atomically
//   - bolt: a BBolt database with a config bucket (version, timestamps,
//     vault ID) and an artifact bucket holding the current artifact
//
// Backends store opaque bytes. Nothing here parses or decrypts them.
package storage
