// Package core implements the encrypted configuration store.
//
// The store functions (Initialize, Load, Persist, ChangePassword,
// RegenerateKeyMaterial, ExportPlain, ImportPlain) work on in-memory
// values only and never touch the filesystem. Vault binds them to a
// project directory:
//   - Init/Import: seal a plaintext file into a new artifact
//   - Open: unlock with a password or key file, edit, Save under the same salt
//   - ChangePassword: re-seal under a fresh salt in a single write
//   - RegenerateKey: write a key file matching the current salt
//   - Export, Diff, Edit, Merge: plaintext interchange and reconciliation
//
// A wrong password, a wrong key file and a damaged artifact all surface
// as ErrAuthFailed.
package core
