// Package artifact defines the on-disk form of an encrypted configuration.
//
// Layout (big endian):
//
//	magic    "ENVSEAL\x00"  8 bytes
//	version  uint16
//	iters    uint32         PBKDF2 iterations
//	saltLen  uint16
//	salt     saltLen bytes
//	sealed   nonce || ciphertext || GCM tag
//
// Everything load needs besides the credential is in the header. The header
// is passed as additional data to the cipher, so it cannot be edited without
// failing authentication.
package artifact
