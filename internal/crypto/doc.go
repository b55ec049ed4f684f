// Package crypto provides cryptographic operations for envseal.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from password via PBKDF2
//   - 12-byte random nonce per Seal call
//   - Authenticated encryption prevents tampering
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 32-byte random salt (stored unencrypted in the artifact header)
//   - 100,000 iterations by default, never fewer
//
// Memory safety:
//   - Envelope keeps its key in a memguard locked buffer
//   - Use ClearBytes() to zero passwords and keys after use
//   - Call Envelope.Destroy() when done with encryption operations
package crypto
