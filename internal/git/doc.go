// Package git checks repository hygiene around an encrypted configuration.
//
// Checks performed:
//   - Whether the encrypted artifact is tracked by git (it should be)
//   - Whether plaintext files (.env, .env.key, exports) are tracked (they must not be)
//   - Whether those plaintext files are covered by .gitignore
package git
