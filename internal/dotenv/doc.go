// Package dotenv implements the order-preserving KEY=VALUE codec used for
// both the plaintext interchange format and the payload sealed inside an
// artifact.
//
// Decode is lenient with hand-edited files (comments, blank lines, export
// prefixes, quoted values) but strict about structure: a line without a
// separator or a repeated key fails with a MalformedEntryError naming the
// line. Encode only emits what Decode reads back unchanged.
package dotenv
