// Package adaptive provides authenticated encryption with automatic
// algorithm selection.
//
// Supported Algorithms:
//
//   - AES-256-GCM: preferred where the CPU has AES instructions
//   - ChaCha20-Poly1305: used elsewhere
//
// Every ciphertext carries its random nonce as a prefix, so one Cipher may
// seal any number of messages concurrently.
//
// Usage:
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
