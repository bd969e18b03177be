// Package backup seals store backups with a passphrase.
//
// Sealed File Format:
//
//	magic "KDBK" | version (1 byte) | cipher (1 byte) | salt (16 bytes) | sealed payload
//
// The key is derived from the passphrase with Argon2id and the header is
// authenticated as additional data, so a swapped cipher byte or salt fails
// decryption like a wrong passphrase does. Unsealed backups are the
// engine's native stream and pass through untouched.
package backup
