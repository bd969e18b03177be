// Package keygen generates redeemable access keys.
//
// Key Format:
//
//   - Optional prefix, copied verbatim
//   - Groups of characters joined by '-', e.g. 7KQ2M-XW9TD-HB4RN-PC3ZF
//   - Characters from a 32-symbol alphabet without 0, O, 1 and I
//
// Security:
//
//   - Uses crypto/rand for CSPRNG
//   - Each character carries 5 bits; the default format carries 100
package keygen
