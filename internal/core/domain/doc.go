// Package domain defines the core domain models for KeyDesk.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Key: a redeemable access key with a single lifecycle state
//   - Ticket: a support or review channel and its claimant
//   - UsageLogEntry: the capped redemption audit trail
//   - Errors: coded domain errors shared by every layer
//
// Each entity is persisted as one JSON record carrying a version
// number for optimistic locking.
package domain
