// Package service implements the KeyDesk components on top of a
// storage.Store.
//
// The store offers only per-key atomic primitives, so every component is
// built from set-if-not-exists, compare-and-swap and set operations:
//
//   - KeyPool: issues each key to at most one recipient and tracks
//     redemption, compensating when delivery fails
//   - TicketRegistry: support and review tickets with exclusive claims
//   - AutoCloseScheduler: closes tickets nobody wrote in
//   - DedupGuard: drops redelivered command invocations
//
// Desk bundles one instance of each behind the command surface a chat
// frontend calls. The frontend supplies the chat platform through the
// Courier and ChannelGateway interfaces.
package service
