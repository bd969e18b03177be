package service

import "time"

// Store key layout shared by every KeyDesk process.
const (
	setValid  = "keys:valid"
	setIssued = "keys:issued"
	setUsed   = "keys:used"

	usageLogKey = "keys:usage:log"

	keyRecordPrefix = "key:record:"
	keyUsagePrefix  = "key:info:"
	claimFlagPrefix = "recipient:claimed:"
	historyPrefix   = "recipient:keys:"
	ticketPrefix    = "ticket:"
	dedupPrefix     = "cmd:lock:"
)

// Defaults.
const (
	DefaultMaxPopAttempts = 50
	DefaultUsageTTL       = 90 * 24 * time.Hour
	DefaultTicketTTL      = 24 * time.Hour
	DefaultAutoCloseDelay = 10 * time.Minute
	DefaultDedupTTL       = 10 * time.Second

	// maxCASRetries bounds read-modify-write loops on one record.
	maxCASRetries = 16
)

func keyRecordKey(id string) string { return keyRecordPrefix + id }

func keyUsageKey(id string) string { return keyUsagePrefix + id }

func claimFlagKey(recipient string) string { return claimFlagPrefix + recipient }

func historyKey(recipient string) string { return historyPrefix + recipient }

func ticketKey(channel string) string { return ticketPrefix + channel }

func dedupKey(invocation string) string { return dedupPrefix + invocation }
