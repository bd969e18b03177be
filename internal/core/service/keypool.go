package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/internal/telemetry/metric"
)

// errStaleCandidate marks a popped pool member whose record is not valid.
var errStaleCandidate = errors.New("stale pool candidate")

// KeyPoolConfig tunes the key pool.
type KeyPoolConfig struct {
	// MaxPopAttempts bounds how many pool members one issuance may pop
	// while skipping stale entries.
	MaxPopAttempts int

	// UsageTTL is the lifetime of the detailed usage record written on
	// redemption. Zero keeps it until purged.
	UsageTTL time.Duration
}

// DefaultKeyPoolConfig returns the default configuration.
func DefaultKeyPoolConfig() KeyPoolConfig {
	return KeyPoolConfig{
		MaxPopAttempts: DefaultMaxPopAttempts,
		UsageTTL:       DefaultUsageTTL,
	}
}

// KeyPool hands out redeemable keys so each key reaches at most one
// recipient.
//
// The key record at key:record:<id> is authoritative for a key's state.
// The keys:valid, keys:issued and keys:used sets are indexes over it.
// Multi-key sequences are not atomic; delivery failures are compensated.
type KeyPool struct {
	store   storage.Store
	courier Courier
	cfg     KeyPoolConfig
	metrics *metric.Registry
	logger  *slog.Logger
	now     func() time.Time
}

// NewKeyPool creates a KeyPool. metrics may be nil.
func NewKeyPool(store storage.Store, courier Courier, cfg KeyPoolConfig, logger *slog.Logger, metrics *metric.Registry) *KeyPool {
	if cfg.MaxPopAttempts <= 0 {
		cfg.MaxPopAttempts = DefaultMaxPopAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyPool{
		store:   store,
		courier: courier,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "keypool"),
		now:     time.Now,
	}
}

// ============================================================================
// Record access
// ============================================================================

// loadKey returns the record and its raw encoding, or nil when absent.
func (p *KeyPool) loadKey(ctx context.Context, id string) (*domain.Key, []byte, error) {
	raw, err := p.store.Get(ctx, keyRecordKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	k, err := domain.UnmarshalKey(raw)
	if err != nil {
		return nil, nil, err
	}
	return k, raw, nil
}

// mutateKey applies fn to the current record with compare-and-swap,
// re-reading on conflict. fn receives a copy (nil if absent) and returns
// the record to write, or nil to leave it unchanged.
func (p *KeyPool) mutateKey(ctx context.Context, id string, fn func(k *domain.Key) (*domain.Key, error)) (*domain.Key, error) {
	for i := 0; i < maxCASRetries; i++ {
		cur, raw, err := p.loadKey(ctx, id)
		if err != nil {
			return nil, err
		}

		next, err := fn(cur.Clone())
		if err != nil {
			return nil, err
		}
		if next == nil {
			return cur, nil
		}

		next.Touch()
		if err := next.Validate(); err != nil {
			return nil, err
		}
		data, err := next.Marshal()
		if err != nil {
			return nil, domain.ErrInternal.WithCause(err)
		}

		ok, err := p.store.CompareAndSwap(ctx, keyRecordKey(id), raw, data, 0)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
	}
	return nil, domain.ErrKeyConflict.WithDetails(id)
}

func (p *KeyPool) loadUsage(ctx context.Context, id string) (*domain.UsageRecord, error) {
	raw, err := p.store.Get(ctx, keyUsageKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u domain.UsageRecord
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, domain.ErrInternal.WithDetails("decode usage record").WithCause(err)
	}
	return &u, nil
}

func normalizeKey(keyID string) (string, error) {
	id := domain.NormalizeKeyID(keyID)
	if err := domain.ValidateKeyID(id); err != nil {
		return "", err
	}
	return id, nil
}

// ============================================================================
// Issuance
// ============================================================================

// IssueRandom hands one pool key to a recipient who has never claimed one.
//
// The recipient's claim flag is taken first with set-if-not-exists, so of
// several concurrent calls for one recipient at most one proceeds.
func (p *KeyPool) IssueRandom(ctx context.Context, recipient Recipient) (*domain.Key, error) {
	if err := domain.ValidateRecipientID(recipient.ID); err != nil {
		return nil, err
	}

	ok, err := p.store.SetNX(ctx, claimFlagKey(recipient.ID), []byte("1"), 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		p.countFailure("already_claimed")
		return nil, domain.ErrAlreadyClaimed
	}

	owner := domain.OwnerRecord{
		RecipientID: recipient.ID,
		DisplayName: recipient.DisplayName,
		IssuedAt:    p.now().UnixMilli(),
		Method:      domain.IssueSelfService,
	}
	return p.issue(ctx, recipient, owner, true)
}

// IssueTo hands one pool key to a recipient on an administrator's behalf.
// There is no per-recipient limit.
func (p *KeyPool) IssueTo(ctx context.Context, recipient Recipient, issuer string) (*domain.Key, error) {
	if err := domain.ValidateRecipientID(recipient.ID); err != nil {
		return nil, err
	}
	if err := domain.ValidateRecipientID(issuer); err != nil {
		return nil, domain.ErrMissingArgument.WithDetails("issuer is required")
	}

	owner := domain.OwnerRecord{
		RecipientID: recipient.ID,
		DisplayName: recipient.DisplayName,
		IssuedAt:    p.now().UnixMilli(),
		Method:      domain.IssueAdminGrant,
		IssuedBy:    issuer,
	}
	return p.issue(ctx, recipient, owner, false)
}

func (p *KeyPool) issue(ctx context.Context, recipient Recipient, owner domain.OwnerRecord, flagHeld bool) (*domain.Key, error) {
	key, err := p.popCandidate(ctx, owner)
	if err != nil {
		if flagHeld {
			p.clearFlag(context.WithoutCancel(ctx), recipient.ID)
		}
		if errors.Is(err, domain.ErrNotAvailable) {
			p.countFailure("pool_empty")
		} else {
			p.countFailure("store")
		}
		return nil, err
	}

	if _, err := p.store.SAdd(ctx, setIssued, key.ID); err != nil {
		p.compensate(ctx, key.ID, recipient.ID, flagHeld)
		p.countFailure("store")
		return nil, err
	}

	if err := p.courier.Deliver(ctx, recipient, key.ID); err != nil {
		p.logger.WarnContext(ctx, "key delivery failed, rolling back",
			"key", key.ID,
			"recipient", recipient.ID,
			"error", err)
		p.compensate(ctx, key.ID, recipient.ID, flagHeld)
		p.countFailure("delivery")
		return nil, domain.ErrDeliveryFailure.WithDetails(recipient.ID).WithCause(err)
	}

	if _, err := p.store.LPush(ctx, historyKey(recipient.ID), key.ID); err != nil {
		p.logger.WarnContext(ctx, "recipient history not updated", "key", key.ID, "recipient", recipient.ID, "error", err)
	}

	if p.metrics != nil {
		p.metrics.KeysIssued.WithLabelValues(string(owner.Method)).Inc()
	}
	p.logger.InfoContext(ctx, "key issued",
		"key", key.ID,
		"recipient", recipient.ID,
		"method", owner.Method)

	return key, nil
}

// popCandidate pops pool members until one whose record is valid is found,
// and moves that record to issued.
func (p *KeyPool) popCandidate(ctx context.Context, owner domain.OwnerRecord) (*domain.Key, error) {
	for i := 0; i < p.cfg.MaxPopAttempts; i++ {
		id, err := p.store.SPop(ctx, setValid)
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, domain.ErrNotAvailable
		}
		if err != nil {
			return nil, err
		}

		id = domain.NormalizeKeyID(id)
		if domain.ValidateKeyID(id) != nil {
			p.discardStale(id, "malformed")
			continue
		}

		var previous *domain.OwnerRecord
		key, err := p.mutateKey(ctx, id, func(k *domain.Key) (*domain.Key, error) {
			previous = nil
			if k == nil {
				k = domain.NewKey(id)
			}
			switch k.State {
			case domain.KeyValid:
			case domain.KeyIssued:
				// An issued record back in the pool but missing from the
				// issued index was left by an interrupted rollback.
				tracked, err := p.store.SIsMember(ctx, setIssued, id)
				if err != nil {
					return nil, err
				}
				if tracked {
					return nil, fmt.Errorf("%w: state %s", errStaleCandidate, k.State)
				}
				previous = k.Owner
			default:
				return nil, fmt.Errorf("%w: state %s", errStaleCandidate, k.State)
			}
			o := owner
			k.State = domain.KeyIssued
			k.Owner = &o
			return k, nil
		})
		if errors.Is(err, errStaleCandidate) {
			p.discardStale(id, err.Error())
			continue
		}
		if err != nil {
			// The record is unchanged; put the member back.
			if _, addErr := p.store.SAdd(context.WithoutCancel(ctx), setValid, id); addErr != nil {
				p.logger.ErrorContext(ctx, "failed to return key to pool", "key", id, "error", addErr)
			}
			return nil, err
		}
		if previous != nil {
			p.logger.WarnContext(ctx, "reclaimed key from interrupted rollback",
				"key", id,
				"previous_recipient", previous.RecipientID)
		}
		return key, nil
	}

	p.logger.WarnContext(ctx, "pool pop attempts exhausted", "attempts", p.cfg.MaxPopAttempts)
	return nil, domain.ErrNotAvailable.WithDetails("no valid key within pop attempt limit")
}

func (p *KeyPool) discardStale(id, reason string) {
	p.logger.Warn("discarding stale pool entry", "key", id, "reason", reason)
	if p.metrics != nil {
		p.metrics.StaleCandidates.Inc()
	}
}

// compensate undoes a partially completed issuance: issued index, pool
// membership, record back to valid, then the claim flag. Each step runs
// even if an earlier one failed. Once the key is back in the pool an
// unfinished record rollback is repaired by popCandidate.
func (p *KeyPool) compensate(ctx context.Context, keyID, recipientID string, clearFlag bool) {
	ctx = context.WithoutCancel(ctx)

	if _, err := p.store.SRem(ctx, setIssued, keyID); err != nil {
		p.logger.ErrorContext(ctx, "compensation: issued index cleanup failed", "key", keyID, "error", err)
	}
	if _, err := p.store.SAdd(ctx, setValid, keyID); err != nil {
		p.logger.ErrorContext(ctx, "compensation: return to pool failed", "key", keyID, "error", err)
	}
	_, err := p.mutateKey(ctx, keyID, func(k *domain.Key) (*domain.Key, error) {
		if k == nil || k.State != domain.KeyIssued || k.Owner == nil || k.Owner.RecipientID != recipientID {
			return nil, nil
		}
		k.State = domain.KeyValid
		k.Owner = nil
		return k, nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "compensation: record rollback failed", "key", keyID, "error", err)
	}
	if clearFlag {
		p.clearFlag(ctx, recipientID)
	}

	if p.metrics != nil {
		p.metrics.Compensations.Inc()
	}
}

func (p *KeyPool) clearFlag(ctx context.Context, recipientID string) {
	if err := p.store.Delete(ctx, claimFlagKey(recipientID)); err != nil {
		p.logger.ErrorContext(ctx, "failed to clear claim flag", "recipient", recipientID, "error", err)
	}
}

func (p *KeyPool) countFailure(reason string) {
	if p.metrics != nil {
		p.metrics.IssueFailures.WithLabelValues(reason).Inc()
	}
}

// ============================================================================
// Redemption and administration
// ============================================================================

// MarkUsed records a redemption. Issued keys and valid, never-issued keys
// both become used. Marking an already used key again succeeds without
// changing anything. usage.RecipientID is stored as given; empty means the
// redeemer is unknown, whoever the key was issued to.
func (p *KeyPool) MarkUsed(ctx context.Context, keyID string, usage domain.UsageRecord) error {
	_, err := p.markUsed(ctx, keyID, usage)
	return err
}

// Redeem is MarkUsed for end users: of several redemptions of one key only
// the first succeeds, later ones get ErrKeyAlreadyUsed.
func (p *KeyPool) Redeem(ctx context.Context, keyID string, usage domain.UsageRecord) error {
	already, err := p.markUsed(ctx, keyID, usage)
	if err != nil {
		return err
	}
	if already {
		return domain.ErrKeyAlreadyUsed.WithDetails(domain.MaskKey(domain.NormalizeKeyID(keyID)))
	}
	return nil
}

func (p *KeyPool) markUsed(ctx context.Context, keyID string, usage domain.UsageRecord) (bool, error) {
	id, err := normalizeKey(keyID)
	if err != nil {
		return false, err
	}
	if usage.UsedAt == 0 {
		usage.UsedAt = p.now().UnixMilli()
	}
	if usage.RecipientID != "" {
		if err := domain.ValidateRecipientID(usage.RecipientID); err != nil {
			return false, err
		}
	}
	usage.ClientDescriptor = domain.TruncateUTF8(usage.ClientDescriptor, domain.MaxClientDescLength)
	usage.OriginAddr = domain.TruncateUTF8(usage.OriginAddr, domain.MaxOriginAddrLength)

	already := false
	_, err = p.mutateKey(ctx, id, func(k *domain.Key) (*domain.Key, error) {
		already = false
		if k == nil {
			known, err := p.indexed(ctx, id)
			if err != nil {
				return nil, err
			}
			if !known {
				return nil, domain.ErrKeyNotFound.WithDetails(domain.MaskKey(id))
			}
			k = domain.NewKey(id)
		}
		if k.IsUsed() {
			already = true
			return nil, nil
		}
		k.State = domain.KeyUsed
		k.Usage = &domain.UsageRecord{UsedAt: usage.UsedAt, RecipientID: usage.RecipientID}
		return k, nil
	})
	if err != nil {
		return false, err
	}
	if already {
		return true, nil
	}

	// The record is authoritative from here on; index and log upkeep
	// failures are logged and left for stale-entry handling.
	if data, err := json.Marshal(usage); err == nil {
		if err := p.store.Set(ctx, keyUsageKey(id), data, p.cfg.UsageTTL); err != nil {
			p.logger.WarnContext(ctx, "usage record not written", "key", id, "error", err)
		}
	}
	if _, err := p.store.SRem(ctx, setValid, id); err != nil {
		p.logger.WarnContext(ctx, "pool index cleanup failed", "key", id, "error", err)
	}
	if _, err := p.store.SRem(ctx, setIssued, id); err != nil {
		p.logger.WarnContext(ctx, "issued index cleanup failed", "key", id, "error", err)
	}
	if _, err := p.store.SAdd(ctx, setUsed, id); err != nil {
		p.logger.WarnContext(ctx, "used index not updated", "key", id, "error", err)
	}
	p.appendUsageLog(ctx, id, &usage)

	if p.metrics != nil {
		p.metrics.KeysRedeemed.Inc()
	}
	p.logger.InfoContext(ctx, "key redeemed", "key", id, "origin", usage.OriginAddr)
	return false, nil
}

func (p *KeyPool) indexed(ctx context.Context, id string) (bool, error) {
	for _, set := range []string{setValid, setIssued} {
		ok, err := p.store.SIsMember(ctx, set, id)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (p *KeyPool) appendUsageLog(ctx context.Context, id string, usage *domain.UsageRecord) {
	entry, err := domain.NewUsageLogEntry(id, usage)
	if err != nil {
		p.logger.WarnContext(ctx, "usage log entry not built", "error", err)
		return
	}
	data, err := entry.Marshal()
	if err != nil {
		return
	}
	if _, err := p.store.LPush(ctx, usageLogKey, string(data)); err != nil {
		p.logger.WarnContext(ctx, "usage log not updated", "error", err)
		return
	}
	if err := p.store.LTrim(ctx, usageLogKey, 0, domain.UsageLogLimit-1); err != nil {
		p.logger.WarnContext(ctx, "usage log not trimmed", "error", err)
	}
}

// Reset returns a key to the pool whatever its state, discarding its usage
// record. The owner record is kept for auditing until the key is reissued.
func (p *KeyPool) Reset(ctx context.Context, keyID string) error {
	id, err := normalizeKey(keyID)
	if err != nil {
		return err
	}

	_, err = p.mutateKey(ctx, id, func(k *domain.Key) (*domain.Key, error) {
		if k == nil {
			return domain.NewKey(id), nil
		}
		if k.State == domain.KeyValid && k.Usage == nil {
			return nil, nil
		}
		k.State = domain.KeyValid
		k.Usage = nil
		return k, nil
	})
	if err != nil {
		return err
	}

	if err := p.store.Delete(ctx, keyUsageKey(id)); err != nil {
		return err
	}
	if _, err := p.store.SRem(ctx, setIssued, id); err != nil {
		return err
	}
	if _, err := p.store.SRem(ctx, setUsed, id); err != nil {
		return err
	}
	if _, err := p.store.SAdd(ctx, setValid, id); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "key reset", "key", id)
	return nil
}

// Add puts a key into the pool. Keys currently used are rejected until
// Reset; an issued key is returned to the pool.
func (p *KeyPool) Add(ctx context.Context, keyID string) error {
	id, err := normalizeKey(keyID)
	if err != nil {
		return err
	}

	_, err = p.mutateKey(ctx, id, func(k *domain.Key) (*domain.Key, error) {
		switch {
		case k == nil:
			return domain.NewKey(id), nil
		case k.IsUsed():
			return nil, domain.ErrKeyAlreadyUsed.WithDetails(domain.MaskKey(id))
		case k.State == domain.KeyValid:
			return nil, nil
		}
		k.State = domain.KeyValid
		return k, nil
	})
	if err != nil {
		return err
	}

	if _, err := p.store.SAdd(ctx, setValid, id); err != nil {
		return err
	}
	if _, err := p.store.SRem(ctx, setIssued, id); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "key added", "key", id)
	return nil
}

// Inspect reports a key's classification from its record and index
// membership, with precedence used > issued > valid > unknown.
func (p *KeyPool) Inspect(ctx context.Context, keyID string) (*domain.KeyStatus, error) {
	id, err := normalizeKey(keyID)
	if err != nil {
		return nil, err
	}

	rec, _, err := p.loadKey(ctx, id)
	if err != nil {
		return nil, err
	}
	inPool, err := p.store.SIsMember(ctx, setValid, id)
	if err != nil {
		return nil, err
	}
	inIssued, err := p.store.SIsMember(ctx, setIssued, id)
	if err != nil {
		return nil, err
	}

	used := rec.IsUsed()
	issued := inIssued || (rec != nil && rec.State == domain.KeyIssued)
	st := &domain.KeyStatus{
		ID:             id,
		Classification: domain.Classify(inPool, issued, used),
		InPool:         inPool,
		InIssued:       inIssued,
		Used:           used,
	}
	if rec != nil {
		st.Owner = rec.Owner
		st.Usage = rec.Usage
		if used {
			detail, err := p.loadUsage(ctx, id)
			if err != nil {
				return nil, err
			}
			if detail != nil {
				st.Usage = detail
			}
		}
	}
	return st, nil
}

// Available returns the pool size.
func (p *KeyPool) Available(ctx context.Context) (int64, error) {
	n, err := p.store.SCard(ctx, setValid)
	if err != nil {
		return 0, err
	}
	if p.metrics != nil {
		p.metrics.PoolAvailable.Set(float64(n))
	}
	return n, nil
}

// ResetRecipient clears a recipient's self-service claim flag so they may
// claim again.
func (p *KeyPool) ResetRecipient(ctx context.Context, recipientID string) error {
	if err := domain.ValidateRecipientID(recipientID); err != nil {
		return err
	}
	if err := p.store.Delete(ctx, claimFlagKey(recipientID)); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "recipient claim reset", "recipient", recipientID)
	return nil
}

// History returns the status of every key issued to a recipient, newest
// first.
func (p *KeyPool) History(ctx context.Context, recipientID string) ([]*domain.KeyStatus, error) {
	if err := domain.ValidateRecipientID(recipientID); err != nil {
		return nil, err
	}
	ids, err := p.store.LRange(ctx, historyKey(recipientID), 0, -1)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]*domain.KeyStatus, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		st, err := p.Inspect(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Backfill records after the fact that a key belongs to a recipient.
// A pooled key is moved to issued so it cannot be handed out again.
func (p *KeyPool) Backfill(ctx context.Context, recipient Recipient, keyID, issuer string) error {
	id, err := normalizeKey(keyID)
	if err != nil {
		return err
	}
	if err := domain.ValidateRecipientID(recipient.ID); err != nil {
		return err
	}

	owner := domain.OwnerRecord{
		RecipientID: recipient.ID,
		DisplayName: recipient.DisplayName,
		IssuedAt:    p.now().UnixMilli(),
		Method:      domain.IssueBackfill,
		IssuedBy:    issuer,
	}
	// Leave the pool before the record turns issued, so a concurrent pop
	// never sees an issued record outside the issued index.
	pooled, err := p.store.SRem(ctx, setValid, id)
	if err != nil {
		return err
	}
	key, err := p.mutateKey(ctx, id, func(k *domain.Key) (*domain.Key, error) {
		if k == nil {
			k = domain.NewKey(id)
		}
		if k.State == domain.KeyValid {
			k.State = domain.KeyIssued
		}
		k.Owner = &owner
		return k, nil
	})
	if err != nil {
		if pooled > 0 {
			if _, addErr := p.store.SAdd(context.WithoutCancel(ctx), setValid, id); addErr != nil {
				p.logger.ErrorContext(ctx, "failed to return key to pool", "key", id, "error", addErr)
			}
		}
		return err
	}

	if key.State == domain.KeyIssued {
		if _, err := p.store.SAdd(ctx, setIssued, id); err != nil {
			return err
		}
	}
	if _, err := p.store.LPush(ctx, historyKey(recipient.ID), id); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "owner record backfilled", "key", id, "recipient", recipient.ID, "issuer", issuer)
	return nil
}

// UsageLog returns up to limit of the most recent redemptions.
func (p *KeyPool) UsageLog(ctx context.Context, limit int) ([]*domain.UsageLogEntry, error) {
	if limit <= 0 || limit > domain.UsageLogLimit {
		limit = domain.UsageLogLimit
	}
	lines, err := p.store.LRange(ctx, usageLogKey, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.UsageLogEntry, 0, len(lines))
	for _, line := range lines {
		e, err := domain.UnmarshalUsageLogEntry([]byte(line))
		if err != nil {
			p.logger.WarnContext(ctx, "skipping malformed usage log entry", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// PurgeUsage deletes detailed usage records of keys redeemed before
// now-olderThan and returns how many were removed. Key records keep
// their state and redemption time.
func (p *KeyPool) PurgeUsage(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan < 0 {
		return 0, domain.ErrInvalidArgument.WithDetails("age must not be negative")
	}
	cutoff := p.now().Add(-olderThan).UnixMilli()

	ids, err := p.store.SMembers(ctx, setUsed)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, id := range ids {
		u, err := p.loadUsage(ctx, id)
		if err != nil {
			return purged, err
		}
		if u == nil || u.UsedAt >= cutoff {
			continue
		}
		if err := p.store.Delete(ctx, keyUsageKey(id)); err != nil {
			return purged, err
		}
		purged++
	}

	p.logger.InfoContext(ctx, "usage records purged", "scanned", len(ids), "purged", purged)
	return purged, nil
}

// ExportFilter narrows an export.
type ExportFilter struct {
	// Since keeps keys issued at or after this instant. Zero keeps all.
	Since time.Time

	// RecipientID keeps keys owned by one recipient.
	RecipientID string
}

// Export aggregates every issued or used key for the external reporting
// collaborator, oldest issuance first.
func (p *KeyPool) Export(ctx context.Context, filter ExportFilter) ([]*domain.KeyStatus, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, set := range []string{setIssued, setUsed} {
		members, err := p.store.SMembers(ctx, set)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if _, dup := seen[m]; !dup {
				seen[m] = struct{}{}
				ids = append(ids, m)
			}
		}
	}

	out := make([]*domain.KeyStatus, 0, len(ids))
	for _, id := range ids {
		st, err := p.Inspect(ctx, id)
		if err != nil {
			if domain.IsDomainError(err, domain.ErrInvalidArgument.Code) {
				continue
			}
			return nil, err
		}
		if filter.RecipientID != "" && (st.Owner == nil || st.Owner.RecipientID != filter.RecipientID) {
			continue
		}
		if !filter.Since.IsZero() && (st.Owner == nil || st.Owner.IssuedAt < filter.Since.UnixMilli()) {
			continue
		}
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool {
		return issuedAt(out[i]) < issuedAt(out[j])
	})
	return out, nil
}

func issuedAt(st *domain.KeyStatus) int64 {
	if st.Owner == nil {
		return 0
	}
	return st.Owner.IssuedAt
}
