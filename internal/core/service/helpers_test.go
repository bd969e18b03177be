package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/keydesk/internal/storage"
	"github.com/yndnr/keydesk/internal/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingCourier records deliveries and fails while fail is set.
type recordingCourier struct {
	mu        sync.Mutex
	fail      error
	delivered map[string][]string // recipient -> keys
}

func newRecordingCourier() *recordingCourier {
	return &recordingCourier{delivered: make(map[string][]string)}
}

func (c *recordingCourier) Deliver(ctx context.Context, recipient Recipient, keyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.delivered[recipient.ID] = append(c.delivered[recipient.ID], keyID)
	return nil
}

func (c *recordingCourier) setFail(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func (c *recordingCourier) keys(recipient string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.delivered[recipient]...)
}

func (c *recordingCourier) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ks := range c.delivered {
		n += len(ks)
	}
	return n
}

// fakeGateway serves channel activity from a map.
type fakeGateway struct {
	mu        sync.Mutex
	messages  map[string]int
	checkErr  error
	deleteErr error
	notices   map[string][]string
	deleted   map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		messages: make(map[string]int),
		notices:  make(map[string][]string),
		deleted:  make(map[string]bool),
	}
}

func (g *fakeGateway) HasParticipantMessages(ctx context.Context, channelID string, since time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkErr != nil {
		return false, g.checkErr
	}
	return g.messages[channelID] > 0, nil
}

func (g *fakeGateway) PostNotice(ctx context.Context, channelID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices[channelID] = append(g.notices[channelID], text)
	return nil
}

func (g *fakeGateway) DeleteChannel(ctx context.Context, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deleted[channelID] = true
	return nil
}

func (g *fakeGateway) post(channelID string) {
	g.mu.Lock()
	g.messages[channelID]++
	g.mu.Unlock()
}

func (g *fakeGateway) wasDeleted(channelID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deleted[channelID]
}

func (g *fakeGateway) noticeCount(channelID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.notices[channelID])
}

var errUnreachable = errors.New("connection refused")

// failingStore fails every call with errUnreachable.
type failingStore struct {
	storage.Store
}

func (failingStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return false, errUnreachable
}

// casGateStore fails CompareAndSwap while closed is set, leaving the other
// operations intact.
type casGateStore struct {
	*memory.Store
	closed atomic.Bool
}

func (s *casGateStore) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, errUnreachable
	}
	return s.Store.CompareAndSwap(ctx, key, old, next, ttl)
}

func newTestPool(courier Courier) (*KeyPool, *memory.Store) {
	store := memory.New()
	return NewKeyPool(store, courier, DefaultKeyPoolConfig(), discardLogger(), nil), store
}

func newTestStore() *memory.Store {
	return memory.New()
}
