package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
)

type deskFixture struct {
	desk    *Desk
	courier *recordingCourier
	gateway *fakeGateway
	seq     int
}

func newDeskFixture(t *testing.T) *deskFixture {
	t.Helper()
	f := &deskFixture{courier: newRecordingCourier(), gateway: newFakeGateway()}
	cfg := DefaultDeskConfig()
	cfg.AutoClose.Delay = time.Hour
	f.desk = NewDesk(newTestStore(), f.courier, f.gateway, cfg, discardLogger(), nil)
	t.Cleanup(f.desk.Stop)
	return f
}

func (f *deskFixture) member(id string) Invocation {
	f.seq++
	return Invocation{ID: fmt.Sprintf("inv-%d", f.seq), ActorID: id}
}

func (f *deskFixture) admin(id string) Invocation {
	inv := f.member(id)
	inv.Admin = true
	return inv
}

func TestDesk_AdminOnly(t *testing.T) {
	ctx := context.Background()
	f := newDeskFixture(t)
	d := f.desk

	tests := []struct {
		name string
		op   func(inv Invocation) error
	}{
		{"IssueTo", func(inv Invocation) error { _, err := d.IssueTo(ctx, inv, Recipient{ID: "u"}); return err }},
		{"Inspect", func(inv Invocation) error { _, err := d.Inspect(ctx, inv, "K"); return err }},
		{"Add", func(inv Invocation) error { return d.Add(ctx, inv, "K") }},
		{"Reset", func(inv Invocation) error { return d.Reset(ctx, inv, "K") }},
		{"Claim", func(inv Invocation) error { _, err := d.Claim(ctx, inv, "ch"); return err }},
		{"Release", func(inv Invocation) error { _, err := d.Release(ctx, inv, "ch"); return err }},
		{"CloseTicket", func(inv Invocation) error { return d.CloseTicket(ctx, inv, "ch") }},
		{"Export", func(inv Invocation) error { _, err := d.Export(ctx, inv, ExportFilter{}); return err }},
		{"ResetRecipient", func(inv Invocation) error { return d.ResetRecipient(ctx, inv, "u") }},
		{"History", func(inv Invocation) error { _, err := d.History(ctx, inv, "u"); return err }},
		{"Backfill", func(inv Invocation) error { return d.Backfill(ctx, inv, Recipient{ID: "u"}, "K") }},
		{"PurgeUsage", func(inv Invocation) error { _, err := d.PurgeUsage(ctx, inv, time.Hour); return err }},
		{"UsageLog", func(inv Invocation) error { _, err := d.UsageLog(ctx, inv, 10); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(f.member("m")); !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("non-admin error = %v, want ErrUnauthorized", err)
			}
		})
	}

	// A refused call leaves nothing behind.
	if n, _ := d.Keys.Available(ctx); n != 0 {
		t.Errorf("Available() = %d after refused Add", n)
	}
}

func TestDesk_DuplicateInvocation(t *testing.T) {
	ctx := context.Background()
	f := newDeskFixture(t)
	d := f.desk

	inv := f.admin("A1")
	if err := d.Add(ctx, inv, "K1"); err != nil {
		t.Fatal(err)
	}
	if err := d.Add(ctx, inv, "K2"); !errors.Is(err, domain.ErrDuplicateInvocation) {
		t.Fatalf("redelivered Add() error = %v, want ErrDuplicateInvocation", err)
	}
	if n, _ := d.Keys.Available(ctx); n != 1 {
		t.Errorf("Available() = %d, want 1", n)
	}

	// A refused admin call does not consume the invocation ID.
	shared := f.member("m")
	if err := d.Add(ctx, shared, "K3"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatal(err)
	}
	if _, err := d.Available(ctx, shared); err != nil {
		t.Errorf("Available() with same ID error = %v", err)
	}
}

func TestDesk_KeyScenario(t *testing.T) {
	ctx := context.Background()
	f := newDeskFixture(t)
	d := f.desk

	for _, k := range []string{"K1", "K2"} {
		if err := d.Add(ctx, f.admin("A"), k); err != nil {
			t.Fatal(err)
		}
	}

	key, err := d.IssueRandom(ctx, f.member("U"))
	if err != nil {
		t.Fatalf("IssueRandom() error = %v", err)
	}
	if key.ID != "K1" && key.ID != "K2" {
		t.Fatalf("issued %s", key.ID)
	}
	if n, _ := d.Available(ctx, f.member("U")); n != 1 {
		t.Errorf("Available() = %d, want 1", n)
	}
	if _, err := d.IssueRandom(ctx, f.member("U")); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("second IssueRandom() error = %v, want ErrAlreadyClaimed", err)
	}

	if err := d.MarkUsed(ctx, f.member("web"), "K1", domain.UsageRecord{OriginAddr: "198.51.100.2"}); err != nil {
		t.Fatalf("MarkUsed(K1) error = %v", err)
	}
	if err := d.Add(ctx, f.admin("A"), "K1"); !errors.Is(err, domain.ErrKeyAlreadyUsed) {
		t.Fatalf("Add(K1) error = %v, want ErrKeyAlreadyUsed", err)
	}
	if err := d.Reset(ctx, f.admin("A"), "K1"); err != nil {
		t.Fatal(err)
	}
	if err := d.Add(ctx, f.admin("A"), "K1"); err != nil {
		t.Errorf("Add(K1) after Reset error = %v", err)
	}

	st, err := d.Inspect(ctx, f.admin("A"), "K1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Classification != domain.ClassAvailable {
		t.Errorf("K1 classification = %s, want available", st.Classification)
	}
}

func TestDesk_TicketFlow(t *testing.T) {
	ctx := context.Background()
	f := newDeskFixture(t)
	d := f.desk

	tk, err := d.OpenTicket(ctx, f.member("M"), "ch-9", domain.TicketSupport)
	if err != nil {
		t.Fatal(err)
	}
	if tk.MemberID != "M" {
		t.Errorf("MemberID = %s, want M", tk.MemberID)
	}
	if d.AutoClose.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", d.AutoClose.Pending())
	}

	if _, err := d.Claim(ctx, f.admin("A1"), "ch-9"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Claim(ctx, f.admin("A2"), "ch-9"); !errors.Is(err, domain.ErrTicketAlreadyClaimed) {
		t.Errorf("Claim(A2) error = %v", err)
	}
	if _, err := d.Release(ctx, f.admin("A2"), "ch-9"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Release(A2) error = %v", err)
	}
	if _, err := d.Release(ctx, f.admin("A1"), "ch-9"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Claim(ctx, f.admin("A2"), "ch-9"); err != nil {
		t.Errorf("Claim(A2) after release error = %v", err)
	}

	if err := d.CloseTicket(ctx, f.admin("A2"), "ch-9"); err != nil {
		t.Fatal(err)
	}
	if d.AutoClose.Pending() != 0 {
		t.Errorf("Pending() = %d after close", d.AutoClose.Pending())
	}
}

func TestDesk_Start(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	cfg := DefaultDeskConfig()
	cfg.AutoClose.Delay = time.Hour

	first := NewDesk(store, newRecordingCourier(), newFakeGateway(), cfg, discardLogger(), nil)
	if _, err := first.OpenTicket(ctx, Invocation{ID: "1", ActorID: "m"}, "ch", domain.TicketReview); err != nil {
		t.Fatal(err)
	}
	first.Stop()

	second := NewDesk(store, newRecordingCourier(), newFakeGateway(), cfg, discardLogger(), nil)
	defer second.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if second.AutoClose.Pending() != 1 {
		t.Errorf("Pending() = %d after Start, want 1", second.AutoClose.Pending())
	}
}
