package election

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/civitas-vote/ballotauth/crypto"
	"github.com/civitas-vote/ballotauth/cryptopool"
	"github.com/civitas-vote/ballotauth/store"
)

func newTestRegistry(t *testing.T) (*Registry, context.Context) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open("file:" + filepath.Join(dir, "e.db") + "?_foreign_keys=on")
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = st.Close() })

	pool := cryptopool.New(2)
	ctx := context.Background()
	qt.Assert(t, pool.Start(ctx), qt.IsNil)
	t.Cleanup(func() { _ = pool.Stop() })

	return New(st, pool), ctx
}

func TestCreateElectionGeneratesKeyAndOptions(t *testing.T) {
	c := qt.New(t)
	r, ctx := newTestRegistry(t)

	now := time.Now().UTC()
	e, opts, err := r.CreateElection(ctx, Meta{
		Title:   "Board Election",
		StartAt: now.Add(-time.Hour),
		EndAt:   now.Add(time.Hour),
	}, []OptionInput{{Text: "Alice", Order: 1}, {Text: "Bob", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	c.Assert(opts, qt.HasLen, 2)
	c.Assert(e.SigningKey, qt.Not(qt.Equals), "")

	_, err = crypto.PublicKeyFromPrivate(e.SigningKey)
	c.Assert(err, qt.IsNil, qt.Commentf("generated key must be a well-formed RSA private key"))
}

func TestCreateElectionRejectsDuplicateOptionTextCaseInsensitive(t *testing.T) {
	c := qt.New(t)
	r, ctx := newTestRegistry(t)
	now := time.Now().UTC()

	_, _, err := r.CreateElection(ctx, Meta{Title: "E", StartAt: now, EndAt: now.Add(time.Hour)},
		[]OptionInput{{Text: "Yes", Order: 1}, {Text: " yes ", Order: 2}}, "")
	c.Assert(err, qt.ErrorMatches, ".*duplicate option text.*")
}

func TestCreateElectionRejectsDuplicateOrder(t *testing.T) {
	c := qt.New(t)
	r, ctx := newTestRegistry(t)
	now := time.Now().UTC()

	_, _, err := r.CreateElection(ctx, Meta{Title: "E", StartAt: now, EndAt: now.Add(time.Hour)},
		[]OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 1}}, "")
	c.Assert(err, qt.ErrorMatches, ".*duplicate option_order.*")
}

func TestIsOpenReflectsWindow(t *testing.T) {
	c := qt.New(t)
	r, ctx := newTestRegistry(t)
	now := time.Now().UTC()

	open, _, err := r.CreateElection(ctx, Meta{Title: "Open", StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
		[]OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	isOpen, err := r.IsOpen(ctx, open.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(isOpen, qt.IsTrue)

	closed, _, err := r.CreateElection(ctx, Meta{Title: "Closed", StartAt: now.Add(-2 * time.Hour), EndAt: now.Add(-time.Hour)},
		[]OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	isOpen, err = r.IsOpen(ctx, closed.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(isOpen, qt.IsFalse)
}

func TestRegenerateKeyReplacesSigningKey(t *testing.T) {
	c := qt.New(t)
	r, ctx := newTestRegistry(t)
	now := time.Now().UTC()

	e, _, err := r.CreateElection(ctx, Meta{Title: "E", StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
		[]OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	oldKey := e.SigningKey

	updated, err := r.RegenerateKey(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(updated.SigningKey, qt.Not(qt.Equals), oldKey)
}
