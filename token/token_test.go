package token

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/civitas-vote/ballotauth/crypto"
	"github.com/civitas-vote/ballotauth/cryptopool"
	"github.com/civitas-vote/ballotauth/election"
	"github.com/civitas-vote/ballotauth/store"
)

func newTestAuthority(t *testing.T) (*Authority, *election.Registry, *store.Store, context.Context) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open("file:" + filepath.Join(dir, "t.db") + "?_foreign_keys=on")
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = st.Close() })

	pool := cryptopool.New(2)
	ctx := context.Background()
	qt.Assert(t, pool.Start(ctx), qt.IsNil)
	t.Cleanup(func() { _ = pool.Stop() })

	reg := election.New(st, pool)
	return New(st, reg, pool), reg, st, ctx
}

func TestRequestTokenSignsAndPersists(t *testing.T) {
	c := qt.New(t)
	auth, reg, st, ctx := newTestAuthority(t)
	now := time.Now().UTC()

	e, _, err := reg.CreateElection(ctx, election.Meta{Title: "E", StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
		[]election.OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	voter, err := st.Q().CreateUser(ctx, "voter", "hash", false)
	c.Assert(err, qt.IsNil)

	tok, err := auth.RequestToken(ctx, voter.ID, e.ID, "abcd1234")
	c.Assert(err, qt.IsNil)
	c.Assert(tok.Signed(), qt.IsTrue)

	ok := crypto.VerifyBlindSignature("abcd1234", *tok.SignedBlob, mustPub(c, e.SigningKey))
	c.Assert(ok, qt.IsTrue)
}

func mustPub(c *qt.C, priv string) string {
	pub, err := crypto.PublicKeyFromPrivate(priv)
	c.Assert(err, qt.IsNil)
	return pub
}

func TestRequestTokenRejectsDuplicate(t *testing.T) {
	c := qt.New(t)
	auth, reg, st, ctx := newTestAuthority(t)
	now := time.Now().UTC()

	e, _, err := reg.CreateElection(ctx, election.Meta{Title: "E", StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
		[]election.OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	voter, err := st.Q().CreateUser(ctx, "voter", "hash", false)
	c.Assert(err, qt.IsNil)

	_, err = auth.RequestToken(ctx, voter.ID, e.ID, "aaaa")
	c.Assert(err, qt.IsNil)
	_, err = auth.RequestToken(ctx, voter.ID, e.ID, "bbbb")
	c.Assert(err, qt.ErrorMatches, ".*duplicate_token.*")
}

func TestRequestTokenRejectsClosedElection(t *testing.T) {
	c := qt.New(t)
	auth, reg, st, ctx := newTestAuthority(t)
	now := time.Now().UTC()

	e, _, err := reg.CreateElection(ctx, election.Meta{Title: "E", StartAt: now.Add(-2 * time.Hour), EndAt: now.Add(-time.Hour)},
		[]election.OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	voter, err := st.Q().CreateUser(ctx, "voter", "hash", false)
	c.Assert(err, qt.IsNil)

	_, err = auth.RequestToken(ctx, voter.ID, e.ID, "aaaa")
	c.Assert(err, qt.ErrorMatches, ".*closed.*")
}

// TestConcurrentRequestTokenOnlyOneSucceeds fires N goroutines at
// Authority.RequestToken for the same (voter_id, election_id) pair,
// releasing them together. The Authority's per-pair lock runs them one at
// a time; every insert after the first is rejected by the store's unique
// constraint (blind_tokens(voter_id, election_id), spec §5). Exactly one
// call must ever come back signed.
func TestConcurrentRequestTokenOnlyOneSucceeds(t *testing.T) {
	c := qt.New(t)
	auth, reg, st, ctx := newTestAuthority(t)
	now := time.Now().UTC()

	e, _, err := reg.CreateElection(ctx, election.Meta{Title: "E", StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
		[]election.OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	voter, err := st.Q().CreateUser(ctx, "voter", "hash", false)
	c.Assert(err, qt.IsNil)

	const attempts = 8
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			_, errs[i] = auth.RequestToken(ctx, voter.ID, e.ID, "b11d0ed0")
		}(i)
	}
	start.Done()
	wg.Wait()

	successes, failures := 0, 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		failures++
		c.Assert(err, qt.ErrorMatches, ".*duplicate_token.*")
	}
	c.Assert(successes, qt.Equals, 1, qt.Commentf("exactly one concurrent token request must win the race"))
	c.Assert(failures, qt.Equals, attempts-1)
}

func TestMarkUsedIsNotIdempotent(t *testing.T) {
	c := qt.New(t)
	auth, reg, st, ctx := newTestAuthority(t)
	now := time.Now().UTC()

	e, _, err := reg.CreateElection(ctx, election.Meta{Title: "E", StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
		[]election.OptionInput{{Text: "A", Order: 1}, {Text: "B", Order: 2}}, "")
	c.Assert(err, qt.IsNil)
	voter, err := st.Q().CreateUser(ctx, "voter", "hash", false)
	c.Assert(err, qt.IsNil)
	tok, err := auth.RequestToken(ctx, voter.ID, e.ID, "aaaa")
	c.Assert(err, qt.IsNil)

	c.Assert(auth.MarkUsed(ctx, tok.ID), qt.IsNil)
	err = auth.MarkUsed(ctx, tok.ID)
	c.Assert(err, qt.ErrorMatches, ".*token_spent.*")
}
