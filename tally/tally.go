// Package tally implements C6, the results aggregator: per-option ballot
// counts for an election (spec §4.6). No per-voter data is ever read here.
package tally

import (
	"context"

	"github.com/civitas-vote/ballotauth/store"
)

// Aggregator is C6.
type Aggregator struct {
	st *store.Store
}

// New constructs an Aggregator.
func New(st *store.Store) *Aggregator {
	return &Aggregator{st: st}
}

// Result is the tally of one election: per-option counts, ordered by
// option_order, plus the grand total.
type Result struct {
	Options []OptionCount
	Total   int64
}

// OptionCount is one option's share of the tally. Zero-count options
// appear with Count 0 (spec §4.6).
type OptionCount struct {
	OptionID   int64
	OptionText string
	Count      int64
}

// Tally counts ballots per option for an election, ordered by option_order,
// with zero-count options present (spec §4.6).
func (a *Aggregator) Tally(ctx context.Context, electionID int64) (*Result, error) {
	opts, err := a.st.Q().ListOptions(ctx, electionID)
	if err != nil {
		return nil, err
	}
	counts, err := a.st.Q().TallyByElection(ctx, electionID)
	if err != nil {
		return nil, err
	}

	res := &Result{Options: make([]OptionCount, 0, len(opts))}
	for _, o := range opts {
		n := counts[o.ID]
		res.Options = append(res.Options, OptionCount{OptionID: o.ID, OptionText: o.OptionText, Count: n})
		res.Total += n
	}
	return res, nil
}
