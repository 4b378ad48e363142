package eligibility

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"outbound-crm/internal/domain"

	"golang.org/x/sync/errgroup"
)

// ErrSequenceConsumed is yielded when a ListEligible sequence is ranged over twice.
var ErrSequenceConsumed = errors.New("eligibility: candidate sequence already consumed")

// ListEligible yields up to limit callable pairs, best first.
//
// The store pre-filters and orders candidates; each page is then re-checked with
// the same evaluate path as IsEligible, in parallel, and emitted in store order.
// limit <= 0 means the configured default; values above MaxBulkLimit are capped.
// The sequence is lazy and may be ranged over once. The first error ends it.
func (e *Engine) ListEligible(ctx context.Context, limit int) iter.Seq2[domain.Candidate, error] {
	switch {
	case limit <= 0:
		limit = e.bulkLimit
	case limit > MaxBulkLimit:
		limit = MaxBulkLimit
	}

	var used atomic.Bool
	return func(yield func(domain.Candidate, error) bool) {
		if used.Swap(true) {
			yield(domain.Candidate{}, ErrSequenceConsumed)
			return
		}

		now := e.now()
		pageSize := limit
		emitted, offset := 0, 0
		for emitted < limit {
			page, err := e.store.ListCandidates(ctx, now, pageSize, offset)
			if err != nil {
				yield(domain.Candidate{}, err)
				return
			}
			offset += len(page)

			decisions, err := e.evaluatePage(ctx, page, now)
			if err != nil {
				yield(domain.Candidate{}, err)
				return
			}
			for i, c := range page {
				if !decisions[i].Eligible {
					continue
				}
				if !yield(c, nil) {
					return
				}
				emitted++
				if emitted >= limit {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}

func (e *Engine) evaluatePage(ctx context.Context, page []domain.Candidate, now time.Time) ([]Decision, error) {
	out := make([]Decision, len(page))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range page {
		g.Go(func() error {
			c := page[i]
			d, err := e.evaluate(gctx, subject{project: c.Project, contact: &c.Contact, link: &c.Link}, now)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
