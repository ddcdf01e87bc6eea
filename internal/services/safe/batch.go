package safe

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheMichaelB/safe/internal/crypto"
	"github.com/TheMichaelB/safe/internal/models"
)

// Outcome is the result of one request run asynchronously.
type Outcome struct {
	Name   string
	Result *Result
	Err    error
}

// Submit runs op on its own goroutine. The channel delivers one Outcome
// and is then closed. When ctx is canceled before the operation finishes
// the outcome is dropped and the channel is closed empty; key derivation
// already under way is not interrupted.
func (s *Service) Submit(ctx context.Context, op string, req Request) <-chan Outcome {
	out := make(chan Outcome, 1)

	go func() {
		defer close(out)

		res, err := s.run(ctx, op, req)
		if ctx.Err() != nil {
			s.logger.WithFields(map[string]interface{}{
				"op":   op,
				"file": req.Name,
			}).Debug("Discarding outcome of canceled operation")
			return
		}
		out <- Outcome{Name: req.Name, Result: res, Err: err}
	}()

	return out
}

// Batch runs op for every request with at most the configured number of
// operations in flight. Outcomes are returned in request order. Once ctx
// is canceled no new requests are started and the remaining ones report
// CANCELED.
func (s *Service) Batch(ctx context.Context, op string, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	for i, req := range reqs {
		outcomes[i].Name = req.Name
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	log := s.logger.WithFields(map[string]interface{}{
		"op":      op,
		"count":   len(reqs),
		"workers": s.workers,
	})
	log.Debug("Starting batch")

schedule:
	for i, req := range reqs {
		select {
		case <-ctx.Done():
			for j := i; j < len(reqs); j++ {
				outcomes[j].Err = fail(op, reqs[j].Name, ctx.Err())
			}
			break schedule
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.run(ctx, op, req)
			outcomes[i].Result = res
			outcomes[i].Err = err
		}(i, req)
	}

	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	log.WithField("failed", failed).Info("Batch finished")

	return outcomes
}

func (s *Service) run(ctx context.Context, op string, req Request) (*Result, error) {
	switch op {
	case models.OpEncrypt:
		return s.Encrypt(ctx, req)
	case models.OpDecrypt:
		return s.Decrypt(ctx, req)
	case models.OpInspect:
		return s.Inspect(ctx, req.SourceDir, req.Name)
	default:
		return nil, fail(op, req.Name, fmt.Errorf("%w: unsupported operation %q", crypto.ErrInvalidInput, op))
	}
}
