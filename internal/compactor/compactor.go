// Package compactor folds the oldest chat turns into a running summary once
// the history grows past a threshold.
package compactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/suPer8Hu/haru-bank/internal/ai"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"go.uber.org/zap"
)

const promptHeader = "Summarize the following banking conversation key points into 2 sentences. Preserve numbers/amounts:\n"

var ErrBusy = errors.New("compactor: summarization already running")

type ProviderFunc func(ctx context.Context) (ai.Provider, error)

type Config struct {
	Threshold int           // summarize when the history is longer than this
	Count     int           // number of oldest turns folded per run
	Timeout   time.Duration // per run; zero means none
}

type Compactor struct {
	store      *bank.Store
	provider   ProviderFunc
	invalidate func()
	cfg        Config
	log        *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// New builds a compactor. invalidate is called after a successful prune so
// the next text exchange is seeded from the new summary.
func New(store *bank.Store, provider ProviderFunc, invalidate func(), cfg Config, log *zap.Logger) *Compactor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 10
	}
	if cfg.Count <= 0 {
		cfg.Count = 6
	}
	if invalidate == nil {
		invalidate = func() {}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Compactor{store: store, provider: provider, invalidate: invalidate, cfg: cfg, log: log}
}

func (c *Compactor) Running() bool { return c.running.Load() }

// MaybeRun starts a background run when st's history is over the threshold
// and no run is in flight. It reports whether a run was started.
func (c *Compactor) MaybeRun(st bank.State) bool {
	if len(st.ChatHistory) <= c.cfg.Threshold {
		return false
	}
	if !c.running.CompareAndSwap(false, true) {
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)

		ctx := context.Background()
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
		if err := c.run(ctx); err != nil {
			c.log.Warn("summarization failed", zap.Error(err))
		}
	}()
	return true
}

// Run summarizes synchronously. It returns ErrBusy if a run is in flight.
func (c *Compactor) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.running.Store(false)
	return c.run(ctx)
}

// Wait blocks until background runs have finished.
func (c *Compactor) Wait() { c.wg.Wait() }

func (c *Compactor) run(ctx context.Context) error {
	st := c.store.Snapshot()
	if len(st.ChatHistory) <= c.cfg.Threshold {
		return nil
	}
	batch := st.ChatHistory[:min(c.cfg.Count, len(st.ChatHistory))]

	p, err := c.provider(ctx)
	if err != nil {
		return err
	}
	summary, err := p.Generate(ctx, Prompt(batch))
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return errors.New("empty summary")
	}

	through := batch[len(batch)-1].ID
	c.store.Dispatch(
		bank.SetSummary{Summary: summary},
		bank.PruneHistory{ThroughID: through},
	)
	c.invalidate()
	c.log.Info("history summarized", zap.Int("turns", len(batch)), zap.String("through", through))
	return nil
}

// Prompt renders the summarization request for turns.
func Prompt(turns []bank.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, string(t.Role)+": "+t.Text)
	}
	return promptHeader + strings.Join(lines, "\n")
}
