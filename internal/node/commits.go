package node

import (
	"context"
	"errors"
	"sync"

	"github.com/echenim/Bedrock/hybrid/internal/consensus"
	"github.com/echenim/Bedrock/hybrid/internal/telemetry"
	"go.uber.org/zap"
)

// defaultRecentCommits bounds the certificates kept by CommitWatcher.
const defaultRecentCommits = 64

// CommitWatcher follows the engine's commit feed. It records the share of
// power behind each commit and keeps the most recent certificates.
type CommitWatcher struct {
	commits <-chan consensus.CommitEvent
	metrics *telemetry.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	recent []*consensus.CommitCertificate
	limit  int
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommitWatcher creates a watcher over commits keeping up to limit
// certificates. A non-positive limit uses the default.
func NewCommitWatcher(commits <-chan consensus.CommitEvent, limit int, metrics *telemetry.Metrics, logger *zap.Logger) *CommitWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	if limit <= 0 {
		limit = defaultRecentCommits
	}
	return &CommitWatcher{
		commits: commits,
		metrics: metrics,
		logger:  logger.Named("commits"),
		limit:   limit,
	}
}

// Start consumes the feed until Stop.
func (w *CommitWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return errors.New("node: commit watcher already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-w.commits:
				w.record(evt)
			}
		}
	}()
	return nil
}

// Stop ends the loop and waits for it to exit.
func (w *CommitWatcher) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	return nil
}

func (w *CommitWatcher) Name() string { return "commits" }

func (w *CommitWatcher) record(evt consensus.CommitEvent) {
	cert := evt.Certificate
	if cert == nil {
		return
	}
	if cert.TotalPower > 0 {
		w.metrics.CommitPowerRatio.Set(cert.Power / cert.TotalPower)
	}
	if evt.Proposal == nil {
		w.logger.Warn("commit certificate without a local body",
			zap.Uint64("height", evt.Height),
			zap.String("id", evt.ProposalID.Short()),
		)
	}

	w.mu.Lock()
	w.recent = append(w.recent, cert)
	if len(w.recent) > w.limit {
		w.recent = w.recent[len(w.recent)-w.limit:]
	}
	w.mu.Unlock()
}

// Recent returns the retained certificates, oldest first.
func (w *CommitWatcher) Recent() []*consensus.CommitCertificate {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*consensus.CommitCertificate, len(w.recent))
	copy(out, w.recent)
	return out
}
