package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/echenim/Bedrock/hybrid/internal/config"
	"github.com/echenim/Bedrock/hybrid/internal/consensus"
	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/echenim/Bedrock/hybrid/internal/mempool"
	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/storage"
	"github.com/echenim/Bedrock/hybrid/internal/telemetry"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Admin.Enabled = false
	cfg.Telemetry.Enabled = false
	cfg.Consensus.TimeoutPropose = config.Duration{Duration: 200 * time.Millisecond}
	cfg.Consensus.TimeoutPreVote = config.Duration{Duration: 200 * time.Millisecond}
	cfg.Consensus.TimeoutPreCommit = config.Duration{Duration: 200 * time.Millisecond}
	cfg.Consensus.EarlyQuorumExit = true
	return cfg
}

func testGenesis(t *testing.T, chainID string, keys ...*crypto.PrivateKey) *config.GenesisDoc {
	t.Helper()
	gen := &config.GenesisDoc{
		ChainID:         chainID,
		GenesisTime:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ConsensusParams: config.ConsensusParams{MaxValidators: 10},
	}
	for _, k := range keys {
		gen.Validators = append(gen.Validators, config.NewGenesisValidator("v", k.Public(), 100, 0, 0))
	}
	if err := gen.Validate(); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return gen
}

func testKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	_, key, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

// waitForHeight polls the store until it holds a commit at height.
func waitForHeight(t *testing.T, store storage.Store, height uint64) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		if h, err := store.LatestHeight(); err == nil && h >= height {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("store never reached height %d", height)
}

// --- ServiceManager tests ---

func TestServiceManagerStartStop(t *testing.T) {
	sm := NewServiceManager(nil)

	svc1 := &mockService{name: "svc1"}
	svc2 := &mockService{name: "svc2"}

	sm.Add(svc1)
	sm.Add(svc2)

	ctx := context.Background()
	if err := sm.StartAll(ctx); err != nil {
		t.Fatalf("start all: %v", err)
	}

	if !svc1.started || !svc2.started {
		t.Fatal("expected both services started")
	}

	if err := sm.StopAll(); err != nil {
		t.Fatalf("stop all: %v", err)
	}

	if !svc1.stopped || !svc2.stopped {
		t.Fatal("expected both services stopped")
	}
}

func TestServiceManagerRollback(t *testing.T) {
	sm := NewServiceManager(nil)

	svc1 := &mockService{name: "svc1"}
	svc2 := &mockService{name: "svc2", failStart: true}

	sm.Add(svc1)
	sm.Add(svc2)

	err := sm.StartAll(context.Background())
	if err == nil {
		t.Fatal("expected error when svc2 fails to start")
	}

	if !svc1.stopped {
		t.Fatal("expected svc1 to be stopped during rollback")
	}
	if svc2.stopped {
		t.Fatal("svc2 never started and must not be stopped")
	}
}

func TestServiceManagerStopReverseOrder(t *testing.T) {
	sm := NewServiceManager(nil)

	order := make([]string, 0)
	for _, name := range []string{"svc1", "svc2", "svc3"} {
		name := name
		sm.Add(&mockService{name: name, onStop: func() { order = append(order, name) }})
	}

	if err := sm.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sm.StopAll(); err != nil {
		t.Fatal(err)
	}
	// A second StopAll does nothing.
	if err := sm.StopAll(); err != nil {
		t.Fatal(err)
	}

	if len(order) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(order))
	}
	if order[0] != "svc3" || order[1] != "svc2" || order[2] != "svc1" {
		t.Errorf("expected stop order [svc3, svc2, svc1], got %v", order)
	}
}

func TestServiceFunc(t *testing.T) {
	started := false
	svc := ServiceFunc{
		ServiceName: "fn",
		StartFn:     func(context.Context) error { started = true; return nil },
	}
	if err := svc.Start(context.Background()); err != nil || !started {
		t.Fatal("expected StartFn to run")
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("nil StopFn should be a no-op: %v", err)
	}
	if svc.Name() != "fn" {
		t.Fatalf("unexpected name %q", svc.Name())
	}
}

// --- Commit sink ---

func TestCommitSink(t *testing.T) {
	store := storage.NewMemoryStore()
	mp := mempool.NewMempool(config.DefaultConfig().Mempool, nil, nil)
	sink := newCommitSink(store, mp, telemetry.NopMetrics(), telemetry.NewNopLogger())

	txHash, err := mp.Submit([]byte("payload"), 1)
	if err != nil {
		t.Fatal(err)
	}
	data, err := mp.BlockData(1, 0, power.BalancedWeights)
	if err != nil {
		t.Fatal(err)
	}

	p := &types.Proposal{ID: types.Hash{1}, Height: 1, BlockData: data}
	if err := sink.SaveCommit(p); err != nil {
		t.Fatalf("save commit: %v", err)
	}
	if mp.Has(txHash) {
		t.Fatal("committed payload should leave the mempool")
	}
	if got, err := store.GetCommit(1); err != nil || got.ID != p.ID {
		t.Fatalf("commit not persisted: %v", err)
	}

	// Foreign block data is persisted even though it cannot be decoded.
	if err := sink.SaveCommit(&types.Proposal{ID: types.Hash{2}, Height: 2, BlockData: []byte("opaque")}); err != nil {
		t.Fatalf("save foreign commit: %v", err)
	}

	locked := types.Hash{9}
	r := consensus.NewConsensusRound(1, time.Unix(1_700_000_000, 0))
	r.LockedProposal = &locked
	r.TimedOut = true
	if err := sink.ArchiveRound(r.Snapshot()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	rec, err := store.GetRoundSnapshot(1, 0)
	if err != nil {
		t.Fatalf("get round: %v", err)
	}
	if rec.Step != "Propose" || !rec.TimedOut || *rec.LockedProposal != locked {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

// --- Node lifecycle tests ---

func TestNewNodeRejectsChainMismatch(t *testing.T) {
	key := testKey(t)
	if _, err := NewNode(testConfig(), key, testGenesis(t, "other-chain", key), nil); err == nil {
		t.Fatal("expected chain_id mismatch error")
	}
}

func TestNodeCreateAndStop(t *testing.T) {
	cfg := testConfig()
	key := testKey(t)

	n, err := NewNode(cfg, key, testGenesis(t, cfg.ChainID, key), nil)
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	if n.Store() == nil || n.Mempool() == nil || n.Dispatcher() == nil {
		t.Fatal("expected wired subsystems")
	}
	if n.Registry().Size() != 1 {
		t.Fatalf("expected 1 validator, got %d", n.Registry().Size())
	}

	// Stop without start should not fail, and may be repeated.
	if err := n.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := n.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestNodeCommitsBlocks(t *testing.T) {
	cfg := testConfig()
	key := testKey(t)

	n, err := NewNode(cfg, key, testGenesis(t, cfg.ChainID, key), nil)
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	txHash, err := n.Mempool().Submit([]byte("transfer"), 10)
	if err != nil {
		t.Fatal(err)
	}

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start node: %v", err)
	}
	waitForHeight(t, n.Store(), 3)

	first, err := n.Store().GetCommit(1)
	if err != nil {
		t.Fatal(err)
	}
	if first.Proposer != n.Address() {
		t.Fatal("single validator must propose every block")
	}
	_, txs, err := mempool.DecodeBlock(first.BlockData)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || mempool.TxHash(txs[0]) != txHash {
		t.Fatalf("expected the submitted tx in block 1, got %d txs", len(txs))
	}
	if n.Mempool().Has(txHash) {
		t.Fatal("committed tx should be pruned")
	}

	second, err := n.Store().GetCommit(2)
	if err != nil {
		t.Fatal(err)
	}
	if second.PreviousHash != first.ID {
		t.Fatal("height 2 does not extend height 1")
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("stop node: %v", err)
	}
}

func TestNodeTracksCommitCertificates(t *testing.T) {
	cfg := testConfig()
	key := testKey(t)

	n, err := NewNode(cfg, key, testGenesis(t, cfg.ChainID, key), nil)
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start node: %v", err)
	}
	defer n.Stop()

	deadline := time.Now().Add(20 * time.Second)
	var certs []*consensus.CommitCertificate
	for time.Now().Before(deadline) {
		if certs = n.RecentCommits(); len(certs) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(certs) < 2 {
		t.Fatalf("expected at least 2 certificates, got %d", len(certs))
	}
	first := certs[0]
	if len(first.Votes) != 1 || first.Votes[0].Voter != n.Address() {
		t.Fatal("single validator certificate must carry its own commit vote")
	}
	if first.Power != first.TotalPower {
		t.Fatalf("single validator must hold all power: %v of %v", first.Power, first.TotalPower)
	}
	if certs[1].Height <= first.Height {
		t.Fatal("certificates must be kept oldest first")
	}
}

func TestCommitWatcherKeepsLatest(t *testing.T) {
	feed := make(chan consensus.CommitEvent)
	metrics := telemetry.NopMetrics()
	w := NewCommitWatcher(feed, 2, metrics, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for h := uint64(1); h <= 3; h++ {
		feed <- consensus.CommitEvent{
			Height:      h,
			Certificate: &consensus.CommitCertificate{Height: h, Power: 3, TotalPower: 4},
		}
	}
	// The loop is sequential, so once this event is received the first
	// three are recorded. Events without a certificate are skipped.
	feed <- consensus.CommitEvent{Height: 4}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}

	recent := w.Recent()
	if len(recent) != 2 || recent[0].Height != 2 || recent[1].Height != 3 {
		t.Fatalf("expected heights 2 and 3, got %+v", recent)
	}
	if got := testutil.ToFloat64(metrics.CommitPowerRatio); got != 0.75 {
		t.Fatalf("expected power ratio 0.75, got %v", got)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected restart to fail")
	}
}

func TestNodeResumesFromStore(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = config.BackendPebble
	cfg.Storage.DBPath = t.TempDir()
	key := testKey(t)
	gen := testGenesis(t, cfg.ChainID, key)

	n, err := NewNode(cfg, key, gen, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForHeight(t, n.Store(), 2)
	if err := n.Stop(); err != nil {
		t.Fatal(err)
	}

	n, err = NewNode(cfg, key, gen, nil)
	if err != nil {
		t.Fatal(err)
	}
	resumed, err := n.Store().LatestHeight()
	if err != nil {
		t.Fatal(err)
	}
	tip, err := n.Store().GetCommit(resumed)
	if err != nil {
		t.Fatal(err)
	}

	if err := n.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer n.Stop()
	waitForHeight(t, n.Store(), resumed+1)

	next, err := n.Store().GetCommit(resumed + 1)
	if err != nil {
		t.Fatal(err)
	}
	if next.PreviousHash != tip.ID {
		t.Fatal("resumed chain does not extend the stored tip")
	}
}

func TestNodeWithoutQuorumKeepsRetrying(t *testing.T) {
	cfg := testConfig()
	cfg.Consensus.TimeoutPropose = config.Duration{Duration: 20 * time.Millisecond}
	cfg.Consensus.TimeoutPreVote = config.Duration{Duration: 20 * time.Millisecond}
	cfg.Consensus.TimeoutPreCommit = config.Duration{Duration: 20 * time.Millisecond}
	local, peer := testKey(t), testKey(t)

	// Two equal validators, one offline: 50% is below quorum.
	n, err := NewNode(cfg, local, testGenesis(t, cfg.ChainID, local, peer), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer n.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		var round uint32
		var stake float64
		err := n.Dispatcher().Inspect(ctx, func(e *consensus.Engine) {
			round = e.CurrentRound().Round
			stake = e.Weights().StakeWeight
		})
		if err != nil {
			t.Fatalf("inspect: %v", err)
		}
		if round >= 2 {
			// Timeouts switch the node to stake-heavy weighting.
			if stake != 0.8 {
				t.Fatalf("expected BFT weighting after timeouts, got %v", stake)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if h, _ := n.Store().LatestHeight(); h != 0 {
		t.Fatalf("nothing should commit without quorum, got height %d", h)
	}
}

// --- Mock service ---

type mockService struct {
	name      string
	started   bool
	stopped   bool
	failStart bool
	onStop    func()
}

func (m *mockService) Start(ctx context.Context) error {
	if m.failStart {
		return errors.New("mock: start failed")
	}
	m.started = true
	return nil
}

func (m *mockService) Stop() error {
	m.stopped = true
	if m.onStop != nil {
		m.onStop()
	}
	return nil
}

func (m *mockService) Name() string {
	return m.name
}
