package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/echenim/Bedrock/hybrid/internal/admin"
	"github.com/echenim/Bedrock/hybrid/internal/config"
	"github.com/echenim/Bedrock/hybrid/internal/consensus"
	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/echenim/Bedrock/hybrid/internal/mempool"
	"github.com/echenim/Bedrock/hybrid/internal/power"
	"github.com/echenim/Bedrock/hybrid/internal/proof"
	"github.com/echenim/Bedrock/hybrid/internal/registry"
	"github.com/echenim/Bedrock/hybrid/internal/storage"
	"github.com/echenim/Bedrock/hybrid/internal/telemetry"
	"github.com/echenim/Bedrock/hybrid/internal/types"
	"go.uber.org/zap"
)

// Node owns every subsystem of a hybrid consensus validator.
type Node struct {
	cfg     *config.Config
	address types.Address

	// Subsystems.
	registry    *registry.Manager
	store       storage.Store
	mempool     *mempool.Mempool
	dispatcher  *consensus.Dispatcher
	pacer       *Pacer
	commits     *CommitWatcher
	metrics     *telemetry.Metrics
	metricsSrv  *telemetry.MetricsServer
	adminServer *admin.Server

	svcMgr   *ServiceManager
	logger   *zap.Logger
	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// NewNode creates and wires all subsystems without starting them.
func NewNode(
	cfg *config.Config,
	key *crypto.PrivateKey,
	genesis *config.GenesisDoc,
	logger *zap.Logger,
) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == nil {
		return nil, fmt.Errorf("node: private key required")
	}
	if genesis.ChainID != cfg.ChainID {
		return nil, fmt.Errorf("node: genesis chain_id %q does not match config chain_id %q", genesis.ChainID, cfg.ChainID)
	}

	signer := crypto.NewLocalSigner(key)
	address := signer.Address()
	logger = logger.With(zap.String("node", address.Short()))

	// 1. Validator registry.
	vals, err := genesis.ToValidators()
	if err != nil {
		return nil, fmt.Errorf("node: genesis validators: %w", err)
	}
	reg, err := registry.New(vals)
	if err != nil {
		return nil, fmt.Errorf("node: build registry: %w", err)
	}
	if _, ok := reg.Validator(address); !ok {
		logger.Warn("local key is not in the genesis validator set; node will not propose or vote")
	}

	// 2. Metrics.
	metrics := telemetry.NopMetrics()
	var metricsSrv *telemetry.MetricsServer
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics("hybrid")
		metricsSrv = telemetry.NewMetricsServer(cfg.Telemetry.Addr, metrics, logger)
	}

	// 3. Storage.
	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	// 4. Mempool.
	mp := mempool.NewMempool(cfg.Mempool, metrics, logger)
	sink := newCommitSink(store, mp, metrics, logger)

	// 5. Consensus engine (no transport: single-node or externally bridged).
	ecfg := consensus.DefaultEngineConfig()
	ecfg.Address = address
	ecfg.Registry = reg
	ecfg.Assembler = mp
	ecfg.Signer = signer
	ecfg.Verifier = crypto.Verifier{}
	ecfg.Proofs = proof.Factory{}
	ecfg.Sink = sink
	ecfg.Archiver = sink
	ecfg.Logger = logger
	ecfg.Metrics = metrics
	ecfg.Weights = power.NewWeights(cfg.Consensus.StakeWeight, cfg.Consensus.StorageWeight)
	ecfg.ProposeTimeout = cfg.Consensus.TimeoutPropose.Duration
	ecfg.PreVoteTimeout = cfg.Consensus.TimeoutPreVote.Duration
	ecfg.PreCommitTimeout = cfg.Consensus.TimeoutPreCommit.Duration
	ecfg.EarlyQuorumExit = cfg.Consensus.EarlyQuorumExit
	ecfg.HistorySize = cfg.Consensus.HistorySize
	ecfg.InboundQueue = cfg.Consensus.InboundQueue

	engine, err := consensus.NewEngine(ecfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: create consensus engine: %w", err)
	}
	dispatcher := consensus.NewDispatcher(engine, cfg.Consensus.InboundQueue, logger)

	// 6. Admin server.
	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.NewServer(cfg.Admin.Addr, dispatcher, mp, logger)
	}

	n := &Node{
		cfg:         cfg,
		address:     address,
		registry:    reg,
		store:       store,
		mempool:     mp,
		dispatcher:  dispatcher,
		pacer:       NewPacer(dispatcher, store, logger),
		commits:     NewCommitWatcher(engine.SubscribeCommits(), cfg.Consensus.HistorySize, metrics, logger),
		metrics:     metrics,
		metricsSrv:  metricsSrv,
		adminServer: adminSrv,
		svcMgr:      NewServiceManager(logger),
		logger:      logger,
		done:        make(chan struct{}),
	}
	n.registerServices()
	return n, nil
}

// registerServices fixes the start order; StopAll runs it in reverse.
func (n *Node) registerServices() {
	n.svcMgr.Add(n.commits)
	n.svcMgr.Add(ServiceFunc{
		ServiceName: "consensus",
		StartFn:     n.dispatcher.Start,
		StopFn:      n.dispatcher.Stop,
	})
	n.svcMgr.Add(n.pacer)

	if n.metricsSrv != nil {
		srv := n.metricsSrv
		n.svcMgr.Add(ServiceFunc{
			ServiceName: "metrics",
			StartFn: func(context.Context) error {
				go func() {
					if err := srv.Start(); err != nil {
						n.logger.Error("metrics server error", zap.Error(err))
					}
				}()
				return nil
			},
			StopFn: srv.Stop,
		})
	}

	if n.adminServer != nil {
		n.svcMgr.Add(n.adminServer)
	}
}

// Start boots all subsystems in dependency order.
func (n *Node) Start(ctx context.Context) error {
	n.logger.Info("node starting",
		zap.String("moniker", n.cfg.Moniker),
		zap.String("chain_id", n.cfg.ChainID),
		zap.Int("validators", n.registry.Size()),
	)

	if err := n.svcMgr.StartAll(ctx); err != nil {
		return fmt.Errorf("node: %w", err)
	}

	n.logger.Info("node started")
	return nil
}

// Stop shuts down all subsystems in reverse order and closes the store.
// It is safe to call more than once.
func (n *Node) Stop() error {
	n.stopOnce.Do(func() {
		n.logger.Info("node stopping")

		n.stopErr = n.svcMgr.StopAll()
		if err := n.store.Close(); err != nil && n.stopErr == nil {
			n.stopErr = fmt.Errorf("node: close store: %w", err)
		}

		n.logger.Info("node stopped")
		close(n.done)
	})
	return n.stopErr
}

// Wait blocks until the node is stopped.
func (n *Node) Wait() error {
	<-n.done
	return n.stopErr
}

// Address returns the local validator address.
func (n *Node) Address() types.Address {
	return n.address
}

// Store returns the commit store.
func (n *Node) Store() storage.Store {
	return n.store
}

// Mempool returns the block assembler.
func (n *Node) Mempool() *mempool.Mempool {
	return n.mempool
}

// Dispatcher returns the consensus actor.
func (n *Node) Dispatcher() *consensus.Dispatcher {
	return n.dispatcher
}

// RecentCommits returns the latest commit certificates, oldest first.
func (n *Node) RecentCommits() []*consensus.CommitCertificate {
	return n.commits.Recent()
}

// Registry returns the validator registry.
func (n *Node) Registry() *registry.Manager {
	return n.registry
}
