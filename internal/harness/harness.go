package harness

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/bus"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/config"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/engine"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/ids"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/policy"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/testutil"
)

// DefaultSettleTimeout bounds how long Run waits for the bus to go idle.
const DefaultSettleTimeout = 30 * time.Second

const (
	providerGroup = "harness-provider"
	traceGroup    = "harness-trace"
)

type runConfig struct {
	hash          store.HashStore
	recorder      engine.Recorder
	observer      bus.Observer
	settings      *config.Config
	settleTimeout time.Duration
}

// Option configures Run.
type Option func(*runConfig)

// WithHashStore runs the scenario on hash instead of a fresh in-memory
// store. The caller owns hash and closes it.
func WithHashStore(hash store.HashStore) Option {
	return func(c *runConfig) {
		c.hash = hash
	}
}

// WithRecorder sets the engine metrics recorder.
func WithRecorder(r engine.Recorder) Option {
	return func(c *runConfig) {
		c.recorder = r
	}
}

// WithObserver sets the bus observer.
func WithObserver(o bus.Observer) Option {
	return func(c *runConfig) {
		c.observer = o
	}
}

// WithConfig applies process settings: key prefix, bus limits, default
// batch size and expiry, and topics. A scenario's own max_batch_size wins.
func WithConfig(cfg config.Config) Option {
	return func(c *runConfig) {
		c.settings = &cfg
	}
}

// WithSettleTimeout bounds each wait for quiescence.
func WithSettleTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.settleTimeout = d
	}
}

// Run executes a scenario against the real engine and decision process
// and returns the settled outcome.
//
// The core, the decision process and a simulated provider share one
// in-memory bus. Time is a fake clock starting at testutil.Epoch, and
// bulk ids come from a sequence, so identical scenarios settle
// identically. An error is returned only when the run itself could not
// be carried out; failed expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{settleTimeout: DefaultSettleTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	hash := cfg.hash
	if hash == nil {
		mem := store.NewMemoryHash()
		defer mem.Close()
		hash = mem
	}
	var repoOpts []store.RepositoryOption
	busOpts := []bus.MemoryOption{
		bus.WithRetryBackoff(time.Millisecond),
		bus.WithIDGenerator(ids.NewSequenceGenerator("msg")),
	}
	maxBatch := scenario.MaxBatchSize
	commandTopic, domainTopic := engine.DefaultCommandTopic, engine.DefaultDomainTopic
	procOpts := []engine.ProcessorOption{}
	if s := cfg.settings; s != nil {
		if s.KeyPrefix != "" {
			repoOpts = append(repoOpts, store.WithKeyPrefix(s.KeyPrefix))
		}
		busOpts = append(busOpts,
			bus.WithMaxWorkers(s.MaxWorkers),
			bus.WithMaxAttempts(s.MaxAttempts),
			bus.WithRetryBackoff(s.RetryBackoff),
		)
		if maxBatch == 0 {
			maxBatch = s.MaxBatchSize
		}
		commandTopic, domainTopic = s.CommandTopic, s.DomainTopic
		procOpts = append(procOpts, engine.WithDefaultExpiry(s.DefaultBulkExpiry))
	}

	repo := store.NewRepository(hash, repoOpts...)
	if err := repo.Init(ctx); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	clock := testutil.NewFakeClock(testutil.Epoch)
	if cfg.observer != nil {
		busOpts = append(busOpts, bus.WithObserver(cfg.observer))
	}
	m := bus.NewMemory(busOpts...)

	procOpts = append(procOpts,
		engine.WithClock(clock),
		engine.WithMaxBatchSize(maxBatch),
		engine.WithDomainTopic(domainTopic),
	)
	if cfg.recorder != nil {
		procOpts = append(procOpts, engine.WithRecorder(cfg.recorder))
	}
	eng := engine.New(engine.NewProcessor(repo, m, procOpts...), m, m,
		engine.WithCommandTopic(commandTopic),
		engine.WithSweepInterval(0),
		engine.WithEngineClock(clock),
	)

	req := scenario.BulkRequest(clock.Now())
	sink := &responseSink{}
	pol := policy.New(m,
		policy.WithAcceptor(listAcceptor{
			rejectParties: scenario.Accept.RejectParties,
			rejectQuotes:  scenario.Accept.RejectQuotes,
		}),
		policy.WithResponseSender(sink),
		policy.WithClock(clock),
		policy.WithTopics(commandTopic, domainTopic),
	)

	counter := newEventCounter()
	var cancels []func()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()
	subscribe := func(start func() (func(), error)) error {
		cancel, err := start()
		if err != nil {
			return err
		}
		cancels = append(cancels, cancel)
		return nil
	}
	if err := subscribe(eng.Start); err != nil {
		return nil, err
	}
	if err := subscribe(func() (func(), error) { return pol.Start(m) }); err != nil {
		return nil, err
	}
	if err := subscribe(func() (func(), error) {
		return m.Subscribe(domainTopic, traceGroup, counter.Handle)
	}); err != nil {
		return nil, err
	}

	// Callbacks refer to transfers by id; the provider needs their home
	// ids, so the bulk id is fixed before the request goes out.
	if req.BulkTransactionID == "" {
		req.BulkTransactionID = ids.NewSequenceGenerator("bulk").Generate()
	}
	homes := make(map[string]string, len(req.IndividualTransfers))
	for i, t := range req.IndividualTransfers {
		homes[ids.TransferID(req.BulkTransactionID, i)] = t.HomeTransactionID
	}
	provider := NewProvider(scenario.Provider, m, clock, eng.CommandTopic(), homes)
	if err := subscribe(func() (func(), error) {
		return m.Subscribe(domainTopic, providerGroup, provider.Handle)
	}); err != nil {
		return nil, err
	}

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- m.Run(runCtx) }()
	defer func() {
		stop()
		<-done
	}()

	bulkID, err := pol.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := settle(ctx, m, cfg.settleTimeout); err != nil {
		return nil, err
	}

	if scenario.Advance > 0 {
		clock.Advance(scenario.Advance)
		if _, err := eng.Sweep(ctx); err != nil {
			return nil, fmt.Errorf("expiry sweep: %w", err)
		}
		if err := settle(ctx, m, cfg.settleTimeout); err != nil {
			return nil, err
		}
	}

	result, err := collect(ctx, repo, bulkID)
	if err != nil {
		return nil, err
	}
	result.Response = sink.response()
	result.Events = counter.sorted()
	result.DeadLetters = len(m.DeadLetters())

	for _, msg := range Evaluate(scenario.Expect, result) {
		result.AddError(msg)
	}
	if result.DeadLetters > 0 {
		result.AddError(fmt.Sprintf("%d messages were dead-lettered", result.DeadLetters))
	}

	slog.Debug("scenario settled", "scenario", scenario.Name, "bulk_id", bulkID, "state", result.State, "pass", result.Pass)
	return result, nil
}

func settle(ctx context.Context, m *bus.Memory, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := m.WaitIdle(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("scenario did not settle within %s", timeout)
		}
		return err
	}
	return nil
}

// collect reads the settled bulk and its transfers.
func collect(ctx context.Context, repo *store.Repository, bulkID string) (*Result, error) {
	bt, err := repo.Load(ctx, bulkID)
	if err != nil {
		return nil, fmt.Errorf("load bulk: %w", err)
	}

	result := NewResult()
	result.BulkID = bt.ID
	result.State = bt.State
	result.Counters = bt.Counters

	for _, id := range bt.IndividualTransferIDs {
		it, err := repo.GetIndividualTransfer(ctx, bulkID, id)
		if err != nil {
			return nil, fmt.Errorf("load transfer: %w", err)
		}
		outcome := TransferOutcome{
			HomeTransactionID: it.Request.HomeTransactionID,
			State:             it.State,
		}
		if it.LastError != nil {
			outcome.ErrorCode = it.LastError.ErrorCode
		}
		result.Transfers = append(result.Transfers, outcome)
	}
	slices.SortFunc(result.Transfers, func(a, b TransferOutcome) int {
		return cmp.Compare(a.HomeTransactionID, b.HomeTransactionID)
	})
	return result, nil
}
