package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelcrm/dedupd/internal/logging"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// RunCompletedCallback is called when a scheduled analysis run completes
// (success or error).
type RunCompletedCallback func(kind record.Kind, summary Summary, err error)

// Scheduler re-runs duplicate analysis on an interval, one kind at a time.
// The Store uses single-writer semantics, so runs for the same kind are never
// issued concurrently; a tick that lands while that kind's run is still in
// flight is skipped.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	request  func(kind record.Kind) Request
	log      zerolog.Logger

	runCompletedCallback RunCompletedCallback

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex

	analyzing   map[record.Kind]bool
	analyzingMu sync.Mutex

	runCancels  map[record.Kind]context.CancelFunc
	runCancelMu sync.Mutex
}

// NewScheduler creates a scheduler that re-analyzes both kinds every
// interval. request builds the per-kind Request for each tick, so a config
// hot-reload (fuzzy_min_score) takes effect on the next run without a
// restart.
func NewScheduler(engine *Engine, interval time.Duration, request func(kind record.Kind) Request) *Scheduler {
	return &Scheduler{
		engine:     engine,
		interval:   interval,
		request:    request,
		log:        logging.WithComponent("dedupe-scheduler"),
		analyzing:  make(map[record.Kind]bool),
		runCancels: make(map[record.Kind]context.CancelFunc),
	}
}

// SetRunCompletedCallback sets the callback invoked after each scheduled run.
func (s *Scheduler) SetRunCompletedCallback(callback RunCompletedCallback) {
	s.runCompletedCallback = callback
}

// Start starts the background analysis loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.running {
		s.log.Warn().Msg("scheduler already running")
		return
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.run()

	s.log.Info().Dur("interval", s.interval).Msg("analysis scheduler started")
}

// Stop stops the loop and waits for it to exit. In-flight runs observe the
// cancelled context and finish their current bucket before returning.
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false

	s.log.Info().Msg("analysis scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, kind := range []record.Kind{record.KindContact, record.KindCompany} {
				go s.analyzeKind(kind)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// TriggerAnalysis runs one kind's analysis immediately (non-blocking),
// outside the periodic cadence.
func (s *Scheduler) TriggerAnalysis(kind record.Kind) {
	go s.analyzeKind(kind)
}

// CancelAnalysis cancels a running analysis for the given kind, if any.
func (s *Scheduler) CancelAnalysis(kind record.Kind) {
	s.runCancelMu.Lock()
	if cancel, ok := s.runCancels[kind]; ok {
		s.log.Info().Str("kind", string(kind)).Msg("cancelling running analysis")
		cancel()
	}
	s.runCancelMu.Unlock()
}

func (s *Scheduler) analyzeKind(kind record.Kind) {
	s.analyzingMu.Lock()
	if s.analyzing[kind] {
		s.analyzingMu.Unlock()
		s.log.Debug().Str("kind", string(kind)).Msg("analysis already in progress, skipping tick")
		return
	}
	s.analyzing[kind] = true
	s.analyzingMu.Unlock()

	ctx, cancel := context.WithCancel(s.ctx)
	s.runCancelMu.Lock()
	s.runCancels[kind] = cancel
	s.runCancelMu.Unlock()

	defer func() {
		cancel()
		s.runCancelMu.Lock()
		delete(s.runCancels, kind)
		s.runCancelMu.Unlock()

		s.analyzingMu.Lock()
		delete(s.analyzing, kind)
		s.analyzingMu.Unlock()
	}()

	s.log.Debug().Str("kind", string(kind)).Msg("starting scheduled analysis")

	summary, err := s.engine.Run(ctx, s.request(kind))
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("scheduled analysis failed")
	}

	if s.runCompletedCallback != nil {
		s.runCompletedCallback(kind, summary, err)
	}
}
