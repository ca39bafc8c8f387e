// Package memory runs the detached memory-update pipeline: each dialogue turn
// enqueues a job, a single worker invokes the memory module, parses the delta
// and merges it into the current profile, one job at a time.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/analysis/reply"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/llm"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/module"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/ai"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage"
)

var (
	ErrQueueFull = errors.New("memory queue is full")
	ErrClosed    = errors.New("memory service is closed")
)

// Invoker is the part of the module gateway the worker needs.
type Invoker interface {
	Invoke(ctx context.Context, req ai.Request) (string, error)
	JSONMode(name module.Name) bool
}

// Emitter receives error events raised by the worker.
type Emitter interface {
	Emit(e event.Event)
}

// Job asks the worker to extract memory from the two newest turns.
type Job struct {
	Gateway    Invoker
	SceneLabel string
	Turns      []scene.Turn

	// flushed, when set, marks a barrier used by Flush.
	flushed chan struct{}
}

// Options 配置记忆服务。
type Options struct {
	Store     storage.ProfileStore
	Emitter   Emitter
	QueueSize int
	Now       func() time.Time
}

// Service owns the in-memory profile. Merges are serialized; readers get clones.
type Service struct {
	store   storage.ProfileStore
	emitter Emitter
	now     func() time.Time

	mu      sync.RWMutex
	profile memorymodel.Profile

	// mergeMu serializes Process, Reset and Load.
	mergeMu sync.Mutex

	queueMu sync.RWMutex
	jobs    chan Job
	closed  bool
	started bool
	done    chan struct{}
}

// NewService 创建记忆服务，初始档案为空，调用 Load 从存储恢复。
func NewService(opts Options) *Service {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:   opts.Store,
		emitter: opts.Emitter,
		now:     now,
		profile: memorymodel.NewProfile(),
		jobs:    make(chan Job, queueSize),
		done:    make(chan struct{}),
	}
}

// Load replaces the in-memory profile with the stored one, if any.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	profile, ok, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.swap(profile.Normalize())
	log.Info().Str("component", "memory").Int("facts", len(profile.KeyFacts)).Msg("memory profile loaded")
	return nil
}

// Start launches the worker. The worker runs until Close and finishes every
// accepted job; cancelling ctx does not abandon the queue.
func (s *Service) Start(ctx context.Context) {
	s.queueMu.Lock()
	if s.started || s.closed {
		s.queueMu.Unlock()
		return
	}
	s.started = true
	s.queueMu.Unlock()

	go s.run(context.WithoutCancel(ctx))
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	for job := range s.jobs {
		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		// failures are already logged and emitted by Process
		_, _ = s.Process(ctx, job)
	}
}

// Enqueue hands a job to the worker without waiting.
func (s *Service) Enqueue(job Job) error {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.jobs <- job:
		return nil
	default:
		log.Warn().Str("component", "memory").Str("scene", job.SceneLabel).Msg("memory queue full, job dropped")
		return ErrQueueFull
	}
}

// Flush blocks until every job enqueued before the call has been processed.
func (s *Service) Flush(ctx context.Context) error {
	barrier := Job{flushed: make(chan struct{})}

	s.queueMu.RLock()
	if s.closed {
		s.queueMu.RUnlock()
		return ErrClosed
	}
	select {
	case s.jobs <- barrier:
	case <-ctx.Done():
		s.queueMu.RUnlock()
		return ctx.Err()
	}
	s.queueMu.RUnlock()

	select {
	case <-barrier.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the worker to drain the queue.
// Without a running worker the queued jobs are reported as failed.
func (s *Service) Close() {
	s.queueMu.Lock()
	if s.closed {
		s.queueMu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	started := s.started
	s.queueMu.Unlock()

	if started {
		<-s.done
		return
	}
	for job := range s.jobs {
		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		_ = s.fail(job, ErrClosed)
	}
}

// Process is the worker body: invoke, parse, merge, save, swap. The profile
// is left unchanged on any failure.
func (s *Service) Process(ctx context.Context, job Job) (memorymodel.Profile, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	current := s.Snapshot()
	if job.Gateway == nil {
		return current, s.fail(job, errors.New("memory job without gateway"))
	}

	raw, err := job.Gateway.Invoke(ctx, ai.Request{
		Module: module.Memory,
		Text:   ai.MemoryPrompt(current, job.SceneLabel, job.Turns),
	})
	if err != nil {
		return current, s.fail(job, err)
	}

	res, err := reply.Parse(raw, reply.ModeFor(job.Gateway.JSONMode(module.Memory)), reply.ShapeMemoryDelta, reply.Options{})
	if err != nil {
		return current, s.fail(job, err)
	}
	if res.Delta.IsEmpty() {
		log.Debug().Str("component", "memory").Str("scene", job.SceneLabel).Msg("empty memory delta")
		return current, nil
	}

	next, err := memorymodel.Merge(current, res.Delta, s.now(), job.SceneLabel)
	if err != nil {
		return current, s.fail(job, err)
	}

	if s.store != nil {
		if err := s.store.Save(ctx, next); err != nil {
			return current, s.fail(job, err)
		}
	}
	s.swap(next)

	log.Info().
		Str("component", "memory").
		Str("scene", job.SceneLabel).
		Int("facts", len(next.KeyFacts)).
		Int("relationships", len(next.Relationships)).
		Msg("memory profile updated")
	return next.Clone(), nil
}

// Snapshot returns a copy of the current profile.
func (s *Service) Snapshot() memorymodel.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Clone()
}

// Reset replaces the profile with an empty one and clears the store.
func (s *Service) Reset(ctx context.Context) error {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	if s.store != nil {
		if err := s.store.Clear(ctx); err != nil {
			return err
		}
	}
	s.swap(memorymodel.NewProfile())
	log.Info().Str("component", "memory").Msg("memory profile reset")
	return nil
}

func (s *Service) swap(profile memorymodel.Profile) {
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
}

func (s *Service) fail(job Job, err error) error {
	kind := failureKind(err)
	log.Error().Err(err).
		Str("component", "memory").
		Str("scene", job.SceneLabel).
		Str("kind", string(kind)).
		Msg("memory update failed")

	if s.emitter != nil {
		s.emitter.Emit(event.Event{
			Kind: event.KindError,
			Error: &event.ErrorDetail{
				Kind:   kind,
				Detail: err.Error(),
				Module: string(module.Memory),
			},
		})
	}
	return err
}

func failureKind(err error) event.ErrorKind {
	var (
		mergeErr     *memorymodel.MergeError
		parseErr     *reply.ParseFailure
		apiErr       *llm.APIError
		transportErr *llm.TransportError
	)
	switch {
	case errors.As(err, &mergeErr):
		return event.ErrMerge
	case errors.As(err, &parseErr):
		return event.ErrParse
	case errors.As(err, &apiErr):
		return event.ErrAPI
	case errors.As(err, &transportErr):
		return event.ErrTransport
	default:
		return event.ErrInternal
	}
}
