package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultOpTimeout = 3 * time.Second

type writeKind int

const (
	writeSet writeKind = iota
	writeRemove
	writeClear
)

type writeOp struct {
	kind  writeKind
	key   string
	value string
	done  chan struct{}
}

// Store is the two-tier storage adapter. ReadCached never blocks and never fails; the
// durable methods never return backend errors, they log them and degrade to a no-op or
// an absent value. Writes update the cache first and are applied to the backend in order
// by a single writer. While a key has a local write in flight, durable reads of that key
// answer from the cache.
type Store struct {
	backend   Backend
	log       zerolog.Logger
	opTimeout time.Duration

	mu      sync.RWMutex
	cache   map[string]string
	version map[string]uint64
	epoch   uint64
	pending map[string]int
	clears  int

	writeMu   sync.Mutex
	writeCond *sync.Cond
	queue     []writeOp
	closed    bool
	running   bool
	stopped   chan struct{}
}

type StoreOption func(*Store)

func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// WithOpTimeout bounds every backend call.
func WithOpTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.opTimeout = d
	}
}

func NewStore(backend Backend, options ...StoreOption) *Store {
	s := &Store{
		backend:   backend,
		log:       zerolog.Nop(),
		opTimeout: defaultOpTimeout,
		cache:     make(map[string]string),
		version:   make(map[string]uint64),
		pending:   make(map[string]int),
		running:   true,
		stopped:   make(chan struct{}),
	}
	s.writeCond = sync.NewCond(&s.writeMu)
	for _, opt := range options {
		opt(s)
	}
	s.log = s.log.With().Str("backend", backend.Name()).Logger()
	go s.writer()
	return s
}

func (s *Store) BackendName() string {
	return s.backend.Name()
}

// Warm loads the important keys into the cache. Keys written or cleared locally while
// warming keep their local state.
func (s *Store) Warm(ctx context.Context) {
	s.WarmKeys(ctx, ImportantKeys...)
}

func (s *Store) WarmKeys(ctx context.Context, keys ...string) {
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			s.Get(ctx, key)
		}(key)
	}
	wg.Wait()
}

// ReadCached returns the cached value. A key that was never warmed or written is absent
// even if the backend holds it.
func (s *Store) ReadCached(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok
}

// SetCached updates only the cache.
func (s *Store) SetCached(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = value
	s.version[key]++
}

// Get reads the durable backend and refreshes the cache with the result. A key with a
// local write still queued, or one written locally during the read, resolves to the
// cached value; a queued removal or clear resolves to absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	s.mu.RLock()
	if s.inFlightLocked(key) {
		v, ok := s.cache[key]
		s.mu.RUnlock()
		return v, ok
	}
	before, epoch := s.version[key], s.epoch
	s.mu.RUnlock()

	value, ok := s.durableGet(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version[key] != before || s.epoch != epoch || s.inFlightLocked(key) {
		v, cached := s.cache[key]
		return v, cached
	}
	if !ok {
		return "", false
	}
	s.cache[key] = value
	return value, true
}

// Set writes through to the backend and waits until the write settles or ctx is done.
// The cache reflects the new value before Set returns in either case.
func (s *Store) Set(ctx context.Context, key, value string) {
	wait(ctx, s.SetAsync(key, value))
}

// SetAsync updates the cache and queues the durable write without blocking. The returned
// channel closes once the backend write has settled.
func (s *Store) SetAsync(key, value string) <-chan struct{} {
	return s.write(writeOp{kind: writeSet, key: key, value: value}, func() {
		s.cache[key] = value
		s.version[key]++
	})
}

func (s *Store) Remove(ctx context.Context, key string) {
	wait(ctx, s.RemoveAsync(key))
}

func (s *Store) RemoveAsync(key string) <-chan struct{} {
	return s.write(writeOp{kind: writeRemove, key: key}, func() {
		delete(s.cache, key)
		s.version[key]++
	})
}

func (s *Store) Clear(ctx context.Context) {
	wait(ctx, s.write(writeOp{kind: writeClear}, func() {
		s.cache = make(map[string]string)
		s.epoch++
	}))
}

// Close drains queued writes and stops the writer. Writes after Close are applied inline.
func (s *Store) Close(ctx context.Context) {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return
	}
	s.closed = true
	s.writeCond.Broadcast()
	s.writeMu.Unlock()

	select {
	case <-s.stopped:
	case <-ctx.Done():
		s.log.Warn().Msg("storage closed with writes still in flight")
	}
}

// write applies the local change and marks the key in flight under one lock, then queues
// the durable write. The queue is unbounded so callers never wait on the backend.
func (s *Store) write(op writeOp, local func()) <-chan struct{} {
	op.done = make(chan struct{})

	s.writeMu.Lock()
	s.mu.Lock()
	local()
	if op.kind == writeClear {
		s.clears++
	} else {
		s.pending[op.key]++
	}
	s.mu.Unlock()

	if s.running {
		s.queue = append(s.queue, op)
		s.writeCond.Signal()
		s.writeMu.Unlock()
		return op.done
	}
	s.writeMu.Unlock()

	s.apply(op)
	s.settle(op)
	close(op.done)
	return op.done
}

func (s *Store) writer() {
	defer close(s.stopped)
	for {
		s.writeMu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.writeCond.Wait()
		}
		if len(s.queue) == 0 {
			s.running = false
			s.writeMu.Unlock()
			return
		}
		op := s.queue[0]
		s.queue[0] = writeOp{}
		s.queue = s.queue[1:]
		s.writeMu.Unlock()

		s.apply(op)
		s.settle(op)
		close(op.done)
	}
}

// settle drops the in-flight mark once the backend call has returned.
func (s *Store) settle(op writeOp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.kind == writeClear {
		s.clears--
		return
	}
	if s.pending[op.key]--; s.pending[op.key] <= 0 {
		delete(s.pending, op.key)
	}
}

func (s *Store) inFlightLocked(key string) bool {
	return s.clears > 0 || s.pending[key] > 0
}

func (s *Store) apply(op writeOp) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("key", op.key).Msg("storage write panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case writeSet:
		err = s.backend.Set(ctx, op.key, op.value)
	case writeRemove:
		err = s.backend.Remove(ctx, op.key)
	case writeClear:
		err = s.backend.Clear(ctx)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", op.key).Msg("storage write failed")
	}
}

func (s *Store) durableGet(ctx context.Context, key string) (value string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("key", key).Msg("storage read panicked")
			value, ok = "", false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	value, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("storage read failed")
		return "", false
	}
	return value, ok
}

func wait(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
	}
}
