package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/sproutly/sproutly/internal/catalog"
	"github.com/sproutly/sproutly/internal/tenant"
)

// InvalidateChannel is the redis channel carrying cross-instance invalidation events.
const InvalidateChannel = "sproutly:snapshot:invalidate"

// Loader supplies the authoritative node set for a scope.
type Loader interface {
	ListActiveNodes(ctx context.Context, scope tenant.Scope) ([]catalog.GrantedNode, error)
}

type invalidateEvent struct {
	ID     string `json:"id"`
	Origin string `json:"origin"`
	Scope  string `json:"scope"`
}

type entry struct {
	snap        *Snapshot
	lastAttempt time.Time
	lastErr     error
}

// Options configures a Store.
type Options struct {
	TTL        time.Duration
	StaleGrace time.Duration
	Redis      *redis.Client
	Logger     *slog.Logger
	Metrics    *Metrics
}

// Store owns the per-tenant snapshot lifecycle: lazy build on first access,
// rebuild on expiry, drop on invalidation. Nothing else mutates snapshots.
type Store struct {
	loader     Loader
	ttl        time.Duration
	staleGrace time.Duration
	clock      func() time.Time
	logger     *slog.Logger
	redis      *redis.Client
	instanceID string
	metrics    *Metrics

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[tenant.Scope]*entry
}

// NewStore constructs a Store.
func NewStore(loader Loader, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		loader:     loader,
		ttl:        opts.TTL,
		staleGrace: opts.StaleGrace,
		clock:      time.Now,
		logger:     logger,
		redis:      opts.Redis,
		instanceID: uuid.NewString(),
		metrics:    opts.Metrics,
		entries:    make(map[tenant.Scope]*entry),
	}
}

// WithClock overrides the time source, for tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Get returns the current snapshot for a scope along with its health. A
// missing or expired snapshot triggers a synchronous rebuild (collapsed under
// singleflight); rebuild failure returns the last-known snapshot degraded to
// Stale within the grace window, Unavailable beyond it.
func (s *Store) Get(ctx context.Context, scope tenant.Scope) (*Snapshot, Health) {
	now := s.clock()

	s.mu.RLock()
	var (
		prior   *Snapshot
		lastErr error
	)
	if e, ok := s.entries[scope]; ok {
		prior, lastErr = e.snap, e.lastErr
	}
	s.mu.RUnlock()

	if prior != nil && lastErr == nil && now.Sub(prior.BuiltAt) <= s.ttl {
		s.metrics.recordHit(string(scope))
		s.metrics.setHealth(string(scope), HealthHealthy)
		return prior, HealthHealthy
	}

	s.metrics.recordMiss(string(scope))
	rebuilt, err := s.rebuild(ctx, scope)
	if err == nil {
		s.metrics.setHealth(string(scope), HealthHealthy)
		return rebuilt, HealthHealthy
	}

	s.logger.Warn("snapshot rebuild failed",
		slog.String("scope", string(scope)), slog.Any("error", err))
	s.metrics.recordBuildFailure(string(scope))

	health := HealthUnavailable
	if prior != nil && now.Sub(prior.BuiltAt) <= s.ttl+s.staleGrace {
		health = HealthStale
	}
	s.metrics.setHealth(string(scope), health)
	return prior, health
}

func (s *Store) rebuild(ctx context.Context, scope tenant.Scope) (*Snapshot, error) {
	result, err, _ := s.group.Do(string(scope), func() (any, error) {
		start := time.Now()
		nodes, err := s.loader.ListActiveNodes(ctx, scope)
		s.metrics.observeBuild(string(scope), time.Since(start))

		s.mu.Lock()
		defer s.mu.Unlock()
		e, ok := s.entries[scope]
		if !ok {
			e = &entry{}
			s.entries[scope] = e
		}
		e.lastAttempt = s.clock()
		e.lastErr = err
		if err != nil {
			return nil, err
		}
		snap := &Snapshot{Scope: scope, Nodes: nodes, BuiltAt: s.clock()}
		e.snap = snap
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Snapshot), nil
}

// Invalidate drops the scope's snapshot so the next Get rebuilds, and
// broadcasts the event to sibling instances. A failed broadcast is logged
// only; the local drop already happened.
func (s *Store) Invalidate(ctx context.Context, scope tenant.Scope) {
	s.drop(scope)
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(invalidateEvent{
		ID:     uuid.NewString(),
		Origin: s.instanceID,
		Scope:  string(scope),
	})
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, InvalidateChannel, payload).Err(); err != nil {
		s.logger.Warn("publish snapshot invalidation",
			slog.String("scope", string(scope)), slog.Any("error", err))
	}
}

func (s *Store) drop(scope tenant.Scope) {
	s.mu.Lock()
	delete(s.entries, scope)
	s.mu.Unlock()
}

// Listen consumes invalidation events published by sibling instances until
// the context is cancelled. Events originating from this instance are skipped.
func (s *Store) Listen(ctx context.Context) error {
	if s.redis == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	sub := s.redis.Subscribe(ctx, InvalidateChannel)
	defer func() { _ = sub.Close() }()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event invalidateEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("decode snapshot invalidation", slog.Any("error", err))
				continue
			}
			if event.Origin == s.instanceID {
				continue
			}
			scope, err := tenant.ParseScope(event.Scope)
			if err != nil {
				continue
			}
			s.drop(scope)
		}
	}
}
