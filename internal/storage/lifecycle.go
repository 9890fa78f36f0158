package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emilythestrangee/posts/backend/internal/assets"
	"github.com/emilythestrangee/posts/backend/internal/logging"
	"github.com/emilythestrangee/posts/backend/internal/metrics"
	"github.com/emilythestrangee/posts/backend/internal/models"
)

// Layout describes where assets live and how their canonical URLs look.
type Layout struct {
	Bucket          string
	PublicBaseURL   string
	TempPrefix      string
	PermanentPrefix string
}

// Resolver converts between keys and URLs under this layout.
func (l Layout) Resolver() *assets.Resolver {
	return assets.NewResolver(l.PublicBaseURL, l.Bucket)
}

func (l Layout) CanonicalURL(key string) string {
	return l.Resolver().CanonicalURL(key)
}

// Scope maps a visibility onto the top-level permanent directory.
func Scope(v models.Visibility) string {
	if v == models.VisibilityPublic {
		return "public"
	}
	return "private"
}

// Target identifies the post a promoted asset is attached to.
type Target struct {
	OwnerID    int
	PostID     int
	Visibility models.Visibility
}

// Plan lists the storage work for one edit. Keep holds the keys of images
// that stay on the post; those stored under another visibility scope of the
// same post are relocated to the target scope.
type Plan struct {
	Target  Target
	Promote []string
	Delete  []string
	Keep    []string
}

// Settlement is the outcome of a Plan. Every promoted key appears in
// Promoted or PromoteFailures; every deleted key that failed appears in
// DeleteFailures; every kept key that had to move appears in Relocated or
// RelocateFailures.
type Settlement struct {
	Promoted         map[string]string
	PromoteFailures  map[string]error
	DeleteFailures   map[string]error
	Relocated        map[string]string
	RelocateFailures map[string]error
}

func newSettlement() Settlement {
	return Settlement{
		Promoted:         map[string]string{},
		PromoteFailures:  map[string]error{},
		DeleteFailures:   map[string]error{},
		Relocated:        map[string]string{},
		RelocateFailures: map[string]error{},
	}
}

func (s Settlement) failures() int {
	return len(s.PromoteFailures) + len(s.DeleteFailures) + len(s.RelocateFailures)
}

// Lifecycle promotes temporary uploads to permanent locations and deletes
// objects. It never touches the relational store.
type Lifecycle struct {
	store       ObjectStore
	layout      Layout
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type LifecycleOptions struct {
	Layout      Layout
	Timeout     time.Duration
	Concurrency int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

func NewLifecycle(store ObjectStore, opts LifecycleOptions) *Lifecycle {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Lifecycle{
		store:       store,
		layout:      opts.Layout,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		logger:      logging.OrDiscard(opts.Logger),
		metrics:     opts.Metrics,
	}
}

func (m *Lifecycle) Layout() Layout {
	return m.layout
}

// Promote copies tempKey to its permanent location for target and removes
// the temporary copy, returning the canonical URL of the new object. The
// store gives no idempotency guarantee; callers promote each key once.
//
// A failure to remove the temporary copy after a successful copy does not
// fail the promotion; the leftover is reclaimed by the bucket's lifecycle
// rules.
func (m *Lifecycle) Promote(ctx context.Context, tempKey string, target Target) (string, error) {
	return m.move(ctx, "promote", tempKey, target)
}

// Relocate moves a permanent object of target's post into the scope of
// target's visibility and returns its new canonical URL.
func (m *Lifecycle) Relocate(ctx context.Context, key string, target Target) (string, error) {
	return m.move(ctx, "relocate", key, target)
}

// needsRelocation reports whether key belongs to target's post but sits
// under a scope other than the one target's visibility maps to.
func (m *Lifecycle) needsRelocation(key string, target Target) bool {
	scope, ok := assets.PermanentScope(m.layout.PermanentPrefix, key, target.OwnerID, target.PostID)
	return ok && scope != Scope(target.Visibility)
}

func (m *Lifecycle) move(ctx context.Context, op, src string, target Target) (string, error) {
	start := time.Now()
	dst := assets.PermanentKey(m.layout.PermanentPrefix, Scope(target.Visibility), target.OwnerID, target.PostID, src)

	err := m.store.CopyObject(ctx, src, dst)
	if errors.Is(err, ErrObjectNotFound) && m.alreadyPromoted(ctx, dst) {
		m.logger.Info("asset already moved", slog.String("op", op), slog.String("key", src), slog.String("target", dst))
		err = nil
	}
	m.metrics.ObserveStorage(op, err, time.Since(start))
	if err != nil {
		return "", &OpError{Op: op, Key: src, Err: err}
	}

	if err := m.store.DeleteObject(ctx, src); err != nil {
		m.logger.Warn("source object left behind after copy",
			slog.String("op", op),
			slog.String("key", src),
			slog.String("error", err.Error()))
	}
	return m.layout.CanonicalURL(dst), nil
}

func (m *Lifecycle) alreadyPromoted(ctx context.Context, dst string) bool {
	stat, ok := m.store.(ObjectStat)
	if !ok {
		return false
	}
	exists, err := stat.ObjectExists(ctx, dst)
	return err == nil && exists
}

// Delete removes key from the store.
func (m *Lifecycle) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := m.store.DeleteObject(ctx, key)
	m.metrics.ObserveStorage("delete", err, time.Since(start))
	if err != nil {
		return &OpError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Settle runs every promotion, deletion and relocation of plan concurrently, bounded by
// the configured concurrency, and waits for all of them. Individual failures
// are logged and reported in the Settlement. The work is detached from ctx
// cancellation and bounded by the lifecycle timeout instead; if that
// deadline cut any operation short, Settle also returns an error matching
// ErrStorageOperationFailed.
func (m *Lifecycle) Settle(ctx context.Context, plan Plan) (Settlement, error) {
	out := newSettlement()
	var relocate []string
	for _, key := range plan.Keep {
		if m.needsRelocation(key, plan.Target) {
			relocate = append(relocate, key)
		}
	}
	if len(plan.Promote) == 0 && len(plan.Delete) == 0 && len(relocate) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.concurrency)

	for _, key := range plan.Promote {
		g.Go(func() error {
			canonical, err := m.Promote(ctx, key, plan.Target)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.PromoteFailures[key] = err
				m.logger.Warn("asset promotion failed",
					slog.Int("post_id", plan.Target.PostID),
					slog.String("key", key),
					slog.String("error", err.Error()))
				return nil
			}
			out.Promoted[key] = canonical
			return nil
		})
	}
	for _, key := range plan.Delete {
		g.Go(func() error {
			err := m.Delete(ctx, key)
			if err == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			out.DeleteFailures[key] = err
			m.logger.Warn("asset deletion failed, object left for cleanup",
				slog.Int("post_id", plan.Target.PostID),
				slog.String("key", key),
				slog.String("error", err.Error()))
			return nil
		})
	}
	for _, key := range relocate {
		g.Go(func() error {
			canonical, err := m.Relocate(ctx, key, plan.Target)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.RelocateFailures[key] = err
				m.logger.Warn("asset relocation failed, object stays in its old scope",
					slog.Int("post_id", plan.Target.PostID),
					slog.String("key", key),
					slog.String("scope", Scope(plan.Target.Visibility)),
					slog.String("error", err.Error()))
				return nil
			}
			out.Relocated[key] = canonical
			return nil
		})
	}
	_ = g.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && out.failures() > 0 {
		return out, &OpError{Op: "settle", Err: ctx.Err()}
	}
	return out, nil
}
