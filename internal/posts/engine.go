// Package posts reconciles edits of a post against its persisted state and
// its assets in object storage.
package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/emilythestrangee/posts/backend/internal/assets"
	"github.com/emilythestrangee/posts/backend/internal/logging"
	"github.com/emilythestrangee/posts/backend/internal/metrics"
	"github.com/emilythestrangee/posts/backend/internal/models"
	"github.com/emilythestrangee/posts/backend/internal/storage"
)

// Repository is the relational side of the engine.
type Repository interface {
	// FindPost loads a post with its images ordered by position.
	FindPost(ctx context.Context, postID int) (*models.Post, error)
	CreatePost(ctx context.Context, post *models.Post) error
	// ApplyEdit applies cs atomically and returns the reloaded post.
	ApplyEdit(ctx context.Context, cs Changeset) (*models.Post, error)
	// DeletePost removes the post and its images atomically.
	DeletePost(ctx context.Context, postID int) error
}

// AssetLifecycle is the storage side of the engine.
type AssetLifecycle interface {
	Settle(ctx context.Context, plan storage.Plan) (storage.Settlement, error)
}

type Options struct {
	// TempPrefix is the root of the per-owner staging directories.
	TempPrefix string
	// Resolver maps image URLs to storage keys; nil means the default GCS
	// path-style form.
	Resolver *assets.Resolver
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type Engine struct {
	repo       Repository
	lifecycle  AssetLifecycle
	tempPrefix string
	resolver   *assets.Resolver
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewEngine(repo Repository, lifecycle AssetLifecycle, opts Options) *Engine {
	return &Engine{
		repo:       repo,
		lifecycle:  lifecycle,
		tempPrefix: strings.Trim(opts.TempPrefix, "/"),
		resolver:   opts.Resolver,
		logger:     logging.OrDiscard(opts.Logger),
		metrics:    opts.Metrics,
	}
}

// loadOwned fetches a post and checks that ownerID owns it.
func (e *Engine) loadOwned(ctx context.Context, ownerID, postID int) (*models.Post, error) {
	post, err := e.repo.FindPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	return post, nil
}

// Get returns a post if viewerID may read it. Posts that are drafts or not
// public are visible to their owner only; to anyone else they do not exist.
// viewerID is 0 for anonymous callers.
func (e *Engine) Get(ctx context.Context, viewerID, postID int) (*models.Post, error) {
	post, err := e.repo.FindPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.OwnerID != viewerID && !post.IsPubliclyVisible() {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// Create stores a new draft. Drafts start PRIVATE without images.
func (e *Engine) Create(ctx context.Context, ownerID int, req DraftRequest) (*models.Post, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEdit)
	}
	post := &models.Post{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		Visibility:  models.VisibilityPrivate,
		IsDraft:     true,
		OwnerID:     ownerID,
	}
	if err := e.repo.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	e.logger.Info("draft created", slog.Int("post_id", post.ID), slog.Int("owner_id", ownerID))
	return post, nil
}

// Delete removes a post and then, best effort, its stored assets.
func (e *Engine) Delete(ctx context.Context, ownerID, postID int) error {
	post, err := e.loadOwned(ctx, ownerID, postID)
	if err != nil {
		return err
	}
	if err := e.repo.DeletePost(ctx, post.ID); err != nil {
		return err
	}

	keys := make([]string, 0, len(post.Images))
	for _, img := range post.Images {
		keys = append(keys, existingKey(img, e.resolver))
	}
	if _, err := e.lifecycle.Settle(ctx, storage.Plan{
		Target: storage.Target{OwnerID: ownerID, PostID: post.ID, Visibility: post.Visibility},
		Delete: keys,
	}); err != nil {
		e.logger.Warn("post deleted but asset cleanup timed out",
			slog.Int("post_id", post.ID),
			slog.String("error", err.Error()))
	}
	return nil
}

// Edit reconciles req against the persisted post and commits the result.
//
// Storage work (promoting new uploads, deleting removed images) finishes
// before the transaction opens. It is not undone if the transaction fails;
// the window is logged and left to the periodic storage audit.
func (e *Engine) Edit(ctx context.Context, ownerID, postID int, req EditRequest) (*models.Post, EditReport, error) {
	start := time.Now()
	report := EditReport{State: StateReceived}
	logger := e.logger.With(slog.Int("post_id", postID), slog.Int("owner_id", ownerID))
	logger.Info("edit received", slog.Int("images", len(req.Images)))

	post, err := e.edit(ctx, logger, ownerID, postID, req, &report)
	if err != nil {
		logger.Error("edit failed",
			slog.String("after", string(report.State)),
			slog.String("error", err.Error()))
		report.State = StateFailed
		e.metrics.ObserveEdit(string(StateFailed), time.Since(start))
		return nil, report, err
	}

	report.State = StateCommitted
	logger.Info("edit committed",
		slog.Int("kept", report.Kept),
		slog.Int("added", report.Added),
		slog.Int("deleted", report.Deleted),
		slog.Int("relocated", report.Relocated),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("promote_failures", len(report.PromoteFailures)),
		slog.Int("delete_failures", len(report.DeleteFailures)),
		slog.Int("relocate_failures", len(report.RelocateFailures)),
		slog.String("cover_source", report.CoverSource))
	e.metrics.ObserveEdit(string(StateCommitted), time.Since(start))
	return post, report, nil
}

func (e *Engine) edit(ctx context.Context, logger *slog.Logger, ownerID, postID int, req EditRequest, report *EditReport) (*models.Post, error) {
	requested, err := models.ParseVisibility(req.Visibility)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEdit)
	}

	post, err := e.loadOwned(ctx, ownerID, postID)
	if err != nil {
		return nil, err
	}

	diff := diffImages(post.Images, req.Images, e.resolver, logger)
	report.Skipped = append(report.Skipped, diff.Invalid...)

	// Only the caller's own staging uploads can be promoted.
	promotable := make([]incomingImage, 0, len(diff.New))
	for _, img := range diff.New {
		if !assets.IsOwnedTempKey(img.Key, e.tempPrefix, ownerID) {
			logger.Warn("skipping image outside the caller's upload area",
				slog.String("key", img.Key),
				slog.String("error", assets.ErrInvalidAssetReference.Error()))
			report.Skipped = append(report.Skipped, img.URL)
			continue
		}
		promotable = append(promotable, img)
	}
	report.State = StateDiffed

	visibility := resolveVisibility(req.IsDraft, requested)
	report.Visibility = visibility

	plan := storage.Plan{
		Target: storage.Target{OwnerID: ownerID, PostID: post.ID, Visibility: visibility},
	}
	for _, img := range promotable {
		plan.Promote = append(plan.Promote, img.Key)
	}
	for _, img := range diff.Deleted {
		plan.Delete = append(plan.Delete, existingKey(img, e.resolver))
	}
	for _, k := range diff.Kept {
		plan.Keep = append(plan.Keep, existingKey(k.Existing, e.resolver))
	}

	settled, err := e.lifecycle.Settle(ctx, plan)
	if err != nil {
		logStorageWindow(logger, "storage phase timed out after partial changes; left for audit", plan, settled)
		return nil, err
	}
	report.State = StateStorageSettled
	report.PromoteFailures = sortedKeys(settled.PromoteFailures)
	report.DeleteFailures = sortedKeys(settled.DeleteFailures)
	report.RelocateFailures = sortedKeys(settled.RelocateFailures)

	// Kept images that moved to the new scope carry their new address from
	// here on, so cover resolution and the changeset both see it.
	moved := make(map[string]string, len(settled.Relocated))
	for i := range diff.Kept {
		existing := &diff.Kept[i].Existing
		oldKey := existingKey(*existing, e.resolver)
		canonical, ok := settled.Relocated[oldKey]
		if !ok {
			continue
		}
		newKey, err := e.resolver.Normalize(canonical)
		if err != nil {
			logger.Warn("relocated image has an unusable URL", slog.String("url", canonical))
			continue
		}
		moved[oldKey] = canonical
		existing.URL, existing.StorageKey = canonical, newKey
	}

	cs := Changeset{
		PostID:      post.ID,
		OwnerID:     ownerID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		Visibility:  visibility,
		IsDraft:     req.IsDraft,
	}
	if cs.Tags == nil {
		cs.Tags = []string{}
	}

	for _, img := range diff.Deleted {
		cs.DeleteKeys = append(cs.DeleteKeys, existingKey(img, e.resolver))
	}
	for _, img := range promotable {
		canonical, ok := settled.Promoted[img.Key]
		if !ok {
			continue
		}
		key, err := e.resolver.Normalize(canonical)
		if err != nil {
			logger.Warn("promoted image has an unusable URL", slog.String("url", canonical))
			continue
		}
		cs.Insert = append(cs.Insert, models.Image{
			PostID:      post.ID,
			URL:         canonical,
			StorageKey:  key,
			Description: img.Description,
			Position:    img.Position,
		})
	}
	for _, k := range diff.Kept {
		_, relocated := moved[k.Incoming.Key]
		if !relocated && sameString(k.Existing.Description, k.Incoming.Description) && k.Existing.Position == k.Incoming.Position {
			continue
		}
		u := ImageUpdate{
			ID:          k.Existing.ID,
			Description: k.Incoming.Description,
			Position:    k.Incoming.Position,
		}
		if relocated {
			u.URL, u.StorageKey = k.Existing.URL, k.Existing.StorageKey
		}
		cs.Update = append(cs.Update, u)
	}

	cs.CoverImage, report.CoverSource = resolveCover(coverInput{
		Requested: req.CoverImageURL,
		Kept:      diff.Kept,
		Promoted:  settled.Promoted,
		Previous:  e.followMove(post.CoverImage, moved),
		Resolver:  e.resolver,
	})
	report.Cover = cs.CoverImage
	if report.CoverSource == coverSourceUnresolved {
		logger.Warn("requested cover could not be resolved, keeping previous cover",
			slog.String("requested", *req.CoverImageURL))
	}

	report.Kept = len(diff.Kept)
	report.Added = len(cs.Insert)
	report.Deleted = len(cs.DeleteKeys)
	report.Relocated = len(moved)

	updated, err := e.repo.ApplyEdit(ctx, cs)
	if err != nil {
		logStorageWindow(logger, "storage changed but the database did not; left for audit", plan, settled)
		if errors.Is(err, ErrPostNotFound) {
			return nil, err
		}
		if !errors.Is(err, ErrTransactionFailed) {
			err = fmt.Errorf("%w: %w", ErrTransactionFailed, err)
		}
		return nil, err
	}
	return updated, nil
}

// followMove rewrites a cover that pointed at a relocated image.
func (e *Engine) followMove(cover *string, moved map[string]string) *string {
	if cover == nil || len(moved) == 0 {
		return cover
	}
	key, err := e.resolver.Normalize(*cover)
	if err != nil {
		return cover
	}
	if canonical, ok := moved[key]; ok {
		return &canonical
	}
	return cover
}

// logStorageWindow records storage changes that no committed row reflects.
func logStorageWindow(logger *slog.Logger, msg string, plan storage.Plan, settled storage.Settlement) {
	var deleted []string
	for _, key := range plan.Delete {
		if _, failed := settled.DeleteFailures[key]; !failed {
			deleted = append(deleted, key)
		}
	}
	if len(settled.Promoted) == 0 && len(settled.Relocated) == 0 && len(deleted) == 0 {
		return
	}
	logger.Error(msg,
		slog.Any("promoted", settled.Promoted),
		slog.Any("relocated", settled.Relocated),
		slog.Any("deleted", deleted))
}

func sortedKeys(m map[string]error) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
