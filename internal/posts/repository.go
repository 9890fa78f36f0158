package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/emilythestrangee/posts/backend/internal/database"
	"github.com/emilythestrangee/posts/backend/internal/logging"
	"github.com/emilythestrangee/posts/backend/internal/metrics"
	"github.com/emilythestrangee/posts/backend/internal/models"
)

const uniqueViolation = "23505"

// Store is the gorm-backed Repository.
type Store struct {
	db        *gorm.DB
	txTimeout time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewStore(db *gorm.DB, txTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Store {
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	return &Store{db: db, txTimeout: txTimeout, logger: logging.OrDiscard(logger), metrics: m}
}

func (s *Store) FindPost(ctx context.Context, postID int) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc, id asc")
		}).
		First(&post, postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading post %d: %w", postID, err)
	}
	return &post, nil
}

func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("error creating post: %w", err)
	}
	return nil
}

// withTx bounds fn by the transaction timeout. Cancellation of ctx is not
// propagated: once started, a transaction commits or rolls back on its own.
func (s *Store) withTx(ctx context.Context, reason string, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	err := database.WithTx(ctx, s.db, s.logger, reason, fn)
	s.metrics.ObserveTransaction(reason, err)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPostNotFound) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		s.logger.Warn("unique constraint violated",
			slog.String("tx", reason),
			slog.String("constraint", pgErr.ConstraintName))
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
}

// ApplyEdit deletes removed images, updates the post row, inserts promoted
// images and updates changed kept images, all in one transaction.
func (s *Store) ApplyEdit(ctx context.Context, cs Changeset) (*models.Post, error) {
	err := s.withTx(ctx, "edit post", func(tx *gorm.DB) error {
		if len(cs.DeleteKeys) > 0 {
			if err := tx.Where("post_id = ? AND storage_key IN ?", cs.PostID, cs.DeleteKeys).
				Delete(&models.Image{}).Error; err != nil {
				return fmt.Errorf("delete images: %w", err)
			}
		}

		res := tx.Model(&models.Post{}).
			Where("id = ? AND owner_id = ?", cs.PostID, cs.OwnerID).
			Updates(map[string]any{
				"title":       cs.Title,
				"description": cs.Description,
				"category":    cs.Category,
				"tags":        pq.StringArray(cs.Tags),
				"visibility":  string(cs.Visibility),
				"is_draft":    cs.IsDraft,
				"cover_image": cs.CoverImage,
				"updated_at":  time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("update post: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPostNotFound
		}

		if len(cs.Insert) > 0 {
			if err := tx.Create(&cs.Insert).Error; err != nil {
				return fmt.Errorf("insert images: %w", err)
			}
		}

		for _, u := range cs.Update {
			fields := map[string]any{
				"description": u.Description,
				"position":    u.Position,
				"updated_at":  time.Now().UTC(),
			}
			if u.StorageKey != "" {
				fields["url"] = u.URL
				fields["storage_key"] = u.StorageKey
			}
			if err := tx.Model(&models.Image{}).
				Where("id = ? AND post_id = ?", u.ID, cs.PostID).
				Updates(fields).Error; err != nil {
				return fmt.Errorf("update image %d: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.FindPost(ctx, cs.PostID)
}

func (s *Store) DeletePost(ctx context.Context, postID int) error {
	return s.withTx(ctx, "delete post", func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.Image{}).Error; err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		res := tx.Delete(&models.Post{}, postID)
		if res.Error != nil {
			return fmt.Errorf("delete post: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPostNotFound
		}
		return nil
	})
}
