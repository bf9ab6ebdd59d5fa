// Package repository provides persistence for the enrolled gallery and
// attendance records, with a Redis cache in front of the gallery load.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-attendance/internal/gallery"
)

const galleryCacheKey = "attendance:gallery:active"

// StudentRepository provides persistence APIs for enrolled students.
type StudentRepository struct {
	db           *gorm.DB
	cache        Cache
	logger       *zap.Logger
	retrier      retrier
	embeddingDim int
	cacheTTL     time.Duration
}

// NewStudentRepository creates a new repository instance.
func NewStudentRepository(db *gorm.DB, cache Cache, embeddingDim int, cacheTTL time.Duration, logger *zap.Logger) *StudentRepository {
	return &StudentRepository{
		db:           db,
		cache:        cache,
		logger:       logger.Named("student_repository"),
		retrier:      newRetrier(logger),
		embeddingDim: embeddingDim,
		cacheTTL:     cacheTTL,
	}
}

// AutoMigrate ensures the schema is available.
func (r *StudentRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Student{}, &AttendanceRecord{})
}

// LoadActiveGallery returns the matching gallery for all active
// students. The snapshot is served from Redis when fresh; a session
// holds the returned snapshot unchanged for its lifetime.
func (r *StudentRepository) LoadActiveGallery(ctx context.Context, sessionID string) (*gallery.Snapshot, error) {
	if cached, err := r.cache.Get(ctx, galleryCacheKey); err == nil {
		var entries []gallery.Entry
		if err := json.Unmarshal([]byte(cached), &entries); err == nil {
			return gallery.NewSnapshot(entries), nil
		}
		r.logger.Warn("discarding corrupt gallery cache entry")
	} else if !IsCacheMiss(err) {
		r.logger.Warn("gallery cache unavailable, reading database", zap.Error(err))
	}

	var students []Student
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Find(&students).Error; err != nil {
		return nil, fmt.Errorf("load active students: %w", err)
	}

	entries := make([]gallery.Entry, 0, len(students))
	for _, s := range students {
		vec, err := DecodeEmbedding(s.Embedding, r.embeddingDim)
		if err != nil {
			// A bad row must not take the whole gallery down.
			r.logger.Warn("skipping student with invalid embedding",
				zap.Int64("student_id", s.ID), zap.Error(err))
			continue
		}
		entries = append(entries, gallery.Entry{
			IdentityID: s.ID,
			Name:       s.Name,
			Code:       s.Code,
			Embedding:  vec,
		})
	}

	if payload, err := json.Marshal(entries); err == nil {
		if err := r.retrier.execute(ctx, "cache.set.gallery", sessionID, func() error {
			return r.cache.Set(ctx, galleryCacheKey, payload, r.cacheTTL)
		}); err != nil {
			r.logger.Warn("failed to cache gallery snapshot", zap.Error(err))
		}
	}

	return gallery.NewSnapshot(entries), nil
}

// InvalidateGallery drops the cached snapshot so the next session sees
// enrollment changes immediately.
func (r *StudentRepository) InvalidateGallery(ctx context.Context) error {
	return r.cache.Del(ctx, galleryCacheKey)
}

// ListStudents returns all students, active and inactive.
func (r *StudentRepository) ListStudents(ctx context.Context) ([]Student, error) {
	var students []Student
	if err := r.db.WithContext(ctx).Order("id").Find(&students).Error; err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// CreateStudent enrolls a new identity and invalidates the cached
// gallery so the next session picks it up.
func (r *StudentRepository) CreateStudent(ctx context.Context, name, code, email string, embedding []float32) (*Student, error) {
	if r.embeddingDim > 0 && len(embedding) != r.embeddingDim {
		return nil, fmt.Errorf("embedding has %d components, expected %d", len(embedding), r.embeddingDim)
	}

	student := &Student{
		Name:      name,
		Code:      code,
		Email:     email,
		Embedding: EncodeEmbedding(embedding),
		IsActive:  true,
	}
	if err := r.db.WithContext(ctx).Create(student).Error; err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}

	if err := r.InvalidateGallery(ctx); err != nil {
		r.logger.Warn("failed to invalidate gallery cache after enrollment", zap.Error(err))
	}
	return student, nil
}
