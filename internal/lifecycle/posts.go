package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/terra-clan/gigboard/internal/models"
	"github.com/terra-clan/gigboard/internal/storage"
)

const maxListLimit = 100

// CreatePost creates an open post owned by a client
func (e *Engine) CreatePost(ctx context.Context, actor models.Actor, req models.CreatePostRequest) (*models.Post, error) {
	return run(ctx, e, "create_post", func(ctx context.Context) (*models.Post, error) {
		if !actor.IsClient() {
			return nil, forbidden("only clients can create posts")
		}

		title := strings.TrimSpace(req.Title)
		description := strings.TrimSpace(req.Description)
		duration := strings.TrimSpace(req.Duration)
		switch {
		case title == "":
			return nil, invalid("title is required")
		case description == "":
			return nil, invalid("description is required")
		case !validAmount(req.Budget):
			return nil, invalid("budget must be a positive number")
		case duration == "":
			return nil, invalid("duration is required")
		}
		if req.CategoryID != "" && e.categories != nil && !e.categories.Has(req.CategoryID) {
			return nil, invalid("unknown category %q", req.CategoryID)
		}

		now := e.now()
		p := &models.Post{
			ID:             e.newID(),
			Title:          title,
			Description:    description,
			RequiredSkills: cleanList(req.RequiredSkills),
			Budget:         req.Budget,
			Duration:       duration,
			ClientID:       actor.ID,
			CategoryID:     req.CategoryID,
			Status:         models.PostOpen,
			Applications:   []models.Application{},
			Finalization:   models.NewFinalization(),
			Reviews:        []models.Review{},
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := e.repo.CreatePost(ctx, p); err != nil {
			return nil, e.storeErr(err, p.ID, "failed to create post")
		}

		slog.Info("post created", "post_id", p.ID, "client", actor.ID)
		return p, nil
	})
}

// GetPost returns a post by id
func (e *Engine) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	return run(ctx, e, "get_post", func(ctx context.Context) (*models.Post, error) {
		return e.loadPost(ctx, postID)
	}, attribute.String("post_id", postID))
}

// ListPosts returns posts matching filters
func (e *Engine) ListPosts(ctx context.Context, filters models.PostFilters) ([]*models.Post, error) {
	return run(ctx, e, "list_posts", func(ctx context.Context) ([]*models.Post, error) {
		if filters.Limit <= 0 || filters.Limit > maxListLimit {
			filters.Limit = maxListLimit
		}
		if filters.Offset < 0 {
			filters.Offset = 0
		}

		posts, err := e.repo.ListPosts(ctx, filters)
		if err != nil {
			slog.Error("failed to list posts", "error", err)
			return nil, unavailable(err, "failed to list posts")
		}
		if posts == nil {
			posts = []*models.Post{}
		}
		return posts, nil
	})
}

// DeletePost removes a post. A project that is staffed but not yet both
// completed and paid cannot be deleted, and neither can a post that has
// payment records.
func (e *Engine) DeletePost(ctx context.Context, actor models.Actor, postID string) error {
	_, err := run(ctx, e, "delete_post", func(ctx context.Context) (struct{}, error) {
		p, err := e.loadPost(ctx, postID)
		if err != nil {
			return struct{}{}, err
		}
		if p.ClientID != actor.ID {
			return struct{}{}, forbidden("only the post owner can delete it")
		}
		if p.AcceptedApplication() != nil && !(p.Status == models.PostCompleted && p.Paid) {
			return struct{}{}, conflict("post %s has a project in progress", postID)
		}

		if err := e.repo.DeletePost(ctx, postID, p.Version); err != nil {
			if errors.Is(err, storage.ErrHasPayments) {
				return struct{}{}, conflict("post %s has payment records", postID)
			}
			return struct{}{}, e.storeErr(err, postID, "failed to delete post")
		}

		slog.Info("post deleted", "post_id", postID, "client", actor.ID)
		return struct{}{}, nil
	}, attribute.String("post_id", postID))
	return err
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// sameAmount compares money values to the cent
func sameAmount(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
