package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/terra-clan/gigboard/internal/models"
)

const maxCommentLength = 2000

// LeaveReview records a rating from one side of a completed project for the other
func (e *Engine) LeaveReview(ctx context.Context, actor models.Actor, postID string, req models.ReviewRequest) (*models.Post, error) {
	return run(ctx, e, "leave_review", func(ctx context.Context) (*models.Post, error) {
		if req.Rating < 1 || req.Rating > 5 {
			return nil, invalid("rating must be between 1 and 5")
		}
		comment := strings.TrimSpace(req.Comment)
		if len(comment) > maxCommentLength {
			return nil, invalid("comment must be at most %d characters", maxCommentLength)
		}

		p, err := e.loadPost(ctx, postID)
		if err != nil {
			return nil, err
		}

		accepted := p.AcceptedApplication()
		var subjectID string
		switch {
		case actor.ID == p.ClientID && accepted != nil:
			subjectID = accepted.FreelancerID
		case p.IsAcceptedFreelancer(actor.ID):
			subjectID = p.ClientID
		default:
			return nil, forbidden("only the client and the hired freelancer can review this project")
		}
		if p.Status != models.PostCompleted {
			return nil, conflict("post %s is not completed", postID)
		}
		if p.ReviewByAuthor(actor.ID) != nil {
			return nil, conflict("you have already reviewed post %s", postID)
		}

		expected := p.Version
		next := p.Clone()
		review := models.Review{
			ID:        e.newID(),
			AuthorID:  actor.ID,
			SubjectID: subjectID,
			Rating:    req.Rating,
			Comment:   comment,
			CreatedAt: e.now(),
		}
		next.Reviews = append(next.Reviews, review)

		if err := e.savePost(ctx, next, expected); err != nil {
			return nil, err
		}

		slog.Info("review left", "post_id", postID, "author", actor.ID, "rating", req.Rating)
		e.emit(ctx, subjectID, actor.ID, postID, models.KindReviewReceived,
			fmt.Sprintf("You received a %d-star review for %q", req.Rating, next.Title))
		return next, nil
	}, attribute.String("post_id", postID))
}
