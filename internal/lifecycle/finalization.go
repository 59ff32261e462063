package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/terra-clan/gigboard/internal/models"
)

// SubmitFinalization hands the delivery to the client: pending -> submitted
func (e *Engine) SubmitFinalization(ctx context.Context, actor models.Actor, postID string, req models.SubmitFinalizationRequest) (*models.Post, error) {
	return run(ctx, e, "submit_finalization", func(ctx context.Context) (*models.Post, error) {
		files := cleanList(req.Files)
		description := strings.TrimSpace(req.Description)
		if len(files) == 0 && description == "" {
			return nil, invalid("at least one file or a description is required")
		}

		p, err := e.loadPost(ctx, postID)
		if err != nil {
			return nil, err
		}
		if !p.IsAcceptedFreelancer(actor.ID) {
			return nil, forbidden("only the accepted freelancer can submit the delivery")
		}
		if p.Finalization.Status != models.FinalizationPending {
			return nil, conflict("finalization of post %s is %s", postID, p.Finalization.Status)
		}

		expected := p.Version
		next := p.Clone()
		now := e.now()
		next.Finalization.Status = models.FinalizationSubmitted
		next.Finalization.Files = files
		next.Finalization.Description = description
		next.Finalization.SubmittedAt = &now

		if err := e.savePost(ctx, next, expected); err != nil {
			return nil, err
		}

		slog.Info("finalization submitted", "post_id", postID, "freelancer", actor.ID, "files", len(files))
		e.emit(ctx, next.ClientID, actor.ID, postID, models.KindFinalizationSubmitted,
			fmt.Sprintf("Delivery submitted for %q", next.Title))
		return next, nil
	}, attribute.String("post_id", postID))
}

// AcceptFinalization completes the delivery and the post in one write
func (e *Engine) AcceptFinalization(ctx context.Context, actor models.Actor, postID string) (*models.Post, error) {
	return run(ctx, e, "accept_finalization", func(ctx context.Context) (*models.Post, error) {
		p, err := e.loadSubmitted(ctx, actor, postID)
		if err != nil {
			return nil, err
		}

		expected := p.Version
		next := p.Clone()
		now := e.now()
		next.Finalization.Status = models.FinalizationCompleted
		next.Finalization.CompletedAt = &now
		next.Status = models.PostCompleted

		if err := e.savePost(ctx, next, expected); err != nil {
			return nil, err
		}

		slog.Info("finalization accepted", "post_id", postID, "client", actor.ID)
		if accepted := next.AcceptedApplication(); accepted != nil {
			e.emit(ctx, accepted.FreelancerID, actor.ID, postID, models.KindFinalizationAccepted,
				fmt.Sprintf("Your delivery for %q was accepted", next.Title))
		}
		return next, nil
	}, attribute.String("post_id", postID))
}

// RejectFinalization sends the delivery back for rework: submitted -> pending.
// Submitted files and description are cleared.
func (e *Engine) RejectFinalization(ctx context.Context, actor models.Actor, postID string) (*models.Post, error) {
	return run(ctx, e, "reject_finalization", func(ctx context.Context) (*models.Post, error) {
		p, err := e.loadSubmitted(ctx, actor, postID)
		if err != nil {
			return nil, err
		}

		expected := p.Version
		next := p.Clone()
		next.Finalization = models.NewFinalization()

		if err := e.savePost(ctx, next, expected); err != nil {
			return nil, err
		}

		slog.Info("finalization rejected", "post_id", postID, "client", actor.ID)
		if accepted := next.AcceptedApplication(); accepted != nil {
			e.emit(ctx, accepted.FreelancerID, actor.ID, postID, models.KindFinalizationRejected,
				fmt.Sprintf("Your delivery for %q needs rework", next.Title))
		}
		return next, nil
	}, attribute.String("post_id", postID))
}

// loadSubmitted loads a post whose delivery awaits the actor's decision
func (e *Engine) loadSubmitted(ctx context.Context, actor models.Actor, postID string) (*models.Post, error) {
	p, err := e.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.ClientID != actor.ID {
		return nil, forbidden("only the post owner can review the delivery")
	}
	if p.Finalization.Status != models.FinalizationSubmitted {
		return nil, conflict("finalization of post %s is %s", postID, p.Finalization.Status)
	}
	return p, nil
}
