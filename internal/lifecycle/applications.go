package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/terra-clan/gigboard/internal/models"
)

// Apply adds a pending application from a freelancer to an open post
func (e *Engine) Apply(ctx context.Context, actor models.Actor, postID string, req models.ApplyRequest) (*models.Post, error) {
	return run(ctx, e, "apply", func(ctx context.Context) (*models.Post, error) {
		if !actor.IsFreelancer() {
			return nil, forbidden("only freelancers can apply")
		}

		cv := strings.TrimSpace(req.CV)
		coverLetter := strings.TrimSpace(req.CoverLetter)
		switch {
		case cv == "":
			return nil, invalid("cv is required")
		case coverLetter == "":
			return nil, invalid("cover letter is required")
		case !validAmount(req.BidAmount):
			return nil, invalid("bid amount must be a positive number")
		}

		p, err := e.loadPost(ctx, postID)
		if err != nil {
			return nil, err
		}
		if p.ClientID == actor.ID {
			return nil, forbidden("cannot apply to your own post")
		}
		if p.AcceptedApplication() != nil {
			return nil, conflict("post %s already has an accepted application", postID)
		}
		if p.Status != models.PostOpen {
			return nil, conflict("post %s is not open for applications", postID)
		}
		if p.ApplicationByFreelancer(actor.ID) != nil {
			return nil, conflict("you have already applied to post %s", postID)
		}

		expected := p.Version
		next := p.Clone()
		now := e.now()
		app := models.Application{
			ID:           e.newID(),
			FreelancerID: actor.ID,
			CV:           cv,
			CoverLetter:  coverLetter,
			BidAmount:    req.BidAmount,
			Status:       models.ApplicationPending,
			AppliedAt:    now,
			UpdatedAt:    now,
		}
		next.Applications = append(next.Applications, app)

		if err := e.savePost(ctx, next, expected); err != nil {
			return nil, err
		}

		slog.Info("application submitted",
			"post_id", postID,
			"application_id", app.ID,
			"freelancer", actor.ID,
		)
		e.emit(ctx, next.ClientID, actor.ID, postID, models.KindApplicationReceived,
			fmt.Sprintf("New application for %q", next.Title))
		return next, nil
	}, attribute.String("post_id", postID))
}

// UpdateApplication edits a pending application. Only its freelancer may edit it.
func (e *Engine) UpdateApplication(ctx context.Context, actor models.Actor, postID, applicationID string, req models.UpdateApplicationRequest) (*models.Post, error) {
	return run(ctx, e, "update_application", func(ctx context.Context) (*models.Post, error) {
		if req.CV == nil && req.CoverLetter == nil && req.BidAmount == nil {
			return nil, invalid("nothing to update")
		}
		if req.CV != nil && strings.TrimSpace(*req.CV) == "" {
			return nil, invalid("cv cannot be empty")
		}
		if req.CoverLetter != nil && strings.TrimSpace(*req.CoverLetter) == "" {
			return nil, invalid("cover letter cannot be empty")
		}
		if req.BidAmount != nil && !validAmount(*req.BidAmount) {
			return nil, invalid("bid amount must be a positive number")
		}

		p, err := e.loadPost(ctx, postID)
		if err != nil {
			return nil, err
		}
		app := p.ApplicationByID(applicationID)
		if app == nil {
			return nil, notFound("application %s not found", applicationID)
		}
		if app.FreelancerID != actor.ID {
			return nil, forbidden("only the applicant can edit this application")
		}
		if app.Status != models.ApplicationPending {
			return nil, conflict("application %s has already been %s", applicationID, app.Status)
		}

		expected := p.Version
		next := p.Clone()
		target := next.ApplicationByID(applicationID)
		if req.CV != nil {
			target.CV = strings.TrimSpace(*req.CV)
		}
		if req.CoverLetter != nil {
			target.CoverLetter = strings.TrimSpace(*req.CoverLetter)
		}
		if req.BidAmount != nil {
			target.BidAmount = *req.BidAmount
		}
		target.UpdatedAt = e.now()

		if err := e.savePost(ctx, next, expected); err != nil {
			return nil, err
		}

		slog.Info("application updated", "post_id", postID, "application_id", applicationID)
		return next, nil
	}, attribute.String("post_id", postID), attribute.String("application_id", applicationID))
}

// DecideApplication accepts or rejects a pending application. Accepting
// staffs the post and moves it to in-progress; at most one application
// per post is ever accepted.
func (e *Engine) DecideApplication(ctx context.Context, actor models.Actor, postID, applicationID string, decision models.ApplicationStatus) (*models.Post, error) {
	return run(ctx, e, "decide_application", func(ctx context.Context) (*models.Post, error) {
		if decision != models.ApplicationAccepted && decision != models.ApplicationRejected {
			return nil, invalid("decision must be %q or %q", models.ApplicationAccepted, models.ApplicationRejected)
		}

		p, err := e.loadPost(ctx, postID)
		if err != nil {
			return nil, err
		}
		if p.ClientID != actor.ID {
			return nil, forbidden("only the post owner can decide applications")
		}
		app := p.ApplicationByID(applicationID)
		if app == nil {
			return nil, notFound("application %s not found", applicationID)
		}
		if app.Status != models.ApplicationPending {
			return nil, conflict("application %s has already been %s", applicationID, app.Status)
		}
		if decision == models.ApplicationAccepted && p.AcceptedApplication() != nil {
			return nil, conflict("post %s already has an accepted application", postID)
		}

		expected := p.Version
		next := p.Clone()
		target := next.ApplicationByID(applicationID)
		target.Status = decision
		target.UpdatedAt = e.now()
		if decision == models.ApplicationAccepted {
			next.Status = models.PostInProgress
		}

		if err := e.savePost(ctx, next, expected); err != nil {
			return nil, err
		}

		slog.Info("application decided",
			"post_id", postID,
			"application_id", applicationID,
			"decision", decision,
		)
		if decision == models.ApplicationAccepted {
			e.emit(ctx, target.FreelancerID, actor.ID, postID, models.KindApplicationAccepted,
				fmt.Sprintf("Your application for %q was accepted", next.Title))
		} else {
			e.emit(ctx, target.FreelancerID, actor.ID, postID, models.KindApplicationRejected,
				fmt.Sprintf("Your application for %q was rejected", next.Title))
		}
		return next, nil
	}, attribute.String("post_id", postID), attribute.String("application_id", applicationID))
}
