package models

import (
	"time"
)

// PostStatus represents the lifecycle state of a job posting
type PostStatus string

const (
	PostOpen       PostStatus = "open"
	PostInProgress PostStatus = "in-progress"
	PostCompleted  PostStatus = "completed"
	// PostClosed is kept for stored legacy rows only. No transition produces it.
	PostClosed PostStatus = "closed"
)

// IsTerminal returns true if the post can no longer change state
func (s PostStatus) IsTerminal() bool {
	return s == PostCompleted || s == PostClosed
}

// ApplicationStatus represents the state of a freelancer's bid
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// FinalizationStatus represents the state of the delivery sub-flow
type FinalizationStatus string

const (
	FinalizationPending   FinalizationStatus = "pending"   // Waiting for delivery (or rework)
	FinalizationSubmitted FinalizationStatus = "submitted" // Delivered, waiting for the client
	FinalizationCompleted FinalizationStatus = "completed" // Accepted by the client
)

// Post is a job listing created by a client. It is the aggregate root:
// applications, finalization and reviews are persisted with it in one write.
type Post struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	RequiredSkills []string      `json:"required_skills"`
	Budget         float64       `json:"budget"`
	Duration       string        `json:"duration"`
	ClientID       string        `json:"client_id"`
	CategoryID     string        `json:"category_id,omitempty"`
	Status         PostStatus    `json:"status"`
	Paid           bool          `json:"paid"`
	Applications   []Application `json:"applications"`
	Finalization   Finalization  `json:"finalization"`
	Reviews        []Review      `json:"reviews"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Application is a freelancer's bid, embedded in a Post.
// Its ID is only unique within the owning Post.
type Application struct {
	ID           string            `json:"id"`
	FreelancerID string            `json:"freelancer_id"`
	CV           string            `json:"cv"`
	CoverLetter  string            `json:"cover_letter"`
	BidAmount    float64           `json:"bid_amount"`
	Status       ApplicationStatus `json:"status"`
	AppliedAt    time.Time         `json:"applied_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Finalization is the delivery record of a Post
type Finalization struct {
	Status      FinalizationStatus `json:"status"`
	Files       []string           `json:"files"`
	Description string             `json:"description"`
	SubmittedAt *time.Time         `json:"submitted_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Review is a rating left by one side of a completed project for the other
type Review struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	SubjectID string    `json:"subject_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewFinalization returns the implicit finalization every new Post starts with
func NewFinalization() Finalization {
	return Finalization{
		Status: FinalizationPending,
		Files:  []string{},
	}
}

// AcceptedApplication returns the accepted application, if any
func (p *Post) AcceptedApplication() *Application {
	for i := range p.Applications {
		if p.Applications[i].Status == ApplicationAccepted {
			return &p.Applications[i]
		}
	}
	return nil
}

// ApplicationByID returns the application with the given local id
func (p *Post) ApplicationByID(id string) *Application {
	for i := range p.Applications {
		if p.Applications[i].ID == id {
			return &p.Applications[i]
		}
	}
	return nil
}

// ApplicationByFreelancer returns the application submitted by the given freelancer
func (p *Post) ApplicationByFreelancer(freelancerID string) *Application {
	for i := range p.Applications {
		if p.Applications[i].FreelancerID == freelancerID {
			return &p.Applications[i]
		}
	}
	return nil
}

// ReviewByAuthor returns the review left by the given author
func (p *Post) ReviewByAuthor(authorID string) *Review {
	for i := range p.Reviews {
		if p.Reviews[i].AuthorID == authorID {
			return &p.Reviews[i]
		}
	}
	return nil
}

// IsAcceptedFreelancer reports whether userID holds the accepted application
func (p *Post) IsAcceptedFreelancer(userID string) bool {
	accepted := p.AcceptedApplication()
	return accepted != nil && accepted.FreelancerID == userID
}

// Clone returns a deep copy of the post
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	out := *p
	out.RequiredSkills = append([]string(nil), p.RequiredSkills...)
	out.Applications = append([]Application(nil), p.Applications...)
	out.Reviews = append([]Review(nil), p.Reviews...)
	out.Finalization.Files = append([]string(nil), p.Finalization.Files...)
	if p.Finalization.SubmittedAt != nil {
		t := *p.Finalization.SubmittedAt
		out.Finalization.SubmittedAt = &t
	}
	if p.Finalization.CompletedAt != nil {
		t := *p.Finalization.CompletedAt
		out.Finalization.CompletedAt = &t
	}
	return &out
}

// PostFilters defines filters for listing posts
type PostFilters struct {
	Status   PostStatus
	ClientID string
	Skill    string
	Limit    int
	Offset   int
}
