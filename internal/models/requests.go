package models

// CreatePostRequest represents a request to create a job posting
type CreatePostRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"required_skills"`
	Budget         float64  `json:"budget"`
	Duration       string   `json:"duration"`
	CategoryID     string   `json:"category_id,omitempty"`
}

// ApplyRequest represents a freelancer's bid on a post
type ApplyRequest struct {
	CV          string  `json:"cv"`
	CoverLetter string  `json:"cover_letter"`
	BidAmount   float64 `json:"bid_amount"`
}

// UpdateApplicationRequest carries the editable application fields.
// Nil fields are left unchanged.
type UpdateApplicationRequest struct {
	CV          *string  `json:"cv,omitempty"`
	CoverLetter *string  `json:"cover_letter,omitempty"`
	BidAmount   *float64 `json:"bid_amount,omitempty"`
}

// DecisionRequest represents a client's decision on an application
type DecisionRequest struct {
	Decision ApplicationStatus `json:"decision"`
}

// SubmitFinalizationRequest represents a delivery submitted by the accepted freelancer
type SubmitFinalizationRequest struct {
	Files       []string `json:"files"`
	Description string   `json:"description"`
}

// InitiatePaymentRequest represents a client paying for a post
type InitiatePaymentRequest struct {
	Amount float64 `json:"amount"`
}

// ReviewRequest represents a rating for the counterparty of a completed post
type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}
