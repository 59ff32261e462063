package models

import (
	"time"
)

// NotificationKind identifies the lifecycle event a notification reports
type NotificationKind string

const (
	KindApplicationReceived   NotificationKind = "application_received"
	KindApplicationAccepted   NotificationKind = "application_accepted"
	KindApplicationRejected   NotificationKind = "application_rejected"
	KindFinalizationSubmitted NotificationKind = "finalization_submitted"
	KindFinalizationAccepted  NotificationKind = "finalization_accepted"
	KindFinalizationRejected  NotificationKind = "finalization_rejected"
	KindProjectPaid           NotificationKind = "project_paid"
	KindReviewReceived        NotificationKind = "review_received"
)

// Notification is a side-effect record addressed to one user
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	SenderID    string           `json:"sender_id"`
	PostID      string           `json:"post_id"`
	Kind        NotificationKind `json:"kind"`
	Message     string           `json:"message"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NotificationFilters defines filters for listing a recipient's notifications
type NotificationFilters struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}
