package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/gigboard/internal/models"
)

// MemoryRepository implements Repository with in-process maps.
// Every record is copied on the way in and out.
type MemoryRepository struct {
	mu            sync.Mutex
	posts         map[string]*models.Post
	payments      map[string]*models.Payment
	notifications map[string]*models.Notification
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		posts:         make(map[string]*models.Post),
		payments:      make(map[string]*models.Payment),
		notifications: make(map[string]*models.Notification),
	}
}

// Ping always succeeds
func (r *MemoryRepository) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// CreatePost stores a new post
func (r *MemoryRepository) CreatePost(_ context.Context, p *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.posts[p.ID]; exists {
		return ErrVersionConflict
	}
	if p.Version == 0 {
		p.Version = 1
	}
	r.posts[p.ID] = p.Clone()
	return nil
}

// GetPost retrieves a post by ID
func (r *MemoryRepository) GetPost(_ context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// SavePost replaces a post if its version matches
func (r *MemoryRepository) SavePost(_ context.Context, p *models.Post, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.posts[p.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	stored := p.Clone()
	stored.Version = expectedVersion + 1
	r.posts[p.ID] = stored
	p.Version = stored.Version
	return nil
}

// DeletePost removes a post if its version matches and it has no payments
func (r *MemoryRepository) DeletePost(_ context.Context, id string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.posts[id]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	for _, pay := range r.payments {
		if pay.PostID == id {
			return ErrHasPayments
		}
	}
	delete(r.posts, id)
	return nil
}

// ListPosts returns posts matching filters, newest first
func (r *MemoryRepository) ListPosts(_ context.Context, filters models.PostFilters) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Post
	for _, p := range r.posts {
		if filters.Status != "" && p.Status != filters.Status {
			continue
		}
		if filters.ClientID != "" && p.ClientID != filters.ClientID {
			continue
		}
		if filters.Skill != "" && !hasSkill(p.RequiredSkills, filters.Skill) {
			continue
		}
		out = append(out, p.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return paginate(out, filters.Limit, filters.Offset), nil
}

// ListPaidPostsWithoutPayment returns posts claimed as paid before updatedBefore
// that have no payment in a non-failed state
func (r *MemoryRepository) ListPaidPostsWithoutPayment(_ context.Context, updatedBefore time.Time) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make(map[string]bool)
	for _, pay := range r.payments {
		if pay.Status != models.PaymentFailed {
			active[pay.PostID] = true
		}
	}

	var out []*models.Post
	for _, p := range r.posts {
		if p.Paid && !active[p.ID] && p.UpdatedAt.Before(updatedBefore) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// CreatePayment stores a new payment
func (r *MemoryRepository) CreatePayment(_ context.Context, pay *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pay.Status != models.PaymentFailed {
		for _, existing := range r.payments {
			if existing.PostID == pay.PostID && existing.Status != models.PaymentFailed {
				return ErrDuplicatePayment
			}
		}
	}

	cp := *pay
	r.payments[pay.ID] = &cp
	return nil
}

// GetPayment retrieves a payment by ID
func (r *MemoryRepository) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pay, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *pay
	return &cp, nil
}

// UpdatePayment applies a status update to a payment
func (r *MemoryRepository) UpdatePayment(_ context.Context, id string, upd models.PaymentUpdate) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pay, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.From != "" && pay.Status != upd.From {
		return nil, ErrStatusConflict
	}
	if upd.Status != "" {
		pay.Status = upd.Status
	}
	if upd.TransactionID != "" {
		pay.TransactionID = upd.TransactionID
	}
	pay.UpdatedAt = time.Now().UTC()

	cp := *pay
	return &cp, nil
}

// ListPaymentsByPost returns all payments of a post, oldest first
func (r *MemoryRepository) ListPaymentsByPost(_ context.Context, postID string) ([]*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Payment
	for _, pay := range r.payments {
		if pay.PostID == postID {
			cp := *pay
			out = append(out, &cp)
		}
	}
	sortPayments(out)
	return out, nil
}

// ListUnsyncedPayments returns pending payments and succeeded payments
// whose post is not marked paid
func (r *MemoryRepository) ListUnsyncedPayments(_ context.Context) ([]*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Payment
	for _, pay := range r.payments {
		switch pay.Status {
		case models.PaymentPending:
		case models.PaymentSucceeded:
			if p, ok := r.posts[pay.PostID]; !ok || p.Paid {
				continue
			}
		default:
			continue
		}
		cp := *pay
		out = append(out, &cp)
	}
	sortPayments(out)
	return out, nil
}

// CreateNotification stores a notification
func (r *MemoryRepository) CreateNotification(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *n
	r.notifications[n.ID] = &cp
	return nil
}

// GetNotification retrieves a notification by ID
func (r *MemoryRepository) GetNotification(_ context.Context, id string) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

// ListNotifications returns a recipient's notifications, newest first
func (r *MemoryRepository) ListNotifications(_ context.Context, filters models.NotificationFilters) ([]*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Notification
	for _, n := range r.notifications {
		if n.RecipientID != filters.RecipientID {
			continue
		}
		if filters.UnreadOnly && n.IsRead {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return paginate(out, filters.Limit, 0), nil
}

// MarkNotificationRead flags a notification as read
func (r *MemoryRepository) MarkNotificationRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.IsRead = true
	return nil
}

func hasSkill(skills []string, skill string) bool {
	for _, s := range skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

func sortPayments(payments []*models.Payment) {
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
