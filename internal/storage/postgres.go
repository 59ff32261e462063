package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/terra-clan/gigboard/internal/models"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const postColumns = `id, title, description, required_skills, budget, duration, client_id, category_id, status, paid, applications, finalization, reviews, version, created_at, updated_at`

const paymentColumns = `id, post_id, client_id, freelancer_id, amount, status, provider, transaction_id, created_at, updated_at`

const notificationColumns = `id, recipient_id, sender_id, post_id, kind, message, is_read, created_at`

// PostgresRepository implements Repository and PaymentTx using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository over the pgx driver
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set pool configuration
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25) // default
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5) // default
	}

	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an already opened database handle
func NewPostgresRepositoryFromDB(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// DB exposes the underlying handle (used for migrations)
func (r *PostgresRepository) DB() *sql.DB {
	return r.db
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// --- Posts ---

// CreatePost creates a new post record
func (r *PostgresRepository) CreatePost(ctx context.Context, p *models.Post) error {
	cols, err := encodePostDocs(p)
	if err != nil {
		return err
	}
	if p.Version == 0 {
		p.Version = 1
	}

	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		pq.Array(nonNilStrings(p.RequiredSkills)),
		p.Budget,
		p.Duration,
		p.ClientID,
		nullString(p.CategoryID),
		string(p.Status),
		p.Paid,
		cols.applications,
		cols.finalization,
		cols.reviews,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return writeErr("failed to create post", err)
	}

	return nil
}

// GetPost retrieves a post by ID
func (r *PostgresRepository) GetPost(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	p, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return p, nil
}

// SavePost replaces the aggregate guarded by its version
func (r *PostgresRepository) SavePost(ctx context.Context, p *models.Post, expectedVersion int64) error {
	if err := r.updatePost(ctx, r.db, p, expectedVersion); err != nil {
		return err
	}
	p.Version = expectedVersion + 1
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PostgresRepository) updatePost(ctx context.Context, ex execer, p *models.Post, expectedVersion int64) error {
	cols, err := encodePostDocs(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE posts
		SET title = $3, description = $4, required_skills = $5, budget = $6, duration = $7, category_id = $8,
		    status = $9, paid = $10, applications = $11, finalization = $12, reviews = $13,
		    version = version + 1, updated_at = $14
		WHERE id = $1 AND version = $2
	`

	result, err := ex.ExecContext(ctx, query,
		p.ID,
		expectedVersion,
		p.Title,
		p.Description,
		pq.Array(nonNilStrings(p.RequiredSkills)),
		p.Budget,
		p.Duration,
		nullString(p.CategoryID),
		string(p.Status),
		p.Paid,
		cols.applications,
		cols.finalization,
		cols.reviews,
		p.UpdatedAt,
	)
	if err != nil {
		return writeErr("failed to update post", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update post: %w: %w", ErrOutcomeUnknown, err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := ex.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check post existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// DeletePost deletes a post at expectedVersion. The payments foreign key
// restricts deleting posts that have payment records.
func (r *PostgresRepository) DeletePost(ctx context.Context, id string, expectedVersion int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrHasPayments
		}
		return writeErr("failed to delete post", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete post: %w: %w", ErrOutcomeUnknown, err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check post existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// ListPosts returns posts matching filters
func (r *PostgresRepository) ListPosts(ctx context.Context, filters models.PostFilters) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE 1=1`
	args := make([]any, 0)
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}

	if filters.ClientID != "" {
		query += fmt.Sprintf(" AND client_id = $%d", argNum)
		args = append(args, filters.ClientID)
		argNum++
	}

	if filters.Skill != "" {
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM unnest(required_skills) s WHERE lower(s) = lower($%d))", argNum)
		args = append(args, filters.Skill)
		argNum++
	}

	query += " ORDER BY created_at DESC, id"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	return r.queryPosts(ctx, "failed to list posts", query, args...)
}

// ListPaidPostsWithoutPayment returns posts claimed as paid that have no active payment
func (r *PostgresRepository) ListPaidPostsWithoutPayment(ctx context.Context, updatedBefore time.Time) ([]*models.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE paid
		  AND updated_at < $1
		  AND NOT EXISTS (SELECT 1 FROM payments pay WHERE pay.post_id = posts.id AND pay.status <> 'failed')
		ORDER BY updated_at ASC
	`
	return r.queryPosts(ctx, "failed to list unpaid claims", query, updatedBefore)
}

func (r *PostgresRepository) queryPosts(ctx context.Context, op, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, nil
}

// --- Payments ---

// CreatePayment creates a new payment record
func (r *PostgresRepository) CreatePayment(ctx context.Context, pay *models.Payment) error {
	return r.insertPayment(ctx, r.db, pay)
}

func (r *PostgresRepository) insertPayment(ctx context.Context, ex execer, pay *models.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := ex.ExecContext(ctx, query,
		pay.ID,
		pay.PostID,
		pay.ClientID,
		pay.FreelancerID,
		pay.Amount,
		string(pay.Status),
		pay.Provider,
		pay.TransactionID,
		pay.CreatedAt,
		pay.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePayment
		}
		return writeErr("failed to create payment", err)
	}

	return nil
}

// ClaimAndCreatePayment marks the post paid and inserts its payment atomically
func (r *PostgresRepository) ClaimAndCreatePayment(ctx context.Context, p *models.Post, expectedVersion int64, pay *models.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin payment transaction: %w", err)
	}

	if err := r.updatePost(ctx, tx, p, expectedVersion); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := r.insertPayment(ctx, tx, pay); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment transaction: %w: %w", ErrOutcomeUnknown, err)
	}

	p.Version = expectedVersion + 1
	return nil
}

// GetPayment retrieves a payment by ID
func (r *PostgresRepository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	pay, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return pay, nil
}

// UpdatePayment updates the mutable fields of a payment
func (r *PostgresRepository) UpdatePayment(ctx context.Context, id string, upd models.PaymentUpdate) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET status = COALESCE(NULLIF($2, ''), status),
		    transaction_id = COALESCE(NULLIF($3, ''), transaction_id),
		    updated_at = NOW()
		WHERE id = $1 AND ($4 = '' OR status = $4)
		RETURNING ` + paymentColumns

	pay, err := scanPayment(r.db.QueryRowContext(ctx, query, id, string(upd.Status), upd.TransactionID, string(upd.From)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missingPayment(ctx, id)
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePayment
		}
		return nil, writeErr("failed to update payment", err)
	}

	return pay, nil
}

// missingPayment tells a missing payment from one whose status moved on
func (r *PostgresRepository) missingPayment(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check payment existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

// ListPaymentsByPost returns all payments of a post, oldest first
func (r *PostgresRepository) ListPaymentsByPost(ctx context.Context, postID string) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE post_id = $1 ORDER BY created_at ASC, id`
	return r.queryPayments(ctx, "failed to list payments", query, postID)
}

// ListUnsyncedPayments returns pending payments and succeeded payments whose post is not marked paid
func (r *PostgresRepository) ListUnsyncedPayments(ctx context.Context) ([]*models.Payment, error) {
	query := `
		SELECT pay.id, pay.post_id, pay.client_id, pay.freelancer_id, pay.amount, pay.status,
		       pay.provider, pay.transaction_id, pay.created_at, pay.updated_at
		FROM payments pay
		JOIN posts p ON p.id = pay.post_id
		WHERE pay.status = 'pending'
		   OR (pay.status = 'succeeded' AND NOT p.paid)
		ORDER BY pay.created_at ASC
	`
	return r.queryPayments(ctx, "failed to list unsynced payments", query)
}

func (r *PostgresRepository) queryPayments(ctx context.Context, op, query string, args ...any) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		pay, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, pay)
	}

	return payments, rows.Err()
}

// --- Notifications ---

// CreateNotification stores a notification
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.RecipientID,
		n.SenderID,
		n.PostID,
		string(n.Kind),
		n.Message,
		n.IsRead,
		n.CreatedAt,
	)
	if err != nil {
		return writeErr("failed to create notification", err)
	}

	return nil
}

// GetNotification retrieves a notification by ID
func (r *PostgresRepository) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// ListNotifications returns a recipient's notifications, newest first
func (r *PostgresRepository) ListNotifications(ctx context.Context, filters models.NotificationFilters) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	args := []any{filters.RecipientID}

	if filters.UnreadOnly {
		query += " AND NOT is_read"
	}

	query += " ORDER BY created_at DESC, id"

	if filters.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}

	return out, rows.Err()
}

// MarkNotificationRead flags a notification as read
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return writeErr("failed to mark notification read", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// --- Scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

type postDocs struct {
	applications []byte
	finalization []byte
	reviews      []byte
}

func encodePostDocs(p *models.Post) (postDocs, error) {
	var docs postDocs
	var err error

	applications := p.Applications
	if applications == nil {
		applications = []models.Application{}
	}
	if docs.applications, err = json.Marshal(applications); err != nil {
		return docs, fmt.Errorf("failed to marshal applications: %w", err)
	}

	if docs.finalization, err = json.Marshal(p.Finalization); err != nil {
		return docs, fmt.Errorf("failed to marshal finalization: %w", err)
	}

	reviews := p.Reviews
	if reviews == nil {
		reviews = []models.Review{}
	}
	if docs.reviews, err = json.Marshal(reviews); err != nil {
		return docs, fmt.Errorf("failed to marshal reviews: %w", err)
	}

	return docs, nil
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	var statusStr string
	var categoryID sql.NullString
	var applicationsJSON, finalizationJSON, reviewsJSON []byte

	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		pq.Array(&p.RequiredSkills),
		&p.Budget,
		&p.Duration,
		&p.ClientID,
		&categoryID,
		&statusStr,
		&p.Paid,
		&applicationsJSON,
		&finalizationJSON,
		&reviewsJSON,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = models.PostStatus(statusStr)
	p.CategoryID = categoryID.String

	if err := json.Unmarshal(applicationsJSON, &p.Applications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal applications: %w", err)
	}

	if err := json.Unmarshal(finalizationJSON, &p.Finalization); err != nil {
		return nil, fmt.Errorf("failed to unmarshal finalization: %w", err)
	}

	if reviewsJSON != nil {
		if err := json.Unmarshal(reviewsJSON, &p.Reviews); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reviews: %w", err)
		}
	}

	return &p, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var pay models.Payment
	var statusStr string

	err := row.Scan(
		&pay.ID,
		&pay.PostID,
		&pay.ClientID,
		&pay.FreelancerID,
		&pay.Amount,
		&statusStr,
		&pay.Provider,
		&pay.TransactionID,
		&pay.CreatedAt,
		&pay.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pay.Status = models.PaymentStatus(statusStr)
	return &pay, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var kind string

	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.SenderID,
		&n.PostID,
		&kind,
		&n.Message,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Kind = models.NotificationKind(kind)
	return &n, nil
}

// writeErr wraps a failed write. Errors that prove the statement never ran,
// or that the server rejected it, are returned as is; anything else is
// marked ErrOutcomeUnknown.
func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrOutcomeUnknown, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
