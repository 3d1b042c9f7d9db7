package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexmx/asistente-backend/internal/types"
)

// ErrDuplicateProfile is returned when a lawyer profile already exists for
// the user or the cédula number.
var ErrDuplicateProfile = errors.New("profile already exists")

// ConnectRepository handles database operations for the lawyer marketplace.
type ConnectRepository struct {
	pool *pgxpool.Pool
}

// NewConnectRepository creates a new ConnectRepository.
func NewConnectRepository(pool *pgxpool.Pool) *ConnectRepository {
	return &ConnectRepository{pool: pool}
}

// CreateProfile inserts a lawyer profile. The cédula number is immutable
// after this point.
func (r *ConnectRepository) CreateProfile(ctx context.Context, p *types.LawyerProfile) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO lawyer_profiles
		   (id, cedula_number, full_name, specialties, bio, estado, municipio, cp, verification_status, phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		p.ID, p.CedulaNumber, p.FullName, p.Specialties, p.Bio,
		p.OfficeAddress.Estado, p.OfficeAddress.Municipio, p.OfficeAddress.CP,
		p.VerificationStatus, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateProfile
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// UpdateProfile updates the mutable profile fields. Identity fields
// (cedula_number) are left untouched.
func (r *ConnectRepository) UpdateProfile(ctx context.Context, p *types.LawyerProfile) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lawyer_profiles
		 SET full_name = $2, specialties = $3, bio = $4,
		     estado = $5, municipio = $6, cp = $7, phone = $8,
		     updated_at = now()
		 WHERE id = $1`,
		p.ID, p.FullName, p.Specialties, p.Bio,
		p.OfficeAddress.Estado, p.OfficeAddress.Municipio, p.OfficeAddress.CP, p.Phone,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile returns a lawyer profile by user id.
func (r *ConnectRepository) GetProfile(ctx context.Context, id string) (*types.LawyerProfile, error) {
	p := &types.LawyerProfile{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, cedula_number, full_name, specialties, bio,
		        estado, municipio, cp, verification_status, phone, created_at, updated_at
		 FROM lawyer_profiles WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.CedulaNumber, &p.FullName, &p.Specialties, &p.Bio,
		&p.OfficeAddress.Estado, &p.OfficeAddress.Municipio, &p.OfficeAddress.CP,
		&p.VerificationStatus, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// SearchLawyers returns verified lawyers filtered by estado and optionally a
// specialty, most recently updated first.
func (r *ConnectRepository) SearchLawyers(ctx context.Context, estado, specialty string, limit int) ([]types.LawyerProfile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, cedula_number, full_name, specialties, bio,
		        estado, municipio, cp, verification_status, phone, created_at, updated_at
		 FROM lawyer_profiles
		 WHERE verification_status = 'verified'
		   AND ($1 = '' OR estado = $1)
		   AND ($2 = '' OR $2 = ANY (specialties))
		 ORDER BY updated_at DESC
		 LIMIT $3`,
		estado, specialty, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search lawyers: %w", err)
	}
	defer rows.Close()

	var out []types.LawyerProfile
	for rows.Next() {
		var p types.LawyerProfile
		if err := rows.Scan(&p.ID, &p.CedulaNumber, &p.FullName, &p.Specialties, &p.Bio,
			&p.OfficeAddress.Estado, &p.OfficeAddress.Municipio, &p.OfficeAddress.CP,
			&p.VerificationStatus, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// CreateRequest inserts a client-to-lawyer contact request.
func (r *ConnectRepository) CreateRequest(ctx context.Context, req *types.ConnectRequest) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO connect_requests (client_id, lawyer_id, subject, message, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		req.ClientID, req.LawyerID, req.Subject, req.Message, req.Status,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// ListRequestsForLawyer returns a lawyer's inbound requests, newest first.
func (r *ConnectRepository) ListRequestsForLawyer(ctx context.Context, lawyerID string) ([]types.ConnectRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, client_id, lawyer_id, subject, message, status, created_at, updated_at
		 FROM connect_requests WHERE lawyer_id = $1 ORDER BY created_at DESC`,
		lawyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []types.ConnectRequest
	for rows.Next() {
		var cr types.ConnectRequest
		if err := rows.Scan(&cr.ID, &cr.ClientID, &cr.LawyerID, &cr.Subject, &cr.Message,
			&cr.Status, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

// UpdateRequestStatus transitions a request's lifecycle status. Requests are
// never hard-deleted from this layer.
func (r *ConnectRepository) UpdateRequestStatus(ctx context.Context, id uuid.UUID, lawyerID string, status types.ConnectRequestStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE connect_requests SET status = $3, updated_at = now()
		 WHERE id = $1 AND lawyer_id = $2`,
		id, lawyerID, status,
	)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateNotification inserts an in-app notification row.
func (r *ConnectRepository) CreateNotification(ctx context.Context, n *types.Notification) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, kind, body)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		n.UserID, n.Kind, n.Body,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// isUniqueViolation matches the Postgres unique_violation error code.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
