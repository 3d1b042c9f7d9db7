package types

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the state of a lawyer's cédula verification.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// MaxSpecialties bounds how many practice areas a lawyer may list.
const MaxSpecialties = 5

// OfficeAddress is a lawyer's office location.
type OfficeAddress struct {
	Estado    string `json:"estado"`
	Municipio string `json:"municipio"`
	CP        string `json:"cp"`
}

// LawyerProfile is a registered lawyer in the Connect marketplace.
// CedulaNumber is immutable once the profile is created; bio and
// specialties may be updated by re-submission.
type LawyerProfile struct {
	ID                 string             `json:"id"` // user id
	CedulaNumber       string             `json:"cedula_number"`
	FullName           string             `json:"full_name"`
	Specialties        []string           `json:"specialties"`
	Bio                string             `json:"bio"`
	OfficeAddress      OfficeAddress      `json:"office_address"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Phone              *string            `json:"phone,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ConnectRequestStatus is the lifecycle state of a client-to-lawyer contact.
type ConnectRequestStatus string

const (
	ConnectPending  ConnectRequestStatus = "pending"
	ConnectActive   ConnectRequestStatus = "active"
	ConnectDeclined ConnectRequestStatus = "declined"
	ConnectClosed   ConnectRequestStatus = "closed"
)

// ConnectRequest is a contact request from a client to a lawyer. Requests
// transition status as the lawyer responds and are never hard-deleted here.
type ConnectRequest struct {
	ID        uuid.UUID            `json:"id"`
	ClientID  string               `json:"client_id"`
	LawyerID  string               `json:"lawyer_id"`
	Subject   string               `json:"subject"`
	Message   string               `json:"message"`
	Status    ConnectRequestStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Notification is an in-app notification row. Insert failures never block
// the operation that produced them.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
