// Package connect implements the lawyer marketplace: profile registration
// behind cédula validation, lawyer search, and the inbound contact-request
// inbox.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lexmx/asistente-backend/internal/metrics"
	"github.com/lexmx/asistente-backend/internal/types"
)

var (
	// ErrCedulaNotFound means the registry has no record for the number.
	ErrCedulaNotFound = errors.New("cédula profesional no encontrada")
	// ErrTooManySpecialties means the profile lists more than the cap.
	ErrTooManySpecialties = fmt.Errorf("máximo %d especialidades", types.MaxSpecialties)
	// ErrInvalidPhone means the phone number failed format validation.
	ErrInvalidPhone = errors.New("número de teléfono inválido")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,13}$`)

// Store is the persistence surface for the marketplace.
type Store interface {
	CreateProfile(ctx context.Context, p *types.LawyerProfile) error
	UpdateProfile(ctx context.Context, p *types.LawyerProfile) error
	GetProfile(ctx context.Context, id string) (*types.LawyerProfile, error)
	SearchLawyers(ctx context.Context, estado, specialty string, limit int) ([]types.LawyerProfile, error)
	CreateRequest(ctx context.Context, req *types.ConnectRequest) error
	ListRequestsForLawyer(ctx context.Context, lawyerID string) ([]types.ConnectRequest, error)
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, lawyerID string, status types.ConnectRequestStatus) error
	CreateNotification(ctx context.Context, n *types.Notification) error
}

// CedulaValidator validates a professional license number.
type CedulaValidator interface {
	Validate(ctx context.Context, cedulaNumber string) (*CedulaRecord, error)
}

// Mailer dispatches outbound email. Delivery is best effort.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service implements marketplace operations.
type Service struct {
	store  Store
	cedula CedulaValidator
	mailer Mailer
	logger *logrus.Logger
}

// NewService creates a new connect Service.
func NewService(store Store, cedula CedulaValidator, mailer Mailer, logger *logrus.Logger) *Service {
	return &Service{store: store, cedula: cedula, mailer: mailer, logger: logger}
}

// RegisterProfile creates a lawyer profile after validating the cédula
// against the government registry, or updates the mutable fields of an
// existing one. The cédula number is immutable after creation.
func (s *Service) RegisterProfile(ctx context.Context, p *types.LawyerProfile) error {
	if len(p.Specialties) > types.MaxSpecialties {
		return ErrTooManySpecialties
	}
	if p.Phone != nil && !phonePattern.MatchString(strings.ReplaceAll(*p.Phone, " ", "")) {
		return ErrInvalidPhone
	}

	existing, err := s.store.GetProfile(ctx, p.ID)
	if err == nil {
		// Re-submission: identity fields stay as created.
		p.CedulaNumber = existing.CedulaNumber
		p.VerificationStatus = existing.VerificationStatus
		if err := s.store.UpdateProfile(ctx, p); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	}

	record, err := s.cedula.Validate(ctx, p.CedulaNumber)
	if err != nil {
		return fmt.Errorf("validate cedula: %w", err)
	}
	if record == nil {
		return ErrCedulaNotFound
	}

	p.VerificationStatus = types.VerificationVerified
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetProfile returns the lawyer profile for the given user.
func (s *Service) GetProfile(ctx context.Context, id string) (*types.LawyerProfile, error) {
	return s.store.GetProfile(ctx, id)
}

// SearchLawyers lists verified lawyers for the given filters.
func (s *Service) SearchLawyers(ctx context.Context, estado, specialty string, limit int) ([]types.LawyerProfile, error) {
	return s.store.SearchLawyers(ctx, estado, specialty, limit)
}

// CreateRequest records a client-to-lawyer contact request, then fires the
// in-app notification and the email. Both side effects are non-blocking:
// failures are logged and never roll back the created request.
func (s *Service) CreateRequest(ctx context.Context, req *types.ConnectRequest) error {
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Message) == "" {
		return errors.New("asunto y mensaje son requeridos")
	}

	lawyer, err := s.store.GetProfile(ctx, req.LawyerID)
	if err != nil {
		return fmt.Errorf("get lawyer profile: %w", err)
	}

	req.Status = types.ConnectPending
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	metrics.ConnectRequestsTotal.Inc()

	// Side effects run detached from the request context so a fast client
	// disconnect does not cancel them.
	go s.notifyLawyer(context.WithoutCancel(ctx), lawyer, req)

	return nil
}

// notifyLawyer inserts the in-app notification and sends the email
// concurrently. Errors are logged only.
func (s *Service) notifyLawyer(ctx context.Context, lawyer *types.LawyerProfile, req *types.ConnectRequest) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.CreateNotification(ctx, &types.Notification{
			UserID: lawyer.ID,
			Kind:   "connect_request",
			Body:   fmt.Sprintf("Nueva solicitud de contacto: %s", req.Subject),
		})
	})
	g.Go(func() error {
		if s.mailer == nil {
			return nil
		}
		body := fmt.Sprintf("Tienes una nueva solicitud de contacto.\n\nAsunto: %s\n\n%s", req.Subject, req.Message)
		return s.mailer.Send(ctx, lawyer.ID, "Nueva solicitud en Conecta", body)
	})
	if err := g.Wait(); err != nil {
		s.logger.WithError(err).WithField("request_id", req.ID).Warn("connect request side effect failed")
	}
}

// ListInbound returns the lawyer's inbound requests, newest first.
func (s *Service) ListInbound(ctx context.Context, lawyerID string) ([]types.ConnectRequest, error) {
	return s.store.ListRequestsForLawyer(ctx, lawyerID)
}

// RespondToRequest transitions a request's status as the lawyer responds.
func (s *Service) RespondToRequest(ctx context.Context, id uuid.UUID, lawyerID string, status types.ConnectRequestStatus) error {
	switch status {
	case types.ConnectActive, types.ConnectDeclined, types.ConnectClosed:
	default:
		return fmt.Errorf("estado de solicitud inválido: %s", status)
	}
	return s.store.UpdateRequestStatus(ctx, id, lawyerID, status)
}

// WebhookMailer posts mail through an HTTP webhook. A nil-configured
// deployment can run without one; delivery failures are the caller's to log.
type WebhookMailer struct {
	url        string
	httpClient *http.Client
}

// NewWebhookMailer creates a webhook-backed mailer, or nil when no URL is
// configured.
func NewWebhookMailer(url string) *WebhookMailer {
	if url == "" {
		return nil
	}
	return &WebhookMailer{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one message to the mail webhook.
func (m *WebhookMailer) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(map[string]string{"to": to, "subject": subject, "body": body})
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail webhook: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
