package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	identitydomain "identity-sync/internal/identity/domain"
	"identity-sync/internal/telemetry"
	telemetryotel "identity-sync/internal/telemetry/otel"
	"identity-sync/internal/user/domain"
)

// Sentinel errors for sync; the handler maps them to HTTP statuses.
var (
	ErrSubjectRequired = errors.New("subject is required")
	ErrSubjectMismatch = errors.New("identity provider profile does not match token subject")
	ErrEmailRequired   = errors.New("identity provider profile has no email")
	ErrInvalidProfile  = errors.New("identity provider profile is invalid")
)

// Sync outcomes, recorded on the span and the user.sync.total counter.
const (
	OutcomeExisting  = "existing"
	OutcomeCreated   = "created"
	OutcomeRecovered = "recovered"
	OutcomeError     = "error"
)

// SyncUserStore is the minimal user repository needed by sync.
type SyncUserStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

// ProfileFetcher fetches the provider profile for an access token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*identitydomain.ExternalIdentity, error)
}

// SyncResult is the record sync returned and whether this call created it.
type SyncResult struct {
	User    *domain.User
	Created bool
}

// SyncService mirrors a verified external identity into the user store.
// It takes no locks: the store's unique external_id is what keeps concurrent first syncs from creating two rows.
type SyncService struct {
	users    SyncUserStore
	profiles ProfileFetcher
	events   telemetry.EventEmitter
	metrics  *telemetryotel.Instruments
	tracer   trace.Tracer
	logger   *slog.Logger
}

// SyncOption configures optional collaborators.
type SyncOption func(*SyncService)

// WithEvents emits user.created / user.synced events.
func WithEvents(e telemetry.EventEmitter) SyncOption { return func(s *SyncService) { s.events = e } }

// WithInstruments records sync outcomes.
func WithInstruments(i *telemetryotel.Instruments) SyncOption {
	return func(s *SyncService) { s.metrics = i }
}

// WithTracer sets the tracer for the user.sync span.
func WithTracer(t trace.Tracer) SyncOption { return func(s *SyncService) { s.tracer = t } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SyncOption { return func(s *SyncService) { s.logger = l } }

// NewSyncService returns a SyncService over users and profiles.
func NewSyncService(users SyncUserStore, profiles ProfileFetcher, opts ...SyncOption) *SyncService {
	s := &SyncService{
		users:    users,
		profiles: profiles,
		tracer:   noop.NewTracerProvider().Tracer(""),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sync returns the user linked to subject, creating it from the provider profile on first sight.
// An existing user is returned unchanged. A create that hits a unique constraint re-reads by subject and
// returns the concurrent winner's record; with no such row, the email collision is returned as
// *domain.UniquenessViolation.
func (s *SyncService) Sync(ctx context.Context, subject, accessToken string) (res *SyncResult, err error) {
	ctx, span := s.tracer.Start(ctx, "user.sync", trace.WithAttributes(attribute.String("user.subject", subject)))
	outcome := OutcomeError
	defer func() {
		span.SetAttributes(attribute.String("user.sync.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sync failed")
		}
		span.End()
		s.metrics.SyncCompleted(ctx, outcome)
	}()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrSubjectRequired
	}

	existing, err := s.users.GetByExternalID(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		outcome = OutcomeExisting
		s.emit(ctx, telemetry.EventUserSynced, existing)
		return &SyncResult{User: existing}, nil
	}

	profile, err := s.profiles.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if profile.Subject != subject {
		return nil, ErrSubjectMismatch
	}
	u := &domain.User{Email: profile.Email, ExternalID: subject}
	u.Normalize()
	if u.Email == "" {
		return nil, ErrEmailRequired
	}
	if err := u.Validate(); err != nil {
		// %v keeps the provider's bad data from reading as a client validation error.
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	err = s.users.Create(ctx, u)
	switch {
	case err == nil:
		outcome = OutcomeCreated
		s.logger.InfoContext(ctx, "user created", "user_id", u.ID, "subject", subject)
		s.emit(ctx, telemetry.EventUserCreated, u)
		return &SyncResult{User: u, Created: true}, nil
	case isUniquenessViolation(err):
		// Either constraint may fire first when a concurrent sync inserted the same row.
		winner, lookupErr := s.users.GetByExternalID(ctx, subject)
		if lookupErr != nil {
			return nil, fmt.Errorf("lookup user after conflict: %w", lookupErr)
		}
		if winner == nil {
			return nil, err
		}
		outcome = OutcomeRecovered
		s.logger.DebugContext(ctx, "concurrent sync resolved to existing user", "user_id", winner.ID, "subject", subject)
		s.emit(ctx, telemetry.EventUserSynced, winner)
		return &SyncResult{User: winner}, nil
	default:
		return nil, err
	}
}

func isUniquenessViolation(err error) bool {
	var uv *domain.UniquenessViolation
	return errors.As(err, &uv)
}

func (s *SyncService) emit(ctx context.Context, eventType string, u *domain.User) {
	telemetry.EmitAsync(s.events, ctx, telemetry.NewEvent(eventType, "sync").WithUser(u.ID, u.ExternalID))
}
