package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	"github.com/uniattend/attendance-api/internal/repository"
	"github.com/uniattend/attendance-api/pkg/clock"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
	"github.com/uniattend/attendance-api/pkg/qrtoken"
)

type qrSessionRepository interface {
	Create(ctx context.Context, s *models.QRSession) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.QRSession, error)
	FindActiveByLecture(ctx context.Context, lectureID string) (*models.QRSession, error)
	ConsumeUsage(ctx context.Context, sessionID string, now time.Time) (*models.QRSession, error)
	UpdateStatus(ctx context.Context, sessionID string, status models.QRStatus, notes *string, now time.Time) error
	ExtendExpiry(ctx context.Context, sessionID string, newExpiry, now time.Time) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type qrLectureRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lecture, error)
}

type sessionCache interface {
	Available() bool
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string)
}

type sessionMetrics interface {
	SessionIssued(reused bool)
	SessionTransition(status string)
	ScanOutcome(outcome string)
}

// QRSessionOptions shapes a generate request.
type QRSessionOptions struct {
	DurationMinutes    int      `json:"duration_minutes" validate:"omitempty,min=1"`
	MaxUsageCount      int      `json:"max_usage_count" validate:"omitempty,min=1"`
	AllowMultipleScans *bool    `json:"allow_multiple_scans"`
	IPAllowList        []string `json:"ip_allow_list" validate:"omitempty,dive,ip"`
}

// QRSessionConfig carries the tunables for session issuance.
type QRSessionConfig struct {
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	DefaultMaxUsage int
	AllowMultiple   bool
	EnforceIPList   bool
	CreateLockTTL   time.Duration
}

// SessionResult is what a generate call hands back. EncodedKey is the only
// place the encryption key ever leaves the service; the database keeps just
// its fingerprint. Reused marks an idempotent return of an existing ACTIVE
// session rather than a fresh issue.
type SessionResult struct {
	Session    *models.QRSession `json:"session"`
	EncodedKey string            `json:"encoded_key,omitempty"`
	Reused     bool              `json:"reused"`
}

// ScanInput is the client half of a QR validation.
type ScanInput struct {
	SessionID        string `json:"session_id" validate:"required"`
	EncryptedPayload string `json:"encrypted_payload" validate:"required"`
	EncodedKey       string `json:"encoded_key" validate:"required"`
	ClientIP         string `json:"-"`
}

// QRSessionService owns the session lifecycle: issuance, validation with
// usage accounting, revocation and expiry.
type QRSessionService struct {
	sessions    qrSessionRepository
	lectures    qrLectureRepository
	cache       sessionCache
	clock       clock.Clock
	config      QRSessionConfig
	metrics     sessionMetrics
	validator   *validator.Validate
	logger      *zap.Logger
	createLocks keyedMutex
}

// NewQRSessionService constructs the session service.
func NewQRSessionService(sessions qrSessionRepository, lectures qrLectureRepository, cache sessionCache, clk clock.Clock, config QRSessionConfig, metrics sessionMetrics, validate *validator.Validate, logger *zap.Logger) *QRSessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	if config.DefaultDuration <= 0 {
		config.DefaultDuration = 30 * time.Minute
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = 3 * time.Hour
	}
	if config.DefaultMaxUsage <= 0 {
		config.DefaultMaxUsage = 1000
	}
	if config.CreateLockTTL <= 0 {
		config.CreateLockTTL = 10 * time.Second
	}
	return &QRSessionService{
		sessions:  sessions,
		lectures:  lectures,
		cache:     cache,
		clock:     clk,
		config:    config,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Generate issues a QR session for a lecture, or returns the existing ACTIVE
// one when a second request races in. The plaintext key is generated here,
// fingerprinted for storage, and returned exactly once per issue; idempotent
// returns recover it from the cache while it lives there.
func (s *QRSessionService) Generate(ctx context.Context, lectureID, teacherID string, opts QRSessionOptions) (*SessionResult, error) {
	if err := s.validator.Struct(&opts); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	lecture, err := s.lectures.FindByID(ctx, lectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load lecture")
	}
	if !lecture.CanGenerateQR() {
		return nil, appErrors.ErrLectureNotEligible
	}

	unlock, err := s.lockLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()

	if existing, err := s.sessions.FindActiveByLecture(ctx, lectureID); err == nil {
		if existing.IsValid(now) {
			result := &SessionResult{Session: existing, Reused: true}
			var cachedKey string
			if s.cache.Get(ctx, sessionKeyCacheKey(existing.SessionID), &cachedKey) == nil {
				result.EncodedKey = cachedKey
			}
			if s.metrics != nil {
				s.metrics.SessionIssued(true)
			}
			return result, nil
		}
		// Stale ACTIVE row: mark expired and fall through to a fresh issue.
		if err := s.sessions.UpdateStatus(ctx, existing.SessionID, models.QRExpired, nil, now); err != nil {
			return nil, appErrors.Infrastructure(err, "expire stale session")
		}
		if s.metrics != nil {
			s.metrics.SessionTransition(string(models.QRExpired))
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Infrastructure(err, "lookup active session")
	}

	duration := s.config.DefaultDuration
	if opts.DurationMinutes > 0 {
		duration = time.Duration(opts.DurationMinutes) * time.Minute
	}
	if duration > s.config.MaxDuration {
		duration = s.config.MaxDuration
	}
	maxUsage := s.config.DefaultMaxUsage
	if opts.MaxUsageCount > 0 {
		maxUsage = opts.MaxUsageCount
	}
	allowMultiple := s.config.AllowMultiple
	if opts.AllowMultipleScans != nil {
		allowMultiple = *opts.AllowMultipleScans
	}

	key, err := qrtoken.NewKey()
	if err != nil {
		return nil, appErrors.Infrastructure(err, "generate session key")
	}
	sessionID := qrtoken.NewSessionID(now)
	expiresAt := now.Add(duration)

	payload := qrtoken.Payload{
		SessionID:   sessionID,
		LectureID:   lecture.ID,
		GeneratedAt: now,
		ExpiresAt:   expiresAt,
		SubjectCode: lecture.SubjectCode,
		Section:     lecture.Section,
		RoomID:      lecture.RoomID,
		TeacherID:   lecture.TeacherID,
		Version:     qrtoken.PayloadVersion,
	}
	encrypted, err := qrtoken.Seal(payload, key)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "seal session payload")
	}

	session := &models.QRSession{
		ID:                 uuid.NewString(),
		SessionID:          sessionID,
		LectureID:          lecture.ID,
		GeneratedBy:        teacherID,
		EncryptedPayload:   encrypted,
		KeyHash:            qrtoken.Fingerprint(key),
		GeneratedAt:        now,
		ExpiresAt:          expiresAt,
		Status:             models.QRActive,
		MaxUsageCount:      maxUsage,
		CurrentUsageCount:  0,
		AllowMultipleScans: allowMultiple,
		IPAllowList:        models.StringList(opts.IPAllowList),
		DisplayText:        sessionDisplayText(lecture, expiresAt),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Infrastructure(err, "persist session")
	}

	encodedKey := qrtoken.EncodeKey(key)
	if err := s.cache.Set(ctx, sessionKeyCacheKey(sessionID), encodedKey, time.Until(expiresAt)); err != nil {
		s.logger.Warn("session key not cached, idempotent returns will omit it",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	s.logger.Info("qr session issued",
		zap.String("session_id", sessionID),
		zap.String("lecture_id", lecture.ID),
		zap.Time("expires_at", expiresAt),
		zap.Int("max_usage", maxUsage))
	if s.metrics != nil {
		s.metrics.SessionIssued(false)
	}

	return &SessionResult{Session: session, EncodedKey: encodedKey}, nil
}

// ValidateAndConsume runs the full scan-side check chain in a fixed order so
// the caller always learns the most specific failure: existence, lifecycle
// state, expiry, exhaustion, key fingerprint, payload integrity, IP allow
// list, then the atomic usage increment.
func (s *QRSessionService) ValidateAndConsume(ctx context.Context, input ScanInput) (*models.QRSession, *qrtoken.Payload, error) {
	if err := s.validator.Struct(&input); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	now := s.clock.Now()

	session, err := s.sessions.FindBySessionID(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, s.scanFailed(appErrors.ErrSessionNotFound)
		}
		return nil, nil, appErrors.Infrastructure(err, "load session")
	}

	switch session.Status {
	case models.QRRevoked:
		return nil, nil, s.scanFailed(appErrors.ErrSessionRevoked)
	case models.QRDisabled:
		return nil, nil, s.scanFailed(appErrors.ErrSessionRevoked)
	case models.QRExpired:
		return nil, nil, s.scanFailed(appErrors.ErrSessionExpired)
	case models.QRUsed:
		return nil, nil, s.scanFailed(appErrors.ErrSessionExhausted)
	}

	if !now.Before(session.ExpiresAt) {
		// Lazy transition; the sweeper is bookkeeping, this is the guard.
		if err := s.sessions.UpdateStatus(ctx, session.SessionID, models.QRExpired, nil, now); err != nil {
			s.logger.Warn("lazy expiry update failed", zap.String("session_id", session.SessionID), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.SessionTransition(string(models.QRExpired))
		}
		return nil, nil, s.scanFailed(appErrors.ErrSessionExpired)
	}
	if session.CurrentUsageCount >= session.MaxUsageCount {
		return nil, nil, s.scanFailed(appErrors.ErrSessionExhausted)
	}

	key, err := qrtoken.DecodeKey(input.EncodedKey)
	if err != nil || !qrtoken.FingerprintMatches(key, session.KeyHash) {
		return nil, nil, s.scanFailed(appErrors.ErrEncryptionKeyMismatch)
	}

	payload, err := qrtoken.Open(input.EncryptedPayload, key)
	if err != nil {
		return nil, nil, s.scanFailed(appErrors.ErrPayloadTampered)
	}
	if payload.SessionID != session.SessionID || payload.LectureID != session.LectureID {
		return nil, nil, s.scanFailed(appErrors.ErrPayloadTampered)
	}

	if s.config.EnforceIPList && len(session.IPAllowList) > 0 && !session.IPAllowList.Contains(input.ClientIP) {
		return nil, nil, s.scanFailed(appErrors.ErrIPNotAllowed)
	}

	consumed, err := s.sessions.ConsumeUsage(ctx, session.SessionID, now)
	if err != nil {
		if errors.Is(err, repository.ErrUsageExhausted) {
			// A concurrent scan took the last slot between our read and the
			// guarded update.
			return nil, nil, s.scanFailed(appErrors.ErrSessionExhausted)
		}
		return nil, nil, appErrors.Infrastructure(err, "consume session usage")
	}

	if s.metrics != nil {
		s.metrics.ScanOutcome("accepted")
	}
	return consumed, payload, nil
}

// Status returns the session with its derived countdown fields.
func (s *QRSessionService) Status(ctx context.Context, sessionID string) (*models.QRSessionView, error) {
	session, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Infrastructure(err, "load session")
	}
	now := s.clock.Now()
	view := &models.QRSessionView{
		QRSession:        *session,
		RemainingSeconds: session.RemainingSeconds(now),
		UsagePercent:     session.UsagePercent(),
	}
	return view, nil
}

// Revoke invalidates a session ahead of its expiry.
func (s *QRSessionService) Revoke(ctx context.Context, sessionID string, notes *string) error {
	session, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrSessionNotFound
		}
		return appErrors.Infrastructure(err, "load session")
	}
	if session.Status == models.QRRevoked {
		return nil
	}
	if err := s.sessions.UpdateStatus(ctx, sessionID, models.QRRevoked, notes, s.clock.Now()); err != nil {
		return appErrors.Infrastructure(err, "revoke session")
	}
	_ = s.cache.Delete(ctx, sessionKeyCacheKey(sessionID))
	s.logger.Info("qr session revoked", zap.String("session_id", sessionID))
	if s.metrics != nil {
		s.metrics.SessionTransition(string(models.QRRevoked))
	}
	return nil
}

// Disable pauses a session without discarding it.
func (s *QRSessionService) Disable(ctx context.Context, sessionID string, notes *string) error {
	if _, err := s.sessions.FindBySessionID(ctx, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrSessionNotFound
		}
		return appErrors.Infrastructure(err, "load session")
	}
	if err := s.sessions.UpdateStatus(ctx, sessionID, models.QRDisabled, notes, s.clock.Now()); err != nil {
		return appErrors.Infrastructure(err, "disable session")
	}
	if s.metrics != nil {
		s.metrics.SessionTransition(string(models.QRDisabled))
	}
	return nil
}

// ExtendExpiry pushes an ACTIVE session's expiry forward, capped at the
// configured maximum total lifetime from issuance.
func (s *QRSessionService) ExtendExpiry(ctx context.Context, sessionID string, extraMinutes int) (*models.QRSession, error) {
	if extraMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "extension must be positive")
	}
	session, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Infrastructure(err, "load session")
	}
	now := s.clock.Now()
	if session.Status != models.QRActive || !now.Before(session.ExpiresAt) {
		return nil, appErrors.ErrSessionExpired
	}

	newExpiry := session.ExpiresAt.Add(time.Duration(extraMinutes) * time.Minute)
	ceiling := session.GeneratedAt.Add(s.config.MaxDuration)
	if newExpiry.After(ceiling) {
		newExpiry = ceiling
	}
	if err := s.sessions.ExtendExpiry(ctx, sessionID, newExpiry, now); err != nil {
		var noTransition *repository.ErrNoTransition
		if errors.As(err, &noTransition) {
			return nil, appErrors.ErrSessionExpired
		}
		return nil, appErrors.Infrastructure(err, "extend session")
	}
	session.ExpiresAt = newExpiry
	session.UpdatedAt = now
	s.logger.Info("qr session extended",
		zap.String("session_id", sessionID), zap.Time("expires_at", newExpiry))
	return session, nil
}

// ExpireOverdue sweeps overdue ACTIVE sessions to EXPIRED. Returns the
// number of rows transitioned.
func (s *QRSessionService) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.sessions.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, appErrors.Infrastructure(err, "expire overdue sessions")
	}
	if n > 0 {
		s.logger.Info("expired overdue qr sessions", zap.Int64("count", n))
		if s.metrics != nil {
			for i := int64(0); i < n; i++ {
				s.metrics.SessionTransition(string(models.QRExpired))
			}
		}
	}
	return n, nil
}

func (s *QRSessionService) scanFailed(appErr *appErrors.Error) error {
	if s.metrics != nil {
		s.metrics.ScanOutcome(appErr.Code)
	}
	return appErr
}

// lockLecture serialises create attempts per lecture. Redis SETNX is the
// shared lock; a lock still held when the TTL wait runs out surfaces as a
// concurrent create conflict. When Redis is down, the in-process keyed mutex
// still protects a single instance.
func (s *QRSessionService) lockLecture(ctx context.Context, lectureID string) (func(), error) {
	key := "qr:create:" + lectureID
	if !s.cache.Available() {
		return s.createLocks.lock(lectureID), nil
	}
	deadline := s.clock.Now().Add(s.config.CreateLockTTL)
	for {
		ok, err := s.cache.AcquireLock(ctx, key, s.config.CreateLockTTL)
		if err != nil {
			// Redis faulted mid-flight; the process-local mutex still holds.
			return s.createLocks.lock(lectureID), nil
		}
		if ok {
			return func() { s.cache.ReleaseLock(ctx, key) }, nil
		}
		if !s.clock.Now().Before(deadline) {
			return nil, appErrors.ErrConcurrentSessionConflict
		}
		select {
		case <-ctx.Done():
			return nil, appErrors.ErrConcurrentSessionConflict
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func sessionKeyCacheKey(sessionID string) string {
	return "qr:key:" + sessionID
}

func sessionDisplayText(lecture *models.Lecture, expiresAt time.Time) string {
	return fmt.Sprintf("%s %s valid until %s", lecture.SubjectCode, lecture.Section, expiresAt.UTC().Format("15:04"))
}

// keyedMutex hands out a mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
