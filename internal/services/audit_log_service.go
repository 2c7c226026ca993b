package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/repositories"
)

const (
	defaultAuditSeverity = "info"
	defaultActorType     = "unknown"
	hashedValuePrefix    = "sha256:"

	auditEntryIDPrefix = "aud_"
)

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	HashSalt    string
}

type auditLogService struct {
	repo     repositories.AuditLogRepository
	clock    func() time.Time
	newID    func() string
	hashSalt string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}

	return &auditLogService{
		repo:     deps.Repository,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		hashSalt: deps.HashSalt,
	}, nil
}

// Record persists an audit log entry after sanitising free-text fields.
func (s *auditLogService) Record(ctx context.Context, cmd RecordAuditCommand) error {
	entry := domain.AuditLogEntry{
		ID:        auditEntryIDPrefix + s.newID(),
		Actor:     sanitizeText(cmd.Actor, 160),
		ActorType: normalizeActorType(cmd.ActorType),
		Action:    sanitizeText(cmd.Action, 120),
		TargetRef: sanitizeText(cmd.TargetRef, 200),
		Severity:  normalizeSeverity(cmd.Severity),
		RequestID: sanitizeText(cmd.RequestID, 128),
		UserAgent: sanitizeText(cmd.UserAgent, 256),
		CreatedAt: s.clock(),
	}

	if len(cmd.Metadata) > 0 {
		meta := make(map[string]any, len(cmd.Metadata))
		for key, value := range cmd.Metadata {
			trimmed := sanitizeText(key, 80)
			if trimmed == "" {
				continue
			}
			if str, ok := value.(string); ok {
				meta[trimmed] = sanitizeText(str, 512)
				continue
			}
			meta[trimmed] = value
		}
		entry.Metadata = meta
	}

	if ip := strings.TrimSpace(cmd.IPHash); ip != "" {
		entry.IPHash = hashedValuePrefix + s.hashString(ip)
	}

	return s.repo.Append(ctx, entry)
}

// List delegates to the repository to retrieve paginated audit logs.
func (s *auditLogService) List(ctx context.Context, filter AuditLogListFilter) (domain.CursorPage[AuditLogEntry], error) {
	page, err := s.repo.List(ctx, repositories.AuditLogFilter{
		TargetRef:  strings.TrimSpace(filter.TargetRef),
		Actor:      strings.TrimSpace(filter.Actor),
		Action:     strings.TrimSpace(filter.Action),
		DateRange:  filter.DateRange,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[AuditLogEntry]{}, err
	}
	return page, nil
}

func (s *auditLogService) hashString(value string) string {
	sum := sha256.Sum256([]byte(s.hashSalt + strings.TrimSpace(value)))
	return hex.EncodeToString(sum[:])
}

func normalizeActorType(actorType string) string {
	switch strings.ToLower(strings.TrimSpace(actorType)) {
	case "user":
		return "user"
	case "admin", "staff":
		return "admin"
	case "system", "service":
		return "system"
	default:
		return defaultActorType
	}
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return defaultAuditSeverity
	}
}

func sanitizeText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
