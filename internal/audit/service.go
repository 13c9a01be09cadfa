package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

const publishTimeout = 5 * time.Second

// Entry is one state change reported by the ledger.
type Entry struct {
	Action          enums.AuditAction
	ActorID         string
	ResourceType    string
	ResourceIDs     []string
	ResourceDisplay string
	Details         map[string]any
}

// Sink receives audit entries after the owning transaction has committed.
// Implementations must not report failures back to the caller.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// Publisher fans audit entries out to an external topic.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) error
}

// Service writes audit entries to the audit_logs table and, when configured,
// publishes them.
type Service struct {
	repo      Repository
	publisher Publisher
	logg      *logger.Logger
}

// ServiceParams groups the dependencies of the audit service.
type ServiceParams struct {
	Repo      Repository
	Publisher Publisher
	Logger    *logger.Logger
}

// NewService wires the audit service. Publisher is optional.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: params.Repo, publisher: params.Publisher, logg: params.Logger}, nil
}

// Record stores the entry. Failures are logged and swallowed: the ledger change
// it describes has already been committed.
func (s *Service) Record(ctx context.Context, entry Entry) {
	if entry.ActorID == "" {
		entry.ActorID = ActorFromContext(ctx)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"audit_action":  entry.Action,
		"resource_type": entry.ResourceType,
	})

	row, err := toModel(entry)
	if err != nil {
		s.logg.WarnErr(ctx, "audit entry encode failed", err)
		return
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logg.WarnErr(ctx, "audit entry write failed", err)
	}

	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(entryMessage{
		ID:              row.ID.String(),
		Action:          string(entry.Action),
		ActorID:         entry.ActorID,
		ResourceType:    entry.ResourceType,
		ResourceIDs:     entry.ResourceIDs,
		ResourceDisplay: entry.ResourceDisplay,
		Details:         entry.Details,
	})
	if err != nil {
		s.logg.WarnErr(ctx, "audit message encode failed", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, payload, map[string]string{
		"action":        string(entry.Action),
		"resource_type": entry.ResourceType,
	}); err != nil {
		s.logg.WarnErr(ctx, "audit publish failed", err)
	}
}

type entryMessage struct {
	ID              string         `json:"id"`
	Action          string         `json:"action"`
	ActorID         string         `json:"actor_id"`
	ResourceType    string         `json:"resource_type"`
	ResourceIDs     []string       `json:"resource_ids"`
	ResourceDisplay string         `json:"resource_display,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
}

func toModel(entry Entry) (*models.AuditLog, error) {
	ids := entry.ResourceIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := dbtypes.MarshalJSONValue(ids)
	if err != nil {
		return nil, err
	}
	row := &models.AuditLog{
		Action:          entry.Action,
		ActorID:         entry.ActorID,
		ResourceType:    entry.ResourceType,
		ResourceIDs:     idsJSON,
		ResourceDisplay: entry.ResourceDisplay,
	}
	if len(entry.Details) > 0 {
		details, err := dbtypes.MarshalJSONValue(entry.Details)
		if err != nil {
			return nil, err
		}
		row.Details = details
	}
	return row, nil
}

// Discard is a Sink that drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Entry) {}
