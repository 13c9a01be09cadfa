package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/earnings-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

type failingRepo struct{}

func (failingRepo) Create(context.Context, *models.AuditLog) error {
	return errors.New("disk full")
}

func (failingRepo) List(context.Context, ListFilter) ([]models.AuditLog, error) {
	return nil, nil
}

type recordingPublisher struct {
	messages [][]byte
	attrs    []map[string]string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, data []byte, attrs map[string]string) error {
	p.messages = append(p.messages, data)
	p.attrs = append(p.attrs, attrs)
	return p.err
}

func TestService_RecordPersistsAndPublishes(t *testing.T) {
	conn := dbtest.Open(t, &models.AuditLog{})
	repo := NewRepository(conn)
	pub := &recordingPublisher{}
	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Publisher: pub,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
	})
	require.NoError(t, err)

	ctx := WithActor(context.Background(), "admin-7")
	svc.Record(ctx, Entry{
		Action:       enums.AuditCommissionApprove,
		ResourceType: "commission",
		ResourceIDs:  []string{"c-1", "c-2"},
		Details:      map[string]any{"count": 2},
	})

	rows, err := repo.List(context.Background(), ListFilter{Action: enums.AuditCommissionApprove})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "admin-7", rows[0].ActorID)
	assert.JSONEq(t, `["c-1","c-2"]`, string(rows[0].ResourceIDs))
	assert.JSONEq(t, `{"count":2}`, string(rows[0].Details))

	require.Len(t, pub.messages, 1)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(pub.messages[0], &msg))
	assert.Equal(t, "commission_approve", msg["action"])
	assert.Equal(t, rows[0].ID.String(), msg["id"])
	assert.Equal(t, "commission", pub.attrs[0]["resource_type"])
}

func TestService_RecordSwallowsFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	pub := &recordingPublisher{err: errors.New("topic gone")}
	svc, err := NewService(ServiceParams{
		Repo:      failingRepo{},
		Publisher: pub,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: buf}),
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{Action: enums.AuditPayoutFail, ResourceType: "payout"})
	})
	assert.Contains(t, buf.String(), "audit entry write failed")
	assert.Contains(t, buf.String(), "audit publish failed")
	assert.Contains(t, buf.String(), `"audit_action":"payout_fail"`)
}

func TestActorFromContextDefaultsToSystem(t *testing.T) {
	assert.Equal(t, SystemActor, ActorFromContext(context.Background()))
	assert.Equal(t, "ops", ActorFromContext(WithActor(context.Background(), "ops")))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
