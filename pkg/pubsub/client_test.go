package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/angelmondragon/earnings-ledger/pkg/config"
)

func fakeServerOptions(t *testing.T) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

func TestPublishDeliversAuditMessage(t *testing.T) {
	ctx := context.Background()
	srv, opts := fakeServerOptions(t)
	_, err := srv.GServer.CreateTopic(ctx, &pubsubpb.Topic{Name: "projects/ledger/topics/audit"})
	require.NoError(t, err)

	client, err := NewClient(ctx, config.GCPConfig{ProjectID: "ledger"}, config.PubSubConfig{AuditTopic: "audit"}, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "projects/ledger/topics/audit", client.Topic())
	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.Publish(ctx, []byte(`{"action":"payout.complete"}`), map[string]string{"action": "payout.complete"}))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, `{"action":"payout.complete"}`, string(msgs[0].Data))
	assert.Equal(t, "payout.complete", msgs[0].Attributes["action"])
}

func TestNewClientRequiresExistingTopic(t *testing.T) {
	_, opts := fakeServerOptions(t)
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "ledger"}, config.PubSubConfig{AuditTopic: "missing"}, nil, opts...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{AuditTopic: "audit"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "ledger"}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errTopicRequired)
}

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "ledger"}
	assert.Equal(t, "projects/ledger/topics/audit", c.topicResourceName(" audit "))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Equal(t, "", c.topicResourceName(""))
}

func TestNilClientPublishFails(t *testing.T) {
	var c *Client
	assert.Error(t, c.Publish(context.Background(), nil, nil))
	assert.NoError(t, c.Close())
}
