package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "llmstxt-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSendsJSONToTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "job-events")
	require.NoError(t, err)

	pub := New(client, "job-events")
	t.Cleanup(pub.Stop)

	id, err := pub.Publish(ctx, "", map[string]string{"job_id": "job-1", "status": "completed"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, map[string]string{"job_id": "job-1", "status": "completed"}, got)
}

func TestPublishRequiresTopic(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	_, err := New(client, "").Publish(context.Background(), "", "payload")
	require.EqualError(t, err, "pubsub topic is required")

	_, err = New(nil, "x").Publish(context.Background(), "x", "payload")
	require.Error(t, err)
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	_, err := New(client, "job-events").Publish(context.Background(), "", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
