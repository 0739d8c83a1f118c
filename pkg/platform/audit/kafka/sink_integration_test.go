//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "voteboard/pkg/platform/audit"
	"voteboard/pkg/testutil/containers"
)

func TestSink_ProducesVoteEvents(t *testing.T) {
	broker := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sink, err := New(broker.Brokers, "voteboard.audit")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Ping(ctx))
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))
	// second call must tolerate an existing topic
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))

	require.NoError(t, sink.Append(ctx, audit.Event{
		ID:       "evt-1",
		UserID:   "u-1",
		Subject:  "minieth",
		Action:   string(audit.EventVoteCast),
		Category: audit.CategoryCompliance,
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics("voteboard.audit"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, "u-1", string(records[0].Key))
	assert.Equal(t, "minieth", got.Subject)
	assert.Equal(t, string(audit.EventVoteCast), got.Action)
}
