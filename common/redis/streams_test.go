package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)

	id, err := PublishToStream(ctx, client, "vitals:test", map[string]interface{}{
		"source":    "Dozee",
		"minutes":   42,
		"ratio":     0.5,
		"evaluable": true,
		"labels":    []string{"hr", "rr"},
	}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := ReadRange(ctx, client, "vitals:test", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, "Dozee", msgs[0].Values["source"])
	assert.Equal(t, "42", msgs[0].Values["minutes"])
	assert.Equal(t, "0.5", msgs[0].Values["ratio"])
	assert.Equal(t, "true", msgs[0].Values["evaluable"])
	assert.Equal(t, `["hr","rr"]`, msgs[0].Values["labels"])
}

func TestPublishJSONToStream(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)

	_, err := PublishJSONToStream(ctx, client, "vitals:json", map[string]int{"minutes": 3}, 100)
	require.NoError(t, err)

	msgs, err := ReadRange(ctx, client, "vitals:json", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"minutes":3}`, msgs[0].Values["data"].(string))
	assert.NotEmpty(t, msgs[0].Values["timestamp"])
}

func TestReadRange_EmptyStream(t *testing.T) {
	client := setupTestRedis(t)

	msgs, err := ReadRange(context.Background(), client, "vitals:none", "-", "+")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
