package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/resilience"
)

func TestCodec(t *testing.T) {
	assert.Equal(t, kafka.Gzip, Codec("gzip"))
	assert.Equal(t, kafka.Snappy, Codec("snappy"))
	assert.Equal(t, kafka.Lz4, Codec("lz4"))
	assert.Equal(t, kafka.Zstd, Codec("zstd"))
	assert.Equal(t, kafka.Compression(0), Codec("none"))
	assert.Equal(t, kafka.Compression(0), Codec(""))
}

func TestEncodeBatch(t *testing.T) {
	var failed []string
	msgs := EncodeBatch([]Event{
		{Key: "cat", Value: map[string]int{"suggestions": 3}},
		{Key: "bad", Value: make(chan int)},
		{Key: "dog", Value: "plain"},
	}, func(e Event, err error) {
		failed = append(failed, e.Key)
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"bad"}, failed)
	assert.Equal(t, "cat", string(msgs[0].Key))
	assert.JSONEq(t, `{"suggestions":3}`, string(msgs[0].Value))
	assert.Equal(t, `"plain"`, string(msgs[1].Value))
	require.Len(t, msgs[0].Headers, 1)
	assert.Equal(t, "content-type", msgs[0].Headers[0].Key)
	assert.Equal(t, contentTypeJSON, string(msgs[0].Headers[0].Value))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Query string `json:"query"`
	}
	p, err := DecodeJSON[payload]([]byte(`{"query":"cat"}`))
	require.NoError(t, err)
	assert.Equal(t, "cat", p.Query)

	_, err = DecodeJSON[payload]([]byte("{oops"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func testConsumer(handler MessageHandler) *Consumer {
	c := newConsumer(nil, "test", handler)
	c.retry.Backoff = resilience.Backoff{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return c
}

func TestConsumerHandle(t *testing.T) {
	errFlaky := errors.New("flaky")

	tests := []struct {
		name      string
		failFirst int
		err       error
		wantOK    bool
		wantCalls int
	}{
		{"succeeds", 0, nil, true, 1},
		{"recovers after retry", 2, errFlaky, true, 3},
		{"gives up after max attempts", 10, errFlaky, false, 3},
		{"invalid input is not retried", 10, apperrors.ErrInvalidInput, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c := testConsumer(func(ctx context.Context, key, value []byte) error {
				calls++
				if calls <= tt.failFirst {
					return tt.err
				}
				return nil
			})

			ok := c.handle(context.Background(), kafka.Message{Key: []byte("k"), Value: []byte("{}")})
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantOK {
				assert.Equal(t, int64(1), c.Processed())
				assert.Zero(t, c.Skipped())
			} else {
				assert.Zero(t, c.Processed())
				assert.Equal(t, int64(1), c.Skipped())
			}
		})
	}
}
