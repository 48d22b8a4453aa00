package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestPublishKeysByOrderCode(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisherWithWriter(w)

	ev := OrderEvent{
		Type:       TypeOrderStatusChanged,
		OrderCode:  "ORDABC123XYZ",
		UserID:     "u-1",
		From:       "processing",
		To:         "cancelled",
		TotalPrice: decimal.RequireFromString("1551"),
		OccurredAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ORDABC123XYZ", string(w.msgs[0].Key))
	assert.Equal(t, TypeOrderStatusChanged, string(w.msgs[0].Headers[0].Value))

	var got OrderEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "cancelled", got.To)
	assert.True(t, got.TotalPrice.Equal(ev.TotalPrice))
}
