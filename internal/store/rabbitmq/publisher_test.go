package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLedgerMessage(t *testing.T) {
	in := LedgerMessage{
		EventID:    "ev-1",
		SessionID:  "01TESTSESSIONID00000000000",
		TxID:       "tx-1",
		Type:       "Transfer",
		Amount:     500,
		Currency:   "HKD",
		Direction:  "out",
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	body, err := json.Marshal(in)
	require.NoError(t, err)

	got, err := DecodeLedgerMessage(body)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestDecodeLedgerMessage_Rejects(t *testing.T) {
	_, err := DecodeLedgerMessage([]byte("{"))
	assert.ErrorIs(t, err, ErrBadMessage)

	_, err = DecodeLedgerMessage([]byte(`{"event_id":"ev-1"}`))
	assert.ErrorIs(t, err, ErrBadMessage)
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, RetryCount(nil))
	assert.Equal(t, 0, RetryCount(amqp.Table{"x-retry-count": "2"}))
	assert.Equal(t, 2, RetryCount(amqp.Table{"x-retry-count": int32(2)}))
	assert.Equal(t, 3, RetryCount(amqp.Table{"x-retry-count": int64(3)}))
}
