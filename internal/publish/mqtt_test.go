package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/senselog/internal/protocol"
)

func TestTopicFor(t *testing.T) {
	// GOAL: Topic layout is per-device and stable
	//
	// TEST SCENARIO: Address → senselog/<address>/acc

	assert.Equal(t, "senselog/00:11:22:33:44:55/acc", topicFor("00:11:22:33:44:55"))
}

func TestPayloadFor(t *testing.T) {
	// GOAL: The published message carries all schema fields
	//
	// TEST SCENARIO: Reading → JSON with device, timestamps and channels

	r := protocol.Reading{
		SensorMillis: 1234,
		Received:     time.Date(2024, 3, 1, 12, 0, 0, 500000000, time.UTC),
		Ax:           1.5, Ay: -2, Az: 9.5,
	}

	payload, err := payloadFor("00:11:22:33:44:55", r)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "00:11:22:33:44:55", got["device"])
	assert.Equal(t, float64(1234), got["timestamp"])
	assert.Equal(t, "2024-03-01T12:00:00.5Z", got["timestamp_local"])
	assert.Equal(t, 1.5, got["ax"])
	assert.Equal(t, -2.0, got["ay"])
	assert.Equal(t, 9.5, got["az"])
}
