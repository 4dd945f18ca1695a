//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/twc-director/internal/infrastructure/config"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: clientID},
		QoS:    1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_TelemetryRoundTrip(t *testing.T) {
	client, err := Connect(integrationConfig("twcdirector-it"))
	require.NoError(t, err)
	defer client.Close()

	var (
		mu  sync.Mutex
		got []GatewayTopic
	)
	done := make(chan struct{}, 1)

	err = client.Subscribe(Topics{}.AllGatewayTelemetry(), 1, func(topic string, _ []byte) error {
		gt, err := ParseGatewayTopic(topic)
		if err != nil {
			return err
		}
		mu.Lock()
		got = append(got, gt)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, client.HasSubscription(Topics{}.AllGatewayTelemetry()))

	require.NoError(t, client.Publish(Topics{}.GatewayTelemetry(0x8a3f, "TWC_METER"), []byte(`{}`), 1, false))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("telemetry not received")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []GatewayTopic{{Address: 0x8a3f, Category: "TWC_METER"}}, got)

	require.NoError(t, client.Unsubscribe(Topics{}.AllGatewayTelemetry()))
	assert.Equal(t, 0, client.SubscriptionCount())
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig("twcdirector-refused")
	cfg.Broker.Port = 19999
	_, err := Connect(cfg)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}
