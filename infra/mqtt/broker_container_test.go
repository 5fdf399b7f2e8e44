//go:build !no_containers

package mqtt

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuwkk/power-system-operation/core/calibrate"
	"github.com/xuwkk/power-system-operation/test/util"
)

func TestPublishCalibration_Mosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	broker, err := util.StartMosquitto(ctx, t)
	if err != nil {
		t.Skipf("mosquitto unavailable: %v", err)
	}

	received := make(chan []byte, 1)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("listener"))
	require.NoError(t, waitToken(sub.Connect()))
	defer sub.Disconnect(100)
	require.NoError(t, waitToken(sub.Subscribe("itest/calibration", 1, func(_ paho.Client, m paho.Message) {
		received <- m.Payload()
	})))

	pub, err := New(Config{Enabled: true, Broker: broker, TopicPrefix: "itest", QoS: 1})
	require.NoError(t, err)
	defer pub.Close()

	rec := &calibrate.Record{RunID: "run-1", Case: "case14", Limits: []float64{0.5}}
	require.NoError(t, pub.PublishCalibration(ctx, rec))

	select {
	case data := <-received:
		var env struct {
			Envelope
			Payload calibrate.Record `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, TopicCalibration, env.Kind)
		assert.Equal(t, "run-1", env.Payload.RunID)
		assert.Equal(t, []float64{0.5}, env.Payload.Limits)
	case <-time.After(5 * time.Second):
		t.Fatal("calibration message not received")
	}
}

func waitToken(tok paho.Token) error {
	tok.Wait()
	return tok.Error()
}
