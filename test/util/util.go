// Package util holds helpers shared by the container and metrics tests.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MetricTimeout bounds WaitForMetric in tests.
const MetricTimeout = 5 * time.Second

const pollInterval = 50 * time.Millisecond

// WaitForMetric polls metricsURL until its body contains substr.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		if resp, err := http.DefaultClient.Do(req); err == nil {
			body, rerr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if rerr != nil {
				return fmt.Errorf("read metrics body: %w", rerr)
			}
			if strings.Contains(string(body), substr) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("metric %q not found: %w", substr, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// StartMosquitto runs an anonymous Mosquitto broker for the lifetime of t
// and returns its tcp:// URL once a client can connect.
func StartMosquitto(ctx context.Context, t testing.TB) (string, error) {
	t.Helper()
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Files: []tc.ContainerFile{{
				Reader:            strings.NewReader("listener 1883\nallow_anonymous true\npersistence false\n"),
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
		},
		Started: true,
	})
	if err != nil {
		return "", err
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })

	endpoint, err := cont.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err != nil {
		return "", err
	}
	ready, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	opts := paho.NewClientOptions().AddBroker(endpoint).SetClientID("ready-check")
	for {
		cli := paho.NewClient(opts)
		if tok := cli.Connect(); tok.Wait() && tok.Error() == nil {
			cli.Disconnect(100)
			return endpoint, nil
		}
		select {
		case <-ready.Done():
			return "", fmt.Errorf("mosquitto not ready: %w", ready.Err())
		case <-time.After(pollInterval):
		}
	}
}
