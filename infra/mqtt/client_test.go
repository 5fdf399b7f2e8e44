package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuwkk/power-system-operation/core/calibrate"
	"github.com/xuwkk/power-system-operation/core/operation"
)

// generateCert writes a self-signed certificate, its key and a CA bundle.
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	caFile = filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return certFile, keyFile, caFile
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, opts.AutoReconnect)
}

func TestConfig(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, "pso", c.TopicPrefix)
	assert.NotEmpty(t, c.ClientID)
	require.NoError(t, c.Validate(), "disabled config is always valid")

	c.Enabled = true
	assert.Error(t, c.Validate())
	c.Broker = "tcp://localhost:1883"
	require.NoError(t, c.Validate())
	c.QoS = 3
	assert.Error(t, c.Validate())
}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestPublishSchedule(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewPahoPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id", TopicPrefix: "grid", QoS: 1, Retain: true})
	require.NoError(t, err)
	fixed := time.UnixMilli(1_700_000_000_000)
	pub.now = func() time.Time { return fixed }

	s := &operation.Schedule{Formulation: operation.ED, Horizon: 1, Objective: 805, Generation: [][]float64{{70, 10}}}
	require.NoError(t, pub.PublishSchedule(context.Background(), s))

	require.Len(t, mc.published, 1)
	msg := mc.published[0]
	assert.Equal(t, "grid/schedule", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var env struct {
		Envelope
		Payload operation.Schedule `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.payload, &env))
	assert.Equal(t, TopicSchedule, env.Kind)
	assert.Equal(t, fixed.UnixMilli(), env.Timestamp)
	assert.Len(t, env.MessageID, 36)
	assert.Equal(t, 805.0, env.Payload.Objective)
	assert.Equal(t, [][]float64{{70, 10}}, env.Payload.Generation)

	require.NoError(t, pub.Close())
	assert.True(t, mc.disconnected)
}

func TestPublishCalibration_Retries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail"), nil}}
	withMock(t, mc)
	pub, err := NewPahoPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)

	require.NoError(t, pub.PublishCalibration(context.Background(), &calibrate.Record{RunID: "r1"}))
	require.Len(t, mc.published, 2)
	assert.Equal(t, "pso/calibration", mc.published[1].topic)
}

func TestPublish_GivesUp(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail}}
	withMock(t, mc)
	pub, err := NewPahoPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1})
	require.NoError(t, err)

	err = pub.PublishCalibration(context.Background(), &calibrate.Record{RunID: "r1"})
	assert.ErrorIs(t, err, fail)
	assert.Len(t, mc.published, 3)
}

func TestPublish_Canceled(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail")}}
	withMock(t, mc)
	pub, err := NewPahoPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 3, BackoffMS: 10_000})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = pub.PublishCalibration(ctx, &calibrate.Record{RunID: "r1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectError(t *testing.T) {
	withMock(t, &mockClient{connectErr: errors.New("refused")})
	_, err := NewPahoPublisher(Config{Broker: "tcp://localhost:1883"})
	assert.EqualError(t, err, "refused")
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)

	_, err = New(Config{Enabled: true})
	assert.Error(t, err)
}

func TestMockPublisher(t *testing.T) {
	m := &MockPublisher{}
	require.NoError(t, m.PublishCalibration(context.Background(), &calibrate.Record{RunID: "a"}))
	assert.Len(t, m.Calibrations, 1)
	m.Fail = true
	assert.Error(t, m.PublishSchedule(context.Background(), &operation.Schedule{}))
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	opts         *paho.ClientOptions
	published    []published
	publishErrs  []error
	connectErr   error
	disconnected bool
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	data, _ := payload.([]byte)
	m.published = append(m.published, published{topic, qos, retained, data})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }
