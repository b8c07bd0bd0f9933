package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigResource(t *testing.T) {
	res, err := Config{ServiceVersion: "1.2.0"}.resource()
	require.NoError(t, err)

	set := res.Set()
	name, ok := set.Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "content-graphql", name.AsString())
	version, ok := set.Value(attribute.Key("service.version"))
	require.True(t, ok)
	assert.Equal(t, "1.2.0", version.AsString())
	_, ok = set.Value(attribute.Key("deployment.environment"))
	assert.False(t, ok)
}

func TestInitMeterProvider(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "cms", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, mp.provider)
	require.NotNil(t, mp.exporter)

	metrics, err := InitMetrics(discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, metrics.requestCounter)
	assert.NotNil(t, metrics.resolverCalls)
	assert.NotNil(t, metrics.loaderBatches)

	assert.NoError(t, mp.Shutdown(context.Background(), discardLogger()))
}

func TestParseOTLPProtocol(t *testing.T) {
	for in, want := range map[string]otlpProtocol{
		"":               otlpProtocolGRPC,
		"GRPC":           otlpProtocolGRPC,
		"http":           otlpProtocolHTTP,
		" http/protobuf": otlpProtocolHTTP,
	} {
		got, err := parseOTLPProtocol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseOTLPProtocol("http/json")
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}

func TestNewExporterSettings(t *testing.T) {
	s, err := newExporterSettings(OTLPExporterConfig{
		Endpoint:         "https://collector:4318/v1/traces",
		Protocol:         "http",
		Compression:      "GZIP",
		RetryEnabled:     true,
		RetryMaxAttempts: 3,
		Timeout:          2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, s.protocol)
	assert.True(t, s.isURL)
	assert.True(t, s.gzip)
	assert.True(t, s.retry)
	require.NotNil(t, s.tls)

	s, err = newExporterSettings(OTLPExporterConfig{Endpoint: "collector:4317", Insecure: true, RetryEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, s.protocol)
	assert.False(t, s.isURL)
	assert.Nil(t, s.tls)
	assert.False(t, s.retry, "retries need a positive attempt budget")

	_, err = newExporterSettings(OTLPExporterConfig{Protocol: "udp"})
	assert.Error(t, err)
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.pem")
	require.NoError(t, os.WriteFile(junk, []byte("not-a-cert"), 0o600))

	tests := []struct {
		name    string
		cfg     OTLPExporterConfig
		wantErr string
	}{
		{name: "system roots", cfg: OTLPExporterConfig{}},
		{name: "missing CA", cfg: OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "none.pem")}, wantErr: "read OTLP CA file"},
		{name: "CA without PEM", cfg: OTLPExporterConfig{TLSCertFile: junk}, wantErr: "no PEM certificates"},
		{name: "cert without key", cfg: OTLPExporterConfig{TLSClientCertFile: junk}, wantErr: "must be set together"},
		{name: "key without cert", cfg: OTLPExporterConfig{TLSClientKeyFile: junk}, wantErr: "must be set together"},
		{name: "unreadable pair", cfg: OTLPExporterConfig{TLSClientCertFile: junk, TLSClientKeyFile: junk}, wantErr: "load OTLP client certificate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildTLSConfig(tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, cfg.RootCAs)
			assert.Empty(t, cfg.Certificates)
		})
	}
}

func TestTraceSamplerForRatio(t *testing.T) {
	sample := func(s sdktrace.Sampler, parent context.Context) sdktrace.SamplingDecision {
		return s.ShouldSample(sdktrace.SamplingParameters{
			ParentContext: parent,
			TraceID:       trace.TraceID{9},
			Name:          "articles",
		}).Decision
	}
	remoteParent := func(flags trace.TraceFlags) context.Context {
		return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{1},
			SpanID:     trace.SpanID{1},
			TraceFlags: flags,
			Remote:     true,
		}))
	}

	assert.Equal(t, sdktrace.Drop, sample(traceSamplerForRatio(0), context.Background()))
	assert.Equal(t, sdktrace.Drop, sample(traceSamplerForRatio(-1), remoteParent(trace.FlagsSampled)))
	assert.Equal(t, sdktrace.RecordAndSample, sample(traceSamplerForRatio(1), context.Background()))

	half := traceSamplerForRatio(0.5)
	assert.Equal(t, sdktrace.RecordAndSample, sample(half, remoteParent(trace.FlagsSampled)))
	assert.Equal(t, sdktrace.Drop, sample(half, remoteParent(0)))
}
