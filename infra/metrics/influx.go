package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/xuwkk/power-system-operation/core/metrics"
	"github.com/xuwkk/power-system-operation/infra/logger"
)

// InfluxSink writes solve and calibration points to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordSolve writes one solve point.
func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("solve").
		AddTag("problem", ev.Problem).
		AddTag("status", ev.Status).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000))
	if finite(ev.Objective) {
		p = p.AddField("objective", round3(ev.Objective))
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

// RecordWindow writes one calibration window point.
func (s *InfluxSink) RecordWindow(ev coremetrics.WindowEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("calibration_window").
		AddTag("run_id", ev.RunID).
		AddField("window", ev.Window).
		AddField("start", ev.Start).
		AddField("max_flow_pu", round3(ev.MaxFlow)).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000))
	if finite(ev.Objective) {
		p = p.AddField("objective", round3(ev.Objective))
	}
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

// RecordBranchLimits writes one point per branch.
func (s *InfluxSink) RecordBranchLimits(ev coremetrics.BranchLimitsEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(ev.Limits))
	for k, l := range ev.Limits {
		p := write.NewPointWithMeasurement("branch_limit").
			AddTag("run_id", ev.RunID).
			AddTag("case", ev.Case).
			AddTag("branch", strconv.Itoa(k+1)).
			AddField("limit_pu", round3(l))
		if k < len(ev.Observed) {
			p = p.AddField("observed_pu", round3(ev.Observed[k]))
		}
		points = append(points, p.SetTime(ev.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
