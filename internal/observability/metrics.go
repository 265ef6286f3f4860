package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"alttext/internal/models"
)

// Metrics holds the batch pipeline instruments. It implements
// services.MetricsRecorder.
type Metrics struct {
	meter metric.Meter

	BatchesCreated  metric.Int64Counter
	BatchesAdopted  metric.Int64Counter
	Polls           metric.Int64Counter
	TerminalTasks   metric.Int64Counter
	ResultBytes     metric.Int64Counter
	ResultDownloads metric.Int64Counter
	RowsMerged      metric.Int64Counter
	RowsDropped     metric.Int64Counter
}

// NewMetrics creates all metrics backed by a Prometheus exporter on a private
// registry and returns the handler serving that registry.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("alttext")
	m := &Metrics{meter: meter}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.BatchesCreated, "batches_created", "Batch jobs created by the coordinator", ""},
		{&m.BatchesAdopted, "batches_adopted", "Existing batch jobs linked to tasks during discovery", ""},
		{&m.Polls, "batch_polls", "Batch status reads, by observed status", ""},
		{&m.TerminalTasks, "tasks_terminal", "Tasks that reached a terminal status, by status", ""},
		{&m.ResultBytes, "result_download", "Bytes of batch result files downloaded", "By"},
		{&m.ResultDownloads, "result_files_downloaded", "Batch result files downloaded", ""},
		{&m.RowsMerged, "rows_merged", "Dataset rows updated from batch results", ""},
		{&m.RowsDropped, "rows_dropped", "Result records dropped as failed, empty or anomalous", ""},
	}
	for _, c := range counters {
		opts := []metric.Int64CounterOption{metric.WithDescription(c.desc)}
		if c.unit != "" {
			opts = append(opts, metric.WithUnit(c.unit))
		}
		*c.dst, err = meter.Int64Counter(c.name, opts...)
		if err != nil {
			return nil, nil, err
		}
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func (m *Metrics) RecordBatchCreated(ctx context.Context) {
	m.BatchesCreated.Add(ctx, 1)
}

func (m *Metrics) RecordBatchAdopted(ctx context.Context) {
	m.BatchesAdopted.Add(ctx, 1)
}

func (m *Metrics) RecordPoll(ctx context.Context, status models.JobStatus) {
	m.Polls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}

func (m *Metrics) RecordTerminal(ctx context.Context, status models.JobStatus) {
	m.TerminalTasks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}

func (m *Metrics) RecordResultDownloaded(ctx context.Context, bytes int) {
	m.ResultDownloads.Add(ctx, 1)
	m.ResultBytes.Add(ctx, int64(bytes))
}

func (m *Metrics) RecordRowsMerged(ctx context.Context, merged, dropped int) {
	m.RowsMerged.Add(ctx, int64(merged))
	m.RowsDropped.Add(ctx, int64(dropped))
}
