package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sparks/config"
	"sparks/models"
	"sparks/service"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages OpenTelemetry metrics for the escrow engine
// and the expiration sweeper.
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// reader overrides the configured exporter
	reader sdkmetric.Reader

	// Metric instruments
	wagersOpenedCounter    metric.Int64Counter
	wagersOpenGauge        metric.Int64UpDownCounter
	stakesCounter          metric.Int64Counter
	stakedSparksCounter    metric.Int64Counter
	wagersSettledCounter   metric.Int64Counter
	sparksMintedCounter    metric.Int64Counter
	sparksForfeitedCounter metric.Int64Counter
	sparksRefundedCounter  metric.Int64Counter
	ledgerEntriesCounter   metric.Int64Counter
	operationErrorsCounter metric.Int64Counter
	sweepCyclesCounter     metric.Int64Counter
	sweepWagersCounter     metric.Int64Counter
	sweepDurationHist      metric.Float64Histogram
	natsPublishedCounter   metric.Int64Counter
}

var _ service.MetricsRecorder = (*MetricsProvider)(nil)

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	reader := mp.reader
	if reader == nil {
		var exporter sdkmetric.Exporter
		switch mp.config.OTelExporterType {
		case "console":
			exporter, err = stdoutmetric.New()
			if err != nil {
				return fmt.Errorf("failed to create console exporter: %w", err)
			}
			log.Info("Using console metric exporter")

		case "otlp":
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			exporter, err = otlpmetricgrpc.New(dialCtx,
				otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			if err != nil {
				return fmt.Errorf("failed to create OTLP exporter: %w", err)
			}
			log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

		case "none":
			log.Info("Metrics export disabled (exporter_type='none')")
			mp.initialized = true
			return nil

		default:
			return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
		}

		reader = sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
		)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("sparks")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	var err error

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&mp.wagersOpenedCounter, WagersOpenedTotal, "Total number of wagers opened"},
		{&mp.stakesCounter, StakesTotal, "Total number of stakes placed"},
		{&mp.stakedSparksCounter, StakedSparksTotal, "Total Sparks moved into escrow"},
		{&mp.wagersSettledCounter, WagersSettledTotal, "Total number of wagers settled"},
		{&mp.sparksMintedCounter, SparksMintedTotal, "Total Sparks created as winnings"},
		{&mp.sparksForfeitedCounter, SparksForfeitedTotal, "Total Sparks removed from losing stakes"},
		{&mp.sparksRefundedCounter, SparksRefundedTotal, "Total Sparks returned from escrow"},
		{&mp.ledgerEntriesCounter, LedgerEntriesTotal, "Total number of ledger entries written"},
		{&mp.operationErrorsCounter, OperationErrorsTotal, "Total number of failed engine operations"},
		{&mp.sweepCyclesCounter, SweepCyclesTotal, "Total number of expiration sweeps"},
		{&mp.sweepWagersCounter, SweepWagersTotal, "Expired wagers handled by the sweeper"},
		{&mp.natsPublishedCounter, NATSMessagesPublishedTotal, "Total number of NATS messages published"},
	}
	for _, c := range counters {
		*c.target, err = mp.meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit("1"),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	// UpDownCounter for gauge-like behavior
	mp.wagersOpenGauge, err = mp.meter.Int64UpDownCounter(
		WagersOpen,
		metric.WithDescription("Wagers opened minus wagers settled since start"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create open wagers gauge: %w", err)
	}

	mp.sweepDurationHist, err = mp.meter.Float64Histogram(
		SweepDuration,
		metric.WithDescription("Duration of expiration sweeps in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep duration histogram: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

func (mp *MetricsProvider) RecordWagerOpened() {
	if !mp.isEnabled() {
		return
	}

	ctx := context.Background()
	mp.wagersOpenedCounter.Add(ctx, 1)
	mp.wagersOpenGauge.Add(ctx, 1)
}

func (mp *MetricsProvider) RecordWagerJoined(side models.Side, amount int64) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(attribute.String(LabelSide, string(side)))
	mp.stakesCounter.Add(context.Background(), 1, attrs)
	mp.stakedSparksCounter.Add(context.Background(), amount, attrs)
}

func (mp *MetricsProvider) RecordWagerSettled(outcome models.Outcome, system bool, result *models.SettlementResult) {
	if !mp.isEnabled() {
		return
	}

	ctx := context.Background()
	actor := ActorUser
	if system {
		actor = ActorSystem
	}
	mp.wagersSettledCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(LabelOutcome, string(outcome)),
		attribute.String(LabelActor, actor),
	))
	mp.wagersOpenGauge.Add(ctx, -1)

	if result == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(LabelOutcome, string(outcome)))
	mp.sparksMintedCounter.Add(ctx, result.TotalMinted, attrs)
	mp.sparksForfeitedCounter.Add(ctx, result.TotalForfeited, attrs)
	mp.sparksRefundedCounter.Add(ctx, result.TotalRefunded, attrs)
}

func (mp *MetricsProvider) RecordLedgerEntry(entryType models.EntryType) {
	if !mp.isEnabled() {
		return
	}

	mp.ledgerEntriesCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEntryType, string(entryType))),
	)
}

func (mp *MetricsProvider) RecordOperationError(operation string, kind service.ErrorKind) {
	if !mp.isEnabled() {
		return
	}

	mp.operationErrorsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelOperation, operation),
			attribute.String(LabelErrorKind, string(kind)),
		),
	)
}

// RecordSweep records one expiration sweep cycle
func (mp *MetricsProvider) RecordSweep(report models.SweepReport, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	ctx := context.Background()
	mp.sweepCyclesCounter.Add(ctx, 1)
	mp.sweepDurationHist.Record(ctx, duration.Seconds())

	for result, count := range map[string]int{
		SweepResultVoided:  report.Voided,
		SweepResultSkipped: report.Skipped,
		SweepResultFailed:  report.Failed,
	} {
		if count == 0 {
			continue
		}
		mp.sweepWagersCounter.Add(ctx, int64(count),
			metric.WithAttributes(attribute.String(LabelResult, result)),
		)
	}
}

// RecordNATSMessagePublished records a domain event forwarded to NATS
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEventType, eventType)),
	)
}

// isEnabled checks if metrics are enabled and instruments exist
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.config.OTelEnabled && mp.meter != nil
}
