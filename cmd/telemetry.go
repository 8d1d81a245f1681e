package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/laraaskovic/Adversarial-Regression-Testing-Engine/explore"
)

const (
	serviceName       = "arte"
	telemetryShutdown = 5 * time.Second
	exporterConnect   = 10 * time.Second
)

// startTelemetry starts the metrics endpoint and the OTLP trace exporter when
// their addresses are set. The returned function stops both.
func startTelemetry(ctx context.Context, metricsAddr, otlpEndpoint string, metrics *explore.Metrics) (func(), error) {
	var stops []func(context.Context) error

	if metricsAddr != "" {
		srv, err := serveMetrics(metricsAddr, metrics)
		if err != nil {
			return nil, err
		}
		stops = append(stops, srv.Shutdown)
		logrus.Infof("Serving metrics on http://%s/metrics", srv.Addr)
	}

	if otlpEndpoint != "" {
		tp, err := newTracerProvider(ctx, otlpEndpoint)
		if err != nil {
			for _, stop := range stops {
				_ = stop(context.Background())
			}
			return nil, err
		}
		otel.SetTracerProvider(tp)
		stops = append(stops, tp.Shutdown)
		logrus.Infof("Exporting traces to %s", otlpEndpoint)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdown)
		defer cancel()
		for _, stop := range stops {
			if err := stop(ctx); err != nil {
				logrus.Warnf("telemetry shutdown: %v", err)
			}
		}
	}, nil
}

// serveMetrics exposes the exploration registry at /metrics.
func serveMetrics(addr string, metrics *explore.Metrics) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	srv := &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server: %v", err)
		}
	}()
	return srv, nil
}

// newTracerProvider builds a batching provider exporting over insecure gRPC.
func newTracerProvider(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterConnect)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		attribute.String("service.component", "explorer"),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}
