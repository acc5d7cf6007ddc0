// Package telemetry wires the OpenTelemetry metric SDK to a Prometheus
// registry so counters recorded anywhere in md-hub are scraped from
// GET /-/metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName 是 md-hub 自身指标使用的 instrumentation scope。
const MeterName = "github.com/any-hub/md-hub"

// Provider 持有 MeterProvider 与其背后的 Prometheus registry。
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *prometheus.Registry
}

// NewProvider 创建独立 registry，避免与进程内其他 Prometheus 默认注册冲突。
func NewProvider() (*Provider, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Provider{meterProvider: mp, registry: registry}, nil
}

// Meter 返回 md-hub 的 Meter。
func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(MeterName)
}

// InstallGlobal 将 MeterProvider 设为 otel 全局实例，供第三方 instrumentation 使用。
func (p *Provider) InstallGlobal() {
	otel.SetMeterProvider(p.meterProvider)
}

// Handler 返回 Prometheus 文本格式的抓取端点。
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown 刷新并关闭 MeterProvider。
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}
