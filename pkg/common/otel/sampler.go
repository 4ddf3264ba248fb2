package otel

import (
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// endpointExcluder drops spans for noisy routes such as health probes and
// samples everything else at a fixed ratio.
type endpointExcluder struct {
	endpoints map[string]struct{}
	delegate  sdktrace.Sampler
}

func newEndpointExcluder(endpoints map[string]struct{}, probability float64) endpointExcluder {
	if probability <= 0 {
		probability = 1
	}
	return endpointExcluder{
		endpoints: endpoints,
		delegate:  sdktrace.ParentBased(sdktrace.TraceIDRatioBased(probability)),
	}
}

var routeKeys = []attribute.Key{"http.route", "url.path", "http.target"}

// ShouldSample implements the sdktrace.Sampler interface.
func (ee endpointExcluder) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if _, ok := ee.endpoints[p.Name]; ok {
		return sdktrace.SamplingResult{Decision: sdktrace.Drop}
	}
	for _, attr := range p.Attributes {
		for _, k := range routeKeys {
			if attr.Key != k {
				continue
			}
			if _, ok := ee.endpoints[attr.Value.AsString()]; ok {
				return sdktrace.SamplingResult{Decision: sdktrace.Drop}
			}
		}
	}
	return ee.delegate.ShouldSample(p)
}

// Description implements the sdktrace.Sampler interface.
func (ee endpointExcluder) Description() string {
	return "customSampler"
}
