package memory

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const hubTracerName = "pedsa.memory"

const (
	spanCompile          = "hub.compile"
	spanRetrieve         = "hub.retrieve"
	spanRetrieveEnhanced = "hub.retrieve.enhanced"
)

func hubTracer() trace.Tracer {
	return otel.Tracer(hubTracerName)
}
