/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for the monfront front end.
//
// Custom span attributes use the `monfront.` prefix. Remote API spans also
// carry `rpc.system` and `rpc.method`.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/marcus-qen/monfront"
)

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initialises the OTel trace provider with an OTLP gRPC exporter.
// If endpoint is empty, tracing is disabled (noop provider is used).
// Returns a shutdown function that must be called on application exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(), // TLS configurable via env (OTEL_EXPORTER_OTLP_INSECURE)
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("monfront"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartDispatchSpan creates the parent span for one action dispatch.
func StartDispatchSpan(ctx context.Context, action, method string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "action.dispatch",
		trace.WithAttributes(
			attribute.String("monfront.action", action),
			attribute.String("http.request.method", method),
		),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// EndDispatchSpan records the dispatch outcome and ends the span.
func EndDispatchSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("monfront.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartAPICallSpan creates a child span for a remote API call.
func StartAPICallSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "api."+method,
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndAPICallSpan enriches the API span with the call result and ends it.
func EndAPICallSpan(span trace.Span, errorCode int, err error) {
	if errorCode != 0 {
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", errorCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
