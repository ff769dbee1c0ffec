//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package telemetry provides the shared OpenTelemetry handles used across
// crewcall. Exporter wiring is a deployment concern; by default the global
// no-op providers are used.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/crewcall-ai/crewcall"

// Tracer is the tracer used for engine spans.
var Tracer trace.Tracer = otel.Tracer(instrumentationName)

// Meter is the meter used for engine metrics.
var Meter metric.Meter = otel.Meter(instrumentationName)

// Attribute keys attached to spans and metrics.
const (
	// KeyProvider is the LLM provider identifier.
	KeyProvider = attribute.Key("crewcall.provider")
	// KeyAgent is the agent kind handling a turn.
	KeyAgent = attribute.Key("crewcall.agent")
	// KeyStrategy is the supervisor fan-out strategy.
	KeyStrategy = attribute.Key("crewcall.strategy")
	// KeyTool is the tool name of a tool invocation.
	KeyTool = attribute.Key("crewcall.tool")
	// KeyOutcome marks an operation outcome ("ok" or "error").
	KeyOutcome = attribute.Key("crewcall.outcome")
)
