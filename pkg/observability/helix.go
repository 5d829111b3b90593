// HELIX-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HELIX semantic convention attributes.
var (
	// Decision attributes
	AttrDecisionID     = attribute.Key("helix.decision.id")
	AttrDecisionMode   = attribute.Key("helix.decision.mode")
	AttrDecisionReason = attribute.Key("helix.decision.reason")
	AttrTraceHash      = attribute.Key("helix.decision.trace_hash")
	AttrCertifyAllowed = attribute.Key("helix.decision.certify_allowed")

	// Alignment gate attributes
	AttrGateDecision = attribute.Key("helix.gate.decision")
	AttrGateMargin   = attribute.Key("helix.gate.coincidence_margin")

	// Frontier guard attributes
	AttrGuardTriggered = attribute.Key("helix.guard.triggered")
	AttrGuardAction    = attribute.Key("helix.guard.action")

	// Promotion attributes
	AttrPromotionVerdict = attribute.Key("helix.promotion.allowed")
	AttrPromotionCode    = attribute.Key("helix.promotion.fail_code")

	// Policy attributes
	AttrProfileName    = attribute.Key("helix.policy.profile")
	AttrProfileVersion = attribute.Key("helix.policy.profile_version")
)

// DecisionAttrs creates attributes for one arbitration outcome.
func DecisionAttrs(decisionID, mode, reason, traceHash string, certifyAllowed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDecisionID.String(decisionID),
		AttrDecisionMode.String(mode),
		AttrDecisionReason.String(reason),
		AttrTraceHash.String(traceHash),
		AttrCertifyAllowed.Bool(certifyAllowed),
	}
}

// GateAttrs creates attributes for an alignment-gate evaluation.
func GateAttrs(decision string, margin float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrGateDecision.String(decision),
		AttrGateMargin.Float64(margin),
	}
}

// GuardAttrs creates attributes for a frontier-guard evaluation.
func GuardAttrs(triggered bool, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrGuardTriggered.Bool(triggered),
		AttrGuardAction.String(action),
	}
}

// PromotionAttrs creates attributes for a promotion-gate evaluation.
func PromotionAttrs(allowed bool, failCode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPromotionVerdict.Bool(allowed),
		AttrPromotionCode.String(failCode),
	}
}

// ProfileAttrs creates attributes identifying the active policy profile.
func ProfileAttrs(name, version string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProfileName.String(name),
		AttrProfileVersion.String(version),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
