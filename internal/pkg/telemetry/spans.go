package telemetry

// Span names emitted by the search engine.
const (
	SpanFindMeetingPoint   = "meetpoint.find"
	SpanEvaluateCandidates = "meetpoint.evaluate"
	SpanEvaluateCombined   = "orchestrator.evaluate_combined"
	SpanEvaluateAll        = "orchestrator.evaluate_all"
	SpanEvaluateGroups     = "orchestrator.evaluate_groups"
	SpanOracleCall         = "orchestrator.oracle_call"
)
