package metrics

// Package metrics defines interfaces and implementations for recording
// dispatch solve outcomes. Sinks like the Prometheus-backed one in
// infra/metrics record solve counts, durations and KPI snapshots and can be
// combined with NewMultiSink. The factory helpers return a MultiSink
// automatically when multiple sinks are configured.
