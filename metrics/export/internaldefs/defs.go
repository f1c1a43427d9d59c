// Package internaldefs holds the shared metric definitions used by the
// Prometheus and OTel exporters.
package internaldefs

import (
	"github.com/mediscan/stepup"
)

// CounterDef maps one engine counter to its exported name.
type CounterDef struct {
	ID   stepup.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported name.
type HistogramDef struct {
	ID   stepup.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: stepup.MetricVerificationRequest, Name: "stepup_verification_request_total", Help: "Access verification challenge requests."},
	{ID: stepup.MetricVerificationDenied, Name: "stepup_verification_denied_total", Help: "Challenge requests rejected by the access policy."},
	{ID: stepup.MetricChallengeSuperseded, Name: "stepup_challenge_superseded_total", Help: "Pending challenges replaced by a re-issue for the same scope."},
	{ID: stepup.MetricDeliveryFailure, Name: "stepup_delivery_failure_total", Help: "Failed out-of-band code deliveries."},
	{ID: stepup.MetricVerifySuccess, Name: "stepup_verify_success_total", Help: "Successfully consumed verification codes."},
	{ID: stepup.MetricVerifyFailure, Name: "stepup_verify_failure_total", Help: "Failed code submissions."},
	{ID: stepup.MetricVerifyAttemptsExceeded, Name: "stepup_verify_attempts_exceeded_total", Help: "Submissions against exhausted challenges."},
	{ID: stepup.MetricSessionIssued, Name: "stepup_session_issued_total", Help: "Access sessions minted."},
	{ID: stepup.MetricGateAllowed, Name: "stepup_gate_allowed_total", Help: "Gate authorizations that passed."},
	{ID: stepup.MetricGateDenied, Name: "stepup_gate_denied_total", Help: "Gate authorizations that were denied."},
	{ID: stepup.MetricGateScopeMismatch, Name: "stepup_gate_scope_mismatch_total", Help: "Gate denials where a valid session existed for a different scope."},
	{ID: stepup.MetricReaperExpired, Name: "stepup_reaper_expired_total", Help: "Pending challenges transitioned to expired by the reaper."},
}

var HistogramDefs = []HistogramDef{
	{ID: stepup.MetricAuthorizeLatency, Name: "stepup_authorize_latency_seconds", Help: "Authorize latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
