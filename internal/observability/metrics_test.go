package observability

import (
	"testing"
	"time"

	"github.com/danmuck/sshexec/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("sshexec", "GET", "/health", 200, 12*time.Millisecond)
	RecordRemoteExecution(OutcomeSuccess, 40*time.Millisecond)
}

func TestRecordGateDecisionLabels(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(gateDecisions.WithLabelValues("false", "blocked_command"))
	RecordGateDecision(false, "blocked_command")
	RecordGateDecision(false, "blocked_command")
	after := testutil.ToFloat64(gateDecisions.WithLabelValues("false", "blocked_command"))
	assert.Equal(t, before+2, after)

	beforeAllowed := testutil.ToFloat64(gateDecisions.WithLabelValues("true", "none"))
	RecordGateDecision(true, "")
	assert.Equal(t, beforeAllowed+1, testutil.ToFloat64(gateDecisions.WithLabelValues("true", "none")))
}
