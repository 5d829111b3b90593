// Package budget converts live load signals into a pressure level and a
// recommended degradation action. The model is pure: it reads the counters
// passed in on each tick and keeps no internal state, so repeated calls with
// identical inputs are idempotent.
package budget

// Level is the coarse pressure classification.
type Level string

const (
	LevelOK      Level = "OK"
	LevelWarning Level = "WARNING"
	LevelOver    Level = "OVER"
)

// Recommendation is the degradation action suggested to the arbiter.
type Recommendation string

const (
	RecommendNone               Recommendation = "none"
	RecommendReduceToolCalls    Recommendation = "reduce_tool_calls"
	RecommendReduceOutputTokens Recommendation = "reduce_output_tokens"
	RecommendForceClarify       Recommendation = "force_clarify"
	RecommendQueueDeepWork      Recommendation = "queue_deep_work"
)

// Counters are the live gauges supplied by the telemetry collaborator.
type Counters struct {
	P95LatencyMs float64            `json:"p95_latency_ms"`
	QueueDepth   int                `json:"queue_depth"`
	TokensUsed   int64              `json:"tokens_used"`
	TokenBudget  int64              `json:"token_budget"`
	LanePressure map[string]float64 `json:"lane_pressure,omitempty"`
}

// State is the budget model output, recomputed on every tick and never
// persisted.
type State struct {
	Level     Level          `json:"level"`
	Recommend Recommendation `json:"recommend"`
}

// Thresholds are the pressure boundaries. All are policy parameters.
type Thresholds struct {
	WarnLatencyMs    float64 `json:"warn_latency_ms" yaml:"warn_latency_ms"`
	OverLatencyMs    float64 `json:"over_latency_ms" yaml:"over_latency_ms"`
	WarnQueueDepth   int     `json:"warn_queue_depth" yaml:"warn_queue_depth"`
	OverQueueDepth   int     `json:"over_queue_depth" yaml:"over_queue_depth"`
	WarnTokenRatio   float64 `json:"warn_token_ratio" yaml:"warn_token_ratio"`
	OverTokenRatio   float64 `json:"over_token_ratio" yaml:"over_token_ratio"`
	WarnLanePressure float64 `json:"warn_lane_pressure" yaml:"warn_lane_pressure"`
	OverLanePressure float64 `json:"over_lane_pressure" yaml:"over_lane_pressure"`
	// ClarifyQueueDepth is the queue depth at which an OVER budget
	// recommends forcing clarification instead of queueing deep work.
	ClarifyQueueDepth int `json:"clarify_queue_depth" yaml:"clarify_queue_depth"`
}

// DefaultThresholds returns the production pressure boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnLatencyMs:     1500,
		OverLatencyMs:     4000,
		WarnQueueDepth:    8,
		OverQueueDepth:    32,
		WarnTokenRatio:    0.75,
		OverTokenRatio:    0.95,
		WarnLanePressure:  0.70,
		OverLanePressure:  0.90,
		ClarifyQueueDepth: 64,
	}
}

// Evaluate classifies the counters and picks the degradation action.
//
// The recommendation ladder escalates with pressure: none at OK,
// reduce_tool_calls then reduce_output_tokens at WARNING, queue_deep_work at
// OVER, and force_clarify only when OVER with clarify-grade queue pressure.
func Evaluate(c Counters, th Thresholds) State {
	level := classify(c, th)

	switch level {
	case LevelOK:
		return State{Level: LevelOK, Recommend: RecommendNone}
	case LevelWarning:
		if tokenRatio(c) >= th.WarnTokenRatio {
			return State{Level: LevelWarning, Recommend: RecommendReduceOutputTokens}
		}
		return State{Level: LevelWarning, Recommend: RecommendReduceToolCalls}
	default:
		if c.QueueDepth >= th.ClarifyQueueDepth {
			return State{Level: LevelOver, Recommend: RecommendForceClarify}
		}
		return State{Level: LevelOver, Recommend: RecommendQueueDeepWork}
	}
}

func classify(c Counters, th Thresholds) Level {
	maxLane := 0.0
	for _, p := range c.LanePressure {
		if p > maxLane {
			maxLane = p
		}
	}
	ratio := tokenRatio(c)

	switch {
	case c.P95LatencyMs >= th.OverLatencyMs,
		c.QueueDepth >= th.OverQueueDepth,
		ratio >= th.OverTokenRatio,
		maxLane >= th.OverLanePressure:
		return LevelOver
	case c.P95LatencyMs >= th.WarnLatencyMs,
		c.QueueDepth >= th.WarnQueueDepth,
		ratio >= th.WarnTokenRatio,
		maxLane >= th.WarnLanePressure:
		return LevelWarning
	default:
		return LevelOK
	}
}

func tokenRatio(c Counters) float64 {
	if c.TokenBudget <= 0 {
		return 0
	}
	return float64(c.TokensUsed) / float64(c.TokenBudget)
}
