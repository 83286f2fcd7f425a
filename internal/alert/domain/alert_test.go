package domain

import "testing"

func TestThresholdEvaluateHigherIsWorse(t *testing.T) {
	threshold := Threshold{Metric: MetricAPIErrorCount, Warning: 10, Critical: 50, Direction: HigherIsWorse}

	tests := []struct {
		value float64
		want  Level
	}{
		{0, ""},
		{10, ""}, // boundary values are healthy
		{11, LevelWarning},
		{50, LevelWarning},
		{51, LevelCritical},
	}
	for _, tc := range tests {
		if got := threshold.Evaluate(tc.value); got != tc.want {
			t.Errorf("Evaluate(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestThresholdEvaluateLowerIsWorse(t *testing.T) {
	threshold := Threshold{Metric: MetricPaymentSuccessRate, Warning: 95, Critical: 80, Direction: LowerIsWorse}

	tests := []struct {
		value float64
		want  Level
	}{
		{99, ""},
		{95, ""},
		{94, LevelWarning},
		{80, LevelWarning},
		{79, LevelCritical},
	}
	for _, tc := range tests {
		if got := threshold.Evaluate(tc.value); got != tc.want {
			t.Errorf("Evaluate(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestThresholdValidate(t *testing.T) {
	tests := []struct {
		name      string
		threshold Threshold
		wantErr   bool
	}{
		{"valid higher", Threshold{Metric: MetricAPIErrorCount, Warning: 10, Critical: 50, Direction: HigherIsWorse}, false},
		{"valid lower", Threshold{Metric: MetricPaymentSuccessRate, Warning: 95, Critical: 80, Direction: LowerIsWorse}, false},
		{"unknown metric", Threshold{Metric: "bogus", Direction: HigherIsWorse}, true},
		{"inverted higher", Threshold{Metric: MetricAPIErrorCount, Warning: 50, Critical: 10, Direction: HigherIsWorse}, true},
		{"inverted lower", Threshold{Metric: MetricPaymentSuccessRate, Warning: 80, Critical: 95, Direction: LowerIsWorse}, true},
		{"unknown direction", Threshold{Metric: MetricAPIErrorCount, Direction: "sideways"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.threshold.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDefaultThresholdsCoverEscalationMetrics(t *testing.T) {
	defaults := DefaultThresholds()
	byMetric := make(map[Metric]Threshold, len(defaults))
	for _, th := range defaults {
		if err := th.Validate(); err != nil {
			t.Errorf("default threshold %s invalid: %v", th.Metric, err)
		}
		byMetric[th.Metric] = th
	}

	// The security escalation metrics must fire critical on any positive value.
	for _, m := range []Metric{MetricSessionRiskCritical, MetricAdminSecurity} {
		th, ok := byMetric[m]
		if !ok {
			t.Errorf("no default threshold for %s", m)
			continue
		}
		if got := th.Evaluate(1); got != LevelCritical {
			t.Errorf("%s Evaluate(1) = %q, want critical", m, got)
		}
	}
}
