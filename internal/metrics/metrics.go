package metrics

import "time"

// Recorder receives gateway and checkout telemetry.
type Recorder interface {
	ObserveGatewayCall(provider, operation string, duration time.Duration, err error)
	IncCheckoutOutcome(provider, outcome string)
	IncWebhook(provider, result string)
}

type NoopRecorder struct{}

func (NoopRecorder) ObserveGatewayCall(string, string, time.Duration, error) {}
func (NoopRecorder) IncCheckoutOutcome(string, string)                     {}
func (NoopRecorder) IncWebhook(string, string)                             {}
