package application

import (
	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/ports"
)

// Outcome labels shared by every recorder call
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeSkipped   = "skipped"
	OutcomeInactive  = "inactive"
	OutcomeCreated   = "created"
	OutcomeRepaired  = "repaired"
	OutcomeAmbiguous = "ambiguous"
)

type nopMetrics struct{}

func (nopMetrics) ObserveRefresh(domain.Provider, string)                     {}
func (nopMetrics) ObserveRecovery(domain.Provider, string)                    {}
func (nopMetrics) ObserveWebhookRegistration(domain.Provider, string, string) {}
func (nopMetrics) ObserveWebhookIngest(domain.Provider, string)               {}
func (nopMetrics) ObserveTask(string, string)                                 {}

func metricsOrNop(m ports.Metrics) ports.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
