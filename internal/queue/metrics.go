package queue

import (
	"fmt"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// Metrics is a read-only snapshot of queue health.
type Metrics struct {
	Total             int     `json:"total"`
	Queued            int     `json:"queued"`
	Processing        int     `json:"processing"`
	Completed         int     `json:"completed"`
	Failed            int     `json:"failed"`
	HumanIntervention int     `json:"human_intervention"`
	InDLQ             int     `json:"in_dlq"`
	AverageRetries    float64 `json:"average_retries"`
	SuccessRate       float64 `json:"success_rate"`
}

// Alert thresholds.
const (
	alertMinTasks       = 5
	alertMinSuccessRate = 50.0
	alertMaxDLQ         = 10
)

// CalculateQueueMetrics aggregates the live queue and the dead-letter queue.
// SuccessRate is a percentage of the live queue.
func CalculateQueueMetrics(tasks []*models.Task, dlq []models.DeadLetterTask) Metrics {
	m := Metrics{Total: len(tasks), InDLQ: len(dlq)}
	retries := 0
	for _, t := range tasks {
		retries += t.RetryCount
		switch t.Status {
		case models.TaskStatusQueued:
			m.Queued++
		case models.TaskStatusProcessing:
			m.Processing++
		case models.TaskStatusCompleted:
			m.Completed++
		case models.TaskStatusFailed:
			m.Failed++
		case models.TaskStatusHumanIntervention:
			m.HumanIntervention++
		}
	}
	if m.Total > 0 {
		m.AverageRetries = float64(retries) / float64(m.Total)
		m.SuccessRate = float64(m.Completed) / float64(m.Total) * 100
	}
	return m
}

// Alerts returns human-readable warnings for an unhealthy queue.
func (m Metrics) Alerts() []string {
	var alerts []string
	if m.Total > alertMinTasks && m.SuccessRate < alertMinSuccessRate {
		alerts = append(alerts, fmt.Sprintf("success rate %.1f%% is below %.0f%%", m.SuccessRate, alertMinSuccessRate))
	}
	if m.InDLQ > alertMaxDLQ {
		alerts = append(alerts, fmt.Sprintf("%d tasks in dead-letter queue need triage", m.InDLQ))
	}
	return alerts
}
