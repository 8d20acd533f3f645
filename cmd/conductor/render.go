package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/conductor/internal/breaker"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/internal/queue"
	"github.com/ShayCichocki/conductor/internal/state"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))  // Green
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // Red
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // Orange
)

// formatEvent renders one orchestrator event as a single colored line.
func formatEvent(ev orchestrator.OrchestratorEvent) string {
	ts := ev.Timestamp.Format("15:04:05")
	subject := ev.TaskID
	if ev.AgentID != "" && ev.TaskID != "" {
		subject = ev.TaskID + "@" + ev.AgentID
	} else if subject == "" {
		subject = ev.AgentID
	}

	var symbol string
	var c *color.Color
	switch ev.Type {
	case orchestrator.EventRunStarted, orchestrator.EventRunCompleted:
		symbol, c = "●", color.New(color.FgBlue, color.Bold)
		subject = ev.RunID
	case orchestrator.EventTaskStarted:
		symbol, c = "→", color.New(color.FgCyan)
	case orchestrator.EventTaskCompleted, orchestrator.EventConsensus, orchestrator.EventTaskResumed:
		symbol, c = "✓", color.New(color.FgGreen)
	case orchestrator.EventTaskFailed, orchestrator.EventTaskDeadLettered:
		symbol, c = "✗", color.New(color.FgRed)
	case orchestrator.EventTaskSkipped, orchestrator.EventTaskRetry, orchestrator.EventBreakerStateChanged:
		symbol, c = "⚠", color.New(color.FgYellow)
	case orchestrator.EventTaskHumanReview:
		symbol, c = "?", color.New(color.FgMagenta)
	default:
		symbol, c = "·", color.New(color.Reset)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %-22s %s", ts, c.Sprint(symbol), ev.Type, subject)
	if ev.Duration > 0 {
		fmt.Fprintf(&b, " (%s)", formatDuration(ev.Duration))
	}
	if ev.Message != "" {
		b.WriteString(": " + ev.Message)
	}
	if ev.Error != nil {
		b.WriteString(": " + color.RedString(ev.Error.Error()))
	}
	return b.String()
}

// renderResult renders the outcome of an orchestration run.
func renderResult(res *models.OrchestrationResult) string {
	status := okStyle.Render("succeeded")
	if !res.Success {
		status = failStyle.Render("failed")
	}

	lines := []string{
		titleStyle.Render("Run " + res.RunID),
		field("Pattern", string(res.Pattern)),
		field("Status", status),
		field("Duration", formatDuration(res.TotalDuration)),
		field("Traces", fmt.Sprintf("%d", len(res.Traces))),
		"",
	}

	rows := [][]string{{"TASK", "AGENT", "TIME", "RESULT"}}
	for _, tr := range res.Traces {
		outcome := okStyle.Render(truncate(firstLine(tr.Output), 60))
		if tr.Failed() {
			outcome = failStyle.Render(truncate(tr.Error, 60))
		}
		rows = append(rows, []string{tr.TaskID, tr.AgentID, formatDuration(tr.Duration), outcome})
	}
	lines = append(lines, table(rows))

	return panelStyle.Render(strings.Join(lines, "\n"))
}

// renderMetrics renders queue metrics and any alerts.
func renderMetrics(m queue.Metrics) string {
	rate := okStyle.Render(fmt.Sprintf("%.1f%%", m.SuccessRate))
	if m.Total > 0 && m.SuccessRate < 50 {
		rate = failStyle.Render(fmt.Sprintf("%.1f%%", m.SuccessRate))
	}

	lines := []string{
		titleStyle.Render("Queue"),
		field("Total", fmt.Sprintf("%d", m.Total)),
		field("Queued", fmt.Sprintf("%d", m.Queued)),
		field("Processing", fmt.Sprintf("%d", m.Processing)),
		field("Completed", fmt.Sprintf("%d", m.Completed)),
		field("Failed", fmt.Sprintf("%d", m.Failed)),
		field("Human review", fmt.Sprintf("%d", m.HumanIntervention)),
		field("Dead letters", fmt.Sprintf("%d", m.InDLQ)),
		field("Avg retries", fmt.Sprintf("%.2f", m.AverageRetries)),
		field("Success rate", rate),
	}
	for _, a := range m.Alerts() {
		lines = append(lines, warnStyle.Render("⚠ "+a))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// renderBreakers renders the health and call counters of every breaker
// that saw traffic. NEXT PROBE is only set for open breakers.
func renderBreakers(snaps []breaker.Snapshot, now time.Time) string {
	if len(snaps) == 0 {
		return ""
	}
	rows := [][]string{{"AGENT", "STATE", "FAILURES", "CALLS", "OK", "FAILED", "REJECTED", "NEXT PROBE"}}
	for _, s := range snaps {
		st := okStyle.Render(string(s.State))
		switch s.State {
		case breaker.StateOpen:
			st = failStyle.Render(string(s.State))
		case breaker.StateHalfOpen:
			st = warnStyle.Render(string(s.State))
		}
		next := "-"
		if s.State == breaker.StateOpen {
			next = formatDuration(s.NextAttemptIn(now))
		}
		rows = append(rows, []string{
			s.ServiceName, st,
			fmt.Sprintf("%d", s.FailureCount),
			fmt.Sprintf("%d", s.TotalCalls),
			fmt.Sprintf("%d", s.TotalSuccesses),
			fmt.Sprintf("%d", s.TotalFailures),
			fmt.Sprintf("%d", s.ShortCircuited),
			next,
		})
	}
	return panelStyle.Render(titleStyle.Render("Breakers") + "\n" + table(rows))
}

// renderTasks renders the live queue.
func renderTasks(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return "Queue is empty."
	}
	rows := [][]string{{"ID", "AGENT", "TYPE", "PRIORITY", "STATUS", "RETRIES", "LAST ERROR"}}
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID, t.AgentID, string(t.Type), string(t.Priority),
			statusStyle(t.Status).Render(string(t.Status)),
			fmt.Sprintf("%d", t.RetryCount),
			truncate(t.LastError, 40),
		})
	}
	return table(rows)
}

// renderDeadLetters renders the dead-letter queue.
func renderDeadLetters(dlq []models.DeadLetterTask) string {
	if len(dlq) == 0 {
		return "Dead-letter queue is empty."
	}
	rows := [][]string{{"ID", "AGENT", "TYPE", "RETRIES", "MOVED", "FINAL ERROR"}}
	for _, d := range dlq {
		rows = append(rows, []string{
			d.ID, d.AgentID, string(d.Type),
			fmt.Sprintf("%d", d.RetryCount),
			d.MovedToDLQAt.Local().Format("2006-01-02 15:04"),
			failStyle.Render(truncate(d.FinalError, 50)),
		})
	}
	return table(rows)
}

// renderRuns renders the run history.
func renderRuns(runs []state.RunSummary) string {
	if len(runs) == 0 {
		return "No runs recorded."
	}
	rows := [][]string{{"RUN", "PATTERN", "STATUS", "TASKS", "DURATION", "WHEN"}}
	for _, r := range runs {
		st := okStyle.Render("ok")
		if !r.Success {
			st = failStyle.Render("failed")
		}
		rows = append(rows, []string{
			r.ID, string(r.Pattern), st,
			fmt.Sprintf("%d", r.Tasks),
			formatDuration(r.TotalDuration),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return table(rows)
}

func statusStyle(s models.TaskStatus) lipgloss.Style {
	switch s {
	case models.TaskStatusCompleted:
		return okStyle
	case models.TaskStatusFailed:
		return failStyle
	case models.TaskStatusHumanIntervention, models.TaskStatusProcessing:
		return warnStyle
	default:
		return valueStyle
	}
}

// table lays rows out in columns sized to their widest cell. The first row
// is the header.
func table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows))
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := lipgloss.NewStyle().Width(widths[i] + 2)
			if r == 0 {
				style = style.Inherit(headerStyle)
			}
			cells[i] = style.Render(cell)
		}
		lines = append(lines, strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
	}
	return strings.Join(lines, "\n")
}

func field(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-13s", label)) + valueStyle.Render(value)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
