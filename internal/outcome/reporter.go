// Package outcome defines the terminal-state hand-off to the rating and
// persistence collaborators. Reporting is fire-and-forget from the session's
// perspective: failures are logged and never mutate the in-memory result.
package outcome

import "go.uber.org/zap"

// Result describes a finished game for downstream rating/persistence.
type Result struct {
	WinnerUserID string // empty on a draw
	LoserUserID  string // empty on a draw
	IsDraw       bool
	TimeControl  string
}

// Reporter hands a decided game to the external collaborators.
type Reporter interface {
	ReportResult(result Result) error
}

// LogReporter is a Reporter that only records the outcome. It stands in for
// the rating/persistence services in local runs and tests.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// ReportResult logs the outcome.
func (r *LogReporter) ReportResult(result Result) error {
	r.logger.Info("game result reported",
		zap.String("winner", result.WinnerUserID),
		zap.String("loser", result.LoserUserID),
		zap.Bool("draw", result.IsDraw),
		zap.String("time_control", result.TimeControl),
	)
	return nil
}
