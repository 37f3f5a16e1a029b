package main

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"featureflow/internal/gate"
	"featureflow/internal/progress"
	"featureflow/internal/stage"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func colorize(value, color string, enabled bool) string {
	if !enabled || color == "" {
		return value
	}
	return color + value + ansiReset
}

func featureStatusColor(status progress.FeatureStatus) string {
	switch status {
	case progress.StatusSuccess:
		return ansiGreen
	case progress.StatusFailure:
		return ansiRed
	case progress.StatusSkipped:
		return ansiYellow
	default:
		return ansiBlue
	}
}

func overallColor(status progress.OverallStatus) string {
	switch status {
	case progress.OverallSuccess:
		return ansiGreen
	case progress.OverallPartialFailure:
		return ansiYellow
	case progress.OverallFailure:
		return ansiRed
	default:
		return ansiBlue
	}
}

func stageColor(s stage.Stage) string {
	switch s {
	case stage.Complete:
		return ansiGreen
	case stage.Blocked:
		return ansiRed
	default:
		return ""
	}
}

func gateLabel(result *gate.Result, enabled bool) string {
	switch {
	case result == nil:
		return "-"
	case result.Pass:
		return colorize("pass", ansiGreen, enabled)
	default:
		return colorize("fail", ansiRed, enabled)
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
