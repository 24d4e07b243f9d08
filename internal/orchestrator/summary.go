package orchestrator

import (
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-browser-perf/internal/engine"
	"github.com/randomizedcoder/go-browser-perf/internal/preflight"
	"github.com/randomizedcoder/go-browser-perf/internal/stats"
)

func (o *Orchestrator) printPreflight(result *preflight.Result) {
	if o.config.TUIEnabled && result.Passed {
		return
	}
	preflight.FprintResults(o.out, result)
}

// printExitSummary prints the per URL statistics of the run.
func (o *Orchestrator) printExitSummary(runs []*engine.RunResult) {
	summary := o.metrics.GenerateSummary()

	cfg := stats.SummaryConfig{
		Browser:      browserName(runs),
		Duration:     summary.Duration,
		ResultDir:    o.ResultDir(),
		MetricsAddr:  o.config.MetricsAddr,
		IterationP50: summary.IterationP50,
		IterationP95: summary.IterationP95,
		IterationP99: summary.IterationP99,
	}
	if o.metricsServer != nil {
		cfg.MetricsAddr = o.metricsServer.Addr()
	}

	summaries := make([]stats.RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, r.Summary)
	}
	fmt.Fprint(o.out, stats.FormatRunSummary(summaries, cfg))
}

// browserName is the name and version of the first browser that reported
// one, e.g. "Chrome 120.0".
func browserName(runs []*engine.RunResult) string {
	for _, r := range runs {
		if r.Info.Name != "" {
			return strings.TrimSpace(r.Info.Name + " " + r.Info.Version)
		}
	}
	return ""
}
