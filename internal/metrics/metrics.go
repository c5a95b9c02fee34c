package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	runnerExitCode = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rune2e",
		Name:      "runner_exit_code",
		Help:      "Exit status reported by the most recent test runner invocation.",
	})

	runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rune2e",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of the most recent end-to-end run in seconds.",
	})

	serverStops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rune2e",
		Name:      "server_stops_total",
		Help:      "Total number of stop requests issued to the application server.",
	})

	serverReady = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rune2e",
		Name:      "server_ready_seconds",
		Help:      "Time spent waiting for the application server to become ready.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	environments = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rune2e",
		Name:      "environments",
		Help:      "Browser environments selected for the run (1=selected).",
	}, []string{"environment"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rune2e",
		Name:      "build_info",
		Help:      "Build metadata for the running rune2e binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(runnerExitCode, runDuration, serverStops, serverReady, environments, buildInfo)
}

// Registry returns the Prometheus registry containing all rune2e metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetEnvironments replaces the selected environment set.
func SetEnvironments(names []string) {
	environments.Reset()
	for _, name := range names {
		if name == "" {
			continue
		}
		environments.WithLabelValues(name).Set(1)
	}
}

// ObserveRun records the runner exit status and total run duration.
func ObserveRun(exitCode int, d time.Duration) {
	runnerExitCode.Set(float64(exitCode))
	runDuration.Set(d.Seconds())
}

// IncServerStops counts a stop request sent to the server.
func IncServerStops() {
	serverStops.Inc()
}

// ObserveServerReady records how long the server took to pass readiness.
func ObserveServerReady(d time.Duration) {
	serverReady.Observe(d.Seconds())
}

// WriteTextfile writes the registry in the text exposition format to path,
// replacing the file atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
