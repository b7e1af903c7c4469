package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// scenarioMethod — псевдометод, под которым учитывается весь сценарий целиком.
const scenarioMethod = "scenario"

// latencyReport — задержки в миллисекундах.
type latencyReport struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencyReport    `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencyReport           `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

// series — сырые наблюдения одного метода.
type series struct {
	codes     map[codes.Code]int64
	latencies []time.Duration
}

func (s *series) summarize() methodReport {
	r := methodReport{Codes: make(map[string]int64, len(s.codes))}
	for code, n := range s.codes {
		r.Calls += n
		if code == codes.OK {
			r.Success += n
		} else {
			r.Failed += n
		}
		r.Codes[code.String()] = n
	}
	r.ErrorRate = ratio(r.Failed, r.Calls)
	r.LatencyMs = summarizeLatencies(s.latencies)
	return r
}

// collector принимает наблюдения от всех воркеров прогона.
type collector struct {
	mu     sync.Mutex
	series map[string]*series
}

func newCollector() *collector {
	return &collector{series: make(map[string]*series)}
}

func (c *collector) record(method string, latency time.Duration, err error) {
	code := callCode(err)

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.series[method]
	if s == nil {
		s = &series{codes: make(map[codes.Code]int64)}
		c.series[method] = s
	}
	s.codes[code]++
	s.latencies = append(s.latencies, latency)
}

func (c *collector) snapshot(method string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.series[method]
	if !ok {
		return methodReport{}, false
	}
	return s.summarize(), true
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodReport, len(c.series)),
	}
	for method, s := range c.series {
		r.Methods[method] = s.summarize()
	}

	scenario := r.Methods[scenarioMethod]
	r.TotalScenarios = scenario.Calls
	r.SuccessScenarios = scenario.Success
	r.FailedScenarios = scenario.Failed
	r.ErrorRate = scenario.ErrorRate
	r.ScenarioLatencyMs = scenario.LatencyMs
	if elapsed > 0 {
		r.RPS = float64(r.TotalScenarios) / elapsed.Seconds()
	}
	return r
}

// callCode возвращает gRPC-код вызова. Client превращает InvalidArgument
// и NotFound в *domain.InvalidRequestError, код восстанавливается по HTTP-статусу.
func callCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	ire, ok := domain.AsInvalidRequest(err)
	switch {
	case !ok:
		return status.Code(err)
	case ire.HTTPStatus == http.StatusNotFound:
		return codes.NotFound
	default:
		return codes.InvalidArgument
	}
}

// writeJSONReport пишет отчёт только внутри текущего каталога.
func writeJSONReport(path string, r report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return fmt.Errorf("output path must point to a file")
	case filepath.IsAbs(clean):
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(data, '\n'), 0o600)
}

func printReport(w io.Writer, r report, cfg config) {
	fmt.Fprintln(w, "Load test summary")
	fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), r.TotalScenarios, r.SuccessScenarios, r.FailedScenarios, r.ErrorRate)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", r.DurationSeconds, r.RPS)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "method\tcalls\tfailed\terror_rate\tp50_ms\tp95_ms\tp99_ms\tmax_ms")
	row := func(name string, m methodReport) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			name, m.Calls, m.Failed, m.ErrorRate, m.LatencyMs.P50, m.LatencyMs.P95, m.LatencyMs.P99, m.LatencyMs.Max)
	}
	for _, name := range slices.Sorted(maps.Keys(r.Methods)) {
		if name != scenarioMethod {
			row(name, r.Methods[name])
		}
	}
	if scenario, ok := r.Methods[scenarioMethod]; ok {
		row(scenarioMethod, scenario)
	}
	_ = tw.Flush()
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

func summarizeLatencies(latencies []time.Duration) latencyReport {
	if len(latencies) == 0 {
		return latencyReport{}
	}

	ms := make([]float64, len(latencies))
	var sum float64
	for i, d := range latencies {
		ms[i] = float64(d) / float64(time.Millisecond)
		sum += ms[i]
	}
	slices.Sort(ms)

	return latencyReport{
		Min:  ms[0],
		Mean: sum / float64(len(ms)),
		P50:  percentile(ms, 0.50),
		P95:  percentile(ms, 0.95),
		P99:  percentile(ms, 0.99),
		Max:  ms[len(ms)-1],
	}
}

// percentile — квантиль q в [0, 1] отсортированной выборки с линейной
// интерполяцией между соседними значениями.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lower := int(pos)
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lower] + (sorted[lower+1]-sorted[lower])*(pos-float64(lower))
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
