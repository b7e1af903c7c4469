package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/version"
)

// Status — состояние компонента или всего сервиса.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы: итог сервиса равен худшему из проверок.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — тело ответа /healthz.
type Report struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Build         version.Build    `json:"build"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Checks        map[string]Check `json:"checks,omitempty"`
}

// Failing возвращает отсортированные имена проверок в статусе unhealthy.
func (r Report) Failing() []string {
	var names []string
	for name, check := range r.Checks {
		if check.Status == StatusUnhealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Checker проверяет один компонент песочницы.
type Checker interface {
	Check() Check
}

// Handler собирает проверки object store, outbox и хранилища ключей
// идемпотентности и отдаёт их по HTTP.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	build     version.Build
	startTime time.Time
	now       func() time.Time
}

func NewHandler(build version.Build) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		build:     build,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RegisterChecker добавляет или заменяет проверку с именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	return checkers
}

// Evaluate выполняет все проверки без блокировки регистрации.
func (h *Handler) Evaluate() Report {
	checkers := h.snapshot()
	now := h.now()

	report := Report{
		Status:        StatusHealthy,
		Timestamp:     now.UTC(),
		Build:         h.build,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Checks:        make(map[string]Check, len(checkers)),
	}
	for name, checker := range checkers {
		check := checker.Check()
		report.Checks[name] = check
		if check.Status.severity() > report.Status.severity() {
			report.Status = check.Status
		}
	}
	return report
}

// ServeHTTP отдаёт полный отчёт; degraded не считается отказом.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report := h.Evaluate()

	statusCode := http.StatusOK
	if report.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(report)
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503 и перечисляет упавшие проверки.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if failing := h.Evaluate().Failing(); len(failing) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready: " + strings.Join(failing, ",")))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// SimpleChecker превращает функцию-пробу в Checker.
type SimpleChecker struct {
	name    string
	checkFn func() error
}

func NewSimpleChecker(name string, checkFn func() error) *SimpleChecker {
	return &SimpleChecker{name: name, checkFn: checkFn}
}

func (c *SimpleChecker) Check() Check {
	start := time.Now()
	err := c.checkFn()

	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}
