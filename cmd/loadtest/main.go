package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/chargemock/internal/service/grpc"
)

const defaultAmount = int64(1000)

type loadMode string

const (
	// modeCharge: токен и сразу списанный платёж.
	modeCharge loadMode = "charge"
	// modeAuthCapture: токен, авторизация без списания и capture.
	modeAuthCapture loadMode = "auth-capture"
	// modeCustomer: токен, клиент с картой, платёж клиента и список его платежей.
	modeCustomer loadMode = "customer"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	partialRate int
	currency    string
	amountMinor int64
	cardNumber  string
	outputPath  string
}

// mockClient — часть grpcsvc.Client, которую использует нагрузка.
type mockClient interface {
	CreateToken(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.Token, error)
	CreateCharge(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.Charge, error)
	CaptureCharge(ctx context.Context, chargeID string, params domain.Params, opts ...grpc.CallOption) (domain.Charge, error)
	CreateCustomer(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.Customer, error)
	ListCharges(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.List[domain.Charge], error)
}

var _ mockClient = (*grpcsvc.Client)(nil)

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	flag.StringVar(&modeValue, "mode", string(modeCharge), "load mode: charge | auth-capture | customer")
	flag.IntVar(&cfg.partialRate, "partial-rate", 0, "partial capture probability in percent for auth-capture mode (0..100)")
	flag.StringVar(&cfg.currency, "currency", "usd", "charge currency")
	flag.Int64Var(&cfg.amountMinor, "amount-minor", defaultAmount, "charge amount in minor units")
	flag.StringVar(&cfg.cardNumber, "card", "4242424242424242", "card number used for tokens")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch {
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.amountMinor <= 1:
		return errors.New("amount-minor must be > 1")
	case cfg.partialRate < 0 || cfg.partialRate > 100:
		return errors.New("partial-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.currency) == "":
		return errors.New("currency is required")
	case strings.TrimSpace(cfg.cardNumber) == "":
		return errors.New("card is required")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case modeCharge, modeAuthCapture, modeCustomer:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]mockClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	startedAt := time.Now()
	runID := uuid.NewString()
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli mockClient) {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(cli, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// scenario выполняет шаги одного прогона; каждый шаг несёт свой idempotency-key.
type scenario struct {
	client mockClient
	cfg    config
	index  int
	runID  string
	col    *collector
}

func runScenario(client mockClient, cfg config, index int, runID string, col *collector) (err error) {
	started := time.Now()
	defer func() {
		col.record(scenarioMethod, time.Since(started), err)
	}()

	s := scenario{client: client, cfg: cfg, index: index, runID: runID, col: col}

	token, err := callRPC(s, "CreateToken", func(ctx context.Context) (domain.Token, error) {
		return client.CreateToken(ctx, domain.Params{"card": domain.Params{"number": cfg.cardNumber}})
	})
	if err != nil {
		return err
	}

	switch cfg.mode {
	case modeCustomer:
		return s.customerCharge(token.ID)
	case modeAuthCapture:
		return s.authorizeAndCapture(token.ID)
	default:
		_, err = s.createCharge(domain.Params{"source": token.ID})
		return err
	}
}

func (s scenario) createCharge(params domain.Params) (domain.Charge, error) {
	params["amount"] = s.cfg.amountMinor
	params["currency"] = s.cfg.currency
	charge, err := callRPC(s, "CreateCharge", func(ctx context.Context) (domain.Charge, error) {
		return s.client.CreateCharge(ctx, params)
	})
	if err == nil && charge.ID == "" {
		err = errors.New("create charge returned empty charge id")
	}
	return charge, err
}

func (s scenario) authorizeAndCapture(tokenID string) error {
	charge, err := s.createCharge(domain.Params{"source": tokenID, "capture": false})
	if err != nil {
		return err
	}

	params := domain.Params{}
	if shouldPartialCapture(s.index, s.cfg.partialRate) {
		params["amount"] = s.cfg.amountMinor / 2
	}
	captured, err := callRPC(s, "CaptureCharge", func(ctx context.Context) (domain.Charge, error) {
		return s.client.CaptureCharge(ctx, charge.ID, params)
	})
	if err == nil && !captured.Captured {
		err = fmt.Errorf("charge %s is not captured after capture call", charge.ID)
	}
	return err
}

func (s scenario) customerCharge(tokenID string) error {
	customer, err := callRPC(s, "CreateCustomer", func(ctx context.Context) (domain.Customer, error) {
		return s.client.CreateCustomer(ctx, domain.Params{
			"email":  fmt.Sprintf("load-%d@example.com", s.index),
			"source": tokenID,
		})
	})
	if err != nil {
		return err
	}

	if _, err := s.createCharge(domain.Params{"customer": customer.ID}); err != nil {
		return err
	}

	list, err := callRPC(s, "ListCharges", func(ctx context.Context) (domain.List[domain.Charge], error) {
		return s.client.ListCharges(ctx, domain.Params{"customer": customer.ID, "limit": 1})
	})
	if err == nil && len(list.Data) != 1 {
		err = fmt.Errorf("customer %s has %d charges, want 1", customer.ID, len(list.Data))
	}
	return err
}

// callRPC выполняет вызов с таймаутом и idempotency-key и записывает результат в collector.
func callRPC[T any](s scenario, method string, call func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.timeout)
	defer cancel()
	ctx = grpcsvc.WithIdempotencyKey(ctx, idempotencyKey(method, s.runID, s.index))

	start := time.Now()
	result, err := call(ctx)
	s.col.record(method, time.Since(start), err)
	return result, err
}

func idempotencyKey(method, runID string, index int) string {
	return fmt.Sprintf("lt-%s-%s-%d", strings.ToLower(method), runID, index)
}

func shouldPartialCapture(index, rate int) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 100 {
		return true
	}
	return index%100 < rate
}
