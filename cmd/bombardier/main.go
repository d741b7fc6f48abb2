// Command bombardier drives one scenario-testing flow against an in-memory
// target and serves the admin surface (gRPC health/reflection + HTTP control
// API) for the duration of the run. Grounded on cmd/loadtest/main.go's
// flag-driven config/report structure, generalized from a one-shot gRPC
// load generator into a flow started through internal/controller and
// polled to quiescence.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/adminsurface"
	"github.com/vladislavdragonenkov/bombardier/internal/controller"
	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/externalapi/fake"
	"github.com/vladislavdragonenkov/bombardier/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bombardier/internal/metrics"
)

type config struct {
	service       string
	users         int
	tests         int
	rate          float64
	slowStart     bool
	workers       int
	stopAfterSlot bool
	paymentFact   bool
	duration      time.Duration

	adminGRPCAddr string
	adminHTTPAddr string
	kafkaBrokers  string
	outputPath    string
}

type summary struct {
	Service       string  `json:"service"`
	NumberOfUsers int     `json:"number_of_users"`
	NumberOfTests int     `json:"number_of_tests"`
	TestsStarted  int64   `json:"tests_started"`
	TestsFinished int64   `json:"tests_finished"`
	DurationSecs  float64 `json:"duration_seconds"`
	TestsPerSec   float64 `json:"tests_per_second"`
}

func parseConfig() (config, error) {
	var cfg config
	var durationValue string

	flag.StringVar(&cfg.service, "service", "checkout", "service name to drive a testing flow against")
	flag.IntVar(&cfg.users, "users", 100, "number of users to seed the pool with")
	flag.IntVar(&cfg.tests, "tests", 1000, "total number of tests to run")
	flag.Float64Var(&cfg.rate, "rate", 50, "target tests per second")
	flag.BoolVar(&cfg.slowStart, "slow-start", false, "ramp the rate limiter up gradually instead of starting at full rate")
	flag.IntVar(&cfg.workers, "workers", controller.DefaultWorkers, "number of concurrent worker goroutines")
	flag.BoolVar(&cfg.stopAfterSlot, "stop-after-order-creation", false, "end each test as SUCCESS right after order creation")
	flag.BoolVar(&cfg.paymentFact, "success-by-payment-fact", false, "end each test as SUCCESS right after payment, skipping delivery")
	flag.StringVar(&durationValue, "duration", "0s", "optional wall-clock timeout to wait for quiescence (0 = wait indefinitely)")
	flag.StringVar(&cfg.adminGRPCAddr, "admin-grpc-addr", adminsurface.DefaultConfig().GRPCAddr, "admin gRPC health/reflection listen address")
	flag.StringVar(&cfg.adminHTTPAddr, "admin-http-addr", adminsurface.DefaultConfig().HTTPAddr, "admin HTTP control API listen address")
	flag.StringVar(&cfg.kafkaBrokers, "kafka-brokers", "", "comma-separated Kafka broker addresses for optional outcome events")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON summary output file path")
	flag.Parse()

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	if strings.TrimSpace(cfg.service) == "" {
		return cfg, errors.New("service is required")
	}
	if cfg.users <= 0 {
		return cfg, errors.New("users must be > 0")
	}
	if cfg.tests <= 0 {
		return cfg, errors.New("tests must be > 0")
	}
	if cfg.rate <= 0 {
		return cfg, errors.New("rate must be > 0")
	}
	if cfg.workers <= 0 {
		return cfg, errors.New("workers must be > 0")
	}

	return cfg, nil
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "bombardier: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithField("component", "bombardier")

	api := fake.New(fake.WithDeliverySlots([]int{1, 3, 5}))
	m := metrics.New()

	opts := []controller.Option{controller.WithMetrics(m)}
	if producer := maybeKafkaProducer(cfg.kafkaBrokers, logger); producer != nil {
		defer producer.Close()
		opts = append(opts, controller.WithKafkaProducer(producer))
	}
	c := controller.New(api, opts...)

	adminDone := make(chan error, 1)
	go func() {
		adminDone <- adminsurface.Run(ctx, adminsurface.Config{GRPCAddr: cfg.adminGRPCAddr, HTTPAddr: cfg.adminHTTPAddr}, c)
	}()

	params := domain.RunParams{
		ServiceName:                 cfg.service,
		NumberOfUsers:               cfg.users,
		NumberOfTests:               cfg.tests,
		RatePerSecond:               cfg.rate,
		SlowStartOn:                 cfg.slowStart,
		Workers:                     cfg.workers,
		StopAfterOrderCreation:      cfg.stopAfterSlot,
		TestSuccessByThePaymentFact: cfg.paymentFact,
	}

	started := time.Now()
	if err := c.StartTestingForService(ctx, params); err != nil {
		stop()
		<-adminDone
		return fmt.Errorf("start testing flow: %w", err)
	}

	snapshot, waitErr := pollUntilQuiescent(ctx, c, cfg.service, cfg.duration)
	elapsed := time.Since(started)

	printSummary(snapshot, elapsed)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, buildSummary(snapshot, elapsed)); err != nil {
			logger.WithError(err).Warn("failed to write summary report")
		}
	}

	stop()
	<-adminDone

	return waitErr
}

func maybeKafkaProducer(brokersCSV string, logger *log.Entry) *kafka.Producer {
	brokersCSV = strings.TrimSpace(brokersCSV)
	if brokersCSV == "" {
		return nil
	}

	var brokers []string
	for _, b := range strings.Split(brokersCSV, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}
	return producer
}

// pollUntilQuiescent polls GetTestingFlowForService until the flow is no
// longer registered (it has finished or been stopped), ctx is cancelled, or
// the optional duration elapses, whichever comes first.
func pollUntilQuiescent(ctx context.Context, c *controller.Controller, service string, duration time.Duration) (controller.FlowSnapshot, error) {
	const pollInterval = 100 * time.Millisecond

	var timeoutCh <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last controller.FlowSnapshot
	for {
		snapshot, err := c.GetTestingFlowForService(service)
		if errors.Is(err, controller.ErrNotFound) {
			last.Running = false
			return last, nil
		}
		if err == nil {
			last = snapshot
		}

		select {
		case <-ctx.Done():
			_ = c.StopTestByServiceName(context.Background(), service)
			return last, ctx.Err()
		case <-timeoutCh:
			_ = c.StopTestByServiceName(context.Background(), service)
			return last, nil
		case <-ticker.C:
		}
	}
}

func buildSummary(s controller.FlowSnapshot, elapsed time.Duration) summary {
	result := summary{
		Service:       s.ServiceName,
		NumberOfUsers: s.NumberOfUsers,
		NumberOfTests: s.NumberOfTests,
		TestsStarted:  s.TestsStarted,
		TestsFinished: s.TestsFinished,
		DurationSecs:  elapsed.Seconds(),
	}
	if elapsed > 0 {
		result.TestsPerSec = float64(s.TestsFinished) / elapsed.Seconds()
	}
	return result
}

func printSummary(s controller.FlowSnapshot, elapsed time.Duration) {
	result := buildSummary(s, elapsed)
	fmt.Println("Bombardier run summary")
	fmt.Printf("service=%s users=%d tests=%d started=%d finished=%d\n",
		result.Service, result.NumberOfUsers, result.NumberOfTests, result.TestsStarted, result.TestsFinished)
	fmt.Printf("duration=%.2fs tests/sec=%.2f\n", result.DurationSecs, result.TestsPerSec)
}

func writeJSONReport(path string, result summary) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
