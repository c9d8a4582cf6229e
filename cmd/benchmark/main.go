package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/qrpay/internal/apiclient"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Assumes the seeder ran (account ids 1..1000).
const totalAccounts = 1000

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalFlows   uint64
	created      uint64
	completed    uint64
	conflicts    uint64 // 409, lock contention on the payer
	insufficient uint64 // 422 on accept
	failOther    uint64
)

func main() {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Drive concurrent create/accept payment request flows against the API",
		RunE:  run,
	}
	cmd.Flags().StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	cmd.Flags().IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	cmd.Flags().StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := log.WithComponent("benchmark")
	if workload != "uniform" && workload != "hotspot" {
		return fmt.Errorf("unknown workload %q", workload)
	}
	logger.Info().
		Str("workload", workload).
		Int("workers", concurrency).
		Dur("duration", duration).
		Msg("starting benchmark")

	ctx, cancel := context.WithTimeout(cmd.Context(), duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			worker(ctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return printResults(time.Since(start))
}

func worker(ctx context.Context) {
	clients := map[int64]*apiclient.Client{}
	clientFor := func(id int64) *apiclient.Client {
		c, ok := clients[id]
		if !ok {
			c = apiclient.New(apiclient.Config{BaseURL: targetURL, AccountID: id, Timeout: 5 * time.Second})
			clients[id] = c
		}
		return c
	}

	for ctx.Err() == nil {
		payer, recipient := generateAccounts()
		atomic.AddUint64(&totalFlows, 1)

		resp, err := clientFor(recipient).Create(ctx, domain.CreateRequest{
			Amount:           decimal.New(1, 0),
			Description:      "benchmark",
			ExpiresInMinutes: 5,
		}, "bench-"+uuid.NewString())
		if err != nil {
			record(ctx, err)
			continue
		}
		atomic.AddUint64(&created, 1)

		if _, err := clientFor(payer).Act(ctx, resp.RequestID, domain.ActionAccept); err != nil {
			record(ctx, err)
			continue
		}
		atomic.AddUint64(&completed, 1)
	}
}

func record(ctx context.Context, err error) {
	if ctx.Err() != nil && errors.Is(err, apiclient.ErrNetwork) {
		// deadline hit mid-request
		return
	}
	switch apiclient.StatusCode(err) {
	case http.StatusConflict:
		atomic.AddUint64(&conflicts, 1)
	case http.StatusUnprocessableEntity:
		atomic.AddUint64(&insufficient, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

// generateAccounts returns (payer, recipient).
func generateAccounts() (int64, int64) {
	if workload == "hotspot" {
		// Hotspot: 90% of payments come from account 1
		if rand.Float32() < 0.90 {
			return 1, int64(rand.Intn(totalAccounts-1) + 2)
		}
	}

	// Uniform Random
	a := rand.Intn(totalAccounts) + 1
	b := rand.Intn(totalAccounts) + 1
	for a == b {
		b = rand.Intn(totalAccounts) + 1
	}
	return int64(a), int64(b)
}

func printResults(d time.Duration) error {
	total := atomic.LoadUint64(&totalFlows)
	done := atomic.LoadUint64(&completed)
	c409 := atomic.LoadUint64(&conflicts)

	var abortRate float64
	if total > 0 {
		abortRate = float64(c409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_flows":        total,
		"requests_created":   atomic.LoadUint64(&created),
		"payments_completed": done,
		"throughput_tps":     float64(done) / d.Seconds(),
		"aborts_conflict":    c409,
		"abort_rate_pct":     abortRate,
		"insufficient_funds": atomic.LoadUint64(&insufficient),
		"errors":             atomic.LoadUint64(&failOther),
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	// Also save to file
	file, err := os.Create(fmt.Sprintf("results_%s.json", workload))
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(results)
}
