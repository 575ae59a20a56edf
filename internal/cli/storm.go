package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stormCmd)
	stormCmd.Flags().IntP("total", "n", 100, "number of increments to send")
	stormCmd.Flags().IntP("concurrency", "c", 10, "number of concurrent workers")
}

type stormResult struct {
	Timestamp       string  `json:"timestamp"`
	BaseURL         string  `json:"base_url"`
	Line            string  `json:"line"`
	Requests        int     `json:"requests"`
	Concurrency     int     `json:"concurrency"`
	Successful      int     `json:"successful"`
	Errors          int     `json:"errors"`
	FirstError      string  `json:"first_error,omitempty"`
	StartQuantity   int     `json:"start_quantity"`
	FinalQuantity   int     `json:"final_quantity"`
	Stock           int     `json:"stock"`
	ExpectedFinal   int     `json:"expected_final"`
	LostUpdates     int     `json:"lost_updates"`
	DurationSeconds float64 `json:"duration_seconds"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	P50LatencyMs    float64 `json:"p50_latency_ms"`
	P90LatencyMs    float64 `json:"p90_latency_ms"`
	P99LatencyMs    float64 `json:"p99_latency_ms"`
	ThroughputRPS   float64 `json:"throughput_rps"`
}

// stormCmd fires concurrent increments at one line and checks that none
// were lost: the final quantity must equal the start plus every successful
// increment, capped at stock.
var stormCmd = &cobra.Command{
	Use:   "storm LINE_OR_ITEM",
	Short: "Send concurrent increments to one cart line and check for lost updates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		total, _ := cmd.Flags().GetInt("total")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if total <= 0 || concurrency <= 0 {
			return fmt.Errorf("total and concurrency must be > 0")
		}

		ctx := commandContext(cmd)
		c := newClient()
		id, err := resolveLine(ctx, c, args[0])
		if err != nil {
			return err
		}
		before, err := c.Cart(ctx)
		if err != nil {
			return err
		}
		var startQty, stock int
		for _, ln := range before.Lines {
			if ln.ID == id {
				startQty, stock = ln.Quantity, ln.Item.Stock
			}
		}

		var (
			mu        sync.Mutex
			latencies []float64
			errCount  int
			firstErr  string
		)
		tasks := make(chan struct{})
		var wg sync.WaitGroup
		start := time.Now()
		for range concurrency {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range tasks {
					t0 := time.Now()
					_, err := c.Increment(ctx, id)
					d := time.Since(t0)
					mu.Lock()
					if err != nil {
						errCount++
						if firstErr == "" {
							firstErr = err.Error()
						}
					} else {
						latencies = append(latencies, float64(d.Microseconds())/1000)
					}
					mu.Unlock()
				}
			}()
		}
		for range total {
			tasks <- struct{}{}
		}
		close(tasks)
		wg.Wait()
		elapsed := time.Since(start)

		after, err := c.Cart(ctx)
		if err != nil {
			return err
		}
		finalQty := 0
		for _, ln := range after.Lines {
			if ln.ID == id {
				finalQty = ln.Quantity
			}
		}

		expected := min(startQty+len(latencies), stock)
		p50, p90, p99 := calcPercentiles(latencies)
		res := stormResult{
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			BaseURL:         baseURL,
			Line:            string(id),
			Requests:        total,
			Concurrency:     concurrency,
			Successful:      len(latencies),
			Errors:          errCount,
			FirstError:      firstErr,
			StartQuantity:   startQty,
			FinalQuantity:   finalQty,
			Stock:           stock,
			ExpectedFinal:   expected,
			LostUpdates:     max(0, expected-finalQty),
			DurationSeconds: elapsed.Seconds(),
			AvgLatencyMs:    mean(latencies),
			P50LatencyMs:    p50,
			P90LatencyMs:    p90,
			P99LatencyMs:    p99,
			ThroughputRPS:   float64(len(latencies)) / elapsed.Seconds(),
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if res.LostUpdates > 0 {
			return fmt.Errorf("%d increments were lost", res.LostUpdates)
		}
		return nil
	},
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func calcPercentiles(values []float64) (float64, float64, float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(values)
	return percentile(values, 0.50), percentile(values, 0.90), percentile(values, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
