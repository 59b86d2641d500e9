// Benchmark tool for replaying spend history against Cardlens.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/spend.csv -url http://localhost:8080
//
// This tool:
//   1. Reads a spend-history CSV (user, card, merchant, category, amount)
//   2. Ingests each transaction through POST /transactions
//   3. Optionally replays each payment through POST /recommend (-recommend)
//   4. Reports match rates, granted benefit totals, latency and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SpendRecord represents a row from the spend-history CSV.
type SpendRecord struct {
	UserID           string
	CardID           string
	Amount           int64
	MerchantName     string
	MerchantCategory string
	Offline          bool
	Status           string
	ApprovedAt       string
}

// IngestRequest is the Cardlens transaction ingestion format.
type IngestRequest struct {
	UserID           string `json:"userId"`
	CardID           string `json:"cardId"`
	Amount           int64  `json:"amount"`
	MerchantName     string `json:"merchantName"`
	MerchantCategory string `json:"merchantCategory"`
	Offline          bool   `json:"offline,omitempty"`
	Status           string `json:"status,omitempty"`
	ApprovedAt       string `json:"approvedAt,omitempty"`
}

// IngestResponse is the Cardlens ingestion response format.
type IngestResponse struct {
	TransactionID string `json:"transactionId"`
	Benefit       *struct {
		BenefitID string `json:"benefitId"`
		Amount    int64  `json:"amount"`
	} `json:"benefit"`
}

// RecommendRequest is the Cardlens recommendation request format.
type RecommendRequest struct {
	UserID           string `json:"userId"`
	Amount           int64  `json:"amount"`
	MerchantName     string `json:"merchantName,omitempty"`
	MerchantCategory string `json:"merchantCategory"`
}

// RecommendResponse is the Cardlens recommendation response format.
type RecommendResponse struct {
	Count           int `json:"count"`
	Recommendations []struct {
		CardID string `json:"cardId"`
		Amount int64  `json:"amount"`
	} `json:"recommendations"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64

	BenefitMatched   int64 // transactions that earned a benefit
	BenefitUnmatched int64
	BenefitGranted   int64 // total granted benefit amount

	RecommendHits   int64 // payments where a recommendation was returned
	RecommendMisses int64
	RecommendOnBest int64 // payments already on the recommended card
	MissedSaving    int64 // saving left on the table by card choice

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to spend-history CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Cardlens base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	recommend := flag.Bool("recommend", false, "Also replay each payment through /recommend")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/spend.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           CARDLENS BENCHMARK - Spend History Replay           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Cardlens URL: %s\n", *baseURL)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Printf("Recommend:    %v\n", *recommend)
	fmt.Println()

	// Check Cardlens is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Cardlens not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Cardlens is running:")
		fmt.Println("  go run cmd/cardlens/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Cardlens is healthy")

	// Read spend history
	fmt.Printf("\nReading spend history from %s...\n", *csvPath)
	records, err := readSpendCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(records))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(records, *baseURL, *workers, *recommend, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration, *recommend)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readSpendCSV(path string, limit int) ([]SpendRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"userid", "cardid", "amount", "category"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	col := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var records []SpendRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseInt(col(record, "amount"), 10, 64)
		if err != nil || amount <= 0 {
			continue
		}

		records = append(records, SpendRecord{
			UserID:           col(record, "userid"),
			CardID:           col(record, "cardid"),
			Amount:           amount,
			MerchantName:     col(record, "merchant"),
			MerchantCategory: col(record, "category"),
			Offline:          col(record, "offline") == "1",
			Status:           col(record, "status"),
			ApprovedAt:       col(record, "approvedat"),
		})

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

func runBenchmark(records []SpendRecord, baseURL string, numWorkers int, recommend, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan SpendRecord, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for rec := range work {
				start := time.Now()

				var best *RecommendResponse
				if recommend {
					best, _ = recommendPayment(client, baseURL, rec)
				}

				result, err := ingestTransaction(client, baseURL, rec)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s/%s -> %v\n", rec.UserID, rec.CardID, err)
					}
					continue
				}

				granted := int64(0)
				if result.Benefit != nil {
					granted = result.Benefit.Amount
					atomic.AddInt64(&metrics.BenefitMatched, 1)
					atomic.AddInt64(&metrics.BenefitGranted, granted)
				} else {
					atomic.AddInt64(&metrics.BenefitUnmatched, 1)
				}

				onBest := false
				missed := int64(0)
				if best != nil && best.Count > 0 {
					atomic.AddInt64(&metrics.RecommendHits, 1)
					top := best.Recommendations[0]
					onBest = top.CardID == rec.CardID
					if onBest {
						atomic.AddInt64(&metrics.RecommendOnBest, 1)
					} else if top.Amount > granted {
						missed = top.Amount - granted
						atomic.AddInt64(&metrics.MissedSaving, missed)
					}
				} else if best != nil {
					atomic.AddInt64(&metrics.RecommendMisses, 1)
				}

				if verbose {
					status := "·"
					if result.Benefit != nil {
						status = "✓"
					}
					fmt.Printf("%s %-10s | Card: %-12s | Cat: %-12s | Amount: %8d | Benefit: %6d | Missed: %6d\n",
						status,
						rec.UserID,
						rec.CardID,
						rec.MerchantCategory,
						rec.Amount,
						granted,
						missed,
					)
				}
			}
		}()
	}

	// Send work
	for _, rec := range records {
		work <- rec
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func ingestTransaction(client *http.Client, baseURL string, rec SpendRecord) (*IngestResponse, error) {
	req := IngestRequest{
		UserID:           rec.UserID,
		CardID:           rec.CardID,
		Amount:           rec.Amount,
		MerchantName:     rec.MerchantName,
		MerchantCategory: rec.MerchantCategory,
		Offline:          rec.Offline,
		Status:           rec.Status,
		ApprovedAt:       rec.ApprovedAt,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/transactions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Async deployments queue the transaction and return no aggregation.
	if resp.StatusCode == http.StatusAccepted {
		return &IngestResponse{}, nil
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func recommendPayment(client *http.Client, baseURL string, rec SpendRecord) (*RecommendResponse, error) {
	req := RecommendRequest{
		UserID:           rec.UserID,
		Amount:           rec.Amount,
		MerchantName:     rec.MerchantName,
		MerchantCategory: rec.MerchantCategory,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/recommend", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result RecommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration, recommend bool) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 INGESTION\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Benefit Matched:  %d\n", m.BenefitMatched)
	fmt.Printf("   No Benefit:       %d\n", m.BenefitUnmatched)
	if m.BenefitMatched+m.BenefitUnmatched > 0 {
		matchRate := 100 * float64(m.BenefitMatched) / float64(m.BenefitMatched+m.BenefitUnmatched)
		fmt.Printf("   Match Rate:       %.2f%%\n", matchRate)
	}
	fmt.Printf("   Benefit Granted:  %d\n", m.BenefitGranted)

	if recommend {
		fmt.Printf("\n🎯 RECOMMENDATIONS\n")
		fmt.Printf("   With Suggestion:  %d\n", m.RecommendHits)
		fmt.Printf("   No Suggestion:    %d\n", m.RecommendMisses)
		fmt.Printf("   On Best Card:     %d\n", m.RecommendOnBest)
		if m.RecommendHits > 0 {
			bestRate := 100 * float64(m.RecommendOnBest) / float64(m.RecommendHits)
			fmt.Printf("   Best-Card Rate:   %.2f%%\n", bestRate)
		}
		fmt.Printf("   Missed Saving:    %d\n", m.MissedSaving)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
