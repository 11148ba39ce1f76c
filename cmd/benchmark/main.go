// Benchmark tool for testing FraudGuard against labelled claims data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/claims.csv -url http://localhost:8080
//
// This tool:
//  1. Reads a claims CSV with fraud labels (is_fraud column)
//  2. Submits each claim to FraudGuard for scoring
//  3. Compares the assigned risk band with the actual fraud labels
//  4. Calculates precision, recall, F1-score, and confusion matrix
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

// LabelledClaim represents a row from the labelled claims dataset.
type LabelledClaim struct {
	ClaimantName      string
	PolicyID          string
	PolicyStartDate   string
	NumPreviousClaims int
	VehicleMake       string
	VehicleModel      string
	VehicleYear       int
	VehicleReg        string
	VehicleValueGBP   float64
	AccidentDate      string
	AccidentType      string
	AccidentLocation  string
	ClaimAmountGBP    float64
	AccidentDesc      string
	WitnessName       string
	ThirdPartyName    string
	IsFraud           bool
}

// SubmitRequest is the FraudGuard claim submission format.
type SubmitRequest struct {
	ClaimantName      string  `json:"claimantName"`
	PolicyID          string  `json:"policyId"`
	PolicyStartDate   string  `json:"policyStartDate,omitempty"`
	NumPreviousClaims int     `json:"numPreviousClaims"`
	VehicleMake       string  `json:"vehicleMake"`
	VehicleModel      string  `json:"vehicleModel"`
	VehicleYear       int     `json:"vehicleYear"`
	VehicleReg        string  `json:"vehicleRegistration"`
	VehicleValueGBP   float64 `json:"vehicleEstimatedValueGbp"`
	AccidentDate      string  `json:"accidentDate"`
	AccidentType      string  `json:"accidentType"`
	AccidentLocation  string  `json:"accidentLocation"`
	ClaimAmountGBP    float64 `json:"claimAmountGbp"`
	AccidentDesc      string  `json:"accidentDescription"`
	WitnessName       string  `json:"witnessName,omitempty"`
	ThirdPartyName    string  `json:"thirdPartyName,omitempty"`
}

// SubmitResponse is the subset of the claim response the benchmark reads.
type SubmitResponse struct {
	ClaimID    string `json:"claimId"`
	FraudScore *int   `json:"fraudScore"`
	RiskBand   string `json:"riskBand"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged at or above the alert band
	FalsePositives int64 // Non-fraud flagged at or above the alert band
	TrueNegatives  int64 // Non-fraud below the alert band
	FalseNegatives int64 // Fraud below the alert band (missed!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labelled claims CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "FraudGuard base URL")
	orgID := flag.String("org", "", "Organization ID (empty = provision a fresh one)")
	alertBand := flag.String("alert-band", "medium", "Band treated as a fraud prediction: medium or high")
	limit := flag.Int("limit", 10000, "Maximum claims to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud claims")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/claims.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *alertBand != "medium" && *alertBand != "high" {
		fmt.Println("ERROR: -alert-band must be medium or high")
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        FRAUDGUARD BENCHMARK - Labelled Claim Replay           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:        %s\n", *csvPath)
	fmt.Printf("FraudGuard URL:  %s\n", *baseURL)
	fmt.Printf("Alert Band:      %s and above\n", *alertBand)
	fmt.Printf("Workers:         %d\n", *workers)
	fmt.Printf("Limit:           %d\n", *limit)
	fmt.Printf("Fraud Only:      %v\n", *fraudOnly)
	fmt.Println()

	// Check FraudGuard is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: FraudGuard not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure FraudGuard is running:")
		fmt.Println("  go run cmd/fraudguard/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ FraudGuard is healthy")

	// Resolve organization
	if *orgID == "" {
		id, err := provisionOrg(*baseURL)
		if err != nil {
			fmt.Printf("ERROR: Failed to provision benchmark org: %v\n", err)
			os.Exit(1)
		}
		*orgID = id
		fmt.Printf("✓ Provisioned organization %s\n", id)
	}

	// Read claims data
	fmt.Printf("\nReading claims from %s...\n", *csvPath)
	claims, err := readClaimsCSV(*csvPath, *limit, *fraudOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d claims\n", len(claims))

	// Count fraud vs non-fraud
	fraudCount := 0
	for _, c := range claims {
		if c.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(claims)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(claims)-fraudCount, 100*float64(len(claims)-fraudCount)/float64(len(claims)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(claims, *baseURL, *orgID, *alertBand, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
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

func provisionOrg(baseURL string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"orgName": "Benchmark Run " + time.Now().Format("2006-01-02 15:04:05"),
	})

	resp, err := http.Post(baseURL+"/organizations", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var org struct {
		OrgID string `json:"orgId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&org); err != nil {
		return "", err
	}
	return org.OrgID, nil
}

func readClaimsCSV(path string, limit int, fraudOnly bool) ([]LabelledClaim, error) {
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

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var claims []LabelledClaim

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := field(record, "is_fraud") == "1" || strings.EqualFold(field(record, "is_fraud"), "true")

		if fraudOnly && !isFraud {
			continue
		}

		prevClaims, _ := strconv.Atoi(field(record, "num_previous_claims"))
		vehicleYear, _ := strconv.Atoi(field(record, "vehicle_year"))
		vehicleValue, _ := strconv.ParseFloat(field(record, "vehicle_value_gbp"), 64)
		claimAmount, _ := strconv.ParseFloat(field(record, "claim_amount_gbp"), 64)

		claims = append(claims, LabelledClaim{
			ClaimantName:      field(record, "claimant_name"),
			PolicyID:          field(record, "policy_id"),
			PolicyStartDate:   field(record, "policy_start_date"),
			NumPreviousClaims: prevClaims,
			VehicleMake:       field(record, "vehicle_make"),
			VehicleModel:      field(record, "vehicle_model"),
			VehicleYear:       vehicleYear,
			VehicleReg:        field(record, "vehicle_registration"),
			VehicleValueGBP:   vehicleValue,
			AccidentDate:      field(record, "accident_date"),
			AccidentType:      field(record, "accident_type"),
			AccidentLocation:  field(record, "accident_location"),
			ClaimAmountGBP:    claimAmount,
			AccidentDesc:      field(record, "accident_description"),
			WitnessName:       field(record, "witness_name"),
			ThirdPartyName:    field(record, "third_party_name"),
			IsFraud:           isFraud,
		})

		if limit > 0 && len(claims) >= limit {
			break
		}
	}

	return claims, nil
}

// predicted reports whether the assigned band counts as a fraud
// prediction for the chosen alert band.
func predicted(band, alertBand string) bool {
	if alertBand == "high" {
		return band == "high"
	}
	return band == "high" || band == "medium"
}

func runBenchmark(claims []LabelledClaim, baseURL, orgID, alertBand string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabelledClaim, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := submitClaim(client, baseURL, orgID, c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", c.PolicyID, err)
					}
					continue
				}

				// Track actual labels
				if c.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				// Calculate confusion matrix
				pred := predicted(result.RiskBand, alertBand)
				actual := c.IsFraud

				if pred && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if pred && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !pred && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !pred && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if pred != actual {
						status = "✗"
					}
					score := 0
					if result.FraudScore != nil {
						score = *result.FraudScore
					}
					fmt.Printf("%s %-12s | Type: %-14s | Amount: £%10.2f | Fraud: %-5v | Band: %-6s (%d)\n",
						status,
						c.PolicyID,
						c.AccidentType,
						c.ClaimAmountGBP,
						c.IsFraud,
						result.RiskBand,
						score,
					)
				}
			}
		}()
	}

	// Send work
	for _, c := range claims {
		work <- c
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func submitClaim(client *http.Client, baseURL, orgID string, c LabelledClaim) (*SubmitResponse, error) {
	req := SubmitRequest{
		ClaimantName:      c.ClaimantName,
		PolicyID:          c.PolicyID,
		PolicyStartDate:   c.PolicyStartDate,
		NumPreviousClaims: c.NumPreviousClaims,
		VehicleMake:       c.VehicleMake,
		VehicleModel:      c.VehicleModel,
		VehicleYear:       c.VehicleYear,
		VehicleReg:        c.VehicleReg,
		VehicleValueGBP:   c.VehicleValueGBP,
		AccidentDate:      c.AccidentDate,
		AccidentType:      c.AccidentType,
		AccidentLocation:  c.AccidentLocation,
		ClaimAmountGBP:    c.ClaimAmountGBP,
		AccidentDesc:      c.AccidentDesc,
		WitnessName:       c.WitnessName,
		ThirdPartyName:    c.ThirdPartyName,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/claims", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Org-ID", orgID)
	httpReq.Header.Set("X-User-Name", "benchmark")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   FLAG        PASS")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged claims, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f claims/sec\n", cps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
