package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

type entitiesRequest struct {
	Text string `json:"text"`
}

type textToDiagramRequest struct {
	Prompt string `json:"prompt"`
}

type textToDiagramResponse struct {
	GeneratedResponse  string `json:"generatedResponse"`
	RateLimitRemaining *int   `json:"rateLimitRemaining"`
	Error              string `json:"error"`
}

type result struct {
	Sample    string `json:"sample"`
	Flow      string `json:"flow"`
	Chars     int    `json:"chars"`
	Run       int    `json:"run"`
	WallMs    int64  `json:"wall_ms"`
	OutBytes  int    `json:"out_bytes"`
	Remaining *int   `json:"rate_limit_remaining,omitempty"`
	Error     string `json:"error,omitempty"`
}

func main() {
	url := flag.String("url", "http://localhost:8090", "gateway base URL")
	apiKey := flag.String("api-key", "", "API key (optional)")
	runs := flag.Int("runs", 3, "number of runs per sample")
	flow := flag.String("flow", "all", "flow to benchmark: entities, text-to-diagram or all")
	concurrency := flag.Int("concurrency", 1, "requests in flight at once")
	jsonOut := flag.String("json", "", "write results to JSON file (e.g. results.json)")
	warmup := flag.Bool("warmup", false, "run one warmup request per sample before measuring")
	flag.Parse()

	baseURL := strings.TrimRight(*url, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(180 * time.Second).
		SetHeader("Content-Type", "application/json")
	if *apiKey != "" {
		client.SetHeader("X-API-Key", *apiKey)
	}

	samples := selectSamples(*flow)
	if len(samples) == 0 {
		fmt.Fprintf(os.Stderr, "No samples for flow %q\n", *flow)
		os.Exit(1)
	}

	if err := checkHealth(client); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Benchmarking %s (%d samples, %d runs each, concurrency %d", baseURL, len(samples), *runs, *concurrency)
	if *warmup {
		fmt.Print(", warmup enabled")
	}
	fmt.Println(")")

	ctx := context.Background()
	if *warmup {
		for _, s := range samples {
			w := benchmark(ctx, client, s, 0)
			if w.Error != "" {
				fmt.Printf("  Warmup %s FAILED (%s)\n", s.Name, w.Error)
			} else {
				fmt.Printf("  Warmup %s %dms (discarded)\n", s.Name, w.WallMs)
			}
		}
	}

	results := runAll(ctx, client, samples, *runs, *concurrency)

	fmt.Println()
	printTable(results)
	failures := printSummary(results)

	if *jsonOut != "" {
		if err := writeJSON(*jsonOut, results, baseURL); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
		} else {
			fmt.Printf("\nResults written to %s\n", *jsonOut)
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func selectSamples(flow string) []Sample {
	if flow == "all" {
		return Samples
	}
	var out []Sample
	for _, s := range Samples {
		if s.Flow == flow {
			out = append(out, s)
		}
	}
	return out
}

func checkHealth(client *resty.Client) error {
	resp, err := client.R().Get("/api/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// runAll fans the runs out over at most concurrency goroutines. Results
// come back ordered by sample and run.
func runAll(ctx context.Context, client *resty.Client, samples []Sample, runs, concurrency int) []result {
	var (
		mu      sync.Mutex
		results []result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for _, s := range samples {
		for run := 1; run <= runs; run++ {
			g.Go(func() error {
				r := benchmark(gctx, client, s, run)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()

				if r.Error != "" {
					fmt.Printf("  %s run %d FAILED (%s)\n", s.Name, run, r.Error)
				} else {
					fmt.Printf("  %s run %d %dms\n", s.Name, run, r.WallMs)
				}
				return nil
			})
		}
	}
	g.Wait()

	order := make(map[string]int, len(samples))
	for i, s := range samples {
		order[s.Name] = i
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Sample != results[j].Sample {
			return order[results[i].Sample] < order[results[j].Sample]
		}
		return results[i].Run < results[j].Run
	})
	return results
}

func benchmark(ctx context.Context, client *resty.Client, s Sample, run int) result {
	r := result{Sample: s.Name, Flow: s.Flow, Chars: utf8.RuneCountInString(s.Text), Run: run}

	req := client.R().SetContext(ctx)
	var path string
	switch s.Flow {
	case flowEntities:
		path = "/api/ai/entities"
		req.SetBody(entitiesRequest{Text: s.Text})
	case flowTextToDiagram:
		path = "/api/ai/text-to-diagram"
		req.SetBody(textToDiagramRequest{Prompt: s.Text})
	default:
		r.Error = "unknown flow " + s.Flow
		return r
	}

	start := time.Now()
	resp, err := req.Post(path)
	r.WallMs = time.Since(start).Milliseconds()
	if err != nil {
		r.Error = err.Error()
		return r
	}
	if resp.IsError() {
		r.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
		return r
	}

	body := resp.Body()
	r.OutBytes = len(body)

	if s.Flow == flowTextToDiagram {
		var tr textToDiagramResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			r.Error = err.Error()
			return r
		}
		r.Remaining = tr.RateLimitRemaining
		if tr.Error != "" {
			r.Error = tr.Error
		}
		r.OutBytes = len(tr.GeneratedResponse)
	}
	return r
}

func printTable(results []result) {
	fmt.Println("| Sample | Flow | Chars | Run | Wall (ms) | Out Bytes | Remaining |")
	fmt.Println("|--------|------|-------|-----|-----------|-----------|-----------|")
	for _, r := range results {
		remaining := "-"
		if r.Remaining != nil {
			remaining = fmt.Sprint(*r.Remaining)
		}
		if r.Error != "" {
			fmt.Printf("| %-10s | %-15s | %5d | %d | %9s | %9s | %9s |\n",
				r.Sample, r.Flow, r.Chars, r.Run, "FAIL", "-", remaining)
			continue
		}
		fmt.Printf("| %-10s | %-15s | %5d | %d | %9d | %9d | %9s |\n",
			r.Sample, r.Flow, r.Chars, r.Run, r.WallMs, r.OutBytes, remaining)
	}
}

// printSummary prints per-flow latency figures and returns the number of
// failed runs.
func printSummary(results []result) int {
	byFlow := map[string][]int64{}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			continue
		}
		byFlow[r.Flow] = append(byFlow[r.Flow], r.WallMs)
	}

	fmt.Printf("\nSummary:\n")
	flows := make([]string, 0, len(byFlow))
	for f := range byFlow {
		flows = append(flows, f)
	}
	sort.Strings(flows)
	for _, f := range flows {
		ms := byFlow[f]
		sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })
		var total int64
		for _, v := range ms {
			total += v
		}
		fmt.Printf("- %s: n=%d avg=%dms p50=%dms max=%dms\n",
			f, len(ms), total/int64(len(ms)), ms[len(ms)/2], ms[len(ms)-1])
	}
	fmt.Printf("- Total runs: %d (%d ok, %d failed)\n", len(results), len(results)-failed, failed)
	return failed
}

type jsonReport struct {
	Timestamp string   `json:"timestamp"`
	URL       string   `json:"url"`
	Results   []result `json:"results"`
}

func writeJSON(path string, results []result, baseURL string) error {
	report := jsonReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		URL:       baseURL,
		Results:   results,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
