package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/punchamoorthee/libraryops/internal/logging"
	"github.com/punchamoorthee/libraryops/internal/models"
	"github.com/punchamoorthee/libraryops/internal/service"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	bookCount   int
	copies      int
)

// Metrics
var (
	totalRequests uint64
	loansCreated  uint64
	approved      uint64
	returned      uint64
	fail409       uint64 // no capacity or duplicate open loan
	failOther     uint64
	nextUserID    int64
)

var log = logging.New(logging.Options{Service: "benchmark", Format: "console", Output: os.Stderr})

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&bookCount, "books", 50, "Books created before the run")
	flag.IntVar(&copies, "copies", 2, "Copies per book")
}

type client struct {
	http *http.Client
}

func main() {
	flag.Parse()
	log.Info().Str("workload", workload).Int("workers", concurrency).Dur("duration", duration).Msg("starting benchmark")

	c := &client{http: &http.Client{Timeout: 5 * time.Second}}
	nextUserID = time.Now().UnixNano() / int64(time.Millisecond)

	books, err := c.setupBooks()
	if err != nil {
		log.Fatal().Err(err).Msg("creating books")
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(c, books, &wg, start)
	}
	wg.Wait()

	printResults(time.Since(start))
}

func (c *client) setupBooks() ([]int64, error) {
	run := time.Now().Unix() % 1_000_000
	ids := make([]int64, 0, bookCount)
	for i := 0; i < bookCount; i++ {
		var b domain.Book
		code, err := c.post("/api/v1/books", service.NewBook{
			Title:       fmt.Sprintf("Benchmark Book %d", i),
			Author:      "Bench",
			ISBN:        fmt.Sprintf("97%06d%05d", run, i),
			TotalCopies: copies,
		}, &b)
		if err != nil {
			return nil, err
		}
		if code != http.StatusCreated {
			return nil, fmt.Errorf("create book: unexpected status %d", code)
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func worker(c *client, books []int64, wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()

	for time.Since(start) < duration {
		uid := atomic.AddInt64(&nextUserID, 1)
		var student domain.StudentProfile
		code, err := c.post("/api/v1/students", service.NewStudent{
			UserID:     uid,
			AcademicID: fmt.Sprintf("B%d", uid%1_000_000_000),
			Major:      "Benchmarking",
		}, &student)
		if !c.count(code, err) || code != http.StatusCreated {
			continue
		}

		var loan models.LoanResponse
		code, err = c.post("/api/v1/loans", models.CreateLoanRequest{BookID: pickBook(books), StudentID: student.ID}, &loan)
		if !c.count(code, err) || code != http.StatusCreated {
			continue
		}
		atomic.AddUint64(&loansCreated, 1)

		path := fmt.Sprintf("/api/v1/loans/%d/transitions", loan.ID)
		code, err = c.post(path, models.TransitionRequest{Status: string(domain.StatusActive)}, nil)
		if !c.count(code, err) || code != http.StatusOK {
			continue
		}
		atomic.AddUint64(&approved, 1)

		// Return half the loans so capacity keeps churning.
		if rand.Intn(2) == 0 {
			code, err = c.post(path, models.TransitionRequest{Status: string(domain.StatusReturned)}, nil)
			if c.count(code, err) && code == http.StatusOK {
				atomic.AddUint64(&returned, 1)
			}
		}
	}
}

// count records the outcome and reports whether a response was received.
func (c *client) count(code int, err error) bool {
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return false
	}
	atomic.AddUint64(&totalRequests, 1)
	switch {
	case code == http.StatusConflict:
		atomic.AddUint64(&fail409, 1)
	case code >= 400:
		atomic.AddUint64(&failOther, 1)
	}
	return true
}

func (c *client) post(path string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, targetURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func pickBook(books []int64) int64 {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		// Hotspot: 90% of borrow requests target the first book.
		return books[0]
	}
	return books[rand.Intn(len(books))]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	f409 := atomic.LoadUint64(&fail409)

	var conflictRate float64
	if total > 0 {
		conflictRate = float64(f409) / float64(total) * 100
	}

	results := map[string]any{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_rps":    float64(total) / d.Seconds(),
		"loans_created":     atomic.LoadUint64(&loansCreated),
		"loans_approved":    atomic.LoadUint64(&approved),
		"loans_returned":    atomic.LoadUint64(&returned),
		"conflicts":         f409,
		"conflict_rate_pct": conflictRate,
		"errors":            atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Error().Err(err).Msg("writing results")
	}

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Error().Err(err).Str("file", filename).Msg("saving results")
		return
	}
	defer file.Close()
	_ = json.NewEncoder(file).Encode(results)
}
