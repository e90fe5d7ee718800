// Package main implements a closed-loop load generator for kvserve.
//
// Each worker goroutine issues one request at a time against the
// target server until the test duration elapses, then the tool prints
// aggregate throughput and mean latency.
//
// Workloads:
//   - put            random keys over the large keyspace
//   - get            random keys over the large keyspace
//   - delete         random keys over the large keyspace
//   - get_popular    repeated keys from a small keyspace (cache-hot)
//   - get_put_mix    50/50 reads and writes
//   - get_delete_mix 50/50 reads and deletes
//
// Example usage:
//
//	loadgen -c 64 -d 30s -workload get_put_mix -target http://localhost:8080
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	largeKeySpace = 100000 // keys for put/get/delete workloads
	smallKeySpace = 100    // keys for get_popular, forces cache hits
	valueSize     = 256
)

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// metrics aggregates results across workers.
type metrics struct {
	requests  atomic.Int64
	successes atomic.Int64
	latencyNS atomic.Int64
}

// workload names accepted by -workload.
var workloads = map[string]bool{
	"put":            true,
	"get":            true,
	"delete":         true,
	"get_popular":    true,
	"get_put_mix":    true,
	"get_delete_mix": true,
}

func main() {
	concurrency := flag.Int("c", 1, "concurrent client workers")
	duration := flag.Duration("d", 10*time.Second, "test duration")
	workload := flag.String("workload", "get_popular", "workload type")
	target := flag.String("target", "http://localhost:8080", "server base URL")
	flag.Parse()

	if !workloads[*workload] {
		fmt.Fprintf(os.Stderr, "unknown workload %q\n", *workload)
		fmt.Fprintln(os.Stderr, "supported: put, get, delete, get_popular, get_put_mix, get_delete_mix")
		os.Exit(1)
	}
	if *concurrency < 1 {
		fmt.Fprintln(os.Stderr, "concurrency must be positive")
		os.Exit(1)
	}

	fmt.Printf("Starting load test: workload=%s concurrency=%d duration=%s target=%s\n",
		*workload, *concurrency, *duration, *target)

	var m metrics
	deadline := time.Now().Add(*duration)

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(id, *target, *workload, deadline, &m)
		}(i)
	}

	start := time.Now()
	wg.Wait()
	elapsed := time.Since(start)

	report(&m, elapsed)
}

// worker runs the closed loop: issue a request, record it, repeat.
func worker(id int, target, workload string, deadline time.Time, m *metrics) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Now().Before(deadline) {
		start := time.Now()
		ok := issue(client, rng, target, workload)
		latency := time.Since(start)

		m.requests.Add(1)
		if ok {
			m.successes.Add(1)
			m.latencyNS.Add(latency.Nanoseconds())
		}
	}
}

// issue sends one request for the chosen workload.
func issue(client *http.Client, rng *rand.Rand, target, workload string) bool {
	switch workload {
	case "put":
		return doPut(client, rng, target, rng.Int63n(largeKeySpace))
	case "get":
		return doGet(client, target, "/get", rng.Int63n(largeKeySpace))
	case "delete":
		return doDelete(client, target, rng.Int63n(largeKeySpace))
	case "get_popular":
		return doGet(client, target, "/get_popular", 1+rng.Int63n(smallKeySpace))
	case "get_put_mix":
		key := rng.Int63n(largeKeySpace)
		if rng.Intn(2) == 0 {
			return doGet(client, target, "/get", key)
		}
		return doPut(client, rng, target, key)
	case "get_delete_mix":
		key := rng.Int63n(largeKeySpace)
		if rng.Intn(2) == 0 {
			return doGet(client, target, "/get", key)
		}
		return doDelete(client, target, key)
	}
	return false
}

func doGet(client *http.Client, target, path string, key int64) bool {
	resp, err := client.Get(target + path + "?key=" + strconv.FormatInt(key, 10))
	if err != nil {
		return false
	}
	drain(resp)
	// 404 is a valid outcome for random keys; only 200 counts as a hit
	return resp.StatusCode == http.StatusOK
}

func doPut(client *http.Client, rng *rand.Rand, target string, key int64) bool {
	body := randomValue(rng)
	u := target + "/put?key=" + strconv.FormatInt(key, 10) + "&value=" + url.QueryEscape(body)
	req, err := http.NewRequest(http.MethodPut, u, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	drain(resp)
	return resp.StatusCode == http.StatusOK
}

func doDelete(client *http.Client, target string, key int64) bool {
	req, err := http.NewRequest(http.MethodDelete, target+"/delete?key="+strconv.FormatInt(key, 10), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	drain(resp)
	// Not-found is functionally a successful delete for random keys
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound
}

// drain discards the body so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// randomValue builds a fixed-size alphanumeric payload.
func randomValue(rng *rand.Rand) string {
	buf := make([]byte, valueSize)
	for i := range buf {
		buf[i] = charset[rng.Intn(len(charset))]
	}
	return string(buf)
}

// report prints the run summary.
func report(m *metrics, elapsed time.Duration) {
	requests := m.requests.Load()
	successes := m.successes.Load()

	fmt.Println("\n--- Load Test Summary ---")
	if successes == 0 {
		fmt.Println("No successful requests completed.")
		return
	}

	seconds := elapsed.Seconds()
	meanLatency := time.Duration(m.latencyNS.Load() / successes)

	fmt.Printf("Total Requests:      %d\n", requests)
	fmt.Printf("Successful Requests: %d\n", successes)
	fmt.Printf("Test Duration:       %.2fs\n", seconds)
	fmt.Printf("Throughput:          %.2f req/s\n", float64(successes)/seconds)
	fmt.Printf("Mean Response Time:  %s\n", meanLatency)
}
