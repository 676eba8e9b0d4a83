// Loadgen exercises the transfer path under concurrency: it generates
// worker keypairs, funds them through the mint endpoint, then fires signed
// transfers between them and tallies response codes.
package main

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pointledger/pointledger/internal/auth"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	amount      int64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64
	fail403       uint64
	fail422       uint64 // insufficient funds under contention
	failOther     uint64
)

type worker struct {
	key     *ecdsa.PrivateKey
	address string
}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.Int64Var(&amount, "amount", 1, "Points per transfer")
}

func main() {
	flag.Parse()

	adminSecret := os.Getenv("ADMIN_SECRET")
	if adminSecret == "" {
		log.Fatal("ADMIN_SECRET environment variable is required")
	}

	log.Printf("Starting loadgen | Workers: %d | Duration: %s | Amount: %d", concurrency, duration, amount)

	workers := make([]worker, concurrency)
	client := &http.Client{Timeout: 5 * time.Second}
	for i := range workers {
		key, err := crypto.GenerateKey()
		if err != nil {
			log.Fatalf("Key generation failed: %v", err)
		}
		workers[i] = worker{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
		if err := mint(client, adminSecret, workers[i].address, amount*1000); err != nil {
			log.Fatalf("Funding worker %d failed: %v", i, err)
		}
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go run(&wg, client, workers, i, start)
	}
	wg.Wait()

	printResults(time.Since(start))
}

func mint(client *http.Client, secret, address string, points int64) error {
	body, _ := json.Marshal(map[string]interface{}{
		"admin_secret": secret,
		"address":      address,
		"amount":       points,
	})
	resp, err := client.Post(targetURL+"/api/v1/mint", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mint returned %d", resp.StatusCode)
	}
	return nil
}

func run(wg *sync.WaitGroup, client *http.Client, workers []worker, self int, start time.Time) {
	defer wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(self)))

	for time.Since(start) < duration {
		peer := rng.Intn(len(workers))
		if peer == self {
			continue
		}
		sender := workers[self]
		recipient := workers[peer].address

		message := auth.TransferMessage(amount, recipient)
		sig, err := crypto.Sign(auth.TextHash(message), sender.key)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		sig[crypto.RecoveryIDOffset] += 27 // wallet-style V

		body, _ := json.Marshal(map[string]interface{}{
			"sender":    sender.address,
			"recipient": recipient,
			"amount":    amount,
			"signature": hexutil.Encode(sig),
		})

		resp, err := client.Post(targetURL+"/api/v1/transfer", "application/json", bytes.NewReader(body))
		atomic.AddUint64(&totalRequests, 1)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusForbidden:
			atomic.AddUint64(&fail403, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Elapsed:            %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total requests:     %d\n", total)
	fmt.Printf("Transfers (200):    %d\n", atomic.LoadUint64(&success200))
	fmt.Printf("Forbidden (403):    %d\n", atomic.LoadUint64(&fail403))
	fmt.Printf("Insufficient (422): %d\n", atomic.LoadUint64(&fail422))
	fmt.Printf("Other failures:     %d\n", atomic.LoadUint64(&failOther))
	if elapsed > 0 {
		fmt.Printf("Throughput:         %.1f req/s\n", float64(total)/elapsed.Seconds())
	}
}
