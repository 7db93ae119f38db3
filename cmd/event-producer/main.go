package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// SubmissionEvent mirrors the judge pipeline's terminal-verdict message
type SubmissionEvent struct {
	UserID    string     `json:"user_id"`
	Username  string     `json:"username,omitempty"`
	ProblemID string     `json:"problem_id"`
	Verdict   string     `json:"verdict"`
	TotalXP   int64      `json:"total_xp"`
	SolvedAt  *time.Time `json:"solved_at,omitempty"`
}

var verdicts = []string{"ACCEPTED", "WRONG_ANSWER", "TIME_LIMIT", "RUNTIME_ERROR"}

var userPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

func getUsername(idx int) string {
	prefixIdx := idx % len(userPrefixes)
	suffix := idx/len(userPrefixes) + 1
	return fmt.Sprintf("%s%d", userPrefixes[prefixIdx], suffix)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "submission-events", "Kafka topic")
	totalUsers := flag.Int("users", 1000, "Total number of users to simulate")
	totalProblems := flag.Int("problems", 200, "Size of the simulated problem catalog")
	eventsPerSecond := flag.Int("rate", 100, "Submission events per second")
	acceptRate := flag.Int("accept-rate", 40, "Percentage of submissions that are accepted")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Submission event producer")
	fmt.Printf("  Brokers:     %s\n", *brokers)
	fmt.Printf("  Topic:       %s\n", *topic)
	fmt.Printf("  Users:       %d\n", *totalUsers)
	fmt.Printf("  Problems:    %d\n", *totalProblems)
	fmt.Printf("  Events/sec:  %d\n", *eventsPerSecond)
	fmt.Printf("  Accept rate: %d%%\n", *acceptRate)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper
	sendEvent := func(event SubmissionEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(event.UserID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	// Track each simulated user's running XP; accepted solves only add
	totalXP := make([]int64, *totalUsers)
	for i := range totalXP {
		totalXP[i] = int64(rand.Intn(2000))
	}

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Printf("Streaming submission events (%d/sec), press Ctrl+C to stop\n\n", *eventsPerSecond)

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var eventCount int64

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			userIdx := rand.Intn(*totalUsers)
			problemIdx := rand.Intn(*totalProblems)

			verdict := verdicts[rand.Intn(len(verdicts))]
			if rand.Intn(100) < *acceptRate {
				verdict = "ACCEPTED"
			}

			event := SubmissionEvent{
				UserID:    fmt.Sprintf("user-%d", userIdx),
				Username:  getUsername(userIdx),
				ProblemID: fmt.Sprintf("problem-%d", problemIdx),
				Verdict:   verdict,
			}

			if verdict == "ACCEPTED" {
				// Harder problems pay more
				totalXP[userIdx] += int64(rand.Intn(80) + 20)
				now := time.Now().UTC()
				event.SolvedAt = &now
			}
			event.TotalXP = totalXP[userIdx]

			sendEvent(event)
			atomic.AddInt64(&eventCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&eventCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
