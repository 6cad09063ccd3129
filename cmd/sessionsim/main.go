package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"example.com/churnopp/internal/logging"
	"example.com/churnopp/internal/sdk"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
	"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Tablet Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Chrome/120.0",
}

// sessionsim replays synthetic browser sessions through the real tracking
// SDK against a running collector. Useful for seeding demo data and for
// exercising the detector and delivery queue end to end.
func main() {
	var (
		collectorURL = flag.String("collector", "http://127.0.0.1:8080", "base URL of the collector API")
		accountID    = flag.String("account", "", "account id to submit events under (required)")
		sessions     = flag.Int("sessions", 25, "number of synthetic sessions to replay")
		seed         = flag.Int64("seed", time.Now().UnixNano(), "random seed for reproducible replays")
	)
	flag.Parse()

	if *accountID == "" {
		fmt.Fprintln(os.Stderr, "-account is required")
		os.Exit(1)
	}

	logger := logging.New()
	rng := rand.New(rand.NewSource(*seed))
	transport := sdk.NewHTTPTransport(*collectorURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bar := progressbar.Default(int64(*sessions), "replaying sessions")
	for i := 0; i < *sessions; i++ {
		replaySession(ctx, *accountID, transport, rng, logger)
		_ = bar.Add(1)
	}
	// Give fire-and-forget deliveries a moment to land before exit.
	time.Sleep(2 * time.Second)
}

func replaySession(ctx context.Context, accountID string, transport sdk.Transport, rng *rand.Rand, logger *slog.Logger) {
	device := sdk.DetectDevice(userAgents[rng.Intn(len(userAgents))], "Linux x86_64", "en-US")
	session := sdk.NewSession(sdk.MemoryStorage{}, device, time.Now())
	queue := sdk.NewDeliveryQueue(transport, sdk.DefaultQueueConfig(), logger)
	queue.Start(ctx)

	detector := sdk.NewDetector(accountID, session, queue, sdk.DefaultDetectorConfig(), logger)
	detector.Start(ctx)

	now := time.Now()
	if rng.Intn(4) == 0 {
		detector.Identify(fmt.Sprintf("%s@example.com", uuid.NewString()[:8]))
	}

	// A handful of ordinary clicks and scrolls.
	for i := 0; i < 3+rng.Intn(5); i++ {
		detector.HandleClick(sdk.Click{Tag: "BUTTON", ID: fmt.Sprintf("btn-%d", i), At: now})
		now = now.Add(time.Duration(1+rng.Intn(4)) * time.Second)
		detector.HandleScroll(sdk.Scroll{Top: float64(rng.Intn(2000)), DocHeight: 3000, ViewportHeight: 800, At: now})
	}

	// Occasionally a frustrated burst, a cart add, or an exit through the top.
	if rng.Intn(3) == 0 {
		for i := 0; i < 3; i++ {
			detector.HandleClick(sdk.Click{Tag: "BUTTON", ID: "broken-cta", At: now.Add(time.Duration(i*100) * time.Millisecond)})
		}
	}
	if rng.Intn(2) == 0 {
		detector.HandleClick(sdk.Click{Tag: "BUTTON", ID: "buy", Classes: []string{"add-to-cart"}, At: now})
	}
	if rng.Intn(3) == 0 {
		detector.HandlePointerLeave(float64(rng.Intn(800)), -1)
	}

	detector.End()
}
