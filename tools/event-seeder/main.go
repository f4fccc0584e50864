package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	collectURL = flag.String("collect-url", "http://localhost:3000", "collector base URL")
	hostname   = flag.String("hostname", "demo.example.com", "site hostname to stamp on events")
	count      = flag.Int("count", 500, "Number of events to generate")
	interval   = flag.Duration("interval", 20*time.Millisecond, "Interval between events")
	eventTypes = flag.String("types", "pageview,click,performance,time_on_page,scroll_depth,error", "Comma-separated list of event types")
	timeSpread = flag.Duration("time-spread", 0, "Spread event timestamps over this period (0 for real-time)")
	visitors   = flag.Int("visitors", 40, "Number of distinct visitors to simulate")
)

type trackerEvent map[string]interface{}

type visitor struct {
	id      string
	session string
	browser string
	os      string
	device  string
}

var pagePaths = []string{
	"/",
	"/pricing",
	"/docs",
	"/docs/getting-started",
	"/blog",
	"/blog/launch",
	"/about",
	"/contact",
}

var referrers = []string{
	"",
	"",
	"https://www.google.com/",
	"https://news.ycombinator.com/",
	"https://twitter.com/",
	"https://duckduckgo.com/",
}

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Starting event seeder:")
	log.Printf("  Collector URL: %s", *collectURL)
	log.Printf("  Hostname: %s", *hostname)
	log.Printf("  Event count: %d", *count)
	log.Printf("  Visitors: %d", *visitors)
	log.Printf("  Interval: %v", *interval)
	log.Printf("  Time spread: %v", *timeSpread)

	types := parseEventTypes(*eventTypes)
	log.Printf("  Event types: %v", types)

	pool := makeVisitors(*visitors)

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	successCount := 0
	failCount := 0

	for i := 0; i < *count; i++ {
		eventType := types[rand.Intn(len(types))]
		v := pool[rand.Intn(len(pool))]
		event := generateEvent(eventType, v)

		if err := sendEvent(client, *collectURL, event); err != nil {
			log.Printf("Failed to send event: %v", err)
			failCount++
		} else {
			successCount++
			if successCount%100 == 0 {
				log.Printf("Progress: %d/%d events sent", successCount, *count)
			}
		}

		if *interval > 0 && i < *count-1 {
			time.Sleep(*interval)
		}
	}

	log.Printf("\nSeeding complete:")
	log.Printf("  Success: %d events", successCount)
	log.Printf("  Failed: %d events", failCount)
}

func parseEventTypes(types string) []string {
	result := []string{}
	current := ""
	for _, c := range types {
		if c == ',' {
			if current != "" {
				result = append(result, current)
				current = ""
			}
		} else {
			current += string(c)
		}
	}
	if current != "" {
		result = append(result, current)
	}
	return result
}

func makeVisitors(n int) []visitor {
	browsers := []string{"Chrome", "Firefox", "Safari", "Edge"}
	oses := []string{"Windows", "macOS", "Linux", "iOS", "Android"}
	devices := []string{"desktop", "desktop", "desktop", "mobile", "mobile", "tablet"}

	pool := make([]visitor, n)
	for i := range pool {
		pool[i] = visitor{
			id:      gofakeit.UUID(),
			session: gofakeit.UUID(),
			browser: browsers[rand.Intn(len(browsers))],
			os:      oses[rand.Intn(len(oses))],
			device:  devices[rand.Intn(len(devices))],
		}
	}
	return pool
}

func generateEvent(eventType string, v visitor) trackerEvent {
	now := time.Now()

	eventTime := now
	if *timeSpread > 0 {
		offset := time.Duration(rand.Int63n(int64(*timeSpread)))
		eventTime = now.Add(-offset)
	}

	path := pagePaths[rand.Intn(len(pagePaths))]

	event := trackerEvent{
		"eventType":  eventType,
		"timestamp":  eventTime.Format(time.RFC3339Nano),
		"visitorId":  v.id,
		"sessionId":  v.session,
		"url":        "https://" + *hostname + path,
		"path":       path,
		"hostname":   *hostname,
		"referrer":   referrers[rand.Intn(len(referrers))],
		"title":      gofakeit.Sentence(4),
		"browser":    v.browser,
		"os":         v.os,
		"deviceType": v.device,
	}

	switch eventType {
	case "click":
		event["elementType"] = []string{"button", "a", "input"}[rand.Intn(3)]
		event["elementId"] = []string{"signup", "cta-hero", "nav-docs", "footer-contact"}[rand.Intn(4)]
	case "performance":
		event["performance"] = map[string]interface{}{
			"pageLoadTime": 200 + rand.Float64()*2800,
			"domReady":     100 + rand.Float64()*900,
		}
	case "time_on_page":
		event["timeOnPage"] = 2 + rand.Float64()*298
	case "scroll_depth":
		event["depth"] = []int{25, 50, 75, 100}[rand.Intn(4)]
	case "error":
		messages := []string{
			"Uncaught TypeError: Cannot read properties of undefined (reading 'map')",
			"Uncaught ReferenceError: analytics is not defined",
			"Failed to fetch",
			"Unhandled promise rejection: NetworkError",
		}
		event["message"] = messages[rand.Intn(len(messages))]
		event["source"] = "https://" + *hostname + "/assets/app.js"
		event["line"] = rand.Intn(2000)
	}

	return event
}

func sendEvent(client *http.Client, baseURL string, event trackerEvent) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequest("POST", baseURL+"/collect", &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	return nil
}
