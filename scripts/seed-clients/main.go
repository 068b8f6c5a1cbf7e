// Seeds client records into a running API instance from a JSON file.
//
// Usage: go run scripts/seed-clients/main.go testdata/sample-clients.json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type SeedFile struct {
	Clients []SeedClient `json:"clients"`
}

type SeedClient struct {
	ClientID             string `json:"client_id,omitempty"`
	Name                 string `json:"name"`
	PhoneLine            string `json:"phone_line"`
	NotifyEmail          string `json:"notify_email,omitempty"`
	BookingURL           string `json:"booking_url,omitempty"`
	WebsiteURL           string `json:"website_url,omitempty"`
	FollowUpDelayMinutes int    `json:"follow_up_delay_minutes,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/seed-clients/main.go <clients-file.json>")
		fmt.Println("Example: go run scripts/seed-clients/main.go testdata/sample-clients.json")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	seedFile := os.Args[1]

	fmt.Printf("🌱 Seeding Clients\n")
	fmt.Printf("============================\n")
	fmt.Printf("API URL: %s\n", apiURL)
	fmt.Printf("Clients file: %s\n\n", seedFile)

	data, err := os.ReadFile(seedFile)
	if err != nil {
		fmt.Printf("❌ Error reading file: %v\n", err)
		os.Exit(1)
	}

	var seed SeedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Printf("❌ Error parsing JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Clients to create: %d\n\n", len(seed.Clients))

	ctx := context.Background()
	client := &http.Client{Timeout: 30 * time.Second}

	created := 0
	for i, c := range seed.Clients {
		fmt.Printf("📦 %d/%d: %s (%s)...\n", i+1, len(seed.Clients), c.Name, c.PhoneLine)

		payload, err := json.Marshal(c)
		if err != nil {
			fmt.Printf("   ❌ Error marshaling request: %v\n", err)
			continue
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/clients", bytes.NewReader(payload))
		if err != nil {
			fmt.Printf("   ❌ Error creating request: %v\n", err)
			continue
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			fmt.Printf("   ❌ Error sending request: %v\n", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			var result map[string]interface{}
			if err := json.Unmarshal(body, &result); err == nil {
				fmt.Printf("   ✅ Created! client_id: %v\n", result["client_id"])
			} else {
				fmt.Printf("   ✅ Created! (status code: %d)\n", resp.StatusCode)
			}
			created++
		} else {
			fmt.Printf("   ❌ Failed (status %d): %s\n", resp.StatusCode, string(body))
		}
	}

	fmt.Printf("\n✅ Seeding complete: %d/%d clients created\n", created, len(seed.Clients))
	fmt.Printf("\n📝 Next steps:\n")
	fmt.Printf("  1. Verify: curl %s/api/clients\n", apiURL)
	fmt.Printf("  2. Point each Twilio number's voice and SMS webhooks at %s/webhooks/twilio\n", apiURL)
	fmt.Printf("  3. Scrape FAQs: curl %s/scrape/faq -d '{\"client_id\":\"...\",\"website_url\":\"...\"}'\n", apiURL)
}
