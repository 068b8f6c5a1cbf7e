// Command llmcheck is a dev tool that exercises the configured text
// providers with a sample missed-call follow-up and reply, printing the
// output and latency of each.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pointguardu/pgu-ai/internal/calls"
	"github.com/pointguardu/pgu-ai/internal/compose"
	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := &directory.ClientRecord{
		ClientID:  "pgu-main",
		Name:      "Point Guard University",
		PhoneLine: "+15559990001",
		ScrapedData: &directory.ScrapedData{
			Services: []string{"youth basketball camps", "private training"},
			Hours:    "Mon-Sat 9am-6pm",
			FAQ: []directory.FAQEntry{
				{Question: "What ages do you coach?", Answer: "We work with players from 8 to 18 years old."},
			},
		},
	}

	fmt.Println("LLM Provider Check")
	fmt.Println("==================")

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Fatal("GEMINI_API_KEY is required for llmcheck")
	}

	llm, err := compose.NewGeminiLLMClient(ctx, geminiKey, os.Getenv("GEMINI_MODEL_ID"))
	if err != nil {
		log.Fatalf("failed to create gemini client: %v", err)
	}
	defer llm.Close()

	composer := compose.NewComposer(llm, "", os.Getenv("REGISTRATION_URL"), logging.Default())

	fmt.Println("\n[1] Follow-up text for a missed call...")
	start := time.Now()
	followUp, err := composer.ComposeFollowUp(ctx, client)
	if err != nil {
		log.Fatalf("follow-up failed: %v", err)
	}
	fmt.Printf("    (%v) %s\n", time.Since(start).Round(time.Millisecond), followUp)

	fmt.Println("\n[2] Reply to an inbound question...")
	history := []calls.ConversationTurn{
		{Role: calls.RoleAI, Body: followUp, Sequence: 1},
	}
	start = time.Now()
	reply, err := composer.ComposeReply(ctx, client, history, "What ages do you coach and how much is camp?")
	if err != nil {
		log.Fatalf("reply failed: %v", err)
	}
	fmt.Printf("    (%v) %s\n", time.Since(start).Round(time.Millisecond), reply)

	fmt.Println("\nDone.")
}
