package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/ocx/trustcore/pkg/sdk"
)

func main() {
	client := sdk.NewClient(sdk.Config{
		BaseURL: "http://localhost:8080",
		AgentID: "acme:prod:procurement-01",
	})
	ctx := context.Background()

	fmt.Println("🤖 Agent Starting: Procurement Agent")

	// 1. Register a fresh identity
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("❌ Keygen failed: %v", err)
	}
	fmt.Println("📡 Registering with trustcore...")
	agent, err := client.Register(ctx, base64.StdEncoding.EncodeToString(pub))
	if err != nil {
		log.Fatalf("❌ Registration failed: %v", err)
	}
	fmt.Printf("✅ Identity created: %s (status=%s)\n", agent.AgentID, agent.Status)

	// 2. Earn some reputation
	fmt.Println("\n⏳ Completing tasks to build reputation...")
	for i := 0; i < 3; i++ {
		score, err := client.ReportTask(ctx, true)
		if err != nil {
			log.Fatalf("❌ Task report failed: %v", err)
		}
		fmt.Printf("   Task %d done | score=%.2f tier=%s\n", i+1, score.Overall, score.Tier)
		time.Sleep(200 * time.Millisecond)
	}

	// 3. Request a seal and present it
	fmt.Println("\n🎟️  Requesting trust seal...")
	seal, err := client.IssueSeal(ctx)
	if err != nil {
		log.Fatalf("❌ Seal issuance failed: %v", err)
	}
	fmt.Printf("✅ Seal %s | tier=%s mode=%s\n", seal.SealID, seal.Tier, seal.ExecutionMode)
	fmt.Println("✅ Proceeding with task execution under issued tier.")
}
