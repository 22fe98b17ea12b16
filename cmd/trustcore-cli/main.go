package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ocx/trustcore/pkg/sdk"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("TRUSTCORE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := sdk.NewClient(sdk.Config{
		BaseURL: baseURL,
		APIKey:  os.Getenv("TRUSTCORE_API_KEY"),
		AgentID: os.Getenv("TRUSTCORE_AGENT_ID"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "register":
		cmdRegister(ctx, client)
	case "score":
		cmdScore(ctx, client)
	case "report":
		cmdReport(ctx, client)
	case "endorse":
		cmdEndorse(ctx, client)
	case "path":
		cmdPath(ctx, client)
	case "seal":
		cmdSeal(ctx, client)
	case "validate":
		cmdValidate(ctx, client)
	case "version":
		fmt.Printf("trustcore-cli v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Trustcore CLI v` + version + `

Usage: trustcore <command> [flags]

Commands:
  register  Register this agent (generates an Ed25519 keypair)
  score     Show the agent's current trust score and tier
  report    Report a task outcome or user feedback
  endorse   Endorse another agent
  path      Find a trust path between two agents
  seal      Issue a trust seal for this agent
  validate  Validate a seal read from stdin
  version   Print version
  help      Show this help

Environment:
  TRUSTCORE_URL       API endpoint (default: http://localhost:8080)
  TRUSTCORE_API_KEY   API key for authentication
  TRUSTCORE_AGENT_ID  This agent's ID (<namespace>:<cluster>:<entity>)

Examples:
  trustcore register
  trustcore score
  trustcore report --task success
  trustcore report --rating 5
  trustcore endorse --to acme:prod:billing-bot --type Endorsement
  trustcore path --from acme:prod:a --to acme:prod:c
  trustcore seal
  cat seal.json | trustcore validate`)
}

// ----------------------------------------------------------------
// register command
// ----------------------------------------------------------------

func cmdRegister(ctx context.Context, client *sdk.Client) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Key generation failed: %v\n", err)
		os.Exit(1)
	}

	agent, err := client.Register(ctx, base64.StdEncoding.EncodeToString(pub))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Registration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Registered: %s (status=%s)\n", agent.AgentID, agent.Status)
	fmt.Printf("Private key (keep safe, shown once):\n%s\n",
		base64.StdEncoding.EncodeToString(priv))
}

// ----------------------------------------------------------------
// score command
// ----------------------------------------------------------------

func cmdScore(ctx context.Context, client *sdk.Client) {
	score, err := client.GetScore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Request failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Agent:  %s\nScore:  %.2f\nTier:   %s\n", score.AgentID, score.Overall, score.Tier)
	for name, value := range score.Components {
		fmt.Printf("  %-12s %.2f\n", name, value)
	}
}

// ----------------------------------------------------------------
// report command
// ----------------------------------------------------------------

func cmdReport(ctx context.Context, client *sdk.Client) {
	var task string
	rating := 0

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--task":
			i++
			if i < len(args) {
				task = args[i]
			}
		case "--rating":
			i++
			if i < len(args) {
				rating, _ = strconv.Atoi(args[i])
			}
		}
	}

	var score *sdk.Score
	var err error
	switch {
	case task != "":
		score, err = client.ReportTask(ctx, task == "success")
	case rating > 0:
		score, err = client.ReportFeedback(ctx, rating)
	default:
		fmt.Fprintln(os.Stderr, "Usage: trustcore report --task <success|failure> | --rating <1-5>")
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Report failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Recorded | score=%.2f tier=%s\n", score.Overall, score.Tier)
}

// ----------------------------------------------------------------
// endorse command
// ----------------------------------------------------------------

func cmdEndorse(ctx context.Context, client *sdk.Client) {
	var to, relType string
	var evidence []string

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--to":
			i++
			if i < len(args) {
				to = args[i]
			}
		case "--type":
			i++
			if i < len(args) {
				relType = args[i]
			}
		case "--evidence":
			i++
			if i < len(args) {
				evidence = strings.Split(args[i], ",")
			}
		}
	}

	if to == "" {
		fmt.Fprintln(os.Stderr, "Usage: trustcore endorse --to <agent-id> [--type Endorsement] [--evidence ref1,ref2]")
		os.Exit(1)
	}
	if relType == "" {
		relType = "Endorsement"
	}

	if err := client.Endorse(ctx, to, relType, evidence); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Endorsement failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Endorsed %s (%s, %d evidence refs)\n", to, relType, len(evidence))
}

// ----------------------------------------------------------------
// path command
// ----------------------------------------------------------------

func cmdPath(ctx context.Context, client *sdk.Client) {
	var from, to string

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--from":
			i++
			if i < len(args) {
				from = args[i]
			}
		case "--to":
			i++
			if i < len(args) {
				to = args[i]
			}
		}
	}

	if from == "" || to == "" {
		fmt.Fprintln(os.Stderr, "Usage: trustcore path --from <agent-id> --to <agent-id>")
		os.Exit(1)
	}

	path, err := client.FindTrustPath(ctx, from, to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Request failed: %v\n", err)
		os.Exit(1)
	}

	if !path.Found {
		fmt.Println("No trust path found.")
		return
	}
	fmt.Printf("✅ Path (%d hops): %s\n", len(path.Path)-1, strings.Join(path.Path, " -> "))
}

// ----------------------------------------------------------------
// seal commands
// ----------------------------------------------------------------

func cmdSeal(ctx context.Context, client *sdk.Client) {
	seal, err := client.IssueSeal(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Seal issuance failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Seal %s | tier=%s mode=%s expires=%s\n",
		seal.SealID, seal.Tier, seal.ExecutionMode, seal.ExpiresAt)
}

func cmdValidate(ctx context.Context, client *sdk.Client) {
	sealJSON, err := readStdin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Reading seal from stdin: %v\n", err)
		os.Exit(1)
	}

	result, err := client.ValidateSeal(ctx, sealJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Validation request failed: %v\n", err)
		os.Exit(1)
	}

	if result.Valid {
		fmt.Printf("✅ VALID | tier=%s mode=%s\n", result.Tier, result.ExecutionMode)
	} else {
		fmt.Printf("⛔ INVALID | tier=%s mode=%s\n", result.Tier, result.ExecutionMode)
		os.Exit(1)
	}
}

func readStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no seal piped to stdin")
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}
