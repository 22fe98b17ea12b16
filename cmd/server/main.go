package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // Postgres driver

	"github.com/ocx/trustcore/internal/api"
	"github.com/ocx/trustcore/internal/audit"
	"github.com/ocx/trustcore/internal/config"
	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/engine"
	"github.com/ocx/trustcore/internal/events"
	"github.com/ocx/trustcore/internal/graph"
	"github.com/ocx/trustcore/internal/identity"
	"github.com/ocx/trustcore/internal/metrics"
	"github.com/ocx/trustcore/internal/resolver"
	"github.com/ocx/trustcore/internal/revocation"
	"github.com/ocx/trustcore/internal/score"
	"github.com/ocx/trustcore/internal/seal"
	"github.com/ocx/trustcore/internal/webhooks"
	"github.com/ocx/trustcore/internal/zkproof"
)

func main() {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	log.Println("🔥 Starting trustcore (Agent Trust & Identity Engine)...")

	cfgPath := os.Getenv("TRUSTCORE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Printf("Config %s not loaded (%v), using defaults", cfgPath, err)
		cfg = defaultConfig()
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port // Cloud Run requirement
	}

	clock := core.SystemClock{}
	m := metrics.New()

	// 1. Identity store (memory / redis / postgres per environment)
	identities, err := identity.NewStoreFromEnv()
	if err != nil {
		log.Fatalf("Identity store: %v", err)
	}
	defer identities.Close()

	// 2. Score engine
	scoreStore, err := buildScoreStore()
	if err != nil {
		log.Fatalf("Score store: %v", err)
	}
	defer scoreStore.Close()

	scores, err := score.NewEngine(score.Config{
		Weights: score.Weights{
			Behavioral:    cfg.Trust.Weights.Behavioral,
			Social:        cfg.Trust.Weights.Social,
			Cryptographic: cfg.Trust.Weights.Cryptographic,
		},
		DecayRatePerDay: cfg.Trust.DecayPerDay,
		Baseline:        cfg.Trust.Baseline,
	}, scoreStore, identities, clock)
	if err != nil {
		log.Fatalf("Score engine: %v", err)
	}

	// 3. Audit sinks: tamper-evident Merkle log plus console, plus Pub/Sub
	// when configured.
	merkleLog := audit.NewMerkleLog()
	sinks := []audit.Sink{merkleLog, audit.NewLogSink()}
	if cfg.Events.Backend == "pubsub" {
		psSink, err := audit.NewPubSubSink(cfg.Events.ProjectID, cfg.Events.TopicID+"-audit")
		if err != nil {
			log.Printf("Pub/Sub audit sink unavailable: %v", err)
		} else {
			defer psSink.Close()
			sinks = append(sinks, psSink)
		}
	}
	auditSink := audit.NewMultiSink(sinks...)

	// 4. Revocation registry + auto-release sweeper
	registry := revocation.NewRegistry(revocation.Config{
		QuarantinePenalty: cfg.Revocation.QuarantinePenalty,
		AutomaticWindow:   time.Duration(cfg.Revocation.AutoWindowMinutes) * time.Minute,
	}, identities, scores, auditSink, clock)

	releaseSweeper := revocation.NewSweeper(registry, time.Duration(cfg.Revocation.SweepSeconds)*time.Second)
	defer releaseSweeper.Stop()

	decaySweeper := score.NewDecaySweeper(scores, time.Duration(cfg.Trust.SweepMinutes)*time.Minute, m)
	defer decaySweeper.Stop()

	// 5. Seal issuer
	signer, err := buildSigner(cfg)
	if err != nil {
		log.Fatalf("Seal signer: %v", err)
	}
	issuer := seal.NewIssuer(identities, scores, signer, clock, time.Duration(cfg.Seal.TTLMinutes)*time.Minute)

	// 6. Event bus
	var bus api.Subscriber
	var emitter events.Emitter
	if cfg.Events.Backend == "pubsub" {
		psBus, err := events.NewPubSubBus(cfg.Events.ProjectID, cfg.Events.TopicID)
		if err != nil {
			log.Fatalf("Pub/Sub bus: %v", err)
		}
		defer psBus.Close()
		bus, emitter = psBus, psBus
	} else {
		memBus := events.NewBus()
		bus, emitter = memBus, memBus
	}

	// 7. Webhooks
	hookRegistry := webhooks.NewRegistry()
	var dispatcher webhooks.Emitter
	if cfg.Webhooks.Backend == "cloudtasks" {
		cd, err := webhooks.NewCloudDispatcher(hookRegistry,
			cfg.Webhooks.ProjectID, cfg.Webhooks.LocationID, cfg.Webhooks.QueueID,
			cfg.Webhooks.Workers)
		if err != nil {
			log.Fatalf("Cloud Tasks dispatcher: %v", err)
		}
		dispatcher = cd
	} else {
		dispatcher = webhooks.NewDispatcher(hookRegistry, cfg.Webhooks.Workers)
	}
	defer dispatcher.Shutdown()

	// 8. External resolver (federation), optional
	var reg resolver.Resolver
	if cfg.Resolver.UseSupabase {
		sr, err := resolver.NewSupabaseRegistry()
		if err != nil {
			log.Printf("Supabase registry unavailable: %v", err)
		} else {
			reg = sr
		}
	} else if cfg.Resolver.Endpoint != "" {
		reg = resolver.NewHTTPResolver(cfg.Resolver.Endpoint, time.Duration(cfg.Resolver.TimeoutSeconds)*time.Second)
	}

	// 9. Workload attestation (SPIRE), optional
	var attestor identity.Attestor
	if socket := os.Getenv("IDENTITY_SPIFFE_SOCKET"); socket != "" {
		sa, err := identity.NewSPIFFEAttestor(socket, cfg.Identity.TrustDomain)
		if err != nil {
			log.Printf("⚠️ SPIFFE attestation disabled: %v", err)
		} else {
			attestor = sa
			defer sa.Close()
		}
	}

	// 10. Zero-knowledge proof backend, optional. Without an endpoint set,
	// proof submissions are rejected and the dev commitment stub can be
	// enabled explicitly.
	var proofs zkproof.Service
	if endpoint := os.Getenv("ZKPROOF_ENDPOINT"); endpoint != "" {
		proofs = zkproof.NewHTTPService(endpoint, time.Duration(cfg.Resolver.TimeoutSeconds)*time.Second)
	} else if secret := os.Getenv("ZKPROOF_DEV_SECRET"); secret != "" {
		log.Println("⚠️  Using local commitment stub as proof backend — dev only")
		proofs = zkproof.NewCommitmentService([]byte(secret))
	}

	// 11. Compose the trust engine
	eng := engine.NewTrustEngine(engine.Config{
		MaxHops:         cfg.Graph.MaxHops,
		MinEdgeStrength: cfg.Graph.MinStrength,
	}, identities, scores, graph.New(), registry, issuer, merkleLog, clock, engine.Options{
		Bus:      emitter,
		Hooks:    dispatcher,
		Resolver: reg,
		Attestor: attestor,
		Proofs:   proofs,
		Metrics:  m,
	})

	// 12. HTTP surface
	keys := api.NewKeyManager()
	server := api.NewServer(eng, hookRegistry, keys, bus)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown (Cloud Run sends SIGTERM)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 trustcore API starting on port %s", cfg.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Println("Server stopped")
}

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	// LoadConfig normally applies defaults; mirror that for the no-file path.
	cfg.Trust.Weights = config.TrustWeights{Behavioral: 0.5, Social: 0.3, Cryptographic: 0.2}
	cfg.Trust.DecayPerDay = 0.95
	cfg.Trust.SweepMinutes = 60
	cfg.Server.Port = "8080"
	cfg.Seal.TTLMinutes = 15
	cfg.Graph.MaxHops = 6
	cfg.Graph.MinStrength = 0.5
	cfg.Revocation.QuarantinePenalty = 50
	cfg.Revocation.AutoWindowMinutes = 60
	cfg.Revocation.SweepSeconds = 60
	cfg.Identity.Backend = "memory"
	cfg.Resolver.TimeoutSeconds = 5
	cfg.Events.Backend = "memory"
	cfg.Webhooks.Backend = "memory"
	cfg.Webhooks.Workers = 4
	return cfg
}

// buildScoreStore selects the score persistence backend from SCORE_BACKEND:
// "spanner" or in-memory (default).
func buildScoreStore() (score.Store, error) {
	if os.Getenv("SCORE_BACKEND") == "spanner" {
		return score.NewSpannerStore(
			os.Getenv("SPANNER_PROJECT"),
			os.Getenv("SPANNER_INSTANCE"),
			os.Getenv("SPANNER_DATABASE"),
		)
	}
	return score.NewMemoryStore(), nil
}

// buildSigner loads the issuer key from config (base64 Ed25519 seed) or
// generates an ephemeral one. Ephemeral keys mean seals do not survive
// restarts — fine for dev, not for production.
func buildSigner(cfg *config.Config) (*seal.Signer, error) {
	if cfg.Seal.SigningKey == "" {
		log.Println("⚠️  No seal signing key configured — using ephemeral issuer key")
		return seal.NewSigner()
	}
	seed, err := base64.StdEncoding.DecodeString(cfg.Seal.SigningKey)
	if err != nil {
		return nil, err
	}
	return seal.NewSignerFromKey(ed25519.NewKeyFromSeed(seed)), nil
}
