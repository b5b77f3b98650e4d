package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/support-intel/internal/assistant"
	appconfig "github.com/wolfman30/support-intel/internal/config"
	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/internal/notify"
	"github.com/wolfman30/support-intel/pkg/logging"
)

func TestBuildEngineRequiresConfig(t *testing.T) {
	if _, err := BuildEngine(context.Background(), nil, nil, prometheus.NewRegistry(), logging.New("error")); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildEngineMemoryAppliesTurnCap(t *testing.T) {
	cfg := &appconfig.Config{StoreBackend: "memory", TurnCap: 2}

	engine, err := BuildEngine(context.Background(), cfg, nil, prometheus.NewRegistry(), logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	if _, ok := engine.Store.(*conversation.MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", engine.Store)
	}
	if got := engine.Tracker.TurnCap(); got != 2 {
		t.Fatalf("expected turn cap 2, got %d", got)
	}

	ctx := context.Background()
	for _, text := range []string{"はい", "うーん"} {
		if _, err := engine.Service.HandleTurn(ctx, assistant.TurnRequest{ConversationID: "boot-1", Role: "user", Text: text}); err != nil {
			t.Fatalf("handle turn: %v", err)
		}
	}
	conv, err := engine.Store.Get(ctx, "boot-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.Escalation == nil {
		t.Fatalf("expected escalation after reaching the configured turn cap")
	}
}

func TestBuildConversationStoreUnknownBackend(t *testing.T) {
	cfg := &appconfig.Config{StoreBackend: "cassandra"}
	if _, _, err := BuildConversationStore(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildConversationStorePostgresRequiresURL(t *testing.T) {
	cfg := &appconfig.Config{StoreBackend: "postgres"}
	if _, _, err := BuildConversationStore(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestBuildConversationStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{StoreBackend: "redis", RedisAddr: mr.Addr()}

	store, closeStore, err := BuildConversationStore(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeStore()
	if _, ok := store.(*conversation.RedisStore); !ok {
		t.Fatalf("expected RedisStore, got %T", store)
	}
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	cfg := &appconfig.Config{RedisAddr: "127.0.0.1:1"}
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when redis is unreachable")
	}
}

func TestBuildNotifierWithoutChannelsReturnsStub(t *testing.T) {
	n := BuildNotifier(&appconfig.Config{}, nil, logging.New("error"))
	if _, ok := n.(*notify.StubNotifier); !ok {
		t.Fatalf("expected StubNotifier, got %T", n)
	}
}

func TestBuildNotifierWithSlackRetries(t *testing.T) {
	cfg := &appconfig.Config{SlackWebhookURL: "https://hooks.slack.test/x", NotifyMaxAttempts: 2}
	n := BuildNotifier(cfg, nil, logging.New("error"))
	if _, ok := n.(*notify.RetryNotifier); !ok {
		t.Fatalf("expected RetryNotifier, got %T", n)
	}
}

func TestBuildEmailSenderFallsBackToStub(t *testing.T) {
	logger := logging.New("error")
	for _, provider := range []string{"", "sendgrid", "ses"} {
		sender := BuildEmailSender(&appconfig.Config{EmailProvider: provider}, nil, logger)
		if _, ok := sender.(*notify.StubEmailSender); !ok {
			t.Fatalf("provider %q: expected StubEmailSender, got %T", provider, sender)
		}
	}
}

func TestBuildLLMDisabled(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{LLMResponderEnabled: true}

	client := BuildLLMClient(cfg, nil, logger)
	if client != nil {
		t.Fatalf("expected nil client without a model id")
	}
	if _, ok := BuildResponder(cfg, client, logger).(assistant.TemplateResponder); !ok {
		t.Fatalf("expected template responder without a client")
	}
	if refiner := BuildKeywordRefiner(cfg, client); refiner != nil {
		t.Fatalf("expected nil refiner without a client")
	}
}

func TestLoadAWSConfigSkippedWhenUnused(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "sendgrid"}
	if NeedsAWS(cfg) {
		t.Fatalf("sendgrid-only config should not need AWS")
	}
	if awsCfg := LoadAWSConfig(context.Background(), cfg, logging.New("error")); awsCfg != nil {
		t.Fatalf("expected nil AWS config")
	}
}

func TestLoadAWSConfigWithStaticCredentials(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		LLMResponderEnabled: true,
		AWSRegion:           "ap-northeast-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}

	awsCfg := LoadAWSConfig(context.Background(), cfg, logging.New("error"))
	if awsCfg == nil {
		t.Fatalf("expected AWS config")
	}
	if awsCfg.Region != "ap-northeast-1" {
		t.Fatalf("expected region ap-northeast-1, got %q", awsCfg.Region)
	}
	if awsCfg.BaseEndpoint == nil || *awsCfg.BaseEndpoint != "http://localhost:4566" {
		t.Fatalf("expected endpoint override, got %v", awsCfg.BaseEndpoint)
	}
}
