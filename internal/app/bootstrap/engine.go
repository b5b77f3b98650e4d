package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/support-intel/internal/assistant"
	appconfig "github.com/wolfman30/support-intel/internal/config"
	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/internal/escalation"
	"github.com/wolfman30/support-intel/internal/needs"
	"github.com/wolfman30/support-intel/internal/observability/metrics"
	"github.com/wolfman30/support-intel/internal/sentiment"
	"github.com/wolfman30/support-intel/internal/tracker"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// Engine bundles the wired components shared by the API server and the CLI.
type Engine struct {
	Store   conversation.Store
	Tracker *tracker.Tracker
	Arbiter *escalation.Arbiter
	Service *assistant.Service
	Metrics *metrics.ConversationMetrics
	close   func()
}

// Close releases store connections.
func (e *Engine) Close() {
	if e != nil && e.close != nil {
		e.close()
	}
}

// BuildEngine wires store, schema, classifiers, notifiers and the turn service.
// awsCfg may be nil when neither SES nor Bedrock is used. reg may be nil to
// register metrics on the default registerer.
func BuildEngine(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, reg prometheus.Registerer, logger *logging.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	schema, err := tracker.LoadSchema(cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load schema: %w", err)
	}
	if cfg.TurnCap > 0 {
		schema.TurnCap = cfg.TurnCap
	}

	store, closeStore, err := BuildConversationStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.NewConversationMetrics(reg)
	tr := tracker.New(schema, logger)
	client := BuildLLMClient(cfg, awsCfg, logger)
	notifier := BuildNotifier(cfg, awsCfg, logger)

	attempts := max(cfg.NotifyMaxAttempts, 1)
	arbiter := escalation.NewArbiter(escalation.Deps{
		Store:      store,
		Tracker:    tr,
		Classifier: sentiment.NewClassifier(logger),
		Miner:      needs.NewMiner(BuildKeywordRefiner(cfg, client), logger),
		Notifier:   notifier,
		Metrics:    m,
		Logger:     logger,
	}, escalation.Config{
		BudgetThreshold:   cfg.BudgetThreshold,
		EscalationChannel: cfg.EscalationTarget,
		OnCallMention:     cfg.OnCallMention,
		MaxRetries:        cfg.StoreMaxRetries,
		// Room for every retry attempt plus backoff.
		NotifyTimeout: cfg.NotifyTimeout*time.Duration(attempts) + cfg.NotifyBaseDelay*time.Duration(1<<attempts),
	})

	svc := assistant.NewService(store, tr, arbiter, BuildResponder(cfg, client, logger), m, logger)
	logger.Info("engine ready",
		"store", cfg.StoreBackend,
		"turn_cap", schema.TurnCap,
		"categories", schema.CategoryNames(),
	)
	return &Engine{
		Store:   store,
		Tracker: tr,
		Arbiter: arbiter,
		Service: svc,
		Metrics: m,
		close:   closeStore,
	}, nil
}
