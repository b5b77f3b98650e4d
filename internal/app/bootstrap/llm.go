package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/support-intel/internal/assistant"
	appconfig "github.com/wolfman30/support-intel/internal/config"
	"github.com/wolfman30/support-intel/internal/llm"
	"github.com/wolfman30/support-intel/internal/needs"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// BuildLLMClient returns the Bedrock client when a model is configured and at
// least one LLM feature is enabled; otherwise nil.
func BuildLLMClient(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) llm.Client {
	if cfg == nil || (!cfg.LLMResponderEnabled && !cfg.LLMKeywordRefineEnable) {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.BedrockModelID) == "" {
		logger.Warn("llm features enabled but BEDROCK_MODEL_ID is empty; disabling")
		return nil
	}
	if awsCfg == nil {
		logger.Warn("llm features enabled but AWS config unavailable; disabling")
		return nil
	}
	logger.Info("bedrock llm enabled", "model", cfg.BedrockModelID)
	return llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg))
}

// BuildResponder returns the LLM responder when enabled, else the template responder.
func BuildResponder(cfg *appconfig.Config, client llm.Client, logger *logging.Logger) assistant.Responder {
	if client == nil || cfg == nil || !cfg.LLMResponderEnabled {
		return assistant.TemplateResponder{}
	}
	return llm.NewResponder(client, cfg.BedrockModelID, assistant.TemplateResponder{}, logger)
}

// BuildKeywordRefiner returns nil unless LLM keyword refinement is enabled.
func BuildKeywordRefiner(cfg *appconfig.Config, client llm.Client) needs.KeywordRefiner {
	if client == nil || cfg == nil || !cfg.LLMKeywordRefineEnable {
		return nil
	}
	return llm.NewKeywordRefiner(client, cfg.BedrockModelID)
}
