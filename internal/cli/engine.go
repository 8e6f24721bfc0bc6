package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/evidencecheck/internal/cache"
	"github.com/ppiankov/evidencecheck/internal/logging"
	"github.com/ppiankov/evidencecheck/internal/model"
	"github.com/ppiankov/evidencecheck/internal/pipeline"
	"github.com/ppiankov/evidencecheck/internal/sink"
	"github.com/ppiankov/evidencecheck/internal/worker"
)

// Flags shared by the commands that run analyses
var (
	timeout     time.Duration
	userAgent   string
	noCache     bool
	noFooter    bool
	httpProxy   string
	httpsProxy  string
	detectorURL string
	llmProvider string
	llmModel    string
	kafkaBroker []string
)

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "timeout for one analysis")
	cmd.Flags().StringVar(&userAgent, "ua", "", "HTTP User-Agent for remote reports and detections")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	cmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	cmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	cmd.Flags().StringVar(&detectorURL, "detector", "", "detection service endpoint for --clip inputs")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider for an optional summary (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	cmd.Flags().StringSliceVar(&kafkaBroker, "kafka-broker", nil, "publish analyses to these Kafka brokers")
}

// applyEngineFlags overrides cfg with the flags the user actually set
func applyEngineFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("ua") {
		cfg.HTTP.UserAgent = userAgent
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if flags.Changed("no-footer") {
		cfg.Output.IncludeFooter = !noFooter
	}
	if flags.Changed("http-proxy") {
		cfg.HTTP.HTTPProxy = httpProxy
	}
	if flags.Changed("https-proxy") {
		cfg.HTTP.HTTPSProxy = httpsProxy
	}
	if flags.Changed("detector") {
		cfg.Detector.Endpoint = detectorURL
	}
	if flags.Changed("llm-provider") {
		cfg.LLM.Provider = strings.ToLower(llmProvider)
	}
	if flags.Changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
	if flags.Changed("kafka-broker") {
		cfg.Sink.KafkaBrokers = kafkaBroker
	}
}

// buildPipeline wires cache, rate limiter and the optional Kafka sink into a pipeline.
// The returned func releases the sink.
func buildPipeline(cfg *model.Config) (*pipeline.Pipeline, func(), error) {
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.APIKey == "" && cfg.LLM.BaseURL == "" {
			return nil, nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && os.Getenv("EVIDENCECHECK_LLM_API_KEY") == "" {
			cfg.LLM.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			return nil, nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	}

	opts := []pipeline.Option{
		pipeline.WithCache(cache.New(cfg.Cache)),
		pipeline.WithLimiter(worker.NewLimiterFromConfig(cfg.RateLimiting)),
	}

	cleanup := func() {}
	if len(cfg.Sink.KafkaBrokers) > 0 {
		s, err := sink.NewKafkaSink(cfg.Sink)
		if err != nil {
			return nil, nil, fmt.Errorf("create sink: %w", err)
		}
		opts = append(opts, pipeline.WithPublisher(s))
		cleanup = func() {
			if err := s.Close(); err != nil {
				logging.New("cli").Warn("failed to close sink", "error", err)
			}
		}
	}

	return pipeline.New(cfg, opts...), cleanup, nil
}

// commandContext is the context cobra was executed with, so that
// cancellation reaches source loading
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
