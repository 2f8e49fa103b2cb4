package advice

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
	"github.com/kjstillabower/weather-advisor-service/internal/observability"
)

// Source tags for AdviceResult.
const (
	SourceModel = "model"
	SourceRules = "rules"
)

const safetyTip = "Check conditions before heading out and plan with basic precautions."

// Generator produces advisory tips via a three-tier fallback chain:
// completion service, rule engine, generic safety tip. Generate never fails;
// availability is prioritized over precision.
type Generator struct {
	completion CompletionClient // nil selects the rule engine
	offline    bool
	logger     *zap.Logger
}

// NewGenerator creates a Generator. completion may be nil (no credential
// configured); offline forces the rule engine even when completion is set.
func NewGenerator(completion CompletionClient, offline bool, logger *zap.Logger) *Generator {
	return &Generator{
		completion: completion,
		offline:    offline,
		logger:     logger,
	}
}

// Generate returns 1-4 tips for the given payload. Tier order: completion
// call when configured and not offline, rule engine on any completion
// failure, one generic safety tip as the terminal fallback.
func (g *Generator) Generate(ctx context.Context, w models.NormalizedWeather) (result models.AdviceResult) {
	// Last-resort guard: no advice-path failure may escape to the caller.
	defer func() {
		if r := recover(); r != nil {
			if g.logger != nil {
				g.logger.Error("advice generation panicked", zap.Any("panic", r))
			}
			observability.AdviceGeneratedTotal.WithLabelValues("generic").Inc()
			result = models.AdviceResult{Tips: []string{safetyTip}, Source: SourceRules}
		}
	}()

	if g.completion != nil && !g.offline {
		if tips, ok := g.fromModel(ctx, w); ok {
			observability.AdviceGeneratedTotal.WithLabelValues(SourceModel).Inc()
			return models.AdviceResult{Tips: tips, Source: SourceModel}
		}
	}

	tips := ruleTips(w)
	if len(tips) == 1 && tips[0] == genericTip {
		observability.AdviceGeneratedTotal.WithLabelValues("generic").Inc()
	} else {
		observability.AdviceGeneratedTotal.WithLabelValues(SourceRules).Inc()
	}
	return models.AdviceResult{Tips: tips, Source: SourceRules}
}

// fromModel runs the completion tier. Returns (tips, true) on success,
// (nil, false) to signal fallback to the rule engine.
func (g *Generator) fromModel(ctx context.Context, w models.NormalizedWeather) ([]string, bool) {
	text, err := g.completion.Complete(ctx, buildPrompt(w))
	if err != nil {
		reason := "transport"
		switch {
		case errors.Is(err, ErrBadStatus):
			reason = "status"
		case errors.Is(err, ErrEmptyCompletion):
			reason = "empty"
		}
		observability.AdviceFallbacksTotal.WithLabelValues(reason).Inc()
		if g.logger != nil {
			g.logger.Warn("text generation failed, falling back to rules", zap.String("reason", reason), zap.Error(err))
		}
		return nil, false
	}

	tips := extractTips(text)
	if len(tips) == 0 {
		observability.AdviceFallbacksTotal.WithLabelValues("empty").Inc()
		if g.logger != nil {
			g.logger.Warn("completion had no extractable tips, falling back to rules")
		}
		return nil, false
	}
	return tips, true
}

// extractTips splits completion text into tips: one per non-empty line,
// bullet and numbering prefixes stripped, capped at maxTips.
func extractTips(text string) []string {
	var tips []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		if line == "" {
			continue
		}
		tips = append(tips, line)
		if len(tips) == maxTips {
			break
		}
	}
	return tips
}
