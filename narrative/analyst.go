// Package narrative turns a market summary into analyst prose through a
// generative model. Failures never escape as errors; the caller always gets
// text it can show.
package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketpulse/internal/metrics"
	"marketpulse/logger"
	"marketpulse/models"
)

const (
	// EmptyAnswer is shown when the model returns no text.
	EmptyAnswer = "분석 결과를 가져올 수 없습니다."
	// FailureMessage is shown when the model cannot be reached.
	FailureMessage = "시장 데이터를 분석하는 동안 오류가 발생했습니다. API 키와 네트워크 연결을 확인해 주세요."
)

const promptTemplate = `You are a world-class financial quantitative analyst.
Analyze the following market data context: %s.

Task:
1. Briefly state the current macro environment (Liquidity vs Yields).
2. Analyze how these macro trends specifically impact the growth or value stocks listed in the user's watchlist.
3. Provide a forward-looking risk assessment.

Format: Use professional Korean language. Keep it insightful but extremely concise. Use clear section headers.
Do not include technical jargon without context.`

// Prompt embeds the market summary in the analyst instructions.
func Prompt(summary string) string {
	return fmt.Sprintf(promptTemplate, summary)
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Analyst wraps a Generator with the fixed fallback texts.
type Analyst struct {
	gen        Generator
	collectors *metrics.Collectors
	log        *logger.Log
}

// NewAnalyst returns an analyst backed by gen. A nil gen always fails.
func NewAnalyst(gen Generator, collectors *metrics.Collectors) *Analyst {
	return &Analyst{gen: gen, collectors: collectors, log: logger.GetLogger()}
}

// Analyze returns prose for summary, EmptyAnswer when the model answers with
// nothing, or FailureMessage on any error.
func (a *Analyst) Analyze(ctx context.Context, summary string) string {
	start := time.Now()
	text, err := a.generate(ctx, summary)
	durationMs := float64(time.Since(start).Nanoseconds()) / 1e6
	metrics.ReportAnalysis(a.collectors, err == nil, durationMs)

	if err != nil {
		a.log.WithComponent("narrative").WithError(err).Error("market analysis failed")
		return FailureMessage
	}
	if strings.TrimSpace(text) == "" {
		return EmptyAnswer
	}
	return text
}

func (a *Analyst) generate(ctx context.Context, summary string) (string, error) {
	if a.gen == nil {
		return "", fmt.Errorf("no generator configured: %w", models.ErrAnalysisFailure)
	}
	text, err := a.gen.Generate(ctx, Prompt(summary))
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrAnalysisFailure, err)
	}
	return text, nil
}
