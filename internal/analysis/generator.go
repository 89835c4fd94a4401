package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// LanguageModel produces prose from a prompt.
type LanguageModel interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// AnthropicModel implements LanguageModel on the official SDK.
type AnthropicModel struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewAnthropicModel creates an AnthropicModel.
func NewAnthropicModel(apiKey, model string, maxTokens int64) *AnthropicModel {
	return &AnthropicModel{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Complete sends one user message and returns the concatenated text
// blocks of the response. Provider failures are transient; the worker's
// retry envelope owns the retries.
func (m *AnthropicModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", monitor.Transient(eris.Wrap(err, "anthropic: create message"), 0)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", eris.New("anthropic: response contains no text")
	}
	return b.String(), nil
}

const systemPrompt = "You are an e-commerce market analyst. Write concise, " +
	"factual competitor analyses from the numbers provided. Do not invent " +
	"data that is not in the input."

// Generator assembles report data and renders it into prose. It
// implements the report worker's Generator interface.
type Generator struct {
	analyzer *Analyzer
	llm      LanguageModel
	clock    monitor.Clock
	logger   *zap.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(analyzer *Analyzer, llm LanguageModel, clock monitor.Clock, logger *zap.Logger) *Generator {
	return &Generator{analyzer: analyzer, llm: llm, clock: clock, logger: logger}
}

// Generate produces the report content for one task.
func (g *Generator) Generate(ctx context.Context, task monitor.ReportTask) (monitor.ReportResult, error) {
	data, err := g.analyzer.Collect(ctx, task.Parameters)
	if err != nil {
		return monitor.ReportResult{}, err
	}
	if data.Main.SnapshotCount == 0 {
		return monitor.ReportResult{}, eris.Errorf(
			"no snapshots for %s in the last %d days", task.Parameters.MainASIN, data.WindowDays)
	}

	content, err := g.llm.Complete(ctx, systemPrompt, BuildPrompt(data))
	if err != nil {
		return monitor.ReportResult{}, err
	}

	metadata, err := json.Marshal(map[string]any{
		"main_asin":   task.Parameters.MainASIN,
		"competitors": task.Parameters.CompetitorASINs,
		"window_days": data.WindowDays,
		"from":        data.From.Format("2006-01-02"),
		"to":          data.To.Format("2006-01-02"),
	})
	if err != nil {
		return monitor.ReportResult{}, eris.Wrap(err, "encode report metadata")
	}

	g.logger.Info("report content generated",
		zap.String("job_id", task.JobID),
		zap.Int("content_bytes", len(content)),
	)
	return monitor.ReportResult{
		JobID:      task.JobID,
		ReportType: task.Parameters.ReportType,
		Content:    content,
		Metadata:   metadata,
		CreatedAt:  g.clock.Now(),
	}, nil
}

// BuildPrompt renders ReportData as a structured text prompt.
func BuildPrompt(data ReportData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compare the main product against its competitors over the last %d days (%s to %s).\n\n",
		data.WindowDays, data.From.Format("2006-01-02"), data.To.Format("2006-01-02"))

	b.WriteString("MAIN PRODUCT\n")
	writeSeries(&b, data.Main)
	b.WriteString("\nCOMPETITORS\n")
	for _, series := range data.Competitors {
		writeSeries(&b, series)
	}

	b.WriteString("\nWrite a competitor analysis with sections for pricing position, ")
	b.WriteString("ranking momentum, customer sentiment, and a short recommendation.")
	return b.String()
}

func writeSeries(b *strings.Builder, s ProductSeries) {
	title := s.Title
	if title == "" {
		title = "(title unknown)"
	}
	fmt.Fprintf(b, "- %s %s\n", s.ASIN, title)
	if s.SnapshotCount == 0 {
		b.WriteString("  no data in window\n")
		return
	}
	fmt.Fprintf(b, "  snapshots: %d\n", s.SnapshotCount)
	if s.LatestPrice != nil {
		fmt.Fprintf(b, "  price: latest $%s, avg $%s, range $%s-$%s\n",
			s.LatestPrice.StringFixed(2), fixed(s.AvgPrice), fixed(s.MinPrice), fixed(s.MaxPrice))
	}
	if s.LatestRating != nil {
		fmt.Fprintf(b, "  rating: %s", s.LatestRating.String())
		if s.RatingDelta != nil && !s.RatingDelta.IsZero() {
			delta := s.RatingDelta.String()
			if s.RatingDelta.Sign() > 0 {
				delta = "+" + delta
			}
			fmt.Fprintf(b, " (%s over window)", delta)
		}
		b.WriteString("\n")
	}
	if s.LatestRank != nil {
		fmt.Fprintf(b, "  rank: #%d in %s", s.LatestRank.Rank, s.LatestRank.Category)
		if s.RankImproved != nil && *s.RankImproved != 0 {
			fmt.Fprintf(b, " (%+d positions over window)", *s.RankImproved)
		}
		b.WriteString("\n")
	}
	if s.LatestReviewCount != nil {
		fmt.Fprintf(b, "  reviews: %d\n", *s.LatestReviewCount)
	}
}

func fixed(d *decimal.Decimal) string {
	if d == nil {
		return "?"
	}
	return d.StringFixed(2)
}
