package analysis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

type fakeLLM struct {
	prompt string
	system string
	reply  string
	err    error
}

func (m *fakeLLM) Complete(_ context.Context, system, prompt string) (string, error) {
	m.system = system
	m.prompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func TestGenerateProducesResult(t *testing.T) {
	snapshots := &fakeSnapshots{byASIN: map[string][]monitor.Snapshot{
		"B000MAIN01": {snap("B000MAIN01", 9, "110.00", "4.5", 50)},
		"B000COMP01": {snap("B000COMP01", 9, "95.00", "4.0", 40)},
	}}
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	llm := &fakeLLM{reply: "Pricing position: strong."}
	gen := NewGenerator(NewAnalyzer(snapshots, &fakeCatalog{}, clock), llm, clock, zap.NewNop())

	result, err := gen.Generate(context.Background(), monitor.ReportTask{
		JobID: "job-1",
		Parameters: monitor.ReportParameters{
			MainASIN:        "B000MAIN01",
			CompetitorASINs: []string{"B000COMP01"},
			WindowDays:      7,
			ReportType:      "competitor_analysis",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, "competitor_analysis", result.ReportType)
	assert.Equal(t, "Pricing position: strong.", result.Content)
	assert.Contains(t, llm.prompt, "B000MAIN01")
	assert.Contains(t, llm.system, "market analyst")

	var metadata map[string]any
	require.NoError(t, json.Unmarshal(result.Metadata, &metadata))
	assert.Equal(t, "B000MAIN01", metadata["main_asin"])
	assert.Equal(t, float64(7), metadata["window_days"])
}

func TestGenerateFailsWithoutMainData(t *testing.T) {
	snapshots := &fakeSnapshots{byASIN: map[string][]monitor.Snapshot{}}
	clock := &fakeClock{now: time.Now()}
	gen := NewGenerator(NewAnalyzer(snapshots, &fakeCatalog{}, clock), &fakeLLM{reply: "x"}, clock, zap.NewNop())

	_, err := gen.Generate(context.Background(), monitor.ReportTask{
		JobID: "job-1",
		Parameters: monitor.ReportParameters{
			MainASIN:        "B000MAIN01",
			CompetitorASINs: []string{"B000COMP01"},
			WindowDays:      7,
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshots")
}
