package services

import (
	"context"
	"testing"

	"bid-aggregator/pkg/logger"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatsReporter_Report(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	agg, _ := newTestAggregator()
	reporter := NewStatsReporter("@every 1m", agg, logger.NewFromZap(zap.New(core)))

	agg.Apply(bid("a1", "u1", 10, 1))
	agg.Apply(bid("a1", "u2", 5, 2))
	stats := reporter.Report()

	check.Equal(t, int64(1), stats.HighestUpdates)
	check.Equal(t, int64(1), stats.Observed)
	check.Equal(t, 1, stats.Auctions)

	entries := logs.FilterMessage("Aggregator stats").All()
	assert.Equal(t, 1, len(entries))
	check.Equal[any](t, int64(1), entries[0].ContextMap()["auctions"])
}

func TestStatsReporter_RejectsBadSchedule(t *testing.T) {
	agg, _ := newTestAggregator()
	reporter := NewStatsReporter("every now and then", agg, logger.NewNop())

	check.Error(t, reporter.Start(context.Background()))
}

func TestStatsReporter_StartStop(t *testing.T) {
	agg, _ := newTestAggregator()
	reporter := NewStatsReporter("@every 1h", agg, logger.NewNop())

	assert.NoError(t, reporter.Start(context.Background()))
	check.NoError(t, reporter.Stop())
}
