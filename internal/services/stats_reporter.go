package services

import (
	"context"
	"sync"

	"bid-aggregator/pkg/logger"

	"github.com/robfig/cron/v3"
)

// StatsSource is satisfied by *Aggregator.
type StatsSource interface {
	Stats() AggregatorStats
}

// StatsReporter periodically logs ingestion counters, ledger size and subscriber count.
type StatsReporter struct {
	cron     *cron.Cron
	schedule string
	source   StatsSource
	last     AggregatorStats
	mutex    sync.Mutex
	log      logger.Logger
}

func NewStatsReporter(schedule string, source StatsSource, log logger.Logger) *StatsReporter {
	return &StatsReporter{
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		source:   source,
		log:      log,
	}
}

func (s *StatsReporter) Start(ctx context.Context) error {
	s.log.Info("Starting stats reporter", "schedule", s.schedule)

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.Report()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *StatsReporter) Stop() error {
	s.log.Info("Stopping stats reporter")
	<-s.cron.Stop().Done()
	return nil
}

// Report logs the current stats along with the number of messages received since
// the previous report.
func (s *StatsReporter) Report() AggregatorStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := s.source.Stats()
	s.log.Info("Aggregator stats",
		"received", stats.Received,
		"received_delta", stats.Received-s.last.Received,
		"invalid", stats.Invalid,
		"highest_updates", stats.HighestUpdates,
		"observed", stats.Observed,
		"auctions", stats.Auctions,
		"subscribers", stats.Subscribers,
	)
	s.last = stats
	return stats
}
