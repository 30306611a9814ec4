package services

import (
	"time"

	"github.com/go-co-op/gocron"

	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/internal/session"
	"lms-assistant-backend/internal/vectorindex"
)

// Maintenance runs the periodic housekeeping jobs: sweeping idle in-memory
// chat sessions and logging vector index statistics. The session sweep is
// registered only when the memory store is in use; the Mongo store keeps its
// own history.
type Maintenance struct {
	scheduler *gocron.Scheduler
}

func NewMaintenance() *Maintenance {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Maintenance{scheduler: s}
}

// RegisterSessionSweep drops chat sessions idle longer than maxIdle.
func (m *Maintenance) RegisterSessionSweep(store *session.MemoryStore, maxIdle time.Duration) error {
	_, err := m.scheduler.Every(15 * time.Minute).Tag("session-sweep").Do(func() {
		store.SweepIdle(maxIdle)
	})
	return err
}

// RegisterIndexReport logs index size hourly so operators can watch corpus
// growth without hitting the stats endpoint.
func (m *Maintenance) RegisterIndexReport(idx *vectorindex.Index) error {
	_, err := m.scheduler.Every(1 * time.Hour).Tag("index-report").Do(func() {
		stats := idx.Stats()
		logger.Info("vector index report",
			"fragments", stats.TotalFragments,
			"courses", stats.CoursesIndexed,
			"dimension", stats.Dimension)
	})
	return err
}

func (m *Maintenance) Start() {
	m.scheduler.StartAsync()
	logger.Info("maintenance scheduler started", "jobs", len(m.scheduler.Jobs()))
}

func (m *Maintenance) Stop() {
	m.scheduler.Stop()
}
