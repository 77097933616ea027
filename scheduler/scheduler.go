package scheduler

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"cardpulse_scraper/config"
	"cardpulse_scraper/logging"
	"cardpulse_scraper/models"
	"cardpulse_scraper/scraper"
	"cardpulse_scraper/storage"
)

// Queries swept when no tracked-query store is configured.
var fallbackQueries = []string{
	"Pikachu Base Set 1st Edition PSA 10",
	"Charizard Base Set 1st Edition PSA 10",
	"Blastoise Base Set 1st Edition PSA 10",
	"Venusaur Base Set 1st Edition PSA 10",
	"Magic: The Gathering Black Lotus Alpha",
	"Yu-Gi-Oh! Blue-Eyes White Dragon 1st Edition",
	"Michael Jordan 1986 Fleer Rookie Card PSA 10",
}

// Runner executes the pipeline for one query.
type Runner interface {
	Run(ctx context.Context, query string) (*scraper.RunResult, error)
}

// Scheduler sweeps the tracked query list on a cron or interval cadence,
// running the pipeline for each query in concurrent batches.
type Scheduler struct {
	cfg          *config.Config
	orchestrator Runner
	pg           *storage.PostgresStore
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}
}

func New(cfg *config.Config, orchestrator Runner, pg *storage.PostgresStore) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		pg:           pg,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			if err := s.Sweep(ctx); err != nil {
				log.Printf("Scheduled sweep error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					if err := s.Sweep(ctx); err != nil {
						log.Printf("Scheduled sweep error: %v", err)
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, sweeps run only on demand")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// Sweep runs the pipeline for every tracked query in batches of the
// configured size, with a jittered sleep between batches. Per-query
// failures never abort the sweep.
func (s *Scheduler) Sweep(ctx context.Context) error {
	queries, err := s.trackedQueries(ctx)
	if err != nil {
		return err
	}
	log.Printf("Sweep: processing %d tracked queries", len(queries))

	batchLimit := s.cfg.Scheduler.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 20
	}

	for start := 0; start < len(queries); start += batchLimit {
		end := start + batchLimit
		if end > len(queries) {
			end = len(queries)
		}
		batch := queries[start:end]
		log.Printf("Sweep: batch %d (%d queries)", start/batchLimit+1, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for _, q := range batch {
			q := q
			g.Go(func() error {
				s.processQuery(gctx, q)
				return nil
			})
		}
		g.Wait()

		if end < len(queries) && s.cfg.Scheduler.SleepJitter > 0 {
			base := s.cfg.Scheduler.SleepJitter
			jitter := base + time.Duration(rand.Int63n(int64(base)))
			log.Printf("Sweep: sleeping %.2fs before next batch", jitter.Seconds())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}
		}
	}

	log.Println("Sweep complete")
	return nil
}

func (s *Scheduler) processQuery(ctx context.Context, q models.TrackedQuery) {
	result, err := s.orchestrator.Run(ctx, q.Query)
	if err != nil {
		logging.Warnf("Sweep: %q failed: %v", q.Query, err)
		return
	}
	log.Printf("Sweep: %q -> %d items, %d delivered", q.Query, len(result.Items), result.Summary.Accepted)

	if s.pg != nil && q.ID != 0 {
		if err := s.pg.TouchTrackedQuery(ctx, q.ID); err != nil {
			logging.Warnf("Failed to touch tracked query %d: %v", q.ID, err)
		}
	}
}

func (s *Scheduler) trackedQueries(ctx context.Context) ([]models.TrackedQuery, error) {
	if s.pg != nil {
		queries, err := s.pg.GetTrackedQueries(ctx)
		if err != nil {
			return nil, fmt.Errorf("load tracked queries: %w", err)
		}
		if len(queries) > 0 {
			return queries, nil
		}
	}

	queries := make([]models.TrackedQuery, 0, len(fallbackQueries))
	for _, q := range fallbackQueries {
		queries = append(queries, models.TrackedQuery{Query: q, Enabled: true})
	}
	return queries, nil
}
