package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/developer-overheid-nl/don-app-store/pkg/tools"
	"github.com/robfig/cron/v3"
)

// DailySchedule runs a refresh every day at 07:00 local time.
const DailySchedule = "0 7 * * *"

const runTimeout = 30 * time.Minute

// Refresher is implemented by services.CatalogService.
type Refresher interface {
	RefreshAllSources(ctx context.Context) (int, error)
}

// ScheduleRefresh sets up a cron job that refreshes every stored source on
// schedule, e.g. "@every 6h" or DailySchedule. Each run is bounded by a 30
// minute timeout.
func ScheduleRefresh(ctx context.Context, svc Refresher, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		tools.Dispatch(ctx, "refresh_all", func(ctx context.Context) error {
			return runOnce(ctx, svc)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ongeldig refresh schema %q: %w", schedule, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}

func runOnce(ctx context.Context, svc Refresher) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	changed, err := svc.RefreshAllSources(ctx)
	if err != nil {
		return err
	}
	log.Printf("[refresh_all] %d bronnen bijgewerkt in %s", changed, time.Since(start).Truncate(time.Millisecond))
	return nil
}
