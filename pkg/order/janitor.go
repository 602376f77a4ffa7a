package order

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/voxbill/voxbill/pkg/logger"
)

// Sweeper is implemented by stores that support eager expiry. The Redis
// store does not need one — key TTLs expire server-side.
type Sweeper interface {
	Sweep() int
}

// Janitor periodically sweeps expired pending orders. It ticks once a minute
// and runs the sweep when the cron schedule is due, so operators express the
// cadence the same way as any other scheduled job.
type Janitor struct {
	store    Sweeper
	schedule string
	gron     *gronx.Gronx
}

// NewJanitor creates a janitor for one store. An empty schedule disables it.
func NewJanitor(store Sweeper, schedule string) *Janitor {
	return &Janitor{
		store:    store,
		schedule: schedule,
		gron:     gronx.New(),
	}
}

// Run blocks until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	if j.store == nil || j.schedule == "" {
		return
	}
	if !j.gron.IsValid(j.schedule) {
		logger.WarnCF("orders", "Invalid sweep schedule, janitor disabled", map[string]interface{}{
			"schedule": j.schedule,
		})
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := j.gron.IsDue(j.schedule, now)
			if err != nil || !due {
				continue
			}
			if dropped := j.store.Sweep(); dropped > 0 {
				logger.InfoCF("orders", "Expired pending orders swept", map[string]interface{}{
					"dropped": dropped,
				})
			}
		}
	}
}
