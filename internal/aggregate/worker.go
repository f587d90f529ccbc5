package aggregate

import (
	"context"
	"log"
	"time"
)

// StartWorker runs the pipeline on a fixed schedule: once at startup
// for the last completed hour, then at every top of the hour. Ticks
// never cancel an in-flight invocation; a midnight daily or monthly
// pass keeps running past the next hourly tick, and overlap is safe
// because commits are idempotent upserts.
func StartWorker(p *Pipeline) {
	go func() {
		startup := time.Now().UTC()
		if err := p.Run(context.Background(), Hourly, startup.Add(-time.Hour)); err != nil {
			log.Printf("aggregate: startup catch-up failed: %v", err)
		}

		// Align to the next hour boundary, then tick hourly.
		next := startup.Truncate(time.Hour).Add(time.Hour)
		time.Sleep(time.Until(next))

		go p.RunScheduled(context.Background(), next)

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for t := range ticker.C {
			go p.RunScheduled(context.Background(), t)
		}
	}()
}
