// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartFlagSweepScheduler runs the flag-expiry sweep on a fixed interval.
// Reads compute flag state live from the stored expiry, so the sweep is
// cleanup, not correctness.
func (s *AuthorizationService) StartFlagSweepScheduler(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			swept, err := s.SweepExpired()
			if err != nil {
				log.Printf("[Scheduler] Flag sweep failed: %v", err)
				return
			}
			if swept > 0 {
				log.Printf("✅ Flag sweep re-authorized %d address(es)", swept)
			}
		}),
	)
}
