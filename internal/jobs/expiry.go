package jobs

import (
	"log"
	"time"

	"github.com/PKOOOO/autolock/internal/services"
)

// ExpiryJob periodically reclaims stale sessions. Lazy reclaim on locker
// reuse is what keeps lockers correct; this sweep keeps the dashboard
// honest for lockers nobody touches again.
type ExpiryJob struct {
	controller *services.LifecycleController
	interval   time.Duration
	quit       chan struct{}
}

// NewExpiryJob creates a new expiry job scheduler
func NewExpiryJob(controller *services.LifecycleController, interval time.Duration) *ExpiryJob {
	return &ExpiryJob{
		controller: controller,
		interval:   interval,
		quit:       make(chan struct{}),
	}
}

// Start begins the background sweep
func (j *ExpiryJob) Start() {
	log.Printf("Starting session expiry sweep every %v", j.interval)
	go j.run()
}

// Stop halts the background sweep
func (j *ExpiryJob) Stop() {
	log.Println("Stopping session expiry sweep...")
	close(j.quit)
}

func (j *ExpiryJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reclaimed, err := j.controller.ReclaimStale()
			if err != nil {
				log.Printf("Expiry sweep failed: %v", err)
				continue
			}
			if reclaimed > 0 {
				log.Printf("Expiry sweep reclaimed %d stale sessions", reclaimed)
			}
		case <-j.quit:
			return
		}
	}
}
