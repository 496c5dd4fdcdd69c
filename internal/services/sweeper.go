package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"roomframe/internal/platform"
)

// Sweeper periodically reconciles the registry against the platform: if the
// framework's own membership in a room has disappeared without a
// membership-deleted notification arriving (missed webhook, socket gap), the
// bot is despawned.
type Sweeper struct {
	client    platform.Client
	registry  *Registry
	spawner   *Spawner
	interval  time.Duration
	scheduler gocron.Scheduler
}

// NewSweeper creates the reconciliation job
func NewSweeper(client platform.Client, registry *Registry, spawner *Spawner, interval time.Duration) *Sweeper {
	return &Sweeper{
		client:   client,
		registry: registry,
		spawner:  spawner,
		interval: interval,
	}
}

// Start schedules the sweep at the configured interval
func (s *Sweeper) Start() error {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}
	s.scheduler = scheduler

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep),
		gocron.WithName("registry-sweep"),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	log.Printf("[SWEEP] Registry sweep scheduled every %s", s.interval)
	return nil
}

// Stop shuts the scheduler down
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			log.Printf("[SWEEP] Scheduler shutdown failed: %v", err)
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	me := s.spawner.Me()
	if me == nil {
		return
	}

	for _, bot := range s.registry.All() {
		memberships, err := s.client.ListMemberships(ctx, bot.Room().ID)
		if err != nil {
			// Lookup failure keeps the bot; the next sweep retries
			continue
		}
		present := false
		for _, m := range memberships {
			if m.PersonID == me.ID {
				present = true
				break
			}
		}
		if !present {
			log.Printf("[SWEEP] Own membership gone from room %s, despawning", bot.Room().ID)
			if err := s.spawner.Despawn(ctx, bot.Room().ID, ""); err != nil {
				log.Printf("[SWEEP] Despawn failed for room %s: %v", bot.Room().ID, err)
			}
		}
	}
}
