package app

import (
	"context"
	"fmt"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/drills"
	feedbacksvc "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/maintenance"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/notifications"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/simulations"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/subscriptions"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/users"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage/memory"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/system"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/config"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/cache"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/email"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/llm"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

const defaultCacheTTL = 5 * time.Minute

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users         storage.UserStore
	Drills        storage.DrillStore
	Simulations   storage.SimulationStore
	Subscriptions storage.SubscriptionStore
	Feedback      storage.FeedbackStore
}

// Deps carries optional integrations. A nil integration disables the feature
// it backs: no LLM selects the heuristic evaluator, no billing provider
// rejects checkouts, no sender turns notifications into no-ops.
type Deps struct {
	Cache       cache.Cache
	CacheTTL    time.Duration
	LLM         llm.Completer
	Billing     subscriptions.Provider
	Webhooks    subscriptions.Verifier
	Email       email.Sender
	Simulation  *ecosystem.Config
	Maintenance *config.MaintenanceConfig
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users         *users.Service
	Drills        *drills.Service
	Simulations   *simulations.Service
	Feedback      *feedbacksvc.Service
	Subscriptions *subscriptions.Service
	Notifications *notifications.Service
	Maintenance   *maintenance.Scheduler
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, deps Deps, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Drills == nil {
		stores.Drills = mem
	}
	if stores.Simulations == nil {
		stores.Simulations = mem
	}
	if stores.Subscriptions == nil {
		stores.Subscriptions = mem
	}
	if stores.Feedback == nil {
		stores.Feedback = mem
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory()
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = defaultCacheTTL
	}
	simCfg := ecosystem.DefaultConfig()
	if deps.Simulation != nil {
		simCfg = *deps.Simulation
	}
	if err := simCfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulation config: %w", err)
	}

	notifier := notifications.New(deps.Email, log.Named("notifications"))
	if !notifier.Enabled() {
		log.Warn("email sender not configured; notifications disabled")
	}

	userService := users.New(stores.Users, log.Named("users"))
	userService.WithCache(deps.Cache, deps.CacheTTL)
	userService.WithNotifier(notifier)

	feedbackService := feedbacksvc.New(stores.Feedback, stores.Users, log.Named("feedback"))
	feedbackService.WithNotifier(notifier)
	if deps.LLM != nil {
		feedbackService.WithLLM(deps.LLM)
	} else {
		log.Warn("LLM not configured; feedback uses the heuristic evaluator")
	}

	drillService := drills.New(stores.Drills, log.Named("drills"))
	drillService.WithCache(deps.Cache, deps.CacheTTL)
	drillService.WithEvaluator(feedbackService)

	simService := simulations.New(stores.Simulations, simCfg, log.Named("simulations"))
	simService.WithCache(deps.Cache, deps.CacheTTL)
	simService.WithReviewer(feedbackService)

	subService := subscriptions.New(stores.Subscriptions, userService, log.Named("subscriptions"))
	subService.WithNotifier(notifier)
	if deps.Billing != nil {
		subService.WithProvider(deps.Billing)
	} else {
		log.Warn("billing provider not configured; checkout disabled")
	}
	if deps.Webhooks != nil {
		subService.WithVerifier(deps.Webhooks)
	} else {
		log.Warn("webhook secret not configured; billing webhooks rejected")
	}

	manager := system.NewManager()
	for _, name := range []string{"users", "drills", "simulations", "feedback", "subscriptions"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	scheduler := maintenance.NewScheduler(log.Named("maintenance"))
	if deps.Maintenance == nil || deps.Maintenance.Enabled {
		schedules := defaultMaintenance()
		if deps.Maintenance != nil {
			schedules = *deps.Maintenance
		}
		err := scheduler.AddSweeps(schedules, maintenance.Sweeps{
			Attempts:      drillService,
			Simulations:   simService,
			Subscriptions: subService,
		})
		if err != nil {
			return nil, fmt.Errorf("configure maintenance: %w", err)
		}
		if err := manager.Register(scheduler); err != nil {
			return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
		}
	} else {
		log.Warn("maintenance disabled; stale attempts are not swept")
	}

	return &Application{
		manager:       manager,
		log:           log,
		Users:         userService,
		Drills:        drillService,
		Simulations:   simService,
		Feedback:      feedbackService,
		Subscriptions: subService,
		Notifications: notifier,
		Maintenance:   scheduler,
	}, nil
}

func defaultMaintenance() config.MaintenanceConfig {
	return config.MaintenanceConfig{
		Enabled:              true,
		AttemptSchedule:      "@every 1m",
		SimulationSchedule:   "@every 5m",
		SubscriptionSchedule: "@hourly",
	}
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists registered lifecycle components in start order.
func (a *Application) Services() []string {
	return a.manager.Services()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
