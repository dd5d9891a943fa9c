package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/metrics"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/system"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// Names of the built-in sweeps.
const (
	JobExpireAttempts      = "expire-drill-attempts"
	JobFailSimulations     = "fail-stale-simulations"
	JobExpireSubscriptions = "expire-lapsed-subscriptions"
)

const defaultJobTimeout = time.Minute

// Job is a periodic sweep. Run returns how many records it changed.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	log     *logger.Logger
	timeout time.Duration
	parser  cron.Parser

	mu      sync.Mutex
	jobs    []Job
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates an idle scheduler.
func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("maintenance")
	}
	return &Scheduler{
		log:     log,
		timeout: defaultJobTimeout,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers a job. The schedule accepts five-field cron expressions and
// descriptors such as "@hourly" or "@every 5m".
func (s *Scheduler) Add(job Job) error {
	job.Name = strings.TrimSpace(job.Name)
	job.Schedule = strings.TrimSpace(job.Schedule)
	if job.Name == "" || job.Run == nil {
		return errors.New("maintenance job needs a name and a run function")
	}
	if _, err := s.parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("job %s: scheduler already running", job.Name)
	}
	for _, existing := range s.jobs {
		if existing.Name == job.Name {
			return fmt.Errorf("job %s already registered", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name)
	}
	return names
}

func (s *Scheduler) Name() string { return "maintenance-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cl := cronLogger{entry: s.log.WithField("component", "cron")}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, job := range s.jobs {
		job := job
		if _, err := c.AddFunc(job.Schedule, func() { s.run(runCtx, job) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.log.WithField("jobs", len(s.jobs)).Info("maintenance scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.running = false
	s.mu.Unlock()

	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("maintenance scheduler stopped")
	return nil
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	var (
		job   Job
		found bool
	)
	for _, j := range s.jobs {
		if j.Name == name {
			job, found = j, true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return 0, fmt.Errorf("unknown maintenance job %q", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	affected, err := job.Run(ctx)
	elapsed := time.Since(start)
	metrics.RecordMaintenanceRun(job.Name, elapsed, affected, err == nil)

	entry := s.log.WithField("job", job.Name).WithField("affected", affected).WithField("duration", elapsed)
	if err != nil {
		entry.WithError(err).Warn("maintenance job failed")
		return affected, err
	}
	if affected > 0 {
		entry.Info("maintenance job finished")
	} else {
		entry.Debug("maintenance job finished")
	}
	return affected, nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(pairs(keysAndValues)).WithError(err).Error(msg)
}

func pairs(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
