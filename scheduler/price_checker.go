package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pricewatch/models"
)

// ErrRunInProgress is returned when a pass is requested while one is running.
var ErrRunInProgress = errors.New("a verification pass is already running")

// PassRunner runs one verification pass over the current product list.
type PassRunner interface {
	RunOnce(ctx context.Context) (models.Summary, error)
}

// Status is a snapshot of the checker for the status API.
type Status struct {
	Schedule string            `json:"schedule"`
	Running  bool              `json:"running"`
	NextRun  *time.Time        `json:"next_run,omitempty"`
	LastRun  *models.RunRecord `json:"last_run,omitempty"`
}

// PriceChecker runs verification passes on a cron schedule and on demand.
// At most one pass runs at a time.
type PriceChecker struct {
	cron     *cron.Cron
	runner   PassRunner
	schedule string
	entryID  cron.EntryID
	logger   *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.RWMutex
	lastRun *models.RunRecord

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPriceChecker validates the schedule. Standard five-field specs, specs
// with a leading seconds field and descriptors such as "@every 1h" are
// accepted.
func NewPriceChecker(runner PassRunner, schedule string, logger *zap.Logger) (*PriceChecker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLogger := cron.VerbosePrintfLogger(zap.NewStdLog(logger.Named("cron")))

	pc := &PriceChecker{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:   runner,
		schedule: schedule,
		logger:   logger,
	}
	pc.ctx, pc.cancel = context.WithCancel(context.Background())

	id, err := pc.cron.AddFunc(schedule, pc.scheduledRun)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	pc.entryID = id
	return pc, nil
}

// Start starts the schedule. With runNow a pass also starts immediately.
func (pc *PriceChecker) Start(runNow bool) {
	pc.cron.Start()
	pc.logger.Info("price checker scheduled", zap.String("schedule", pc.schedule))

	if runNow {
		if _, err := pc.Trigger(models.TriggerStartup); err != nil {
			pc.logger.Warn("startup pass skipped", zap.Error(err))
		}
	}
}

// Stop cancels a running pass and waits for it to return or for ctx to end.
func (pc *PriceChecker) Stop(ctx context.Context) error {
	// Under mu so no begin can register a pass after the wait starts.
	pc.mu.Lock()
	pc.cancel()
	pc.mu.Unlock()
	cronDone := pc.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		pc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger starts a pass in the background and returns its record.
func (pc *PriceChecker) Trigger(trigger models.RunTrigger) (*models.RunRecord, error) {
	record, err := pc.begin(trigger)
	if err != nil {
		return nil, err
	}
	snapshot := *record

	go func() {
		defer pc.wg.Done()
		pc.execute(record)
	}()
	return &snapshot, nil
}

// Status returns a copy of the current state.
func (pc *PriceChecker) Status() Status {
	st := Status{
		Schedule: pc.schedule,
		Running:  pc.running.Load(),
	}
	if next := pc.cron.Entry(pc.entryID).Next; !next.IsZero() {
		st.NextRun = &next
	}

	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if pc.lastRun != nil {
		record := *pc.lastRun
		if record.Summary != nil {
			summary := *record.Summary
			record.Summary = &summary
		}
		st.LastRun = &record
	}
	return st
}

func (pc *PriceChecker) scheduledRun() {
	record, err := pc.begin(models.TriggerSchedule)
	if err != nil {
		pc.logger.Info("scheduled pass skipped", zap.Error(err))
		return
	}
	defer pc.wg.Done()
	pc.execute(record)
}

// begin claims the single running slot and registers the pass with the wait
// group. The caller must call wg.Done when the pass returns.
func (pc *PriceChecker) begin(trigger models.RunTrigger) (*models.RunRecord, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.ctx.Err() != nil {
		return nil, fmt.Errorf("price checker stopped: %w", pc.ctx.Err())
	}
	if !pc.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}

	pc.wg.Add(1)
	record := models.NewRunRecord(trigger)
	pc.lastRun = record
	return record, nil
}

func (pc *PriceChecker) execute(record *models.RunRecord) {
	defer pc.running.Store(false)

	log := pc.logger.With(zap.String("run_id", record.ID), zap.String("trigger", string(record.Trigger)))
	log.Info("verification pass starting")

	summary, err := pc.runner.RunOnce(pc.ctx)

	pc.mu.Lock()
	if err != nil {
		record.Fail(summary, err)
	} else {
		record.Complete(summary)
	}
	pc.mu.Unlock()

	if err != nil {
		log.Error("verification pass failed", zap.Error(err))
		return
	}
	log.Info("verification pass completed",
		zap.Int("checked", summary.Checked),
		zap.Int("alerts_sent", summary.AlertsSent))
}
