// Package schedule provides a thin wrapper around robfig/cron for
// running the pipeline driver on a recurring schedule outside of a one-shot
// CLI invocation.
package schedule

import (
	"log"

	"github.com/robfig/cron/v3"
)

// Runner drives a cron schedule that invokes a single job function.
type Runner struct {
	cron *cron.Cron
	log  *log.Logger
}

// New builds a Runner backed by a standard 5-field cron parser.
func New(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{cron: cron.New(), log: logger}
}

// AddJob registers job to run on the given cron spec (e.g. "0 */6 * * *"
// for every six hours). A job panic is recovered and logged rather than
// killing the scheduler.
func (r *Runner) AddJob(spec string, job func()) error {
	_, err := r.cron.AddFunc(spec, func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Printf("schedule: job panicked: %v", rec)
			}
		}()
		job()
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
