package worker

import (
	"log/slog"

	"messagehub/internal/models"
)

type JobType int

const (
	Deliver JobType = iota
	Stop
)

// Job is one notification to fan out to a user's subscribers.
type Job struct {
	Type         JobType
	UserID       string
	Notification *models.Notification
}

type Worker struct {
	pool       *jobChannelPool
	handle     func(Job)
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, handle func(Job)) *Worker {
	return &Worker{
		pool:       pool,
		handle:     handle,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.run(job)
		}
	}()
}

func (w *Worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification worker panic", slog.String("user_id", job.UserID), slog.Any("panic", r))
		}
	}()
	w.handle(job)
}
