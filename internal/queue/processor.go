package queue

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

const TaskMatchingSweep = "matching:sweep"

// Sweeper runs one matching pass over the queue.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Processor drives the periodic sweep: a ticker enqueues the sweep task on
// the matching queue and an asynq server executes it. Task execution
// failures surface in asynq's retry accounting; the ticker keeps feeding
// fresh tasks regardless, so one bad pass never stalls matching.
type Processor struct {
	sweeper  Sweeper
	server   *asynq.Server
	client   *asynq.Client
	interval time.Duration
	cancel   context.CancelFunc
}

func NewProcessor(sweeper Sweeper, redisURL string, interval time.Duration) (*Processor, error) {
	connOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(
		connOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"matching": 6,
				"default":  3,
			},
			StrictPriority: true,
		},
	)

	return &Processor{
		sweeper:  sweeper,
		server:   server,
		client:   asynq.NewClient(connOpt),
		interval: interval,
	}, nil
}

func (p *Processor) Start(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskMatchingSweep, p.handleSweepTask)

	go func() {
		if err := p.server.Run(mux); err != nil {
			log.Printf("[PROCESSOR] Asynq server error: %v", err)
		}
	}()

	tickCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.tick(tickCtx)

	log.Printf("[PROCESSOR] Queue processor started, sweep interval %v", p.interval)
	return nil
}

func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.server.Shutdown()
	p.client.Close()
}

func (p *Processor) handleSweepTask(ctx context.Context, task *asynq.Task) error {
	start := time.Now()
	if err := p.sweeper.Sweep(ctx); err != nil {
		log.Printf("[PROCESSOR] Sweep failed after %v: %v", time.Since(start), err)
		return err
	}
	return nil
}

func (p *Processor) tick(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task := asynq.NewTask(TaskMatchingSweep, nil)
			if _, err := p.client.Enqueue(task, asynq.Queue("matching")); err != nil {
				log.Printf("[PROCESSOR] Error enqueueing sweep task: %v", err)
			}
		}
	}
}
