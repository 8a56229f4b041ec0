package agent

import (
	"log"
	"sync"
	"time"

	"github.com/mcrae/pubsub/util"
)

// task is one client action with its own bounded retry state.
type task struct {
	name     string
	tries    int
	interval time.Duration
	do       func() error
	done     *util.Event
}

func (t *task) run() {
	var err error
	for attempt := 1; attempt <= t.tries; attempt++ {
		if err = t.do(); err == nil {
			t.done.Set()
			return
		}
		if attempt == 1 {
			log.Printf("Server currently unavailable, will keep retrying %s", t.name)
		}
		if attempt < t.tries {
			time.Sleep(t.interval)
		}
	}
	log.Printf("Could not contact server for %s after %d attempts: %s", t.name, t.tries, err)
	t.done.Set()
}

// TaskPool runs client actions on a fixed number of workers, so a burst
// of actions against an unreachable broker never spawns an unbounded
// number of goroutines.
type TaskPool struct {
	mu      sync.Mutex
	tasks   chan *task
	wg      sync.WaitGroup
	senders sync.WaitGroup
	closed  bool
}

func NewTaskPool(workers, backlog int) *TaskPool {
	pool := &TaskPool{tasks: make(chan *task, backlog)}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

func (p *TaskPool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.run()
	}
}

// Submit queues an action. The returned event is set once the action has
// succeeded or given up; callers that do not care simply drop it.
func (p *TaskPool) Submit(name string, tries int, interval time.Duration, fn func() error) *util.Event {
	done := util.NewEvent()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		log.Printf("Dropping %s: pool closed", name)
		done.Set()
		return done
	}
	p.senders.Add(1)
	p.mu.Unlock()

	// The send can block on a full backlog; it must not happen under the
	// mutex or it would stall Close and every other submitter. Close
	// waits for registered senders before closing the channel.
	p.tasks <- &task{name: name, tries: tries, interval: interval, do: fn, done: done}
	p.senders.Done()
	return done
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *TaskPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.senders.Wait()
	close(p.tasks)
	p.wg.Wait()
}
