package loopback

import "sync"

// worker runs tasks one at a time, in submission order, on its own
// goroutine. Submitting never blocks.
type worker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
}

func startWorker(wg *sync.WaitGroup) *worker {
	w := &worker{}
	w.cond = sync.NewCond(&w.mu)
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.run()
	}()
	return w
}

// submit queues fn and reports false once the worker was closed.
func (w *worker) submit(fn func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.tasks = append(w.tasks, fn)
	w.cond.Signal()
	return true
}

// close stops intake. Tasks already queued still run before the goroutine
// exits.
func (w *worker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.cond.Signal()
}

func (w *worker) run() {
	for {
		w.mu.Lock()
		for len(w.tasks) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.tasks) == 0 {
			w.mu.Unlock()
			return
		}
		task := w.tasks[0]
		w.tasks[0] = nil
		w.tasks = w.tasks[1:]
		w.mu.Unlock()

		task()
	}
}
