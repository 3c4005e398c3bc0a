package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/wfunc/territory/logger"
)

// Task is a scheduled callback. A positive Interval makes it repeat.
type Task struct {
	ID       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	task := x.(*Task)
	task.index = len(*q)
	*q = append(*q, task)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[:n-1]
	return task
}

// TimerManager runs callbacks from a min-heap checked every resolution tick.
// Callbacks run on their own goroutine so a slow one cannot stall the rest.
type TimerManager struct {
	queue      taskQueue
	mutex      sync.Mutex
	nextID     int64
	resolution time.Duration
	closeChan  chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewTimerManager(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}
	manager := &TimerManager{
		queue:      make(taskQueue, 0),
		nextID:     1,
		resolution: resolution,
		closeChan:  make(chan struct{}),
	}
	heap.Init(&manager.queue)
	manager.wg.Add(1)
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay, repeating every interval when
// interval > 0. The returned ID cancels it.
func (m *TimerManager) AddTimer(delay, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &Task{
		ID:       m.nextID,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextID++

	heap.Push(&m.queue, task)
	return task.ID
}

// Every is AddTimer with the first run one interval from now.
func (m *TimerManager) Every(interval time.Duration, callback func()) int64 {
	return m.AddTimer(interval, interval, callback)
}

func (m *TimerManager) RemoveTimer(id int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.ID == id {
			heap.Remove(&m.queue, i)
			return
		}
	}
}

func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop ends the scheduling loop and waits for callbacks already started.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.closeChan)
	})
	m.wg.Wait()
}

func (m *TimerManager) process() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				m.wg.Add(1)
				go m.run(task.Callback)
			}
		case <-m.closeChan:
			return
		}
	}
}

func (m *TimerManager) due(now time.Time) []*Task {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var ready []*Task
	for m.queue.Len() > 0 && !m.queue[0].Execute.After(now) {
		task := heap.Pop(&m.queue).(*Task)
		ready = append(ready, task)
		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		}
	}
	return ready
}

func (m *TimerManager) run(callback func()) {
	defer m.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Errorf("Timer callback panicked: %v", p)
		}
	}()
	callback()
}
