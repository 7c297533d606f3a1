package bot

import "sync"

// threadCounter tracks message_count for relay threads. The gateway cache keeps whatever
// count THREAD_CREATE carried, so a thread is seeded once from a fresh read and every
// MESSAGE_CREATE after that bumps it locally.
type threadCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newThreadCounter() *threadCounter {
	return &threadCounter{counts: map[string]int{}}
}

// observe counts one new message in threadID and returns the total. seed runs only for a
// thread seen for the first time and must already include the new message.
func (c *threadCounter) observe(threadID string, seed func() (int, error)) (int, error) {
	c.mu.Lock()
	if n, ok := c.counts[threadID]; ok {
		n++
		c.counts[threadID] = n
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	n, err := seed()
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.counts[threadID]; ok {
		// another event seeded it first
		n = cur + 1
	}
	c.counts[threadID] = n
	return n, nil
}

// bump counts a message in a thread that is already tracked. Unknown threads are left
// to their seed.
func (c *threadCounter) bump(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.counts[threadID]; ok {
		c.counts[threadID] = n + 1
	}
}

func (c *threadCounter) forget(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, threadID)
}
