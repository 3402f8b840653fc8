package locks_test

import (
	"fmt"
	"sync"

	"github.com/kolkov/queuedsync/locks"
)

// ExampleSemaphore bounds the number of concurrent workers.
func ExampleSemaphore() {
	sem := locks.NewSemaphore(2, true)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem.Acquire()
			defer sem.Release()
			// at most two goroutines run here at once
		}()
	}
	wg.Wait()
	fmt.Println(sem)
	// Output: Semaphore[Permits = 2]
}

// ExampleCountDownLatch waits for a fixed number of events.
func ExampleCountDownLatch() {
	done := locks.NewCountDownLatch(3)
	for i := 0; i < 3; i++ {
		go done.CountDown()
	}
	done.Await()
	fmt.Println(done)
	// Output: CountDownLatch[Count = 0]
}

// ExampleReentrantLock shows reentrant acquisition.
func ExampleReentrantLock() {
	l := locks.NewReentrantLock(false)
	l.Lock()
	l.Lock()
	fmt.Println(l.HoldCount())
	l.Unlock()
	l.Unlock()
	fmt.Println(l)
	// Output:
	// 2
	// ReentrantLock[Unlocked]
}
