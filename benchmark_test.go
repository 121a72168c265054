package gwpool

import (
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond"
	"github.com/devchat-ai/gopool"
)

const (
	benchWorkers = 16
	benchTasks   = 1000
	benchWork    = 100 * time.Microsecond
)

func BenchmarkThreadPool(b *testing.B) {
	pool := NewThreadPool()
	pool.Initialize(benchWorkers)
	defer pool.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		remaining := benchTasks
		for n := 0; n < benchTasks; n++ {
			pool.Enqueue(NewFunc(func() error {
				time.Sleep(benchWork)
				return nil
			}, func(error) {
				remaining--
			}))
		}
		for remaining > 0 {
			pool.Process()
		}
	}
	b.StopTimer()
}

func BenchmarkPond(b *testing.B) {
	pool := pond.New(benchWorkers, benchTasks)
	defer pool.StopAndWait()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		group := pool.Group()
		for n := 0; n < benchTasks; n++ {
			group.Submit(func() {
				time.Sleep(benchWork)
			})
		}
		group.Wait()
	}
	b.StopTimer()
}

func BenchmarkGopool(b *testing.B) {
	pool := gopool.NewGoPool(benchWorkers)
	defer pool.Release()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for n := 0; n < benchTasks; n++ {
			pool.AddTask(func() (interface{}, error) {
				time.Sleep(benchWork)
				return nil, nil
			})
		}
		pool.Wait()
	}
	b.StopTimer()
}

func BenchmarkGoroutines(b *testing.B) {
	var wg sync.WaitGroup

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wg.Add(benchTasks)
		for n := 0; n < benchTasks; n++ {
			go func() {
				time.Sleep(benchWork)
				wg.Done()
			}()
		}
		wg.Wait()
	}
}
