package translate

import (
	"runtime"
	"sync"
)

// WorkItem holds one nucleotide cell waiting for translation.
type WorkItem struct {
	Seq int
	NT  string
}

// WorkResult holds the translation of a single work item.
type WorkResult struct {
	Seq int
	AA  string
}

// Parallel translates work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func Parallel(items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				results <- WorkResult{Seq: item.Seq, AA: Best(item.NT)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}

// All translates every input with Best and returns the translations in
// input order.
func All(nts []string, workers int) []string {
	out := make([]string, len(nts))
	if len(nts) == 0 {
		return out
	}

	items := make(chan WorkItem, len(nts))
	for i, nt := range nts {
		items <- WorkItem{Seq: i, NT: nt}
	}
	close(items)

	_ = OrderedCollect(Parallel(items, workers), func(r WorkResult) error {
		out[r.Seq] = r.AA
		return nil
	})
	return out
}
