package detector

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/snapshot"
)

type evalFunc func(row snapshot.Row) (outlier.Event, verdict)

type shardResult struct {
	events []outlier.Event
	stats  Stats
}

// shard partitions rows by underlying symbol so one symbol never spans two
// workers.
func shard(rows []snapshot.Row, n int) [][]snapshot.Row {
	if n < 1 {
		n = 1
	}
	shards := make([][]snapshot.Row, n)
	for _, r := range rows {
		h := fnv.New32a()
		h.Write([]byte(r.Symbol))
		i := int(h.Sum32() % uint32(n))
		shards[i] = append(shards[i], r)
	}
	return shards
}

// run evaluates rows on a pool of workers and merges the results sorted by
// amount descending, then contract symbol.
func run(ctx context.Context, workers int, rows []snapshot.Row, eval evalFunc) ([]outlier.Event, Stats, error) {
	shards := shard(rows, workers)
	results := make(chan shardResult, len(shards))
	var wg sync.WaitGroup

	for _, part := range shards {
		if len(part) == 0 {
			continue
		}
		wg.Add(1)
		go func(part []snapshot.Row) {
			defer wg.Done()
			var res shardResult
			for _, row := range part {
				if ctx.Err() != nil {
					break
				}
				ev, v := eval(row)
				res.stats.record(v)
				if v == accepted {
					res.events = append(res.events, ev)
				}
			}
			results <- res
		}(part)
	}

	wg.Wait()
	close(results)

	var (
		events []outlier.Event
		stats  Stats
	)
	for res := range results {
		events = append(events, res.events...)
		stats.Add(res.stats)
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Amount != events[j].Amount {
			return events[i].Amount > events[j].Amount
		}
		return events[i].ContractSymbol < events[j].ContractSymbol
	})
	return events, stats, nil
}
