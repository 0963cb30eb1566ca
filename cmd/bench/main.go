// Command bench runs a synthetic workload against the cache, backed by a
// simulated slow repository, and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/flightcache/cache"
	pmet "github.com/IvanBrykalov/flightcache/metrics/prom"
	"github.com/IvanBrykalov/flightcache/policy"
	"github.com/IvanBrykalov/flightcache/policy/absolute"
	"github.com/IvanBrykalov/flightcache/policy/sliding"
	"github.com/IvanBrykalov/flightcache/refcount"
)

// backend simulates a repository with fixed per-call latency.
type backend struct {
	latency time.Duration
	single  atomic.Uint64
	batches atomic.Uint64
	keys    atomic.Uint64
}

func (b *backend) load(ctx context.Context, k string) (string, error) {
	b.single.Add(1)
	if err := b.wait(ctx); err != nil {
		return "", err
	}
	return "v:" + k, nil
}

func (b *backend) loadMany(ctx context.Context, keys []string) (map[string]string, error) {
	b.batches.Add(1)
	b.keys.Add(uint64(len(keys)))
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = "v:" + k
	}
	return out, nil
}

func (b *backend) wait(ctx context.Context) error {
	if b.latency <= 0 {
		return nil
	}
	t := time.NewTimer(b.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func main() {
	// ---- Flags ----
	var (
		shards  = flag.Int("shards", 0, "number of shards (0=auto)")
		expiry  = flag.String("expiry", "sliding", "expiration policy: sliding | absolute | never")
		ttl     = flag.Duration("ttl", 30*time.Second, "expiration window for sliding/absolute")
		latency = flag.Duration("latency", 2*time.Millisecond, "simulated backend latency per call")
		refs    = flag.Bool("refcount", false, "route reads through the reference-counting overlay")
		retain  = flag.Duration("retention", 5*time.Second, "refcount sweep period")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		batchPct = flag.Int("batch", 10, "percentage of operations that are BatchGet [0..100]")
		batchLen = flag.Int("batch_len", 16, "keys per BatchGet")

		keys  = flag.Int("keys", 100_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
		debug       = flag.Bool("debug", false, "development logger at debug level")
	)
	flag.Parse()

	log := newLogger(*debug)
	defer func() { _ = log.Sync() }()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof listening", zap.String("addr", *pprofAddr))
			log.Warn("pprof server stopped", zap.Error(http.ListenAndServe(*pprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "flightcache", "bench", nil)
	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics listening", zap.String("addr", *metricsAddr))
			log.Warn("metrics server stopped", zap.Error(http.ListenAndServe(*metricsAddr, nil)))
		}()
	}

	var exp policy.Policy
	switch *expiry {
	case "sliding":
		exp = sliding.New(*ttl)
	case "absolute":
		exp = absolute.After(*ttl)
	case "never":
		exp = policy.Never()
	default:
		log.Fatal("unknown expiration policy", zap.String("expiry", *expiry))
	}

	// ---- Build cache ----
	be := &backend{latency: *latency}
	core := cache.New[string, string](cache.Options[string, string]{
		Shards:      *shards,
		Policy:      &cache.ItemPolicy[string, string]{Expiration: exp},
		Loader:      be.load,
		BatchLoader: be.loadMany,
		Metrics:     metrics,
		Logger:      log.Named("cache"),
	})

	var (
		get      = core.Get
		batchGet = core.BatchGet
		release  = func(string) {}
		closeFn  = core.Close
	)
	var rc *refcount.Cache[string, string]
	if *refs {
		rc = refcount.New[string, string](core, refcount.Options{Retention: *retain, Logger: log.Named("refcount")})
		get, batchGet, release, closeFn = rc.Get, rc.BatchGet, rc.EntryNoLongerUsed, rc.Close
	}
	defer func() { _ = closeFn() }()

	// ---- Snapshot flags for goroutines ----
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	workersN := max(*workers, 1)
	bl := max(*batchLen, 1)

	// ---- Load generation ----
	var total, failed atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)
			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}
			batch := make([]string, bl)

			for ctx.Err() == nil {
				total.Add(1)
				if int(localR.Int31n(100)) < *batchPct {
					for i := range batch {
						batch[i] = keyByZipf()
					}
					res, err := batchGet(ctx, batch)
					if err != nil {
						failed.Add(1)
						continue
					}
					for k := range res {
						release(k)
					}
					continue
				}

				k := keyByZipf()
				if _, err := get(ctx, k); err != nil {
					failed.Add(1)
					continue
				}
				release(k)
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	st := core.Stats()
	ops := total.Load()
	fmt.Printf("expiry=%s ttl=%v refcount=%v workers=%d keys=%d dur=%v seed=%d\n",
		*expiry, *ttl, *refs, workersN, *keys, elapsed.Round(time.Millisecond), seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  failed=%d\n", ops, float64(ops)/elapsed.Seconds(), failed.Load())
	fmt.Printf("requests=%d  hits=%d  hit-rate=%.2f%%  avg single=%v\n",
		st.Requests, st.Hits, st.HitRatio()*100, st.AverageSingleRetrieval)
	fmt.Printf("backend: single=%d  batches=%d  batch keys=%d\n", be.single.Load(), be.batches.Load(), be.keys.Load())
	if rc != nil {
		rs := rc.Stats()
		fmt.Printf("refcount: tracked=%d  last sweep=%d keys at %s\n",
			rs.Tracked, rs.LastEvictionSize, rs.LastEvictionTime.Format(time.TimeOnly))
	}
	fmt.Printf("Len()=%d\n", core.Len())

	if failed.Load() > 0 && ctx.Err() == nil {
		os.Exit(1)
	}
}

func newLogger(debug bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	return l
}
