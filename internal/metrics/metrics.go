package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipregion_lookups_total",
		Help: "Total number of searcher lookups by algorithm and result",
	}, []string{"algorithm", "result"})
	LookupDurationUs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ipregion_lookup_duration_us",
		Help:    "Searcher lookup duration in microseconds",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	}, []string{"algorithm"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipregion_cache_hits_total",
		Help: "Total result cache hits by layer",
	}, []string{"layer"})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipregion_cache_misses_total",
		Help: "Total lookups that missed every result cache layer",
	})
	BenchMismatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipregion_bench_mismatches_total",
		Help: "Total bench checks whose region differed from the source file",
	}, []string{"algorithm"})
)

func init() {
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(LookupDurationUs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(BenchMismatchesTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标，供 bench 运行期间抓取。
func Handler() http.Handler { return promhttp.Handler() }
