package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ipregion/internal/logger"
	"ipregion/internal/metrics"
	"ipregion/internal/xdb"
)

type benchResult struct {
	algorithm  xdb.Algorithm
	checks     int
	mismatches int
	took       time.Duration
}

func (c *cli) newBenchCmd() *cobra.Command {
	var (
		src         string
		all         bool
		metricsAddr string
		hold        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Check every range of a start|end|region source file against the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, algo, err := c.openSearcher()
			if err != nil {
				return err
			}
			defer s.Close()
			ranges, err := readBenchSource(src)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				stop, _, err := serveMetrics(metricsAddr)
				if err != nil {
					return err
				}
				defer func() {
					if hold > 0 {
						logger.L().Info("bench_metrics_hold", "addr", metricsAddr, "duration", hold.String())
						time.Sleep(hold)
					}
					stop()
				}()
			}
			algos := []xdb.Algorithm{algo}
			if all {
				algos = xdb.Algorithms
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, a := range algos {
				res, err := runBench(s, a, ranges, out)
				if err != nil {
					return err
				}
				cost := int64(0)
				if res.checks > 0 {
					cost = res.took.Microseconds() / int64(res.checks)
				}
				fmt.Fprintf(out, "bench finished, {algorithm: %s, checks: %d, mismatches: %d, took: %s, cost: %d us/op}\n",
					a, res.checks, res.mismatches, res.took, cost)
				failed += res.mismatches
			}
			if failed > 0 {
				return fmt.Errorf("bench: %d mismatches", failed)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&src, "src", "", "source file with lines start_ip|end_ip|region")
	f.BoolVar(&all, "all", false, "run every algorithm instead of --algorithm only")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while benchmarking")
	f.DurationVar(&hold, "metrics-hold", 0, "keep the metrics endpoint up for this long after the run")
	_ = cmd.MarkFlagRequired("src")
	return cmd
}

type benchRange struct {
	start, end uint32
	region     string
}

// readBenchSource：解析 "起始IP|结束IP|区域串" 行，空行与 # 注释忽略
func readBenchSource(path string) ([]benchRange, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []benchRange
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s:%d: want start|end|region", path, n)
		}
		start, err := xdb.ParseIP(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		end, err := xdb.ParseIP(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		if start > end {
			return nil, fmt.Errorf("%s:%d: start %s > end %s", path, n, parts[0], parts[1])
		}
		out = append(out, benchRange{start: start, end: end, region: parts[2]})
	}
	return out, sc.Err()
}

// runBench：每段检查起点、中点与终点；数据错误计为不一致，I/O 错误中止
func runBench(s *xdb.Searcher, a xdb.Algorithm, ranges []benchRange, out io.Writer) (benchResult, error) {
	res := benchResult{algorithm: a}
	start := time.Now()
	for _, r := range ranges {
		mid := uint32((uint64(r.start) + uint64(r.end)) / 2)
		for _, ip := range [3]uint32{r.start, mid, r.end} {
			t := time.Now()
			d, err := s.SearchUint32(ip, a)
			metrics.LookupDurationUs.WithLabelValues(a.String()).Observe(float64(time.Since(t).Microseconds()))
			metrics.LookupsTotal.WithLabelValues(a.String(), xdb.KindOf(err)).Inc()
			res.checks++
			if errors.Is(err, xdb.ErrIO) {
				return res, err
			}
			if err != nil || d.Region != r.region {
				res.mismatches++
				metrics.BenchMismatchesTotal.WithLabelValues(a.String()).Inc()
				got := d.Region
				if err != nil {
					got = err.Error()
				}
				fmt.Fprintf(out, "mismatch %s [%s]: want %s, got %s\n", xdb.FormatIP(ip), a, r.region, got)
			}
		}
	}
	res.took = time.Since(start)
	return res, nil
}

// serveMetrics：在 addr 上暴露 /metrics，返回关闭函数与实际监听地址
func serveMetrics(addr string) (func(), string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: logger.AccessMiddleware(logger.L())(mux), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("bench_metrics_serve_error", "err", err)
		}
	}()
	logger.L().Info("bench_metrics_listening", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, ln.Addr().String(), nil
}
