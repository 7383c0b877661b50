// 包 locator：检索内核之上的门面，负责默认算法、结果缓存与“unknown”展示策略
package locator

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"ipregion/internal/config"
	"ipregion/internal/logger"
	"ipregion/internal/metrics"
	"ipregion/internal/utils"
	"ipregion/internal/xdb"
)

// Unknown 字段缺失或查询失败时的展示值
const Unknown = "unknown"

// Locator：显式构造、显式关闭的查询入口，可被多个 goroutine 共享
type Locator struct {
	s       *xdb.Searcher
	algo    xdb.Algorithm
	lruSize int
	cache   *lru.Cache[uint32, xdb.Region]
	remote  RemoteCache
	group   singleflight.Group
}

// Option 构造选项
type Option func(*Locator)

// WithAlgorithm 指定默认检索算法
func WithAlgorithm(a xdb.Algorithm) Option { return func(l *Locator) { l.algo = a } }

// WithLRU 进程内结果缓存容量；0 表示禁用
func WithLRU(size int) Option { return func(l *Locator) { l.lruSize = size } }

// WithRemote 二级结果缓存（如 Redis）
func WithRemote(r RemoteCache) Option { return func(l *Locator) { l.remote = r } }

// New：包装已构造的 Searcher；Locator 关闭时一并关闭 s
func New(s *xdb.Searcher, opts ...Option) (*Locator, error) {
	l := &Locator{s: s, algo: xdb.VectorIndexed}
	for _, o := range opts {
		o(l)
	}
	if l.lruSize > 0 {
		c, err := lru.New[uint32, xdb.Region](l.lruSize)
		if err != nil {
			return nil, err
		}
		l.cache = c
	}
	return l, nil
}

// Open：按配置准备库文件、打开检索器并挂载缓存层
func Open(cfg config.Config) (*Locator, error) {
	if cfg.Resource != "" {
		if err := BootstrapFile(cfg.Resource, cfg.DBPath); err != nil {
			return nil, err
		}
	}
	s, err := xdb.Open(cfg.DBPath, cfg.Cache)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithAlgorithm(cfg.Algorithm), WithLRU(cfg.LRUSize)}
	if rc := utils.OpenRedis(cfg.Redis); rc != nil {
		opts = append(opts, WithRemote(NewRedisCache(rc, cfg.Redis.TTL)))
	}
	l, err := New(s, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	logger.L().Info("locator_ready", "db", cfg.DBPath, "algorithm", cfg.Algorithm.String(), "lru", cfg.LRUSize, "redis", cfg.Redis.Enabled())
	return l, nil
}

// Searcher 返回底层检索器
func (l *Locator) Searcher() *xdb.Searcher { return l.s }

// Algorithm 返回默认检索算法
func (l *Locator) Algorithm() xdb.Algorithm { return l.algo }

// Search：LRU -> 远端缓存 -> 检索器；错误不进入缓存
// 约束：ctx 仅作用于远端缓存，内核检索为有界的同步读取
func (l *Locator) Search(ctx context.Context, ip string) (xdb.Region, error) {
	v, err := xdb.ParseIP(ip)
	if err != nil {
		metrics.LookupsTotal.WithLabelValues(l.algo.String(), xdb.KindOf(err)).Inc()
		return xdb.Region{}, err
	}
	if l.cache != nil {
		if r, ok := l.cache.Get(v); ok {
			metrics.CacheHitsTotal.WithLabelValues("lru").Inc()
			return r, nil
		}
	}
	key := xdb.FormatIP(v)
	if l.remote != nil {
		r, ok, err := l.remote.Get(ctx, key)
		if err != nil {
			logger.L().Warn("locator_remote_get_error", "ip", key, "err", err)
		} else if ok {
			metrics.CacheHitsTotal.WithLabelValues("remote").Inc()
			l.remember(v, r)
			return r, nil
		}
	}
	metrics.CacheMissesTotal.Inc()
	x, err, _ := l.group.Do(key, func() (any, error) {
		start := time.Now()
		d, err := l.s.SearchUint32(v, l.algo)
		var r xdb.Region
		if err == nil {
			r, err = d.Location()
		}
		metrics.LookupDurationUs.WithLabelValues(l.algo.String()).Observe(float64(time.Since(start).Microseconds()))
		metrics.LookupsTotal.WithLabelValues(l.algo.String(), xdb.KindOf(err)).Inc()
		return r, err
	})
	if err != nil {
		logger.L().Debug("locator_search_error", "ip", key, "algorithm", l.algo.String(), "err", err)
		return xdb.Region{}, err
	}
	r := x.(xdb.Region)
	l.remember(v, r)
	if l.remote != nil {
		if err := l.remote.Set(ctx, key, r); err != nil {
			logger.L().Warn("locator_remote_set_error", "ip", key, "err", err)
		}
	}
	return r, nil
}

func (l *Locator) remember(v uint32, r xdb.Region) {
	if l.cache != nil {
		l.cache.Add(v, r)
	}
}

// Lookup：命中返回 true；任何失败都视为未命中
func (l *Locator) Lookup(ip string) (xdb.Region, bool) {
	r, err := l.Search(context.Background(), ip)
	if err != nil {
		return xdb.Region{}, false
	}
	return r, true
}

// Display：把空值与 "0" 替换为 Unknown
func Display(r xdb.Region) xdb.Region {
	return xdb.Region{
		Country:  orUnknown(r.Country),
		Region:   orUnknown(r.Region),
		Province: orUnknown(r.Province),
		City:     orUnknown(r.City),
		ISP:      orUnknown(r.ISP),
	}
}

func orUnknown(s string) string {
	if s == "" || s == "0" {
		return Unknown
	}
	return s
}

func (l *Locator) field(ctx context.Context, ip string, get func(xdb.Region) string) string {
	r, err := l.Search(ctx, ip)
	if err != nil {
		return Unknown
	}
	return orUnknown(get(r))
}

func (l *Locator) Country(ctx context.Context, ip string) string {
	return l.field(ctx, ip, func(r xdb.Region) string { return r.Country })
}

// Area 返回区域段（如“华北”）
func (l *Locator) Area(ctx context.Context, ip string) string {
	return l.field(ctx, ip, func(r xdb.Region) string { return r.Region })
}

func (l *Locator) Province(ctx context.Context, ip string) string {
	return l.field(ctx, ip, func(r xdb.Region) string { return r.Province })
}

func (l *Locator) City(ctx context.Context, ip string) string {
	return l.field(ctx, ip, func(r xdb.Region) string { return r.City })
}

func (l *Locator) ISP(ctx context.Context, ip string) string {
	return l.field(ctx, ip, func(r xdb.Region) string { return r.ISP })
}

// Close：关闭检索器与远端缓存，合并返回错误
func (l *Locator) Close() error {
	err := l.s.Close()
	if l.remote != nil {
		err = multierr.Append(err, l.remote.Close())
	}
	return err
}
