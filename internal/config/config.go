// 包 config：从环境变量读取运行配置；命令行参数在 cmd 层覆盖
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ipregion/internal/xdb"
)

// Config：检索器、结果缓存与可选 Redis 的完整配置
type Config struct {
	DBPath    string
	Resource  string // 打包的库文件；DBPath 不存在时复制过去
	Algorithm xdb.Algorithm
	Cache     xdb.Config
	LRUSize   int
	Redis     Redis
}

// Redis：二级结果缓存；Addr 为空表示禁用
type Redis struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled 是否配置了 Redis
func (r Redis) Enabled() bool { return r.Addr != "" }

// FromEnv：读取 IPREGION_* 与 REDIS_* 环境变量
// 约束：布尔/数值解析失败直接报错，避免静默使用默认值掩盖配置错误
func FromEnv() (Config, error) {
	c := Config{
		DBPath:   env("IPREGION_DB_PATH", filepath.Join("data", "ip2region.db")),
		Resource: os.Getenv("IPREGION_RESOURCE"),
	}
	var err error
	if c.Algorithm, err = xdb.ParseAlgorithm(env("IPREGION_ALGORITHM", "vector")); err != nil {
		return Config{}, err
	}
	if c.Cache.HeaderCache, err = envBool("IPREGION_HEADER_CACHE", true); err != nil {
		return Config{}, err
	}
	if c.Cache.VectorIndexCache, err = envBool("IPREGION_VECTOR_CACHE", true); err != nil {
		return Config{}, err
	}
	if c.Cache.TotalCache, err = envBool("IPREGION_TOTAL_CACHE", false); err != nil {
		return Config{}, err
	}
	if c.LRUSize, err = envInt("IPREGION_LRU_SIZE", 4096); err != nil {
		return Config{}, err
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Redis.Addr = host + ":" + env("REDIS_PORT", "6379")
		c.Redis.Password = os.Getenv("REDIS_PASS")
		if c.Redis.DB, err = envInt("REDIS_DB", 0); err != nil {
			return Config{}, err
		}
		ttl := env("IPREGION_REDIS_TTL", "24h")
		if c.Redis.TTL, err = time.ParseDuration(ttl); err != nil {
			return Config{}, fmt.Errorf("config: IPREGION_REDIS_TTL: %w", err)
		}
	}
	return c, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("config: %s: negative value %d", key, n)
	}
	return n, nil
}
