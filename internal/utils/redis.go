// 包 utils：Redis 连接工具
package utils

import (
	"ipregion/internal/config"
	"ipregion/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：按配置打开 Redis 客户端；未配置地址时返回 nil
func OpenRedis(c config.Redis) *redis.Client {
	if !c.Enabled() {
		return nil
	}
	logger.L().Debug("redis_open", "addr", c.Addr, "db", c.DB)
	return redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
}
