package app

import (
	"github.com/taoyao-code/fdm-driver/internal/driver"
	"github.com/taoyao-code/fdm-driver/internal/health"
	redisstorage "github.com/taoyao-code/fdm-driver/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器；Redis 未启用时不加入其检查器
func NewHealthAggregator(drv *driver.Driver, redisClient *redisstorage.Client) *health.Aggregator {
	agg := health.NewAggregator(health.NewDriverChecker(drv))
	if redisClient != nil {
		agg.AddChecker(health.NewRedisChecker(redisClient.Client))
	}
	return agg
}
