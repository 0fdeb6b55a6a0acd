package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 发布渠道的连接参数。
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Enabled 判断是否配置了 Redis。
func (c RedisConfig) Enabled() bool { return c.Address != "" }

// RedisNotifier 通过 Redis PUBLISH 广播提示，订阅方不在线时提示直接丢弃。
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier 创建 Redis 通知器并检测连通性。
func NewRedisNotifier(ctx context.Context, cfg RedisConfig) (*RedisNotifier, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "smartclaim:notices"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisNotifier{client: client, channel: channel}, nil
}

// Channel 返回 Redis 渠道。
func (n *RedisNotifier) Channel() Channel { return ChannelRedis }

// Notify 将提示序列化为 JSON 并发布。
func (n *RedisNotifier) Notify(ctx context.Context, notice Notice) error {
	if n == nil || n.client == nil {
		return errors.New("Redis 通知器未初始化")
	}
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("序列化提示失败: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布提示失败: %w", err)
	}
	return nil
}

// Subscribe 订阅提示频道，主要用于测试与调试。
func (n *RedisNotifier) Subscribe(ctx context.Context) *redis.PubSub {
	return n.client.Subscribe(ctx, n.channel)
}

// Close 关闭 Redis 连接。
func (n *RedisNotifier) Close() error {
	if n == nil || n.client == nil {
		return nil
	}
	return n.client.Close()
}
