// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端，并维护一个按名字索引的 Lua 脚本注册表。
// 业务代码在初始化时通过 LoadScriptFromContent 登记脚本，运行期只按名字执行，
// 避免在热路径上重复传输脚本内容。
type Client struct {
	rdb *goredis.Client

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 创建一个新的 Redis 客户端封装。
func NewClient(addr string) *Client {
	rdb := goredis.NewClient(&goredis.Options{
		Addr: addr,
	})
	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*goredis.Script),
	}
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级操作的调用方使用。
func (c *Client) GetClient() *goredis.Client {
	return c.rdb
}

// LoadScriptFromContent 注册一段 Lua 脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q has empty content", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 按名字执行一段已注册的 Lua 脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
