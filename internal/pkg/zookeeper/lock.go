// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/washa/reconcile_locks" // 对账锁的根节点
)

// ErrLockHeld 表示锁已被其他节点持有。
var ErrLockHeld = errors.New("lock is held by another node")

// Conn 封装了一个 ZooKeeper 连接。
type Conn struct {
	conn *zk.Conn
}

// Connect 建立到 ZooKeeper 集群的连接。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	c := &Conn{conn: conn}
	if err := c.ensurePath(lockRoot); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Close 关闭连接，所有临时节点（即持有的锁）随之释放。
func (c *Conn) Close() {
	c.conn.Close()
}

// ensurePath 逐级创建持久节点。
func (c *Conn) ensurePath(path string) error {
	exists, _, err := c.conn.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	// 逐级创建，父节点可能也不存在
	acc := ""
	for _, part := range splitPath(path) {
		acc += "/" + part
		_, err := c.conn.Create(acc, []byte{}, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("failed to create path node %s: %w", acc, err)
		}
	}
	return nil
}

func splitPath(path string) []string {
	var parts []string
	cur := ""
	for _, r := range path {
		if r == '/' {
			if cur != "" {
				parts = append(parts, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}

// TryLock 尝试获取以 resourceID 命名的锁，立即返回。
//
// 与排队等待的互斥锁不同，对账场景里第二个工作进程没有必要排队：
// 对账本身是幂等的，锁只是避免多个工作进程同时向支付网关发起
// 同一个关联ID的查询。拿不到锁直接返回 ErrLockHeld，调用方跳过即可。
func (c *Conn) TryLock(resourceID string) (*Lock, error) {
	nodePath := lockRoot + "/" + resourceID
	// 临时节点：进程崩溃或会话过期时锁自动释放
	_, err := c.conn.Create(nodePath, []byte{}, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err == zk.ErrNodeExists {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock node: %w", err)
	}
	return &Lock{conn: c, nodePath: nodePath}, nil
}

// Lock 代表一把已持有的锁。
type Lock struct {
	conn     *Conn
	nodePath string
}

// Unlock 主动释放锁。
func (l *Lock) Unlock() error {
	err := l.conn.conn.Delete(l.nodePath, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to release lock %s: %w", l.nodePath, err)
	}
	return nil
}
