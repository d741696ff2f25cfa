// Package persistence 键值持久化：账本、订单检查点等状态以 JSON 编码写入
// 本地文件或 Badger。键由 prefix:id:tag 三段组成，List 按 prefix:id 枚举 tag。
package persistence

import (
	"errors"
	"strings"
)

// ErrNotExists 键不存在
var ErrNotExists = errors.New("persistence: key not found")

// Service 存储后端
type Service interface {
	NewStore(prefix, id, tag string) Store
	// List 返回 prefix:id 下已写入的 tag，按字典序
	List(prefix, id string) ([]string, error)
}

// Store 单个键
type Store interface {
	Save(v any) error
	// Load 键不存在或值为空时返回 ErrNotExists
	Load(v any) error
	// Delete 键不存在时不报错
	Delete() error
}

const keySep = ":"

func joinKey(prefix, id, tag string) string {
	return strings.Join([]string{prefix, id, tag}, keySep)
}
