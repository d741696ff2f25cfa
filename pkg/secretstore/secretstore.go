// Package secretstore 保存签名私钥或助记词的 Badger 库，静态加密由 Badger 的
// EncryptionKey 提供。
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// 约定的键名
const (
	PrivateKeyName = "nado_private_key"
	MnemonicName   = "nado_mnemonic"
)

var (
	ErrNotOpened = errors.New("secretstore: not opened")
	ErrNotFound  = errors.New("secretstore: secret not found")
)

// OpenOptions 打开参数
type OpenOptions struct {
	Path string
	// EncryptionKey 32 字节；为空时不加密
	EncryptionKey []byte
	ReadOnly      bool
}

// Store 密钥库
type Store struct {
	db *badger.DB
}

// Open 打开或创建密钥库
func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bo := badger.DefaultOptions(opts.Path).WithLogger(nil).WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求设置索引缓存
		bo = bo.WithEncryptionKey(opts.EncryptionKey).WithIndexCacheSize(32 << 20)
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, errors.Wrap(err, "secretstore: open")
	}
	return &Store{db: db}, nil
}

// Close 关闭
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) key(name string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpened
	}
	k := strings.TrimSpace(name)
	if k == "" {
		return nil, errors.New("secretstore: empty name")
	}
	return []byte(k), nil
}

// GetString 读取；第二个返回值表示键是否存在
func (s *Store) GetString(name string) (string, bool, error) {
	k, err := s.key(name)
	if err != nil {
		return "", false, err
	}
	var val []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

// First 按顺序返回第一个存在且非空的密钥及其键名
func (s *Store) First(names ...string) (string, string, error) {
	for _, n := range names {
		v, ok, err := s.GetString(n)
		if err != nil {
			return "", "", err
		}
		if ok && strings.TrimSpace(v) != "" {
			return n, v, nil
		}
	}
	return "", "", errors.Wrapf(ErrNotFound, "tried %s", strings.Join(names, ","))
}

// SetString 写入
func (s *Store) SetString(name, val string) error {
	k, err := s.key(name)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error { return txn.Set(k, []byte(val)) })
}

// Delete 删除，不存在时忽略
func (s *Store) Delete(name string) error {
	k, err := s.key(name)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error { return txn.Delete(k) })
}

// Keys 列出键名，不读取值
func (s *Store) Keys() ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpened
	}
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return names, err
}

// ParseKey 解析 32 字节加密密钥：hex（可带 0x）或 base64。空串返回 nil。
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// 先按 hex 解析，64 位 hex 串同时也是合法 base64
	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		if b, err = base64.StdEncoding.DecodeString(raw); err != nil {
			return nil, errors.New("secretstore: key must be 32 bytes as hex or base64")
		}
	}
	if len(b) != 32 {
		return nil, errors.Errorf("secretstore: key must be 32 bytes, got %d", len(b))
	}
	return b, nil
}
