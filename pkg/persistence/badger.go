package persistence

import (
	"encoding/json"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// BadgerOptions Badger 参数
type BadgerOptions struct {
	Path     string
	InMemory bool
	// SyncWrites 每次提交都 fsync
	SyncWrites bool
}

// BadgerService 基于 Badger 的存储，每次 Save/Delete 是一个事务
type BadgerService struct {
	db *badger.DB
}

// NewBadgerService 打开数据库
func NewBadgerService(opts BadgerOptions) (*BadgerService, error) {
	var bo badger.Options
	switch {
	case opts.InMemory:
		bo = badger.DefaultOptions("").WithInMemory(true)
	case strings.TrimSpace(opts.Path) == "":
		return nil, errors.New("persistence: badger path is required")
	default:
		bo = badger.DefaultOptions(opts.Path)
	}
	db, err := badger.Open(bo.WithLogger(nil).WithSyncWrites(opts.SyncWrites))
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &BadgerService{db: db}, nil
}

// Close 关闭数据库，可重复调用
func (s *BadgerService) Close() error {
	if s == nil || s.db == nil || s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// NewStore 打开一个键
func (s *BadgerService) NewStore(prefix, id, tag string) Store {
	return &badgerKey{db: s.db, key: []byte(joinKey(prefix, id, tag))}
}

// List 按前缀扫描键，只读 key 不取 value
func (s *BadgerService) List(prefix, id string) ([]string, error) {
	head := []byte(joinKey(prefix, id, ""))
	var tags []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: head})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			tags = append(tags, string(it.Item().Key()[len(head):]))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list badger store")
	}
	sort.Strings(tags)
	return tags, nil
}

type badgerKey struct {
	db  *badger.DB
	key []byte
}

func (k *badgerKey) Save(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", k.key)
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k.key, b)
	})
}

func (k *badgerKey) Load(v any) error {
	return k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotExists
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return ErrNotExists
			}
			return errors.Wrapf(json.Unmarshal(val, v), "decode %s", k.key)
		})
	})
}

func (k *badgerKey) Delete() error {
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k.key)
	})
}
