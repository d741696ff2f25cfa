package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func fileName(key string) string {
	return unsafeName.ReplaceAllString(key, "_") + ".json"
}

// JSONFileService 每个键一个 JSON 文件，适合测试和单机小规模状态
type JSONFileService struct {
	dir string
}

// NewJSONFileService 文件写在 dir 下，目录在第一次写入时创建
func NewJSONFileService(dir string) *JSONFileService {
	return &JSONFileService{dir: dir}
}

// NewStore 打开一个键
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	key := joinKey(prefix, id, tag)
	return &jsonFile{key: key, path: filepath.Join(s.dir, fileName(key))}
}

// List 从文件名还原 tag；tag 中被替换过的字符无法还原
func (s *JSONFileService) List(prefix, id string) ([]string, error) {
	head := strings.TrimSuffix(fileName(joinKey(prefix, id, "")), ".json")
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "list json store")
	}
	tags := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, head) || !strings.HasSuffix(name, ".json") {
			continue
		}
		tags = append(tags, strings.TrimSuffix(name[len(head):], ".json"))
	}
	sort.Strings(tags)
	return tags, nil
}

type jsonFile struct {
	key  string
	path string
}

// Save 先写临时文件并 fsync，再原子替换
func (f *jsonFile) Save(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", f.key)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	logrus.WithField("key", f.key).Trace("persistence: saved")
	return os.Rename(tmp.Name(), f.path)
}

func (f *jsonFile) Load(v any) error {
	b, err := os.ReadFile(f.path)
	switch {
	case os.IsNotExist(err):
		return ErrNotExists
	case err != nil:
		return err
	case len(b) == 0:
		return ErrNotExists
	}
	return errors.Wrapf(json.Unmarshal(b, v), "decode %s", f.key)
}

func (f *jsonFile) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
