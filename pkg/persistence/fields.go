package persistence

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// 检查点字段统一使用 "state" 前缀
const fieldPrefix = "state"

// SaveFields 把结构体中带 `persistence:"tag"` 的导出字段各自写成一个键。
// 没有 tag 的嵌套结构体会被展开。
func SaveFields(obj any, id string, svc Service) error {
	return eachTagged(obj, func(tag string, v reflect.Value) error {
		return errors.Wrapf(svc.NewStore(fieldPrefix, id, tag).Save(v.Interface()), "save field %s", tag)
	})
}

// LoadFields 按 tag 读回字段；缺失的键保持字段原值
func LoadFields(obj any, id string, svc Service) error {
	return eachTagged(obj, func(tag string, v reflect.Value) error {
		ptr := reflect.New(v.Type())
		err := svc.NewStore(fieldPrefix, id, tag).Load(ptr.Interface())
		if errors.Is(err, ErrNotExists) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "load field %s", tag)
		}
		v.Set(ptr.Elem())
		return nil
	})
}

func eachTagged(obj any, fn func(tag string, v reflect.Value) error) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return errors.Errorf("persistence: want pointer to struct, got %T", obj)
	}
	return walk(v.Elem(), fn)
}

func walk(v reflect.Value, fn func(string, reflect.Value) error) error {
	t := v.Type()
	for i := range t.NumField() {
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("persistence"), ",")
		if tag == "" || tag == "-" {
			if fv.Kind() == reflect.Struct {
				if err := walk(fv, fn); err != nil {
					return err
				}
			}
			continue
		}
		if err := fn(tag, fv); err != nil {
			return err
		}
	}
	return nil
}
