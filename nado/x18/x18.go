// Package x18 在十进制数与交易所 18 位定点整数之间转换，并按产品步长量化。
package x18

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals 定点小数位数
const Decimals = 18

// One 1.0 的 x18 表示
var One = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// FromDecimal 转为 x18 整数，超出 18 位的小数部分向零截断
func FromDecimal(d decimal.Decimal) *big.Int {
	return d.Shift(Decimals).BigInt()
}

// ToDecimal 把 x18 整数转回十进制
func ToDecimal(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}

// Parse 解析十进制字符串形式的 x18 整数（交易所返回格式）
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid x18 integer %q", s)
	}
	return v, nil
}

// ParseDecimal 解析 x18 字符串并转为十进制
func ParseDecimal(s string) (decimal.Decimal, error) {
	v, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	return ToDecimal(v), nil
}

// MustParseDecimal 用于常量和测试
func MustParseDecimal(s string) decimal.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}
