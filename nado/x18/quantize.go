package x18

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/betbot/goperp/nado/types"
	"github.com/shopspring/decimal"
)

// Kind 量化对象
type Kind int

const (
	KindSize Kind = iota
	KindPrice
)

func (k Kind) String() string {
	if k == KindPrice {
		return "price"
	}
	return "size"
}

// ErrInvalidQuantity 量化后为 0（低于最小步长）或未对齐步长
var ErrInvalidQuantity = errors.New("invalid quantity")

// Increment 返回产品对应的步长
func Increment(inst types.Instrument, kind Kind) decimal.Decimal {
	if kind == KindPrice {
		return inst.PriceIncrement
	}
	return inst.SizeIncrement
}

// Quantize 向零截断到步长整数倍。
// 非零输入截断后为 0 时返回 ErrInvalidQuantity；价格为 0 表示市价，原样返回。
func Quantize(inst types.Instrument, value decimal.Decimal, kind Kind) (decimal.Decimal, error) {
	inc := Increment(inst, kind)
	if inc.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: product %d has no %s increment", ErrInvalidQuantity, inst.ProductID, kind)
	}
	if value.IsZero() {
		if kind == KindPrice {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("%w: zero %s", ErrInvalidQuantity, kind)
	}

	// QuoRem 的商按 0 位精度向零截断，不经过浮点除法
	q, _ := value.QuoRem(inc, 0)
	out := q.Mul(inc)
	if out.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s %s below step %s for product %d",
			ErrInvalidQuantity, kind, value.String(), inc.String(), inst.ProductID)
	}
	return out, nil
}

// QuantizeAway 远离零方向取整到步长整数倍，用于止损执行价的不利方向缓冲
func QuantizeAway(inst types.Instrument, value decimal.Decimal, kind Kind) (decimal.Decimal, error) {
	inc := Increment(inst, kind)
	if inc.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: product %d has no %s increment", ErrInvalidQuantity, inst.ProductID, kind)
	}
	q, r := value.QuoRem(inc, 0)
	if !r.IsZero() {
		if value.IsNegative() {
			q = q.Sub(decimal.NewFromInt(1))
		} else {
			q = q.Add(decimal.NewFromInt(1))
		}
	}
	return q.Mul(inc), nil
}

// ToX18 量化并转换为 x18 整数
func ToX18(inst types.Instrument, value decimal.Decimal, kind Kind) (*big.Int, error) {
	q, err := Quantize(inst, value, kind)
	if err != nil {
		return nil, err
	}
	return FromDecimal(q), nil
}

// CheckAligned 校验 x18 值是步长 x18 的整数倍（价格 0 视为合法）
func CheckAligned(inst types.Instrument, v *big.Int, kind Kind) error {
	if v == nil {
		return fmt.Errorf("%w: nil %s", ErrInvalidQuantity, kind)
	}
	if v.Sign() == 0 {
		if kind == KindPrice {
			return nil
		}
		return fmt.Errorf("%w: zero %s", ErrInvalidQuantity, kind)
	}
	inc := FromDecimal(Increment(inst, kind))
	if inc.Sign() <= 0 {
		return fmt.Errorf("%w: product %d has no %s increment", ErrInvalidQuantity, inst.ProductID, kind)
	}
	if new(big.Int).Rem(v, inc).Sign() != 0 {
		return fmt.Errorf("%w: %s %s not a multiple of %s", ErrInvalidQuantity, kind, v.String(), inc.String())
	}
	return nil
}
