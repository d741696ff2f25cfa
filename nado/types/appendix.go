package types

import (
	"fmt"
	"math/big"
)

// OrderType 订单执行类型（appendix bits 9-10）
type OrderType uint8

const (
	OrderTypeDefault  OrderType = 0
	OrderTypeIOC      OrderType = 1
	OrderTypeFOK      OrderType = 2
	OrderTypePostOnly OrderType = 3
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeDefault:
		return "default"
	case OrderTypeIOC:
		return "ioc"
	case OrderTypeFOK:
		return "fok"
	case OrderTypePostOnly:
		return "post_only"
	}
	return fmt.Sprintf("order_type(%d)", uint8(t))
}

// TriggerType 触发类型（appendix bits 12-13）
type TriggerType uint8

const (
	TriggerNone       TriggerType = 0
	TriggerPrice      TriggerType = 1
	TriggerTWAP       TriggerType = 2
	TriggerTWAPCustom TriggerType = 3
)

// AppendixVersion 当前 appendix 版本
const AppendixVersion uint8 = 1

const (
	appendixIsolatedBit   = 8
	appendixOrderTypeBit  = 9
	appendixReduceOnlyBit = 11
	appendixTriggerBit    = 12
	appendixValueBit      = 64
)

// Appendix 订单附加标志位，签名时编码为 uint128
//
// 布局（低位到高位）:
//
//	0-7    version
//	8      isolated
//	9-10   order type
//	11     reduce only
//	12-13  trigger type
//	64-127 value（isolated 保证金或 TWAP 参数）
type Appendix struct {
	Version    uint8
	Isolated   bool
	OrderType  OrderType
	ReduceOnly bool
	Trigger    TriggerType
	Value      uint64
}

// NewAppendix 创建当前版本的 appendix
func NewAppendix(orderType OrderType, reduceOnly bool) Appendix {
	return Appendix{Version: AppendixVersion, OrderType: orderType, ReduceOnly: reduceOnly}
}

// Pack 编码为 uint128 整数
func (a Appendix) Pack() *big.Int {
	v := new(big.Int).SetUint64(a.Value)
	v.Lsh(v, appendixValueBit)

	var low uint64 = uint64(a.Version)
	if a.Isolated {
		low |= 1 << appendixIsolatedBit
	}
	low |= uint64(a.OrderType&0x3) << appendixOrderTypeBit
	if a.ReduceOnly {
		low |= 1 << appendixReduceOnlyBit
	}
	low |= uint64(a.Trigger&0x3) << appendixTriggerBit

	return v.Or(v, new(big.Int).SetUint64(low))
}

// ParseAppendix 从 uint128 整数解码
func ParseAppendix(v *big.Int) (Appendix, error) {
	if v == nil {
		return Appendix{}, nil
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return Appendix{}, fmt.Errorf("appendix out of uint128 range: %s", v.String())
	}
	low := new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0))).Uint64()
	high := new(big.Int).Rsh(v, appendixValueBit).Uint64()
	return Appendix{
		Version:    uint8(low & 0xff),
		Isolated:   low&(1<<appendixIsolatedBit) != 0,
		OrderType:  OrderType((low >> appendixOrderTypeBit) & 0x3),
		ReduceOnly: low&(1<<appendixReduceOnlyBit) != 0,
		Trigger:    TriggerType((low >> appendixTriggerBit) & 0x3),
		Value:      high,
	}, nil
}
