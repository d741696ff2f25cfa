package execution

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/nado/signing"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/nado/x18"
)

// OrderSigner 订单签名方，*signing.Signer 实现该接口
type OrderSigner interface {
	SignOrder(productID types.ProductID, order types.OrderIntent) (types.SignedOrder, error)
	Sender(subaccount string) types.Sender
}

// Builder 把已量化的价格和数量编码成 x18 并签名
type Builder struct {
	signer     OrderSigner
	nonces     *signing.NonceSource
	subaccount string
	now        func() time.Time
}

// NewBuilder 创建订单构建器
func NewBuilder(signer OrderSigner, nonces *signing.NonceSource, subaccount string) *Builder {
	if nonces == nil {
		nonces = signing.NewNonceSource(signing.DefaultRecvWindow)
	}
	if subaccount == "" {
		subaccount = signing.DefaultSubaccount
	}
	if len(subaccount) > 12 {
		logrus.WithField("component", "execution").Warnf("子账户名 %q 超过 12 字节，sender 中将被截断", subaccount)
	}
	return &Builder{signer: signer, nonces: nonces, subaccount: subaccount, now: time.Now}
}

// Sender 当前子账户的 sender
func (b *Builder) Sender() types.Sender {
	if b.signer == nil {
		return types.Sender{}
	}
	return b.signer.Sender(b.subaccount)
}

// OrderSpec 待签名订单。Amount 有符号：正数买入，负数卖出。
type OrderSpec struct {
	Instrument types.Instrument
	Price      decimal.Decimal
	Amount     decimal.Decimal
	TTL        time.Duration
	Appendix   types.Appendix
}

// Sign 校验步长对齐后签名。价格和数量必须已经量化。
func (b *Builder) Sign(spec OrderSpec) (types.SignedOrder, error) {
	if b.signer == nil {
		return types.SignedOrder{}, signing.ErrSigning
	}
	inst := spec.Instrument
	price := x18.FromDecimal(spec.Price)
	amount := x18.FromDecimal(spec.Amount)
	if err := x18.CheckAligned(inst, price, x18.KindPrice); err != nil {
		return types.SignedOrder{}, err
	}
	if err := x18.CheckAligned(inst, amount, x18.KindSize); err != nil {
		return types.SignedOrder{}, err
	}
	intent := types.OrderIntent{
		Sender:     b.Sender(),
		PriceX18:   price,
		Amount:     amount,
		Expiration: signing.ExpirationAfter(b.now(), spec.TTL),
		Nonce:      b.nonces.Next(),
		Appendix:   spec.Appendix,
	}
	return b.signer.SignOrder(inst.ProductID, intent)
}
