// sign-order 离线签名一笔订单并打印摘要、签名和 appendix，不发送任何请求。
// 用于核对量化、appendix 编码和 EIP-712 摘要。
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/execution"
	"github.com/betbot/goperp/internal/instrument"
	"github.com/betbot/goperp/internal/keys"
	"github.com/betbot/goperp/nado/signing"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/nado/x18"
	"github.com/betbot/goperp/pkg/config"
)

type output struct {
	Product    string `json:"product"`
	Sender     string `json:"sender"`
	Signer     string `json:"signer"`
	PriceX18   string `json:"price_x18"`
	AmountX18  string `json:"amount_x18"`
	Expiration uint64 `json:"expiration"`
	Nonce      uint64 `json:"nonce"`
	Appendix   string `json:"appendix"`
	OrderType  string `json:"order_type"`
	ReduceOnly bool   `json:"reduce_only"`
	Digest     string `json:"digest"`
	Signature  string `json:"signature"`
	Recovered  string `json:"recovered"`
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "配置文件路径（产品步长和私钥来源）")
		product    = flag.String("product", "SOL", "产品 ID 或符号")
		side       = flag.String("side", "buy", "buy / sell")
		size       = flag.String("size", "", "基础资产数量（正数）")
		price      = flag.String("price", "", "限价")
		orderType  = flag.String("type", "ioc", "default / ioc / fok / post_only")
		reduceOnly = flag.Bool("reduce-only", false, "只减仓")
		ttl        = flag.Duration("ttl", time.Minute, "订单有效期")
	)
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fatal(err)
	}
	reg, err := instrument.FromConfig(cfg.Instruments)
	if err != nil {
		fatal(err)
	}
	inst, ok := reg.Lookup(*product)
	if !ok {
		fatal(fmt.Errorf("unknown product %q", *product))
	}
	ot, err := parseOrderType(*orderType)
	if err != nil {
		fatal(err)
	}

	qty, err := quantized(inst, *size, x18.KindSize, "size")
	if err != nil {
		fatal(err)
	}
	px, err := quantized(inst, *price, x18.KindPrice, "price")
	if err != nil {
		fatal(err)
	}
	if strings.EqualFold(*side, "sell") {
		qty = qty.Neg()
	}

	signer, _, err := keys.Load(keys.FromConfig(cfg))
	if err != nil {
		fatal(err)
	}
	builder := execution.NewBuilder(signer, signing.NewNonceSource(signing.DefaultRecvWindow), cfg.Wallet.Subaccount)
	so, err := builder.Sign(execution.OrderSpec{
		Instrument: inst,
		Price:      px,
		Amount:     qty,
		TTL:        *ttl,
		Appendix:   types.NewAppendix(ot, *reduceOnly),
	})
	if err != nil {
		fatal(err)
	}
	recovered, err := signing.RecoverAddress(common.FromHex(so.Digest), so.Signature)
	if err != nil {
		fatal(err)
	}

	out := output{
		Product:    fmt.Sprintf("%s (%d)", inst.Symbol, inst.ProductID),
		Sender:     so.Order.Sender.Hex(),
		Signer:     signer.SignerAddress().Hex(),
		PriceX18:   so.Order.PriceX18.String(),
		AmountX18:  so.Order.Amount.String(),
		Expiration: so.Order.Expiration,
		Nonce:      so.Order.Nonce,
		Appendix:   so.Order.Appendix.Pack().String(),
		OrderType:  so.Order.Appendix.OrderType.String(),
		ReduceOnly: so.Order.Appendix.ReduceOnly,
		Digest:     so.Digest,
		Signature:  so.Signature,
		Recovered:  recovered.Hex(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func quantized(inst types.Instrument, raw string, kind x18.Kind, name string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || v.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("-%s must be a positive number, got %q", name, raw)
	}
	q, err := x18.Quantize(inst, v, kind)
	if err != nil {
		return decimal.Zero, err
	}
	if !q.Equal(v) {
		fmt.Fprintf(os.Stderr, "%s %s 已按步长截断为 %s\n", name, v, q)
	}
	return q, nil
}

func parseOrderType(s string) (types.OrderType, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "default", "limit", "gtc":
		return types.OrderTypeDefault, nil
	case "ioc":
		return types.OrderTypeIOC, nil
	case "fok":
		return types.OrderTypeFOK, nil
	case "post_only", "postonly":
		return types.OrderTypePostOnly, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
