package signing

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/nado/x18"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

type typeField = apitypes.Type

// ErrSigning 签名失败（密钥缺失、格式错误或哈希失败）
var ErrSigning = errors.New("signing error")

func domain(chainID int64, verifyingContract string) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: verifyingContract,
	}
}

// OrderTypedData 构建订单的 EIP712 结构化数据
func OrderTypedData(chainID int64, productID types.ProductID, order types.OrderIntent) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			"Order":        orderType,
		},
		PrimaryType: "Order",
		Domain:      domain(chainID, VerifyingContract(productID)),
		Message: apitypes.TypedDataMessage{
			"sender":     order.Sender.Hex(),
			"priceX18":   bigOrZero(order.PriceX18),
			"amount":     bigOrZero(order.Amount),
			"expiration": new(big.Int).SetUint64(order.Expiration),
			"nonce":      new(big.Int).SetUint64(order.Nonce),
			"appendix":   order.Appendix.Pack(),
		},
	}
}

// OrderDigest 计算订单 EIP712 哈希。相同输入总是得到相同结果。
func OrderDigest(chainID int64, productID types.ProductID, order types.OrderIntent) ([]byte, error) {
	if order.Amount == nil || order.Amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: order amount is zero", x18.ErrInvalidQuantity)
	}
	hash, _, err := apitypes.TypedDataAndHash(OrderTypedData(chainID, productID, order))
	if err != nil {
		return nil, fmt.Errorf("%w: 计算 EIP712 哈希失败: %v", ErrSigning, err)
	}
	return hash, nil
}

func cancellationTypedData(chainID int64, endpoint string, sender types.Sender, productIDs []types.ProductID, digests []string, nonce uint64) apitypes.TypedData {
	ids := make([]interface{}, 0, len(productIDs))
	for _, id := range productIDs {
		ids = append(ids, new(big.Int).SetUint64(uint64(id)))
	}
	msg := apitypes.TypedDataMessage{
		"sender":     sender.Hex(),
		"productIds": ids,
		"nonce":      new(big.Int).SetUint64(nonce),
	}
	primary := "CancellationProducts"
	typeDefs := apitypes.Types{
		"EIP712Domain":         eip712DomainType,
		"CancellationProducts": cancellationProductsType,
	}
	if digests != nil {
		ds := make([]interface{}, 0, len(digests))
		for _, d := range digests {
			ds = append(ds, d)
		}
		msg["digests"] = ds
		primary = "Cancellation"
		typeDefs = apitypes.Types{
			"EIP712Domain": eip712DomainType,
			"Cancellation": cancellationType,
		}
	}
	return apitypes.TypedData{
		Types:       typeDefs,
		PrimaryType: primary,
		Domain:      domain(chainID, endpoint),
		Message:     msg,
	}
}

func signHash(key *ecdsa.PrivateKey, hash []byte) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: private key not configured", ErrSigning)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return "", fmt.Errorf("%w: 签名失败: %v", ErrSigning, err)
	}
	// crypto.Sign 返回 r(32)+s(32)+v(1)，v 为 0/1，链上验证需要 27/28
	sig[64] += 27
	return "0x" + common.Bytes2Hex(sig), nil
}

// RecoverAddress 从签名恢复签名者地址
func RecoverAddress(hash []byte, signature string) (common.Address, error) {
	sig := common.FromHex(signature)
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature length %d", ErrSigning, len(sig))
	}
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
