package signing

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/betbot/goperp/nado/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer 订单签名器
//
// owner 决定 sender；签名私钥可以是 owner 本身，也可以是已授权的 linked signer。
type Signer struct {
	key      *ecdsa.PrivateKey
	owner    common.Address
	chainID  int64
	endpoint string
}

// Options 签名器参数
type Options struct {
	// ChainID 为 0 时使用 DefaultChainID
	ChainID int64
	// EndpointAddress 撤单签名使用的 verifyingContract
	EndpointAddress string
	// Owner 账户主地址；为空时使用签名私钥对应的地址
	Owner string
}

// NewSigner 创建签名器，key 为空时返回 ErrSigning
func NewSigner(key *ecdsa.PrivateKey, opts Options) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: private key not configured", ErrSigning)
	}
	chainID := opts.ChainID
	if chainID == 0 {
		chainID = DefaultChainID
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)
	if opts.Owner != "" {
		if !common.IsHexAddress(opts.Owner) {
			return nil, fmt.Errorf("%w: invalid owner address %q", ErrSigning, opts.Owner)
		}
		owner = common.HexToAddress(opts.Owner)
	}
	return &Signer{key: key, owner: owner, chainID: chainID, endpoint: opts.EndpointAddress}, nil
}

// PrivateKeyFromHex 从十六进制字符串解析私钥（可带 0x 前缀）
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("%w: private key is empty", ErrSigning)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", ErrSigning, err)
	}
	return key, nil
}

// Owner 账户主地址
func (s *Signer) Owner() common.Address {
	return s.owner
}

// SignerAddress 实际签名私钥对应的地址
func (s *Signer) SignerAddress() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// IsLinked 是否使用 linked signer 签名
func (s *Signer) IsLinked() bool {
	return s.SignerAddress() != s.owner
}

// ChainID 链 ID
func (s *Signer) ChainID() int64 {
	return s.chainID
}

// Sender 指定子账户的 sender
func (s *Signer) Sender(subaccount string) types.Sender {
	return AddressToSender(s.owner, subaccount)
}

// SignOrder 对订单签名，返回带摘要的签名订单
func (s *Signer) SignOrder(productID types.ProductID, order types.OrderIntent) (types.SignedOrder, error) {
	hash, err := OrderDigest(s.chainID, productID, order)
	if err != nil {
		return types.SignedOrder{}, err
	}
	sig, err := signHash(s.key, hash)
	if err != nil {
		return types.SignedOrder{}, err
	}
	return types.SignedOrder{
		ProductID: productID,
		Order:     order,
		Signature: sig,
		Digest:    "0x" + common.Bytes2Hex(hash),
	}, nil
}

// SignCancelOrders 对按摘要撤单的请求签名
func (s *Signer) SignCancelOrders(sender types.Sender, productIDs []types.ProductID, digests []string, nonce uint64) (string, error) {
	if len(productIDs) != len(digests) {
		return "", fmt.Errorf("%w: %d product ids for %d digests", ErrSigning, len(productIDs), len(digests))
	}
	if digests == nil {
		digests = []string{}
	}
	return s.signTyped(cancellationTypedData(s.chainID, s.endpoint, sender, productIDs, digests, nonce))
}

// SignCancelProductOrders 对按产品撤销全部挂单的请求签名
func (s *Signer) SignCancelProductOrders(sender types.Sender, productIDs []types.ProductID, nonce uint64) (string, error) {
	return s.signTyped(cancellationTypedData(s.chainID, s.endpoint, sender, productIDs, nil, nonce))
}

func (s *Signer) signTyped(td apitypes.TypedData) (string, error) {
	if s.endpoint == "" {
		return "", fmt.Errorf("%w: endpoint address not configured", ErrSigning)
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return "", fmt.Errorf("%w: 计算 EIP712 哈希失败: %v", ErrSigning, err)
	}
	return signHash(s.key, hash)
}
