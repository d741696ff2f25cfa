// Package keys 解析签名私钥：十六进制私钥、助记词派生或加密存储，可选 linked signer。
package keys

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"

	"github.com/betbot/goperp/nado/signing"
	"github.com/betbot/goperp/pkg/config"
	"github.com/betbot/goperp/pkg/secretstore"
)

// DefaultDerivationPath 以太坊第一个账户
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// ErrNoKey 没有配置任何私钥来源
var ErrNoKey = errors.New("keys: no private key, mnemonic or secret store configured")

// Source 私钥来源
type Source string

const (
	SourcePrivateKey  Source = "private_key"
	SourceMnemonic    Source = "mnemonic"
	SourceSecretStore Source = "secret_store"
	// SourceLinked 只有 linked signer 私钥，主地址来自配置
	SourceLinked Source = "linked_signer"
)

// Options 私钥来源，按 PrivateKey > Mnemonic > SecretStore 的顺序取第一个可用的
type Options struct {
	PrivateKey     string
	Mnemonic       string
	DerivationPath string
	// SecretStorePath 非空时从加密 badger 读取；SecretKeyName 为空时依次尝试私钥和助记词
	SecretStorePath string
	SecretStoreKey  string
	SecretKeyName   string

	// LinkedSignerKey 授权的代签私钥；设置后订单由它签名，sender 仍是主地址
	LinkedSignerKey string
	// Address 主地址；只配置 linked signer 时必填
	Address string

	ChainID         int64
	EndpointAddress string
}

// FromConfig 由配置生成选项
func FromConfig(cfg *config.Config) Options {
	return Options{
		PrivateKey:      cfg.Wallet.PrivateKey,
		Mnemonic:        cfg.Wallet.Mnemonic,
		DerivationPath:  cfg.Wallet.DerivationPath,
		SecretStorePath: cfg.Wallet.SecretStorePath,
		SecretStoreKey:  cfg.Wallet.SecretStoreKey,
		SecretKeyName:   cfg.Wallet.SecretKeyName,
		LinkedSignerKey: cfg.Wallet.LinkedSignerKey,
		Address:         cfg.Wallet.Address,
		ChainID:         cfg.Network.ChainID,
		EndpointAddress: cfg.Network.EndpointAddress,
	}
}

// Load 解析私钥并创建签名器
func Load(opts Options) (*signing.Signer, Source, error) {
	owner, src, err := ownerKey(opts)
	if err != nil && !(errors.Is(err, ErrNoKey) && opts.LinkedSignerKey != "") {
		return nil, "", err
	}

	sopts := signing.Options{ChainID: opts.ChainID, EndpointAddress: opts.EndpointAddress}
	if opts.LinkedSignerKey == "" {
		s, err := signing.NewSigner(owner, sopts)
		return s, src, err
	}

	linked, err := signing.PrivateKeyFromHex(opts.LinkedSignerKey)
	if err != nil {
		return nil, "", errors.Wrap(err, "linked signer key")
	}
	switch {
	case owner != nil:
		addr := crypto.PubkeyToAddress(owner.PublicKey)
		if opts.Address != "" && !strings.EqualFold(common.HexToAddress(opts.Address).Hex(), addr.Hex()) {
			return nil, "", errors.Errorf("keys: wallet address %s does not match owner key %s", opts.Address, addr.Hex())
		}
		sopts.Owner = addr.Hex()
	case opts.Address != "":
		sopts.Owner = opts.Address
		src = SourceLinked
	default:
		return nil, "", errors.New("keys: linked signer requires the owner address or key")
	}
	s, err := signing.NewSigner(linked, sopts)
	return s, src, err
}

func ownerKey(opts Options) (*ecdsa.PrivateKey, Source, error) {
	if strings.TrimSpace(opts.PrivateKey) != "" {
		k, err := signing.PrivateKeyFromHex(opts.PrivateKey)
		return k, SourcePrivateKey, err
	}
	if strings.TrimSpace(opts.Mnemonic) != "" {
		k, _, err := DeriveFromMnemonic(opts.Mnemonic, opts.DerivationPath)
		return k, SourceMnemonic, err
	}
	if strings.TrimSpace(opts.SecretStorePath) != "" {
		k, err := fromSecretStore(opts)
		return k, SourceSecretStore, err
	}
	return nil, "", ErrNoKey
}

// DeriveFromMnemonic 按 BIP-44 路径派生私钥，path 为空时使用 DefaultDerivationPath
func DeriveFromMnemonic(mnemonic, derivationPath string) (*ecdsa.PrivateKey, common.Address, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	derivationPath = strings.TrimSpace(derivationPath)
	if mnemonic == "" {
		return nil, common.Address{}, errors.New("mnemonic is required")
	}
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, common.Address{}, errors.Wrap(err, "invalid mnemonic")
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, common.Address{}, errors.Wrap(err, "invalid derivation_path")
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, common.Address{}, errors.Wrap(err, "derive failed")
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, common.Address{}, errors.Wrap(err, "private key failed")
	}
	return key, acct.Address, nil
}

func fromSecretStore(opts Options) (*ecdsa.PrivateKey, error) {
	encKey, err := secretstore.ParseKey(opts.SecretStoreKey)
	if err != nil {
		return nil, errors.Wrap(err, "secret store key")
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          opts.SecretStorePath,
		EncryptionKey: encKey,
	})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	names := []string{secretstore.PrivateKeyName, secretstore.MnemonicName}
	if opts.SecretKeyName != "" {
		names = []string{opts.SecretKeyName}
	}
	name, raw, err := store.First(names...)
	if err != nil {
		return nil, errors.Wrapf(err, "keys: secret store %s", opts.SecretStorePath)
	}
	// 自定义键名下也可以放助记词
	if name == secretstore.MnemonicName || strings.Count(strings.TrimSpace(raw), " ") >= 11 {
		k, _, err := DeriveFromMnemonic(raw, opts.DerivationPath)
		return k, err
	}
	return signing.PrivateKeyFromHex(raw)
}
