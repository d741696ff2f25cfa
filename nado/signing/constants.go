package signing

import "time"

const (
	// DomainName EIP712 域名
	DomainName = "Nado"
	// DomainVersion EIP712 域版本
	DomainVersion = "0.0.1"
	// DefaultChainID Ink 链 ID
	DefaultChainID int64 = 763373

	// DefaultSubaccount 默认子账户名
	DefaultSubaccount = "default"
	// SubaccountLabelSize sender 中子账户名占用的字节数
	SubaccountLabelSize = 12

	// DefaultRecvWindow nonce 中编码的接收时间窗口
	DefaultRecvWindow = 90 * time.Second
	// nonceCounterBits nonce 低位计数器位数
	nonceCounterBits = 20
)

var eip712DomainType = []typeField{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var orderType = []typeField{
	{Name: "sender", Type: "bytes32"},
	{Name: "priceX18", Type: "int128"},
	{Name: "amount", Type: "int128"},
	{Name: "expiration", Type: "uint64"},
	{Name: "nonce", Type: "uint64"},
	{Name: "appendix", Type: "uint128"},
}

var cancellationType = []typeField{
	{Name: "sender", Type: "bytes32"},
	{Name: "productIds", Type: "uint32[]"},
	{Name: "digests", Type: "bytes32[]"},
	{Name: "nonce", Type: "uint64"},
}

var cancellationProductsType = []typeField{
	{Name: "sender", Type: "bytes32"},
	{Name: "productIds", Type: "uint32[]"},
	{Name: "nonce", Type: "uint64"},
}
