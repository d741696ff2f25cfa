package signing

import (
	"fmt"
	"unicode/utf8"

	"github.com/betbot/goperp/nado/types"
	"github.com/ethereum/go-ethereum/common"
)

// AddressToSender 把 20 字节地址和子账户名打包为 32 字节 sender。
// 子账户名按 UTF-8 编码，不足 12 字节补 \x00，超长则在字符边界截断。
func AddressToSender(address common.Address, subaccount string) types.Sender {
	var s types.Sender
	copy(s[:20], address.Bytes())
	copy(s[20:], truncateLabel(subaccount))
	return s
}

// truncateLabel 截断到 12 字节且不切开多字节字符
func truncateLabel(label string) []byte {
	b := []byte(label)
	if len(b) <= SubaccountLabelSize {
		return b
	}
	b = b[:SubaccountLabelSize]
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return b
}

// VerifyingContract 订单签名域的 verifyingContract：产品 ID 左补零为地址格式
func VerifyingContract(productID types.ProductID) string {
	return fmt.Sprintf("0x%040x", uint32(productID))
}
