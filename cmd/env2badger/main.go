// env2badger 把 .env 中的私钥、助记词等敏感项导入加密 badger，之后可以删除明文 .env。
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/goperp/pkg/secretstore"
)

// 导入时改名；未配置 wallet.secret_key_name 时 perpbot 按这两个键名查找
var renames = map[string]string{
	"NADO_PRIVATE_KEY": secretstore.PrivateKeyName,
	"BOT_PRIVATE_KEY":  secretstore.PrivateKeyName,
	"NADO_MNEMONIC":    secretstore.MnemonicName,
}

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("NADO_SECRET_STORE_PATH", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("NADO_SECRET_STORE_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		all       = flag.Bool("all", false, "import every variable instead of only keys and mnemonics")
		prefix    = flag.String("prefix", "env/", "key prefix for variables imported with -all")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set NADO_SECRET_STORE_KEY or pass -secret-key"))
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{Path: *dbPath, EncryptionKey: keyBytes})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	names := make([]string, 0, len(kv))
	for k := range kv {
		names = append(names, k)
	}
	sort.Strings(names)

	written := 0
	for _, k := range names {
		v := strings.TrimSpace(kv[k])
		if v == "" {
			continue
		}
		dst, ok := renames[k]
		switch {
		case ok:
		case *all:
			dst = *prefix + k
		default:
			continue
		}
		if err := ss.SetString(dst, v); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "  %s -> %s\n", k, dst)
		written++
	}

	fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s\n", written, *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
