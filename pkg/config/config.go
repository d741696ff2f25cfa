package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/betbot/goperp/pkg/logger"
)

// 默认配置文件路径
var configFilePath = "config.yaml"

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// InstrumentConfig 产品配置
type InstrumentConfig struct {
	ProductID      uint32 `yaml:"product_id" json:"product_id"`
	Symbol         string `yaml:"symbol" json:"symbol"`
	SizeIncrement  string `yaml:"size_increment" json:"size_increment"`
	PriceIncrement string `yaml:"price_increment" json:"price_increment"`
	MinSize        string `yaml:"min_size" json:"min_size"`
	FallbackTicker string `yaml:"fallback_ticker" json:"fallback_ticker"`
}

// WalletConfig 钱包配置（私钥只从环境变量或加密存储读取，不写入 YAML）
type WalletConfig struct {
	PrivateKey      string `yaml:"-" json:"-"`
	LinkedSignerKey string `yaml:"-" json:"-"`
	Mnemonic        string `yaml:"-" json:"-"`
	DerivationPath  string `yaml:"derivation_path" json:"derivation_path"`
	Address         string `yaml:"address" json:"address"`
	Subaccount      string `yaml:"subaccount" json:"subaccount"`
	SecretStorePath string `yaml:"secret_store_path" json:"secret_store_path"`
	SecretStoreKey  string `yaml:"-" json:"-"`
	SecretKeyName   string `yaml:"secret_key_name" json:"secret_key_name"`
}

// NetworkConfig 交易所地址
type NetworkConfig struct {
	Name            string `yaml:"name" json:"name"` // mainnet / testnet
	GatewayURL      string `yaml:"gateway_url" json:"gateway_url"`
	TriggerURL      string `yaml:"trigger_url" json:"trigger_url"`
	SubscribeURL    string `yaml:"subscribe_url" json:"subscribe_url"`
	ChainID         int64  `yaml:"chain_id" json:"chain_id"`
	EndpointAddress string `yaml:"endpoint_address" json:"endpoint_address"`
}

// HTTPConfig 网关请求参数
type HTTPConfig struct {
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	RetryCount       int           `yaml:"retry_count" json:"retry_count"`
	RetryWait        time.Duration `yaml:"retry_wait" json:"retry_wait"`
	RetryMaxWait     time.Duration `yaml:"retry_max_wait" json:"retry_max_wait"`
	QueryPerSecond   int           `yaml:"query_per_second" json:"query_per_second"`
	ExecutePerSecond int           `yaml:"execute_per_second" json:"execute_per_second"`
	TriggerPerSecond int           `yaml:"trigger_per_second" json:"trigger_per_second"`
}

// TradingConfig 交易参数
type TradingConfig struct {
	Leverage string `yaml:"leverage" json:"leverage"`
	// OrderTTL 普通订单有效期
	OrderTTL time.Duration `yaml:"order_ttl" json:"order_ttl"`
	// TriggerTTL 条件单有效期
	TriggerTTL time.Duration `yaml:"trigger_ttl" json:"trigger_ttl"`
	// Slippage 市价单相对标记价的滑点（小数）
	Slippage string `yaml:"slippage" json:"slippage"`
	// StopLossSlippage 止损执行价相对触发价的不利滑点（小数）
	StopLossSlippage string `yaml:"stop_loss_slippage" json:"stop_loss_slippage"`
	// TakeProfitPostOnly 止盈单使用 post-only
	TakeProfitPostOnly bool `yaml:"take_profit_post_only" json:"take_profit_post_only"`
	// AutoTakeProfitPct 开仓成功后自动设置的止盈百分比（0 关闭）
	AutoTakeProfitPct string `yaml:"auto_take_profit_pct" json:"auto_take_profit_pct"`
	// MakerFee 手续费率，用于 TP/SL 场景计算
	MakerFee string `yaml:"maker_fee" json:"maker_fee"`
}

// ReconcileConfig 对账参数
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	// SizeTolerance 本地与远端仓位数量允许的偏差
	SizeTolerance string `yaml:"size_tolerance" json:"size_tolerance"`
	// StreamEnabled 订阅成交/仓位推送，触发即时对账
	StreamEnabled bool `yaml:"stream_enabled" json:"stream_enabled"`
}

// StorageConfig 存储路径
type StorageConfig struct {
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	BadgerDir   string `yaml:"badger_dir" json:"badger_dir"`
	HistoryPath string `yaml:"history_path" json:"history_path"`
}

// APIConfig HTTP 服务
type APIConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	Token  string `yaml:"-" json:"-"`
	// MetricsListen expvar/pprof 监听地址，空表示关闭
	MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`
}

// PriceFeedConfig 行情备用源
type PriceFeedConfig struct {
	BinanceFallback bool          `yaml:"binance_fallback" json:"binance_fallback"`
	BinanceBaseURL  string        `yaml:"binance_base_url" json:"binance_base_url"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
}

// RiskConfig 熔断参数
type RiskConfig struct {
	MaxConsecutiveErrors int64  `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
	DailyLossLimit       string `yaml:"daily_loss_limit" json:"daily_loss_limit"`
}

// Config 应用配置
type Config struct {
	Network     NetworkConfig      `yaml:"network" json:"network"`
	Wallet      WalletConfig       `yaml:"wallet" json:"wallet"`
	HTTP        HTTPConfig         `yaml:"http" json:"http"`
	Trading     TradingConfig      `yaml:"trading" json:"trading"`
	Reconcile   ReconcileConfig    `yaml:"reconcile" json:"reconcile"`
	Storage     StorageConfig      `yaml:"storage" json:"storage"`
	API         APIConfig          `yaml:"api" json:"api"`
	PriceFeed   PriceFeedConfig    `yaml:"price_feed" json:"price_feed"`
	Risk        RiskConfig         `yaml:"risk" json:"risk"`
	Log         logger.Config      `yaml:"log" json:"log"`
	Instruments []InstrumentConfig `yaml:"instruments" json:"instruments"`
}

// DefaultInstruments 默认产品列表
func DefaultInstruments() []InstrumentConfig {
	return []InstrumentConfig{
		{ProductID: 2, Symbol: "BTC-PERP", SizeIncrement: "0.001", PriceIncrement: "0.001", FallbackTicker: "BTCUSDT"},
		{ProductID: 4, Symbol: "ETH-PERP", SizeIncrement: "0.01", PriceIncrement: "0.01", FallbackTicker: "ETHUSDT"},
		{ProductID: 8, Symbol: "SOL-PERP", SizeIncrement: "0.1", PriceIncrement: "0.01", FallbackTicker: "SOLUSDT"},
		{ProductID: 9, Symbol: "SOLUSDT0", SizeIncrement: "0.1", PriceIncrement: "0.01", FallbackTicker: "SOLUSDT"},
		{ProductID: 10, Symbol: "INK-PERP", SizeIncrement: "1", PriceIncrement: "0.0001"},
	}
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Network: NetworkConfig{Name: "testnet", ChainID: 763373},
		Wallet:  WalletConfig{Subaccount: "default", DerivationPath: "m/44'/60'/0'/0/0"},
		HTTP: HTTPConfig{
			Timeout:          10 * time.Second,
			RetryCount:       3,
			RetryWait:        200 * time.Millisecond,
			RetryMaxWait:     2 * time.Second,
			QueryPerSecond:   20,
			ExecutePerSecond: 10,
			TriggerPerSecond: 5,
		},
		Trading: TradingConfig{
			Leverage:           "1",
			OrderTTL:           60 * time.Second,
			TriggerTTL:         30 * 24 * time.Hour,
			Slippage:           "0.01",
			StopLossSlippage:   "0.005",
			TakeProfitPostOnly: true,
			MakerFee:           "0.0001",
		},
		Reconcile: ReconcileConfig{Interval: 15 * time.Second, SizeTolerance: "0", StreamEnabled: true},
		Storage:   StorageConfig{DataDir: "data"},
		API:       APIConfig{Listen: "127.0.0.1:8089"},
		PriceFeed: PriceFeedConfig{BinanceFallback: true, Timeout: 5 * time.Second},
		Risk:      RiskConfig{MaxConsecutiveErrors: 5, DailyLossLimit: "0"},
		Log:       logger.Config{Level: "info", OutputFile: "logs/perpbot.log", MaxSize: 100, MaxBackups: 3, MaxAge: 7, Compress: true},
	}
}

// Load 从默认路径加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 加载配置：默认值 <- YAML 文件（可选） <- .env <- 环境变量
func LoadFromFile(filePath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := Default()
	if filePath != "" {
		b, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件失败 %s: %w", filePath, err)
			}
		case os.IsNotExist(err):
			logger.Warnf("配置文件不存在，使用默认配置: %s", filePath)
		default:
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", filePath, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Network.Name = getEnv("NADO_NETWORK", c.Network.Name)
	c.Network.GatewayURL = getEnv("NADO_GATEWAY_URL", c.Network.GatewayURL)
	c.Network.TriggerURL = getEnv("NADO_TRIGGER_URL", c.Network.TriggerURL)
	c.Network.SubscribeURL = getEnv("NADO_SUBSCRIBE_URL", c.Network.SubscribeURL)
	c.Network.EndpointAddress = getEnv("NADO_ENDPOINT_ADDRESS", c.Network.EndpointAddress)
	c.Network.ChainID = int64(parseIntEnv("NADO_CHAIN_ID", int(c.Network.ChainID)))

	c.Wallet.PrivateKey = getEnv("NADO_PRIVATE_KEY", getEnv("BOT_PRIVATE_KEY", c.Wallet.PrivateKey))
	c.Wallet.LinkedSignerKey = getEnv("NADO_LINKED_SIGNER_KEY", c.Wallet.LinkedSignerKey)
	c.Wallet.Mnemonic = getEnv("NADO_MNEMONIC", c.Wallet.Mnemonic)
	c.Wallet.DerivationPath = getEnv("NADO_DERIVATION_PATH", c.Wallet.DerivationPath)
	c.Wallet.Address = getEnv("NADO_WALLET_ADDRESS", c.Wallet.Address)
	c.Wallet.Subaccount = getEnv("NADO_SUBACCOUNT_ID", c.Wallet.Subaccount)
	c.Wallet.SecretStorePath = getEnv("NADO_SECRET_STORE_PATH", c.Wallet.SecretStorePath)
	c.Wallet.SecretStoreKey = getEnv("NADO_SECRET_STORE_KEY", c.Wallet.SecretStoreKey)

	c.HTTP.Timeout = parseDurationEnv("NADO_HTTP_TIMEOUT", c.HTTP.Timeout)
	c.HTTP.RetryCount = parseIntEnv("NADO_HTTP_RETRIES", c.HTTP.RetryCount)

	c.Trading.Leverage = getEnv("TRADING_LEVERAGE", c.Trading.Leverage)
	c.Trading.AutoTakeProfitPct = getEnv("TRADING_AUTO_TP_PCT", c.Trading.AutoTakeProfitPct)

	c.Reconcile.Interval = parseDurationEnv("RECONCILE_INTERVAL", c.Reconcile.Interval)
	c.Reconcile.StreamEnabled = parseBoolEnv("RECONCILE_STREAM", c.Reconcile.StreamEnabled)

	c.Storage.DataDir = getEnv("DATA_DIR", c.Storage.DataDir)
	c.API.Listen = getEnv("API_LISTEN", c.API.Listen)
	c.API.Token = getEnv("API_TOKEN", c.API.Token)
	c.PriceFeed.BinanceFallback = parseBoolEnv("PRICE_BINANCE_FALLBACK", c.PriceFeed.BinanceFallback)
	c.API.MetricsListen = getEnv("METRICS_LISTEN", c.API.MetricsListen)
	c.Risk.DailyLossLimit = getEnv("RISK_DAILY_LOSS_LIMIT", c.Risk.DailyLossLimit)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func (c *Config) applyDefaults() {
	if c.Storage.BadgerDir == "" {
		c.Storage.BadgerDir = filepath.Join(c.Storage.DataDir, "ledger")
	}
	if c.Storage.HistoryPath == "" {
		c.Storage.HistoryPath = filepath.Join(c.Storage.DataDir, "history.db")
	}
	if c.Wallet.Subaccount == "" {
		c.Wallet.Subaccount = "default"
	}
	if len(c.Instruments) == 0 {
		c.Instruments = DefaultInstruments()
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Network.Name {
	case "mainnet", "testnet":
	default:
		return fmt.Errorf("network 必须为 mainnet 或 testnet，当前: %q", c.Network.Name)
	}
	if c.Network.ChainID <= 0 {
		return fmt.Errorf("chain_id 必须大于 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout 必须大于 0")
	}
	if c.HTTP.RetryCount < 0 {
		return fmt.Errorf("http.retry_count 不能为负数")
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile.interval 必须大于 0")
	}
	lev, err := decimal.NewFromString(c.Trading.Leverage)
	if err != nil || lev.Sign() <= 0 {
		return fmt.Errorf("trading.leverage 无效: %q", c.Trading.Leverage)
	}
	for name, v := range map[string]string{
		"trading.slippage":           c.Trading.Slippage,
		"trading.stop_loss_slippage": c.Trading.StopLossSlippage,
		"trading.maker_fee":          c.Trading.MakerFee,
	} {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s 必须在 [0,1) 区间: %q", name, v)
		}
	}
	if c.Trading.AutoTakeProfitPct != "" {
		if d, err := decimal.NewFromString(c.Trading.AutoTakeProfitPct); err != nil || d.IsNegative() {
			return fmt.Errorf("trading.auto_take_profit_pct 无效: %q", c.Trading.AutoTakeProfitPct)
		}
	}
	if c.Risk.DailyLossLimit != "" {
		if d, err := decimal.NewFromString(c.Risk.DailyLossLimit); err != nil || d.IsNegative() {
			return fmt.Errorf("risk.daily_loss_limit 无效: %q", c.Risk.DailyLossLimit)
		}
	}
	if d, err := decimal.NewFromString(c.Reconcile.SizeTolerance); err != nil || d.IsNegative() {
		return fmt.Errorf("reconcile.size_tolerance 无效: %q", c.Reconcile.SizeTolerance)
	}
	seen := make(map[uint32]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if seen[inst.ProductID] {
			return fmt.Errorf("重复的 product_id: %d", inst.ProductID)
		}
		seen[inst.ProductID] = true
		if strings.TrimSpace(inst.Symbol) == "" {
			return fmt.Errorf("product %d 缺少 symbol", inst.ProductID)
		}
		for _, v := range []string{inst.SizeIncrement, inst.PriceIncrement} {
			d, err := decimal.NewFromString(v)
			if err != nil || d.Sign() <= 0 {
				return fmt.Errorf("product %d 步长无效: %q", inst.ProductID, v)
			}
		}
	}
	return nil
}

// HasSigningKey 是否配置了任一签名来源
func (c *Config) HasSigningKey() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.LinkedSignerKey != "" ||
		c.Wallet.Mnemonic != "" || c.Wallet.SecretStorePath != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}
