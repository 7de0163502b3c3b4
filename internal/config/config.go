package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	Database    Database
	Redis       Redis `envPrefix:"REDIS_"`
	Cart        Cart  `envPrefix:"CART_"`
	Poll        Poll  `envPrefix:"POLL_"`

	Catalog     Catalog     `envPrefix:"CATALOG_"`
	Stripe      Stripe      `envPrefix:"STRIPE_"`
	BitPay      BitPay      `envPrefix:"BITPAY_"`
	NowPayments NowPayments `envPrefix:"NOWPAYMENTS_"`
	CoinGate    CoinGate    `envPrefix:"COINGATE_"`
	BrainTree   Braintree   `envPrefix:"BRAINTREE_"`
	Solana      Solana      `envPrefix:"SOLANA_"`
	Jupiter     Jupiter     `envPrefix:"JUPITER_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

func (e Environment) IsProduction() bool {
	return e.Name == "production"
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite | mysql
	URL    string `env:"DATABASE_URL" envDefault:"qtc.db"`
}

type Redis struct {
	URL      string `env:"URL"`
	Address  string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Enabled reports whether any redis endpoint is configured.
func (r Redis) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type Cart struct {
	Backend string        `env:"BACKEND" envDefault:"memory"` // memory | redis | sql
	TTL     time.Duration `env:"TTL" envDefault:"168h"`
}

type Poll struct {
	InitialDelay  time.Duration `env:"INITIAL_DELAY" envDefault:"3s"`
	Interval      time.Duration `env:"INTERVAL" envDefault:"5s"`
	ErrorInterval time.Duration `env:"ERROR_INTERVAL" envDefault:"10s"`
	Ceiling       time.Duration `env:"CEILING" envDefault:"30m"`
}

type Catalog struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"https://fakestoreapi.com"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"10m"`
}

type Stripe struct {
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type BitPay struct {
	APIToken          string `env:"API_TOKEN"`
	Sandbox           bool   `env:"SANDBOX" envDefault:"true"`
	NotificationEmail string `env:"NOTIFICATION_EMAIL"`
	// BaseApiURL overrides the sandbox/production host.
	BaseApiURL string `env:"BASE_API_URL"`
}

type NowPayments struct {
	APIKey     string `env:"API_KEY"`
	IPNSecret  string `env:"IPN_SECRET"`
	Sandbox    bool   `env:"SANDBOX" envDefault:"false"`
	BaseApiURL string `env:"BASE_API_URL"`
}

type CoinGate struct {
	APIToken     string `env:"API_TOKEN"`
	SandboxToken string `env:"SANDBOX_TOKEN"`
	BaseApiURL   string `env:"BASE_API_URL"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

type Solana struct {
	RPCURL string `env:"RPC_URL" envDefault:"https://api.devnet.solana.com"`
	// Cluster is used for explorer links.
	Cluster           string `env:"CLUSTER" envDefault:"devnet"`
	TokenMint         string `env:"TOKEN_MINT" envDefault:"97DBMXWBGAmF8fiWqcmNPuuqCu1MBeWSnpcdsz2vRQni"`
	TokenDecimals     uint8  `env:"TOKEN_DECIMALS" envDefault:"6"`
	MerchantWallet    string `env:"MERCHANT_WALLET" envDefault:"QTCawiVYkAnxmkVHzXZNhD8bRdBD6QxENwvkv9oCxTF"`
	MerchantTokenAcct string `env:"MERCHANT_TOKEN_ACCOUNT" envDefault:"Afzcj1swadnQZrcqTVX9bTNcLiyP7Tdk7K3MoCpvSyCc"`
	ProgramID         string `env:"PROGRAM_ID"`
	// SignerKey is a base58 private key used for server-signed transfers.
	SignerKey string `env:"SIGNER_KEY"`
	// SignerKeyFile is a solana-keygen JSON file, used when SignerKey is empty.
	SignerKeyFile string `env:"SIGNER_KEY_FILE"`
}

type Jupiter struct {
	BaseApiURL string `env:"BASE_API_URL" envDefault:"https://quote-api.jup.ag/v6"`
}
