package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging struct {
		Level      string `yaml:"level"`
		Pretty     bool   `yaml:"pretty"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
	Server struct {
		Addr                string   `yaml:"addr"`
		Pprof               bool     `yaml:"pprof"`
		ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
		IdleTimeoutSeconds  int      `yaml:"idle_timeout_seconds"`
		AdminAllowCIDRs     []string `yaml:"admin_allow_cidrs"`
	} `yaml:"server"`
	Scan struct {
		IntervalSeconds int     `yaml:"interval_seconds"`
		MinCycleLength  int     `yaml:"min_cycle_length"`
		MaxCycleLength  int     `yaml:"max_cycle_length"`
		DiagonalEpsilon float64 `yaml:"diagonal_epsilon"`
		MinProfitBps    float64 `yaml:"min_profit_bps"`
		Investment      float64 `yaml:"investment"`
	} `yaml:"scan"`
	Groups  []Group `yaml:"groups"`
	Sources struct {
		Subgraph struct {
			URL               string  `yaml:"url"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
		} `yaml:"subgraph"`
		Jupiter struct {
			BaseURL           string            `yaml:"base_url"`
			VsToken           string            `yaml:"vs_token"`
			TokenIDs          map[string]string `yaml:"token_ids"`
			RequestsPerSecond float64           `yaml:"requests_per_second"`
		} `yaml:"jupiter"`
		Binance struct {
			BaseURL           string            `yaml:"base_url"`
			Quote             string            `yaml:"quote"`
			Markets           map[string]string `yaml:"markets"`
			RequestsPerSecond float64           `yaml:"requests_per_second"`
		} `yaml:"binance"`
		Static struct {
			Prices map[string]float64 `yaml:"prices"`
		} `yaml:"static"`
	} `yaml:"sources"`
	Sinks struct {
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Channel  string `yaml:"channel"`
			TLS      bool   `yaml:"tls"`
		} `yaml:"redis"`
		Discord struct {
			WebhookURL string `yaml:"webhook_url"`
		} `yaml:"discord"`
	} `yaml:"sinks"`
}

// Group is one independently scanned set of assets.
type Group struct {
	Name    string   `yaml:"name"`
	Enabled bool     `yaml:"enabled"`
	Source  string   `yaml:"source"` // subgraph, jupiter, binance, static
	Assets  []string `yaml:"assets"`
	// Pairwise asks a source that can quote every ordered pair to do so.
	Pairwise        bool `yaml:"pairwise"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

const (
	SourceSubgraph = "subgraph"
	SourceJupiter  = "jupiter"
	SourceBinance  = "binance"
	SourceStatic   = "static"
)

func defaultConfig() Config {
	var c Config
	c.Logging.Level = "info"
	c.Logging.Pretty = false
	c.Logging.MaxSizeMB = 100
	c.Logging.MaxAgeDays = 7
	c.Server.Addr = ":9090"
	c.Server.Pprof = false
	c.Server.ReadTimeoutSeconds = 5
	c.Server.WriteTimeoutSeconds = 10
	c.Server.IdleTimeoutSeconds = 60
	c.Server.AdminAllowCIDRs = []string{"127.0.0.0/8", "::1/128"}
	c.Scan.IntervalSeconds = 10
	c.Scan.MinCycleLength = 3
	c.Scan.MaxCycleLength = 3
	c.Scan.DiagonalEpsilon = 0
	c.Scan.MinProfitBps = 0
	c.Scan.Investment = 200
	c.Groups = []Group{
		{Name: "uniswap", Enabled: true, Source: SourceSubgraph, Assets: []string{"WETH", "UNI", "ARB"}},
		{Name: "jupiter", Enabled: false, Source: SourceJupiter, Assets: []string{"SOL", "USDC", "RAY"}, Pairwise: true},
		{Name: "binance", Enabled: false, Source: SourceBinance, Assets: []string{"BTC", "ETH", "BNB"}, Pairwise: true},
	}
	c.Sources.Subgraph.URL = "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3"
	c.Sources.Subgraph.RequestsPerSecond = 1
	c.Sources.Jupiter.BaseURL = "https://price.jup.ag/v4"
	c.Sources.Jupiter.VsToken = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	c.Sources.Jupiter.TokenIDs = map[string]string{
		"SOL":  "So11111111111111111111111111111111111111112",
		"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"RAY":  "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
	}
	c.Sources.Jupiter.RequestsPerSecond = 5
	c.Sources.Binance.BaseURL = "https://api.binance.com"
	c.Sources.Binance.Quote = "USDT"
	c.Sources.Binance.Markets = map[string]string{
		"BTC/USDT": "BTCUSDT",
		"ETH/USDT": "ETHUSDT",
		"BNB/USDT": "BNBUSDT",
		"ETH/BTC":  "ETHBTC",
		"BNB/BTC":  "BNBBTC",
		"BNB/ETH":  "BNBETH",
	}
	c.Sources.Binance.RequestsPerSecond = 10
	c.Sinks.Redis.Enabled = false
	c.Sinks.Redis.Addr = "localhost:6379"
	c.Sinks.Redis.Channel = "arbscan:opportunities"
	return c
}

// Load layers defaults, the YAML file at ARB_CONFIG and ARB_* env vars. A
// file that cannot be read or parsed is reported; the returned config then
// carries defaults and env overrides only.
func Load() (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	c := defaultConfig()
	var fileErr error
	if path := os.Getenv("ARB_CONFIG"); path != "" {
		if b, err := os.ReadFile(path); err != nil {
			fileErr = fmt.Errorf("read config %s: %w", path, err)
		} else {
			parsed := defaultConfig()
			if err := yaml.Unmarshal(b, &parsed); err != nil {
				fileErr = fmt.Errorf("parse config %s: %w", path, err)
			} else {
				c = parsed
			}
		}
	}
	if v := os.Getenv("ARB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ARB_LOG_PRETTY"); v == "1" || v == "true" {
		c.Logging.Pretty = true
	}
	if v := os.Getenv("ARB_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("ARB_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ARB_PPROF"); v == "1" || v == "true" {
		c.Server.Pprof = true
	}
	if v := os.Getenv("ARB_ADMIN_ALLOW_CIDRS"); v != "" {
		c.Server.AdminAllowCIDRs = splitCSV(v)
	}
	if v := os.Getenv("ARB_SCAN_INTERVAL_SECONDS"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n > 0 {
			c.Scan.IntervalSeconds = n
		}
	}
	if v := os.Getenv("ARB_MAX_CYCLE_LENGTH"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n != 0 {
			c.Scan.MaxCycleLength = n
		}
	}
	if v := os.Getenv("ARB_MIN_PROFIT_BPS"); v != "" {
		var f float64
		_, _ = fmt.Sscan(v, &f)
		if f >= 0 {
			c.Scan.MinProfitBps = f
		}
	}
	if v := os.Getenv("ARB_SUBGRAPH_URL"); v != "" {
		c.Sources.Subgraph.URL = v
	}
	if v := os.Getenv("ARB_JUPITER_BASE_URL"); v != "" {
		c.Sources.Jupiter.BaseURL = v
	}
	if v := os.Getenv("ARB_BINANCE_BASE_URL"); v != "" {
		c.Sources.Binance.BaseURL = v
	}
	// Secrets only from env
	if v := os.Getenv("ARB_REDIS_ADDR"); v != "" {
		c.Sinks.Redis.Addr = v
		c.Sinks.Redis.Enabled = true
	}
	if v := os.Getenv("ARB_REDIS_PASSWORD"); v != "" {
		c.Sinks.Redis.Password = v
	}
	if v := os.Getenv("ARB_REDIS_TLS"); v == "1" || v == "true" {
		c.Sinks.Redis.TLS = true
	}
	if v := os.Getenv("ARB_DISCORD_WEBHOOK_URL"); v != "" {
		c.Sinks.Discord.WebhookURL = v
	}
	return c, fileErr
}

// Validate reports settings that would make every tick fail.
func (c Config) Validate() error {
	if c.Scan.IntervalSeconds <= 0 {
		return fmt.Errorf("scan.interval_seconds must be positive, got %d", c.Scan.IntervalSeconds)
	}
	if c.Scan.DiagonalEpsilon < 0 {
		return fmt.Errorf("scan.diagonal_epsilon must not be negative, got %v", c.Scan.DiagonalEpsilon)
	}
	// max_cycle_length: -1 means every asset, 0 means 3.
	maxLen, minLen := c.Scan.MaxCycleLength, c.Scan.MinCycleLength
	if maxLen == 0 {
		maxLen = 3
	}
	if minLen < 3 {
		minLen = 3
	}
	if maxLen != -1 && maxLen < 3 {
		return fmt.Errorf("scan.max_cycle_length must be -1, 0 or at least 3, got %d", c.Scan.MaxCycleLength)
	}
	if maxLen != -1 && minLen > maxLen {
		return fmt.Errorf("scan.min_cycle_length %d exceeds scan.max_cycle_length %d", c.Scan.MinCycleLength, maxLen)
	}
	seen := make(map[string]struct{}, len(c.Groups))
	enabled := 0
	for _, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("group with empty name")
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("duplicate group %q", g.Name)
		}
		seen[g.Name] = struct{}{}
		if !g.Enabled {
			continue
		}
		enabled++
		switch g.Source {
		case SourceSubgraph, SourceStatic:
		case SourceJupiter:
			for _, a := range g.Assets {
				if _, ok := c.Sources.Jupiter.TokenIDs[a]; !ok {
					return fmt.Errorf("group %q: no jupiter token id for %s", g.Name, a)
				}
			}
		case SourceBinance:
			if len(c.Sources.Binance.Markets) == 0 {
				return fmt.Errorf("group %q: no binance markets configured", g.Name)
			}
		default:
			return fmt.Errorf("group %q: unknown source %q", g.Name, g.Source)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("no enabled groups")
	}
	return nil
}

// Interval returns the group's tick interval in seconds, falling back to scan.interval_seconds.
func (c Config) Interval(g Group) int {
	if g.IntervalSeconds > 0 {
		return g.IntervalSeconds
	}
	return c.Scan.IntervalSeconds
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
