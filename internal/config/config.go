package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
//
// Scoring weights, thresholds and band cut-offs are hand-tuned defaults that
// have not been validated against labelled data. They are exposed here so
// they can be overridden per deployment.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Embedder   ProviderConfig   `yaml:"embedder" mapstructure:"embedder"`
	NLI        NLIConfig        `yaml:"nli" mapstructure:"nli"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Weights    WeightsConfig    `yaml:"weights" mapstructure:"weights"`
	Aggregate  AggregateConfig  `yaml:"aggregate" mapstructure:"aggregate"`
	Bands      BandsConfig      `yaml:"bands" mapstructure:"bands"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Reputation ReputationConfig `yaml:"reputation" mapstructure:"reputation"`
	Language   LanguageConfig   `yaml:"language" mapstructure:"language"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// HTTPConfig configures page fetching.
type HTTPConfig struct {
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent       string   `yaml:"user_agent" mapstructure:"user_agent"`
	MobileUserAgent string   `yaml:"mobile_user_agent" mapstructure:"mobile_user_agent"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxAttempts     int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	InsecureTLS     bool     `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	MobileFirst     []string `yaml:"mobile_first_hosts" mapstructure:"mobile_first_hosts"`
	Shorteners      []string `yaml:"shorteners" mapstructure:"shorteners"`
	HTTPProxy       string   `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy      string   `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy         string   `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// CrawlConfig configures the offline seed crawl.
type CrawlConfig struct {
	SeedsFile         string  `yaml:"seeds_file" mapstructure:"seeds_file"`
	MaxDepth          int     `yaml:"max_depth" mapstructure:"max_depth"`
	MaxPagesPerDomain int     `yaml:"max_pages_per_domain" mapstructure:"max_pages_per_domain"`
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	SleepMillis       int     `yaml:"sleep_millis" mapstructure:"sleep_millis"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	RespectRobots     bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	MinTextLen        int     `yaml:"min_text_len" mapstructure:"min_text_len"`
}

// IndexConfig configures the embedding index.
type IndexConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"` // file or sqlite
	Path          string `yaml:"path" mapstructure:"path"`
	Grow          bool   `yaml:"grow" mapstructure:"grow"`
	ChunkWindow   int    `yaml:"chunk_window" mapstructure:"chunk_window"`
	ChunkStep     int    `yaml:"chunk_step" mapstructure:"chunk_step"`
	EmbedBatch    int    `yaml:"embed_batch" mapstructure:"embed_batch"`
	FallbackBatch int    `yaml:"fallback_batch" mapstructure:"fallback_batch"`
}

// ProviderConfig selects a model provider.
type ProviderConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"` // openai, ollama, tei, anthropic
	Model       string `yaml:"model" mapstructure:"model"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NLIConfig configures the entailment classifier.
type NLIConfig struct {
	ProviderConfig   `yaml:",inline" mapstructure:",squash"`
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxChars         int `yaml:"max_chars" mapstructure:"max_chars"`
	SummarySentences int `yaml:"summary_sentences" mapstructure:"summary_sentences"`
}

// CacheConfig configures the embedding and page caches.
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Backend       string `yaml:"backend" mapstructure:"backend"` // memory, layered, redis
	TTLHours      int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisPassword string `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
}

// RetrievalConfig configures candidate generation and filtering.
type RetrievalConfig struct {
	TopK              int     `yaml:"top_k" mapstructure:"top_k"`
	TopN              int     `yaml:"top_n" mapstructure:"top_n"`
	SimilarityFloor   float64 `yaml:"similarity_floor" mapstructure:"similarity_floor"`
	MinSupport        float64 `yaml:"min_support" mapstructure:"min_support"`
	MinFinalScore     float64 `yaml:"min_final_score" mapstructure:"min_final_score"`
	MinURLChars       int     `yaml:"min_url_chars" mapstructure:"min_url_chars"`
	MinTextChars      int     `yaml:"min_text_chars" mapstructure:"min_text_chars"`
	MinImageChars     int     `yaml:"min_image_chars" mapstructure:"min_image_chars"`
	FallbackKeywords  int     `yaml:"fallback_keywords" mapstructure:"fallback_keywords"`
	FallbackLimit     int     `yaml:"fallback_limit" mapstructure:"fallback_limit"`
	FallbackScoreCap  float64 `yaml:"fallback_score_cap" mapstructure:"fallback_score_cap"`
	DomainCap         int     `yaml:"domain_cap" mapstructure:"domain_cap"`
	DomainCapOverride float64 `yaml:"domain_cap_override" mapstructure:"domain_cap_override"`
	URLDuplicate      float64 `yaml:"url_duplicate" mapstructure:"url_duplicate"`
}

// WeightsConfig holds the per-evidence fusion weights.
type WeightsConfig struct {
	Similarity    float64 `yaml:"similarity" mapstructure:"similarity"`
	Support       float64 `yaml:"support" mapstructure:"support"`
	Contradiction float64 `yaml:"contradiction" mapstructure:"contradiction"`
	Time          float64 `yaml:"time" mapstructure:"time"`
	Source        float64 `yaml:"source" mapstructure:"source"`
	Language      float64 `yaml:"language" mapstructure:"language"`
	TimeLambda    float64 `yaml:"time_lambda" mapstructure:"time_lambda"`
}

// AggregateConfig holds the weights of the four reliability factors.
type AggregateConfig struct {
	Consistency float64 `yaml:"consistency" mapstructure:"consistency"`
	Diversity   float64 `yaml:"diversity" mapstructure:"diversity"`
	Temporal    float64 `yaml:"temporal" mapstructure:"temporal"`
	Quality     float64 `yaml:"quality" mapstructure:"quality"`
}

// BandsConfig holds the lower bound (percent) of each decision band.
type BandsConfig struct {
	VeryHigh int `yaml:"very_high" mapstructure:"very_high"`
	High     int `yaml:"high" mapstructure:"high"`
	Moderate int `yaml:"moderate" mapstructure:"moderate"`
	Low      int `yaml:"low" mapstructure:"low"`
}

// TemporalConfig holds the year cut-offs for the temporal relevance factor.
type TemporalConfig struct {
	VeryOldYear int `yaml:"very_old_year" mapstructure:"very_old_year"`
	OldYear     int `yaml:"old_year" mapstructure:"old_year"`
}

// ReputationConfig holds source reputation hints.
type ReputationConfig struct {
	GoodSuffixes      []string `yaml:"good_suffixes" mapstructure:"good_suffixes"`
	OKSuffixes        []string `yaml:"ok_suffixes" mapstructure:"ok_suffixes"`
	LowSuffixes       []string `yaml:"low_suffixes" mapstructure:"low_suffixes"`
	GovernmentDomains []string `yaml:"government_domains" mapstructure:"government_domains"`
	MediaDomains      []string `yaml:"media_domains" mapstructure:"media_domains"`
	SeedBonus         float64  `yaml:"seed_bonus" mapstructure:"seed_bonus"`
	GoodBonus         float64  `yaml:"good_bonus" mapstructure:"good_bonus"`
	OKBonus           float64  `yaml:"ok_bonus" mapstructure:"ok_bonus"`
	LowPenalty        float64  `yaml:"low_penalty" mapstructure:"low_penalty"`
	HTTPSBonus        float64  `yaml:"https_bonus" mapstructure:"https_bonus"`
	Min               float64  `yaml:"min" mapstructure:"min"`
	Max               float64  `yaml:"max" mapstructure:"max"`
}

// LanguageConfig configures language alignment and the foreign-site gate.
type LanguageConfig struct {
	AlignThreshold     float64  `yaml:"align_threshold" mapstructure:"align_threshold"`
	ForeignGate        bool     `yaml:"foreign_gate" mapstructure:"foreign_gate"`
	ForeignThreshold   float64  `yaml:"foreign_threshold" mapstructure:"foreign_threshold"`
	LocalDomains       []string `yaml:"local_domains" mapstructure:"local_domains"`
	ForeignTLDs        []string `yaml:"foreign_tlds" mapstructure:"foreign_tlds"`
	ContextKeywords    []string `yaml:"context_keywords" mapstructure:"context_keywords"`
	MinContextKeywords int      `yaml:"min_context_keywords" mapstructure:"min_context_keywords"`
	ForeignPenalty     float64  `yaml:"foreign_penalty" mapstructure:"foreign_penalty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	LogEvaluations bool   `yaml:"log_evaluations" mapstructure:"log_evaluations"`
}

// Load reads configuration from the given file (or the default search
// paths when empty), environment variables, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("VERISCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	applyEnvKeys(&cfg)

	return &cfg, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Dir returns the per-user configuration directory (~/.veriscope).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "config: home dir")
	}
	return filepath.Join(home, ".veriscope"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("http.timeout_secs", 12)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36")
	v.SetDefault("http.mobile_user_agent", "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Mobile Safari/537.36")
	v.SetDefault("http.max_body_bytes", 4_000_000)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.mobile_first_hosts", []string{"news.naver.com", "n.news.naver.com"})
	v.SetDefault("http.shorteners", []string{
		"naver.me", "bit.ly", "tinyurl.com", "goo.gl", "t.co", "short.link", "ow.ly",
		"is.gd", "buff.ly", "cutt.ly", "han.gl", "me2.do", "vo.la", "zrr.kr",
	})

	v.SetDefault("crawl.seeds_file", "seeds.txt")
	v.SetDefault("crawl.max_depth", 2)
	v.SetDefault("crawl.max_pages_per_domain", 150)
	v.SetDefault("crawl.workers", 8)
	v.SetDefault("crawl.sleep_millis", 500)
	v.SetDefault("crawl.requests_per_second", 2.0)
	v.SetDefault("crawl.burst", 2)
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("crawl.min_text_len", 200)

	v.SetDefault("index.backend", "file")
	v.SetDefault("index.path", "veriscope_index.gob.gz")
	v.SetDefault("index.grow", true)
	v.SetDefault("index.chunk_window", 4)
	v.SetDefault("index.chunk_step", 3)
	v.SetDefault("index.embed_batch", 1024)
	v.SetDefault("index.fallback_batch", 64)

	v.SetDefault("embedder.provider", "tei")
	v.SetDefault("embedder.model", "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2")
	v.SetDefault("embedder.base_url", "http://localhost:8080")
	v.SetDefault("embedder.api_key", "")
	v.SetDefault("embedder.timeout_secs", 60)

	v.SetDefault("nli.provider", "tei")
	v.SetDefault("nli.model", "cross-encoder/nli-deberta-v3-small")
	v.SetDefault("nli.base_url", "http://localhost:8081")
	v.SetDefault("nli.api_key", "")
	v.SetDefault("nli.timeout_secs", 60)
	v.SetDefault("nli.batch_size", 16)
	v.SetDefault("nli.max_chars", 1024)
	v.SetDefault("nli.summary_sentences", 3)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_hours", 168)
	v.SetDefault("cache.dir", ".veriscope-cache")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_password", "")

	v.SetDefault("retrieval.top_k", 500)
	v.SetDefault("retrieval.top_n", 10)
	v.SetDefault("retrieval.similarity_floor", 0.35)
	v.SetDefault("retrieval.min_support", 0.1)
	v.SetDefault("retrieval.min_final_score", 0.3)
	v.SetDefault("retrieval.min_url_chars", 50)
	v.SetDefault("retrieval.min_text_chars", 200)
	v.SetDefault("retrieval.min_image_chars", 10)
	v.SetDefault("retrieval.fallback_keywords", 5)
	v.SetDefault("retrieval.fallback_limit", 50)
	v.SetDefault("retrieval.fallback_score_cap", 0.5)
	v.SetDefault("retrieval.domain_cap", 2)
	v.SetDefault("retrieval.domain_cap_override", 2.0)
	v.SetDefault("retrieval.url_duplicate", 0.9)

	v.SetDefault("weights.similarity", 0.65)
	v.SetDefault("weights.support", 0.35)
	v.SetDefault("weights.contradiction", 0.50)
	v.SetDefault("weights.time", 0.20)
	v.SetDefault("weights.source", 0.20)
	v.SetDefault("weights.language", 0.15)
	v.SetDefault("weights.time_lambda", 0.0025)

	v.SetDefault("aggregate.consistency", 0.35)
	v.SetDefault("aggregate.diversity", 0.25)
	v.SetDefault("aggregate.temporal", 0.25)
	v.SetDefault("aggregate.quality", 0.15)

	v.SetDefault("bands.very_high", 80)
	v.SetDefault("bands.high", 65)
	v.SetDefault("bands.moderate", 50)
	v.SetDefault("bands.low", 35)

	v.SetDefault("temporal.very_old_year", 2015)
	v.SetDefault("temporal.old_year", 2020)

	v.SetDefault("reputation.good_suffixes", []string{".go.kr", ".ac.kr", ".lg.jp", ".gov", ".edu"})
	v.SetDefault("reputation.ok_suffixes", []string{".or.kr", ".or.jp", ".org", ".co.kr", ".co.jp", ".com", ".net"})
	v.SetDefault("reputation.low_suffixes", []string{".info", ".biz"})
	v.SetDefault("reputation.government_domains", []string{"korea.kr", "mofa.go.kr", "mois.go.kr", "gov.kr"})
	v.SetDefault("reputation.media_domains", []string{"yna.co.kr", "ytn.co.kr", "jtbc.co.kr", "naver.com", "hankyung.com"})
	v.SetDefault("reputation.seed_bonus", 0.4)
	v.SetDefault("reputation.good_bonus", 0.4)
	v.SetDefault("reputation.ok_bonus", 0.2)
	v.SetDefault("reputation.low_penalty", -0.1)
	v.SetDefault("reputation.https_bonus", 0.05)
	v.SetDefault("reputation.min", -0.2)
	v.SetDefault("reputation.max", 0.8)

	v.SetDefault("language.align_threshold", 0.25)
	v.SetDefault("language.foreign_gate", true)
	v.SetDefault("language.foreign_threshold", 0.3)
	v.SetDefault("language.local_domains", []string{
		"naver.com", "daum.net", "chosun.com", "joins.com", "donga.com",
		"hani.co.kr", "khan.co.kr", "ytn.co.kr", "jtbc.co.kr", "sbs.co.kr",
		"kbs.co.kr", "mbc.co.kr", "news1.kr", "newsis.com", "edaily.co.kr",
		"mk.co.kr", "hankyung.com", "korea.kr", "koreaherald.com", "koreatimes.co.kr",
		"koreajoongangdaily.joins.com", "pressian.com", "ohmynews.com",
	})
	v.SetDefault("language.foreign_tlds", []string{".fr", ".de", ".it", ".es", ".com", ".net", ".org"})
	v.SetDefault("language.context_keywords", []string{
		"한국", "대한민국", "서울", "부산", "정부", "대통령", "국정감사", "국회", "청와대",
		"Korea", "South Korea", "Seoul",
	})
	v.SetDefault("language.min_context_keywords", 2)
	v.SetDefault("language.foreign_penalty", 0.7)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.timeout_secs", 300)

	v.SetDefault("store.path", "veriscope.db")
	v.SetDefault("store.log_evaluations", false)
}

// applyEnvKeys fills provider API keys from the conventional variables.
func applyEnvKeys(cfg *Config) {
	for _, p := range []*ProviderConfig{&cfg.Embedder, &cfg.NLI.ProviderConfig} {
		if p.APIKey != "" {
			continue
		}
		switch strings.ToLower(p.Provider) {
		case "openai":
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "tei":
			p.APIKey = os.Getenv("HF_API_TOKEN")
		}
	}
	if cfg.Cache.RedisPassword == "" {
		cfg.Cache.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}
}

// InitLogger configures the global zap logger from LogConfig.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
