package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Slot count for stage-1 generators. Labels (Response A..D) are derived from
// slot order, so the engine depends on exactly this many being configured.
const GeneratorSlots = 4

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Transport TransportConfig `mapstructure:"transport"`
	Council   CouncilConfig   `mapstructure:"council"`
	Contracts ContractsConfig `mapstructure:"contracts"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // local, production
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TransportConfig 上游模型端点配置
type TransportConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	DebugIDs       bool   `mapstructure:"debug_ids"` // log discarded provider-id artifacts
}

// CouncilConfig 议事流程配置
type CouncilConfig struct {
	// Stage1Models holds exactly GeneratorSlots entries after defaulting.
	// Slot order defines label order, so it is load-bearing.
	Stage1Models  []string `mapstructure:"stage1_models"`
	Stage2Models  []string `mapstructure:"stage2_models"`
	ChairmanModel string   `mapstructure:"chairman_model"`

	ContractsCSV     string `mapstructure:"contracts"`
	MaxTokens        int    `mapstructure:"max_tokens"`
	EvidenceMinLines int    `mapstructure:"evidence_min_lines"`

	Adjudicator AdjudicatorConfig `mapstructure:"adjudicator"`
	Helper      HelperConfig      `mapstructure:"helper"`
}

// AdjudicatorConfig 仲裁配置
type AdjudicatorConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Model         string   `mapstructure:"model"`
	Fallbacks     []string `mapstructure:"fallbacks"`
	MinNonPartial int      `mapstructure:"min_nonpartial"`
	// MinTop1Votes overrides the vote threshold when > 0; 0 means auto
	// (3 when four or more full verdicts voted, else 2).
	MinTop1Votes int `mapstructure:"min_top1_votes"`
}

// HelperConfig 长上下文预读配置
type HelperConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Model        string `mapstructure:"model"`
	TriggerChars int    `mapstructure:"trigger_chars"`
}

// ContractsConfig 合同包配置
type ContractsConfig struct {
	PackPath string `mapstructure:"pack_path"` // optional contracts.yaml
	Watch    bool   `mapstructure:"watch"`     // hot-reload the pack on change
}

// Load 加载配置
func Load() (*Config, error) {
	// .env 先行 (不存在则忽略)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// ─── 分层配置加载 ───
	// 优先级 (低 → 高): 默认值 → 全局 ~/.council/ → 项目本地 → 环境变量
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".council")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	// 项目本地配置: ./config/config.yaml 或 ./config.yaml, 用 MergeConfigMap 叠加
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	bindEnvKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyModelEnvSlots(&cfg)
	resolveTransport(&cfg)
	applyCouncilDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8011)
	v.SetDefault("server.mode", "local")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/council.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("transport.timeout_seconds", 120)
	v.SetDefault("transport.debug_ids", false)

	v.SetDefault("council.contracts", "factory_truth_v1")
	v.SetDefault("council.max_tokens", 2048)
	v.SetDefault("council.evidence_min_lines", 3)
	v.SetDefault("council.chairman_model", "anthropic/claude-opus-4.5")
	v.SetDefault("council.stage1_models", []string{
		"openai/gpt-5.2",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4.1-fast",
	})

	v.SetDefault("council.adjudicator.enabled", true)
	v.SetDefault("council.adjudicator.min_nonpartial", 3)
	v.SetDefault("council.adjudicator.min_top1_votes", 0)

	v.SetDefault("council.helper.enabled", true)
	v.SetDefault("council.helper.trigger_chars", 120000)

	v.SetDefault("contracts.pack_path", "")
	v.SetDefault("contracts.watch", true)
}

// bindEnvKeys 绑定精确环境变量名 (与产品约定一致, 不走前缀)
func bindEnvKeys(v *viper.Viper) {
	bind := func(key string, envs ...string) { _ = v.BindEnv(append([]string{key}, envs...)...) }

	bind("council.chairman_model", "CHAIRMAN_MODEL")
	bind("council.contracts", "COUNCIL_CONTRACTS")
	bind("council.max_tokens", "COUNCIL_MAX_TOKENS")
	bind("council.evidence_min_lines", "STAGE2_EVIDENCE_MIN_LINES")

	bind("council.adjudicator.enabled", "STAGE2_ADJUDICATE_ENABLED")
	bind("council.adjudicator.model", "STAGE2_ADJUDICATOR_MODEL")
	bind("council.adjudicator.min_nonpartial", "STAGE2_ADJUDICATE_MIN_NONPARTIAL")
	bind("council.adjudicator.min_top1_votes", "STAGE2_ADJUDICATE_MIN_TOP1_VOTES")

	bind("council.helper.enabled", "STAGE3_HELPER_ENABLED")
	bind("council.helper.model", "STAGE3_HELPER_MODEL")
	bind("council.helper.trigger_chars", "STAGE3_HELPER_TRIGGER_CHARS")

	bind("transport.debug_ids", "COUNCIL_DEBUG_IDS")
	bind("contracts.pack_path", "COUNCIL_CONTRACT_PACK")
}

// applyModelEnvSlots 读取 STAGE1_MODEL_A..D / STAGE2_MODEL_A..D 槽位变量。
// Slot env vars override list entries positionally; empty slots keep defaults.
func applyModelEnvSlots(cfg *Config) {
	slots := []string{"A", "B", "C", "D"}

	s1 := make([]string, GeneratorSlots)
	copy(s1, cfg.Council.Stage1Models)
	for i, slot := range slots {
		if val := strings.TrimSpace(os.Getenv("STAGE1_MODEL_" + slot)); val != "" {
			s1[i] = val
		}
	}
	cfg.Council.Stage1Models = s1

	// Stage-2 slots default to their stage-1 counterparts.
	s2 := make([]string, GeneratorSlots)
	copy(s2, cfg.Council.Stage2Models)
	for i, slot := range slots {
		if val := strings.TrimSpace(os.Getenv("STAGE2_MODEL_" + slot)); val != "" {
			s2[i] = val
		} else if s2[i] == "" {
			s2[i] = s1[i]
		}
	}
	cfg.Council.Stage2Models = s2

	if csv := strings.TrimSpace(os.Getenv("STAGE2_ADJUDICATOR_FALLBACKS")); csv != "" {
		var fallbacks []string
		for _, part := range strings.Split(csv, ",") {
			if p := strings.TrimSpace(part); p != "" {
				fallbacks = append(fallbacks, p)
			}
		}
		cfg.Council.Adjudicator.Fallbacks = fallbacks
	}
}

// resolveTransport 解析 API key 与 base URL。
// OpenRouter key wins over OpenAI key; explicit base URL envs win over both
// defaults; a pasted full chat/completions URL is tolerated.
func resolveTransport(cfg *Config) {
	openrouterKey := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	openaiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))

	if cfg.Transport.APIKey == "" {
		if openrouterKey != "" {
			cfg.Transport.APIKey = openrouterKey
		} else {
			cfg.Transport.APIKey = openaiKey
		}
	}

	if cfg.Transport.BaseURL == "" {
		if url := strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")); url != "" {
			cfg.Transport.BaseURL = url
		} else if url := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); url != "" {
			cfg.Transport.BaseURL = url
		} else if openrouterKey != "" {
			cfg.Transport.BaseURL = defaultOpenRouterBaseURL
		} else {
			cfg.Transport.BaseURL = defaultOpenAIBaseURL
		}
	}
	cfg.Transport.BaseURL = strings.TrimSuffix(strings.TrimSuffix(cfg.Transport.BaseURL, "/"), "/chat/completions")
}

// applyCouncilDefaults 补齐派生默认值
func applyCouncilDefaults(cfg *Config) {
	if cfg.Council.Adjudicator.Model == "" {
		cfg.Council.Adjudicator.Model = cfg.Council.ChairmanModel
	}
	if cfg.Council.Helper.Model == "" {
		cfg.Council.Helper.Model = cfg.Council.ChairmanModel
	}
}

// Validate 校验配置不变量
func Validate(cfg *Config) error { return cfg.Validate() }

func (c *Config) Validate() error {
	if len(c.Council.Stage1Models) != GeneratorSlots {
		return fmt.Errorf("council: expected %d stage-1 model slots, got %d", GeneratorSlots, len(c.Council.Stage1Models))
	}
	for i, m := range c.Council.Stage1Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("council: stage-1 model slot %c is empty", 'A'+rune(i))
		}
	}
	if len(c.Council.Stage2Models) != GeneratorSlots {
		return fmt.Errorf("council: expected %d stage-2 model slots, got %d", GeneratorSlots, len(c.Council.Stage2Models))
	}
	for i, m := range c.Council.Stage2Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("council: stage-2 model slot %c is empty", 'A'+rune(i))
		}
	}
	if strings.TrimSpace(c.Council.ChairmanModel) == "" {
		return fmt.Errorf("council: chairman model is empty")
	}
	if c.Council.MaxTokens <= 0 {
		return fmt.Errorf("council: max_tokens must be positive, got %d", c.Council.MaxTokens)
	}
	if c.Council.EvidenceMinLines < 0 {
		return fmt.Errorf("council: evidence_min_lines must not be negative")
	}
	if c.Council.Helper.TriggerChars <= 0 {
		return fmt.Errorf("council: helper trigger_chars must be positive")
	}
	if c.Transport.TimeoutSeconds <= 0 {
		return fmt.Errorf("transport: timeout_seconds must be positive")
	}
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unsupported type %q", c.Database.Type)
	}
	return nil
}
