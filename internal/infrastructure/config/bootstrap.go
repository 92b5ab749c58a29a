package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name
const AppName = "council"

// HomeDir returns the user's council configuration home: ~/.council
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures the ~/.council directory exists with all default content.
// Called once at startup. Safe to call multiple times — only creates missing items.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	dirs := []string{
		root,
		filepath.Join(root, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	// Default files — only written if they don't already exist (never overwrite user edits)
	defaults := map[string]string{
		filepath.Join(root, "config.yaml"):           defaultConfig,
		filepath.Join(root, "contracts.sample.yaml"): defaultContractPack,
	}

	created := 0
	for path, content := range defaults {
		if _, err := os.Stat(path); err == nil {
			continue // Already exists, skip
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			logger.Warn("Failed to write default file", zap.String("path", path), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		logger.Info("Council bootstrap complete",
			zap.String("home", root),
			zap.Int("files_created", created),
		)
	} else {
		logger.Debug("Council home directory OK", zap.String("home", root))
	}

	return nil
}

// ──────────────────────────────────────────────────────────────
// Embedded default file contents
// ──────────────────────────────────────────────────────────────

const defaultConfig = `# ═══════════════════════════════════════════════════════════════
# Council Configuration / Council 配置文件
# Auto-generated on first launch — feel free to edit
# 首次启动自动生成 — 可自由编辑
# ═══════════════════════════════════════════════════════════════

# ─── HTTP Server / HTTP 服务 ─────────────────────────────────
server:
  host: 0.0.0.0
  port: 8011
  mode: local                  # local | production

# ─── Database / 数据库 ───────────────────────────────────────
# Conversation history storage.
# 会话历史存储。
database:
  type: sqlite                 # sqlite | postgres
  dsn: data/council.db         # File path (sqlite) or connection string (postgres)

# ─── Logging / 日志 ──────────────────────────────────────────
log:
  level: info                  # debug | info | warn | error
  format: console              # console | json

# ─── Upstream Transport / 上游模型端点 ───────────────────────
# API key is usually supplied via OPENROUTER_API_KEY / OPENAI_API_KEY.
# API key 通常通过环境变量提供。
transport:
  base_url: ""                 # empty = auto (OpenRouter when its key is set)
  timeout_seconds: 120
  debug_ids: false             # log discarded provider-id artifacts

# ─── Council / 议事配置 ──────────────────────────────────────
council:
  chairman_model: anthropic/claude-opus-4.5
  stage1_models:
    - openai/gpt-5.2
    - google/gemini-3-pro-preview
    - anthropic/claude-sonnet-4.5
    - x-ai/grok-4.1-fast
  # stage2_models defaults to stage1_models slot by slot
  contracts: factory_truth_v1  # comma-separated contract ids
  max_tokens: 2048
  evidence_min_lines: 3

  adjudicator:
    enabled: true
    model: ""                  # empty = chairman model
    fallbacks: []
    min_nonpartial: 3
    min_top1_votes: 0          # 0 = auto (3 when 4+ full verdicts, else 2)

  helper:
    enabled: true
    model: ""                  # empty = chairman model
    trigger_chars: 120000

# ─── Contract Pack / 合同包 ──────────────────────────────────
# Optional extra contracts merged over the built-ins.
contracts:
  pack_path: ""                # e.g. ~/.council/contracts.yaml
  watch: true                  # hot-reload on change
`

const defaultContractPack = `# Extra council contracts. Copy to contracts.yaml and point
# contracts.pack_path (or COUNCIL_CONTRACT_PACK) at it.
contracts:
  - id: terse_v1
    name: Terse Output Contract
    system_prompt: |
      Keep answers under 300 words. Prefer lists over prose. Omit
      pleasantries and restatements of the question.
    chairman_addendum: |
      The final synthesis must also stay under 300 words.
`
