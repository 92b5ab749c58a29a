package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/application"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/config"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/logger"
	"github.com/llmcouncil/llmcouncil/backend/internal/interfaces/cli"
)

const (
	cliVersion = "0.3.0"
	cliName    = "council"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "LLM Council — 多模型议会裁决",
		Long:  "LLM Council CLI — 多模型三阶段议会: 并行生成 → 匿名互评 → 主席综合",
	}

	askCmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "运行一次议会并渲染结果",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().Bool("json", false, "输出原始 JSON 结果")
	askCmd.Flags().String("contracts", "", "合同栈 (逗号分隔)")
	rootCmd.AddCommand(askCmd)

	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "运行阶段二质量评测",
		RunE:  runEval,
	}
	evalCmd.Flags().String("input", "", "提示词文件 (jsonl 或纯文本行)")
	evalCmd.Flags().String("contracts", "", "合同栈 (逗号分隔)")
	_ = evalCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(evalCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "监听地址 (覆盖配置)")
	serveCmd.Flags().Int("port", 0, "监听端口 (覆盖配置)")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "环境诊断",
		RunE:  runDoctor,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// quietApp builds a CLI-mode app with a near-silent logger.
func quietApp() (*application.App, error) {
	log, err := logger.NewLogger(logger.Config{
		Level:      "error",
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return application.NewAppCLI(cfg, log)
}

// ─── ask ───

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := quietApp()
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	asJSON, _ := cmd.Flags().GetBool("json")
	contracts, _ := cmd.Flags().GetString("contracts")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderer := cli.NewRenderer(terminalWidth())
	opts := service.Options{ContractsCSV: contracts}
	if !asJSON {
		opts.Events = func(ev service.Event) {
			if line := renderer.StageLine(ev); line != "" {
				fmt.Println(line)
			}
		}
	}

	result, err := app.Engine().RunCouncil(ctx, prompt, opts)
	if err != nil {
		return fmt.Errorf("council run: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println()
	fmt.Println(renderer.RenderResult(result))
	return nil
}

// ─── eval ───

func runEval(cmd *cobra.Command, args []string) error {
	app, err := quietApp()
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("input")
	contracts, _ := cmd.Flags().GetString("contracts")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open prompts: %w", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err = cli.RunEval(ctx, app.Engine(), f, os.Stdout, contracts)
	return err
}

// ─── serve ───

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}
	return nil
}

// ─── doctor ───

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("◇ Council Doctor v%s\n\n", cliVersion)

	checks := []struct {
		name  string
		check func() (string, bool)
	}{
		{"API 密钥", checkAPIKey},
		{"配置与模型槽位", checkModelSlots},
		{"上游端点", checkBaseURL},
		{"合同包", checkContractPack},
	}

	allOK := true
	for _, c := range checks {
		val, ok := c.check()
		icon := "\033[92m✓\033[0m"
		if !ok {
			icon = "\033[91m✗\033[0m"
			allOK = false
		}
		fmt.Printf("  %s %s: %s\n", icon, c.name, val)
	}

	fmt.Println()
	if allOK {
		fmt.Println("所有检查通过 ✓")
	} else {
		fmt.Println("存在问题, 请检查上方标记")
	}
	return nil
}

func checkAPIKey() (string, bool) {
	if os.Getenv("OPENROUTER_API_KEY") != "" {
		return "OPENROUTER_API_KEY", true
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return "OPENAI_API_KEY", true
	}
	return "OPENROUTER_API_KEY / OPENAI_API_KEY 均未设置", false
}

func checkModelSlots() (string, bool) {
	cfg, err := config.Load()
	if err != nil {
		return err.Error(), false
	}
	return fmt.Sprintf("stage1 %s | chairman %s",
		strings.Join(cfg.Council.Stage1Models, ", "),
		cfg.Council.ChairmanModel,
	), true
}

func checkBaseURL() (string, bool) {
	cfg, err := config.Load()
	if err != nil {
		return err.Error(), false
	}
	return cfg.Transport.BaseURL, cfg.Transport.BaseURL != ""
}

func checkContractPack() (string, bool) {
	cfg, err := config.Load()
	if err != nil {
		return err.Error(), false
	}
	path := cfg.Contracts.PackPath
	if path == "" {
		return "未配置 (使用内置合同)", true
	}
	if _, err := os.Stat(path); err != nil {
		return path + " 不存在", false
	}
	return path, true
}

func terminalWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		var w int
		if _, err := fmt.Sscanf(cols, "%d", &w); err == nil && w > 0 {
			return w
		}
	}
	return 100
}
