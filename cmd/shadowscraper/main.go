package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/shadowscraper/internal/core"
	"github.com/RecoveryAshes/shadowscraper/internal/filter"
	"github.com/RecoveryAshes/shadowscraper/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 采集参数
	scrapersFile string
	dataDir      string
	headless     bool
	incremental  bool
	headers      []string

	// 批量处理参数
	batchDelay      int
	continueOnError bool

	// 筛选参数
	analysisDir    string
	outputFilename string
)

var rootCmd = &cobra.Command{
	Use:   "shadowscraper [采集器名称]",
	Short: "Shadow DOM感知的结构化网页采集工具",
	Long: `ShadowScraper - Shadow DOM感知的结构化网页采集工具

从YAML定义的站点配置中提取结构化数据,支持:
  • 静态(Colly)和浏览器(Rod)两种采集引擎
  • 跨Shadow DOM边界的XPath子集解析
  • 列表页→详情页两阶段采集
  • 分页自动跟进(URL跳转或点击下一页)
  • 增量CSV落盘与批量保存
  • 自定义HTTP请求头

使用示例:
  # 执行单个采集器
  shadowscraper fincaraiz

  # 执行全部采集器
  shadowscraper

  # 自定义HTTP头部
  shadowscraper fincaraiz -H "Accept-Language: es-CO"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadMergedConfig(cmd)
		if err != nil {
			return err
		}

		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		if err := ValidateFlags(name, batchDelay); err != nil {
			return err
		}

		// 信号处理(Ctrl+C优雅退出)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			utils.Warnf("收到中断信号: %v, 正在优雅关闭...", sig)
			cancel()
		}()

		runner, err := core.NewRunner(config)
		if err != nil {
			return fmt.Errorf("创建编排器失败: %w", err)
		}

		if err := runner.Run(ctx, name); err != nil {
			return fmt.Errorf("采集失败: %w", err)
		}

		utils.Info("✨ 采集任务完成!")
		return nil
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "筛选已采集的房源记录并对新增结果发送邮件通知",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadMergedConfig(cmd)
		if err != nil {
			return err
		}

		outDir := config.Output.AnalysisDir
		if cmd.Flags().Changed("analysis-dir") {
			outDir = analysisDir
		}
		outputPath := filepath.Join(outDir, outputFilename)

		email := filter.EmailSettings{
			Enabled:  config.Email.Enabled,
			SMTPHost: config.Email.SMTPHost,
			SMTPPort: config.Email.SMTPPort,
			Sender:   config.Email.Sender,
			Password: config.Email.Password,
			Receiver: config.Email.Receiver,
		}

		utils.Infof("🔍 开始筛选: 数据目录=%s", config.Output.DataDir)
		return filter.Run(config.Output.DataDir, outputPath, email)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "列出全部已定义的采集器",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadMergedConfig(cmd)
		if err != nil {
			return err
		}
		runner, err := core.NewRunner(config)
		if err != nil {
			return err
		}
		for _, name := range runner.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ShadowScraper %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// loadMergedConfig 加载配置并合并命令行参数与-H头部
func loadMergedConfig(cmd *cobra.Command) (*core.Config, error) {
	config, err := core.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// 命令行参数优先于配置文件
	if cmd.Flags().Changed("scrapers") || cmd.Root().PersistentFlags().Changed("scrapers") {
		config.Scrape.ScrapersFile = scrapersFile
	}
	if cmd.Root().PersistentFlags().Changed("data-dir") {
		config.Output.DataDir = dataDir
	}
	if cmd.Root().PersistentFlags().Changed("headless") {
		config.Scrape.Headless = headless
	}
	if cmd.Root().PersistentFlags().Changed("incremental") {
		config.Scrape.Incremental = incremental
	}
	if cmd.Root().PersistentFlags().Changed("batch-delay") {
		config.Scrape.BatchDelay = batchDelay
	}
	if cmd.Root().PersistentFlags().Changed("continue-on-error") {
		config.Scrape.ContinueOnError = continueOnError
	}

	if len(headers) > 0 {
		if config.Scrape.Headers == nil {
			config.Scrape.Headers = make(map[string]string, len(headers))
		}
		validator := utils.NewHeaderValidator()
		for _, h := range headers {
			name, value, err := utils.ParseHeaderFlag(h)
			if err != nil {
				return nil, fmt.Errorf("HTTP头部参数无效 [%s]: %w", h, err)
			}
			if err := validator.ValidateHeader(name, value); err != nil {
				return nil, fmt.Errorf("HTTP头部参数无效 [%s]: %w", h, err)
			}
			config.Scrape.Headers[name] = value
		}
	}
	return config, nil
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVarP(&scrapersFile, "scrapers", "s", "configs/scrapers.yaml", "采集定义文件路径")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "o", "data", "采集结果输出目录")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().BoolVar(&incremental, "incremental", true, "每条记录立即落盘")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().IntVar(&batchDelay, "batch-delay", 1, "起始URL间延迟(秒)")
	rootCmd.PersistentFlags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	// 筛选参数
	filterCmd.Flags().StringVar(&analysisDir, "analysis-dir", "analysis", "筛选结果输出目录")
	filterCmd.Flags().StringVar(&outputFilename, "output-filename", "filtered_listings.csv", "筛选结果文件名")

	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
