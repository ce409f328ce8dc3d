package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/shadowscraper/internal/utils"
)

// Config 应用程序配置
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Email   EmailConfig   `mapstructure:"email"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	DataDir     string `mapstructure:"data_dir"`     // 原始采集结果目录
	AnalysisDir string `mapstructure:"analysis_dir"` // 过滤分析结果目录
}

// ScrapeConfig 采集配置
type ScrapeConfig struct {
	ScrapersFile    string            `mapstructure:"scrapers_file"`
	Headless        bool              `mapstructure:"headless"`
	BatchDelay      int               `mapstructure:"batch_delay"` // 秒
	ContinueOnError bool              `mapstructure:"continue_on_error"`
	Incremental     bool              `mapstructure:"incremental"`
	Headers         map[string]string `mapstructure:"headers"`
}

// EmailConfig 过滤结果通知邮件配置
// 凭据优先从环境变量读取,避免落入配置文件
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Sender   string `mapstructure:"sender"`
	Password string `mapstructure:"password"`
	Receiver string `mapstructure:"receiver"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".shadowscraper"))
		}
	}

	setDefaults(v)

	// 邮件凭据的环境变量绑定
	v.BindEnv("email.smtp_host", "FILTER_EMAIL_SMTP_HOST")
	v.BindEnv("email.sender", "FILTER_EMAIL_SENDER")
	v.BindEnv("email.password", "FILTER_EMAIL_PASSWORD")
	v.BindEnv("email.receiver", "FILTER_EMAIL_RECEIVER")

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateHeaders(config.Scrape.Headers); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.data_dir", "data")
	v.SetDefault("output.analysis_dir", "analysis")

	v.SetDefault("scrape.scrapers_file", "configs/scrapers.yaml")
	v.SetDefault("scrape.headless", true)
	v.SetDefault("scrape.batch_delay", 1)
	v.SetDefault("scrape.continue_on_error", true)
	v.SetDefault("scrape.incremental", true)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_port", 587)
}

// validateHeaders 校验配置中的自定义HTTP头部
func validateHeaders(headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	validator := utils.NewHeaderValidator()
	if err := validator.ValidateHeaders(headers); err != nil {
		return fmt.Errorf("HTTP头部配置无效: %w", err)
	}
	return nil
}
