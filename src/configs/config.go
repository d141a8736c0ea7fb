package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server struct {
		Token string `yaml:"token"` // JWT签名密钥
		Auth  struct {
			Enabled        bool     `yaml:"enabled"`
			AllowedDevices []string `yaml:"allowed_devices"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log LogConfig `yaml:"log"`

	Web struct {
		Port int `yaml:"port"`
	} `yaml:"web"`

	LLM   map[string]LLMConfig `yaml:"LLM"`
	Tools ToolsConfig          `yaml:"tools"`
}

// LogConfig 日志配置
type LogConfig struct {
	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
	LogFile  string `yaml:"log_file"`
}

// LLMConfig LLM配置结构，视觉模型与文本模型共用
type LLMConfig struct {
	Type        string                 `yaml:"type"`
	ModelName   string                 `yaml:"model_name"`
	BaseURL     string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	Temperature float64                `yaml:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens"`
	TopP        float64                `yaml:"top_p"`
	Extra       map[string]interface{} `yaml:",inline"`
}

// ToolsConfig 两个工具的配置
type ToolsConfig struct {
	Vision   VisionToolConfig   `yaml:"vision"`
	Strategy StrategyToolConfig `yaml:"strategy"`
}

// VisionToolConfig 俄罗斯方块视觉分析工具配置
type VisionToolConfig struct {
	LLM              string        `yaml:"llm"`               // 引用 LLM 中的模型名
	MaxFileSize      int64         `yaml:"max_file_size"`     // 最大图片字节数，默认5MB
	SupportedFormats []string      `yaml:"supported_formats"` // 允许的图片格式
	DetailLevel      string        `yaml:"detail_level"`      // basic | detailed | expert
	Timeout          time.Duration `yaml:"timeout"`           // 单次调用超时（下载+模型）
	Verbose          bool          `yaml:"verbose"`           // 输出模型原始回复
	ExtractStrategy  string        `yaml:"extract_strategy"`  // balanced | greedy
	MaxWidth         int           `yaml:"max_width"`         // 0 表示不限制
	MaxHeight        int           `yaml:"max_height"`
	MaxPixels        int64         `yaml:"max_pixels"`
}

// StrategyToolConfig 俄罗斯方块策略分析工具配置
type StrategyToolConfig struct {
	LLM     string        `yaml:"llm"`
	Timeout time.Duration `yaml:"timeout"`
	Verbose bool          `yaml:"verbose"`
}

const (
	DefaultMaxFileSize     = 5 * 1024 * 1024
	DefaultDetailLevel     = "detailed"
	DefaultVisionTimeout   = 60 * time.Second
	DefaultStrategyTimeout = 25 * time.Second
	DefaultExtractStrategy = "balanced"
	DefaultWebPort         = 8080
)

// DefaultVisionToolConfig 返回视觉工具的默认配置
func DefaultVisionToolConfig() VisionToolConfig {
	return VisionToolConfig{
		MaxFileSize:      DefaultMaxFileSize,
		SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
		DetailLevel:      DefaultDetailLevel,
		Timeout:          DefaultVisionTimeout,
		Verbose:          true,
		ExtractStrategy:  DefaultExtractStrategy,
	}
}

// DefaultStrategyToolConfig 返回策略工具的默认配置
func DefaultStrategyToolConfig() StrategyToolConfig {
	return StrategyToolConfig{
		Timeout: DefaultStrategyTimeout,
		Verbose: false,
	}
}

// Default 返回全部默认配置
func Default() *Config {
	config := &Config{
		LLM: make(map[string]LLMConfig),
		Tools: ToolsConfig{
			Vision:   DefaultVisionToolConfig(),
			Strategy: DefaultStrategyToolConfig(),
		},
	}
	config.Log = LogConfig{LogLevel: "INFO", LogDir: "logs", LogFile: "server.log"}
	config.Web.Port = DefaultWebPort
	return config
}

// ApplyDefaults 补齐未配置的字段。verbose 这类布尔值以文件内容为准。
func (c *Config) ApplyDefaults() {
	if c.LLM == nil {
		c.LLM = make(map[string]LLMConfig)
	}

	v := &c.Tools.Vision
	dv := DefaultVisionToolConfig()
	if v.MaxFileSize <= 0 {
		v.MaxFileSize = dv.MaxFileSize
	}
	if len(v.SupportedFormats) == 0 {
		v.SupportedFormats = dv.SupportedFormats
	}
	if v.DetailLevel == "" {
		v.DetailLevel = dv.DetailLevel
	}
	if v.Timeout <= 0 {
		v.Timeout = dv.Timeout
	}
	if v.ExtractStrategy == "" {
		v.ExtractStrategy = dv.ExtractStrategy
	}

	s := &c.Tools.Strategy
	if s.Timeout <= 0 {
		s.Timeout = DefaultStrategyTimeout
	}

	if c.Web.Port == 0 {
		c.Web.Port = DefaultWebPort
	}
	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "INFO"
	}
	if c.Log.LogFile == "" {
		c.Log.LogFile = "server.log"
	}
}

// Validate 检查工具引用的模型是否存在
func (c *Config) Validate() error {
	for tool, ref := range map[string]string{
		"vision":   c.Tools.Vision.LLM,
		"strategy": c.Tools.Strategy.LLM,
	} {
		if ref == "" {
			return fmt.Errorf("tools.%s.llm 未配置", tool)
		}
		if _, ok := c.LLM[ref]; !ok {
			return fmt.Errorf("tools.%s.llm 引用了不存在的模型: %s", tool, ref)
		}
	}
	return nil
}

// Parse 解析YAML配置并补齐默认值。
// verbose 未出现在文件中时保持默认值，所以先填默认再反序列化。
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	config.ApplyDefaults()
	expandEnv(config)
	return config, nil
}

// expandEnv 允许 api_key 写成 ${OPENAI_API_KEY}
func expandEnv(c *Config) {
	for name, llm := range c.LLM {
		if strings.Contains(llm.APIKey, "$") {
			llm.APIKey = os.ExpandEnv(llm.APIKey)
			c.LLM[name] = llm
		}
	}
	if strings.Contains(c.Server.Token, "$") {
		c.Server.Token = os.ExpandEnv(c.Server.Token)
	}
}

// LoadConfig 从文件加载配置，path 为空时依次尝试 .config.yaml 和 config.yaml
func LoadConfig(path string) (*Config, string, error) {
	if path == "" {
		path = ".config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = "config.yaml"
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	return config, path, nil
}
