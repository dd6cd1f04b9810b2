// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"legal-assistant-go/internal/model"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig 存储大语言模型相关的配置。
// APIKey 只能来自配置文件或环境变量，绝不能写死在代码中。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示以及面向用户的固定文案。
type LLMPromptConfig struct {
	System      string `mapstructure:"system"`
	Greeting    string `mapstructure:"greeting"`
	Fallback    string `mapstructure:"fallback"`
	NoContent   string `mapstructure:"no_content"`
	ErrorNotice string `mapstructure:"error_notice"`
}

// AssistantConfig 配置助手会话。
// SessionTTL 是会话的最长空闲时间，超过后会话被回收。
type AssistantConfig struct {
	SessionTTL time.Duration  `mapstructure:"session_ttl"`
	Guidance   model.Guidance `mapstructure:"guidance"`
}

// UploadConfig 控制上传进度模拟器的节奏。
// MaxDuration 不允许关闭，非正值会回退到默认值。
type UploadConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxIncrement float64       `mapstructure:"max_increment"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	Seed         []UploadSeed  `mapstructure:"seed"`
}

// UploadSeed 是启动时预置的示例任务。Age 表示任务创建于多久之前。
type UploadSeed struct {
	Name     string        `mapstructure:"name"`
	Size     int64         `mapstructure:"size"`
	Type     string        `mapstructure:"type"`
	Category string        `mapstructure:"category"`
	Status   string        `mapstructure:"status"`
	Progress float64       `mapstructure:"progress"`
	Age      time.Duration `mapstructure:"age"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布上传事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

const (
	DefaultSystemPrompt = "You are a helpful AI legal assistant. Provide informative guidance about legal topics, contract terms, and general legal concepts. Always remind users that your responses are for informational purposes only and do not constitute legal advice. Be clear, helpful, and professional."
	DefaultGreeting     = "Hello! I'm your AI legal assistant. I can help you understand your contracts, explain legal terms, and provide guidance on document-specific questions. What would you like to know?"
	DefaultFallback     = "I apologize, but I'm having trouble connecting to the AI service right now. Please try again in a moment."
	DefaultNoContent    = "I apologize, but I couldn't generate a response. Please try again."
	DefaultErrorNotice  = "Failed to get AI response. Please check your API configuration."
)

// setDefaults 注册所有默认值，配置文件中缺失的键会回退到这里。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.generation.temperature", 0.7)
	v.SetDefault("llm.generation.max_tokens", 500)
	v.SetDefault("llm.prompt.system", DefaultSystemPrompt)
	v.SetDefault("llm.prompt.greeting", DefaultGreeting)
	v.SetDefault("llm.prompt.fallback", DefaultFallback)
	v.SetDefault("llm.prompt.no_content", DefaultNoContent)
	v.SetDefault("llm.prompt.error_notice", DefaultErrorNotice)

	v.SetDefault("assistant.session_ttl", 30*time.Minute)

	v.SetDefault("upload.tick_interval", 500*time.Millisecond)
	v.SetDefault("upload.max_increment", 15.0)
	v.SetDefault("upload.settle_delay", 2*time.Second)
	v.SetDefault("upload.max_duration", 8*time.Second)

	v.SetDefault("kafka.topic", "upload-events")
}

// Load 从指定路径读取 YAML 文件并叠加环境变量，返回解析后的配置。
// configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	// 环境变量覆盖：LEGAL_LLM_API_KEY -> llm.api_key
	v.SetEnvPrefix("LEGAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "LEGAL_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("绑定环境变量失败: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
