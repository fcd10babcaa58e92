// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Triage        TriageConfig        `mapstructure:"triage"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	Admin         AdminConfig         `mapstructure:"admin"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储会话令牌相关的配置。
type JWTConfig struct {
	Secret                  string `mapstructure:"secret"`
	ConversationExpireHours int    `mapstructure:"conversation_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// TriageConfig 描述远端分诊服务及三类调用的超时。
type TriageConfig struct {
	BackendURL      string        `mapstructure:"backend_url"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	ExchangeTimeout time.Duration `mapstructure:"exchange_timeout"`
	LookupTimeout   time.Duration `mapstructure:"lookup_timeout"`
	DefaultRadiusKM int           `mapstructure:"default_radius_km"`
}

// ConversationConfig 控制会话控制器的文案与生命周期。
type ConversationConfig struct {
	DefaultLanguage string            `mapstructure:"default_language"`
	Welcome         map[string]string `mapstructure:"welcome"`
	FallbackReply   string            `mapstructure:"fallback_reply"`
	LookupErrorText string            `mapstructure:"lookup_error_text"`
	IdleTTL         time.Duration     `mapstructure:"idle_ttl"`
	SweepInterval   time.Duration     `mapstructure:"sweep_interval"`
	SnapshotTTL     time.Duration     `mapstructure:"snapshot_ttl"`
}

// AdminConfig 存储管理接口的密钥哈希（bcrypt）。
type AdminConfig struct {
	TokenHash string `mapstructure:"token_hash"`
}

// DefaultBackendURL 是未配置时使用的本地开发地址。
const DefaultBackendURL = "http://localhost:8000"

const (
	DefaultWelcomeEN = "Hello! I'm HealthGuide, your AI assistant for the Fever Helpline. I understand you're concerned about a fever. Can you tell me about your symptoms? What are you experiencing right now?"
	DefaultWelcomeES = "¡Hola! Soy HealthGuide, tu asistente de IA de la Línea de Fiebre. Entiendo que te preocupa la fiebre. ¿Puedes contarme tus síntomas? ¿Qué estás sintiendo ahora mismo?"
	DefaultWelcomeHI = "नमस्ते! मैं HealthGuide हूँ, फीवर हेल्पलाइन का आपका AI सहायक। मैं समझता हूँ कि आप बुखार को लेकर चिंतित हैं। क्या आप अपने लक्षण बता सकते हैं? आप अभी क्या महसूस कर रहे हैं?"

	DefaultFallbackReply   = "I apologize, but I'm having trouble processing your request. Please try again or contact emergency services if this is urgent."
	DefaultLookupErrorText = "Unable to fetch providers. Please try again later."
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.conversation_expire_hours", 12)
	v.SetDefault("kafka.topic", "conversation.outcomes")
	v.SetDefault("kafka.group_id", "healthguide-outcomes")
	v.SetDefault("elasticsearch.index_name", "triage_outcomes")
	v.SetDefault("minio.bucket_name", "transcripts")

	v.SetDefault("triage.backend_url", DefaultBackendURL)
	v.SetDefault("triage.session_timeout", 5*time.Second)
	v.SetDefault("triage.exchange_timeout", 60*time.Second)
	v.SetDefault("triage.lookup_timeout", 15*time.Second)
	v.SetDefault("triage.default_radius_km", 5)

	v.SetDefault("conversation.default_language", "en")
	v.SetDefault("conversation.welcome", map[string]string{
		"en": DefaultWelcomeEN,
		"es": DefaultWelcomeES,
		"hi": DefaultWelcomeHI,
	})
	v.SetDefault("conversation.fallback_reply", DefaultFallbackReply)
	v.SetDefault("conversation.lookup_error_text", DefaultLookupErrorText)
	v.SetDefault("conversation.idle_ttl", 2*time.Hour)
	v.SetDefault("conversation.sweep_interval", 5*time.Minute)
	v.SetDefault("conversation.snapshot_ttl", 7*24*time.Hour)
}

// Load 读取配置文件（可选）并叠加环境变量，返回解析后的配置。
// 文件不存在时只使用默认值与环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 单独绑定的环境变量名，与前端约定保持一致
	_ = v.BindEnv("triage.backend_url", "TRIAGE_BACKEND_URL")
	_ = v.BindEnv("database.mysql.dsn", "MYSQL_DSN")
	_ = v.BindEnv("database.redis.addr", "REDIS_ADDR")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if strings.TrimSpace(cfg.Triage.BackendURL) == "" {
		cfg.Triage.BackendURL = DefaultBackendURL
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

// WelcomeFor 返回指定语言的欢迎语，未知语言回退到默认语言，再回退到英文。
func (c ConversationConfig) WelcomeFor(language string) string {
	if msg, ok := c.Welcome[strings.ToLower(strings.TrimSpace(language))]; ok && msg != "" {
		return msg
	}
	if msg, ok := c.Welcome[c.DefaultLanguage]; ok && msg != "" {
		return msg
	}
	return DefaultWelcomeEN
}
