package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"vitals-compare/common/config"
	"vitals-compare/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// InputSpec 一个待比对的导出文件
type InputSpec struct {
	Kind     string `yaml:"kind"`     // telemetry / dozee / earlysense，为空时按文件名识别
	Location string `yaml:"location"` // 本地路径或 http(s) URL
	Label    string `yaml:"label"`    // 输出文件名前缀，默认为来源名
}

// Config 比对工具配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Compare struct {
		Session     string
		OutputDir   string
		Workbook    string        // 对比工作簿路径，为空则不生成
		HTTPTimeout time.Duration // 远程导出文件下载超时

		StreamOutput     string        // Redis Streams 汇总流
		CoverageCacheTTL time.Duration // 覆盖率缓存 TTL

		Inputs []InputSpec
	}

	Log struct {
		Level  string
		Format string
	}
}

// jobFile YAML 任务文件，非空字段覆盖环境变量
type jobFile struct {
	Session   string      `yaml:"session"`
	OutputDir string      `yaml:"output_dir"`
	Workbook  string      `yaml:"workbook"`
	Inputs    []InputSpec `yaml:"inputs"`
}

// Load 加载配置（.env 可选）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "vitals_compare")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "vitals-compare")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "vitals-compare")
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Compare.Session = getEnv("COMPARE_SESSION", "default")
	cfg.Compare.OutputDir = getEnv("COMPARE_OUTPUT_DIR", "output")
	cfg.Compare.Workbook = getEnv("COMPARE_WORKBOOK", "")
	cfg.Compare.StreamOutput = getEnv("STREAM_OUTPUT", "vitals-compare:summaries")

	var err error
	if cfg.Compare.HTTPTimeout, err = getDuration("COMPARE_HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Compare.CoverageCacheTTL, err = getDuration("COVERAGE_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "console")

	return cfg, nil
}

// ApplyJobFile 读取 YAML 任务文件并覆盖配置
func (c *Config) ApplyJobFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read job file: %w", err)
	}

	var job jobFile
	if err := yaml.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("failed to parse job file %s: %w", path, err)
	}

	if job.Session != "" {
		c.Compare.Session = job.Session
	}
	if job.OutputDir != "" {
		c.Compare.OutputDir = job.OutputDir
	}
	if job.Workbook != "" {
		c.Compare.Workbook = job.Workbook
	}
	for i, in := range job.Inputs {
		if strings.TrimSpace(in.Location) == "" {
			return fmt.Errorf("job file %s: input %d has no location", path, i+1)
		}
		c.Compare.Inputs = append(c.Compare.Inputs, in)
	}
	return nil
}

// Validate 检查配置
func (c *Config) Validate() error {
	session := strings.TrimSpace(c.Compare.Session)
	if session == "" {
		return fmt.Errorf("session must not be empty")
	}
	if strings.ContainsAny(session, "/: \t") {
		return fmt.Errorf("session %q must not contain '/', ':' or whitespace", session)
	}
	if c.Compare.OutputDir == "" {
		return fmt.Errorf("output dir must not be empty")
	}
	for _, in := range c.Compare.Inputs {
		if err := ValidateLabel(in.Label); err != nil {
			return err
		}
		if in.Kind == "" {
			continue
		}
		if _, err := models.ParseSourceKind(in.Kind); err != nil {
			return err
		}
	}
	return nil
}

// ValidateLabel 输出前缀必须是单个文件名片段（不能含路径分隔符或 ".."）
func ValidateLabel(label string) error {
	if label == "" {
		return nil
	}
	if strings.ContainsAny(label, `/\`) || strings.Contains(label, "..") || label == "." {
		return fmt.Errorf("invalid label %q: must be a plain file name prefix", label)
	}
	return nil
}

// ParseInputArg 解析命令行输入 "kind=location" 或仅 "location"
//
// 只有当 '=' 之前是已知来源名时才按 kind=location 解析，避免误拆 URL 查询参数。
func ParseInputArg(arg string) (InputSpec, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return InputSpec{}, fmt.Errorf("empty input")
	}
	if name, location, ok := strings.Cut(arg, "="); ok {
		if _, err := models.ParseSourceKind(name); err == nil {
			if strings.TrimSpace(location) == "" {
				return InputSpec{}, fmt.Errorf("input %q has no location", arg)
			}
			return InputSpec{Kind: strings.TrimSpace(name), Location: strings.TrimSpace(location)}, nil
		}
	}
	return InputSpec{Location: arg}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration 解析时长，纯数字按秒处理
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
