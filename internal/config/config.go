package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/taskfarm/internal/mandelbrot"
	"yqhp/taskfarm/pkg/logger"
)

// Transport kinds.
const (
	TransportInproc    = "inproc"
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// Config represents the complete configuration of the task farm.
type Config struct {
	Manager    ManagerConfig    `yaml:"manager"`
	Worker     WorkerConfig     `yaml:"worker"`
	Transport  TransportConfig  `yaml:"transport"`
	Server     ServerConfig     `yaml:"server"`
	Mandelbrot MandelbrotConfig `yaml:"mandelbrot"`
	Logging    LoggingConfig    `yaml:"logging"`
	Report     ReportConfig     `yaml:"report"`
}

// ManagerConfig holds coordinator settings.
type ManagerConfig struct {
	NumWorkers      int           `yaml:"num_workers" env:"FARM_MANAGER_NUM_WORKERS"`
	RegisterTimeout time.Duration `yaml:"register_timeout" env:"FARM_MANAGER_REGISTER_TIMEOUT"`
	RunTimeout      time.Duration `yaml:"run_timeout" env:"FARM_MANAGER_RUN_TIMEOUT"`
}

// WorkerConfig holds settings of a remote worker process.
type WorkerConfig struct {
	// Rank requested from the coordinator, 0 lets the coordinator assign one.
	Rank       int    `yaml:"rank" env:"FARM_WORKER_RANK"`
	Name       string `yaml:"name" env:"FARM_WORKER_NAME"`
	ManagerURL string `yaml:"manager_url" env:"FARM_WORKER_MANAGER_URL"`
}

// TransportConfig selects how the coordinator and the workers talk.
type TransportConfig struct {
	Kind  string      `yaml:"kind" env:"FARM_TRANSPORT_KIND"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds settings of the Redis list transport.
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"FARM_REDIS_ADDR"`
	Password     string        `yaml:"password" env:"FARM_REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"FARM_REDIS_DB"`
	Prefix       string        `yaml:"prefix" env:"FARM_REDIS_PREFIX"`
	RunID        string        `yaml:"run_id" env:"FARM_REDIS_RUN_ID"`
	Size         int           `yaml:"size" env:"FARM_REDIS_SIZE"`
	PollInterval time.Duration `yaml:"poll_interval" env:"FARM_REDIS_POLL_INTERVAL"`
	KeyTTL       time.Duration `yaml:"key_ttl" env:"FARM_REDIS_KEY_TTL"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled" env:"FARM_SERVER_ENABLED"`
	Address      string        `yaml:"address" env:"FARM_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"FARM_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"FARM_SERVER_WRITE_TIMEOUT"`
}

// MandelbrotConfig describes the sample workload.
type MandelbrotConfig struct {
	XMin     float64 `yaml:"x_min" env:"FARM_MANDELBROT_X_MIN"`
	XMax     float64 `yaml:"x_max" env:"FARM_MANDELBROT_X_MAX"`
	YMin     float64 `yaml:"y_min" env:"FARM_MANDELBROT_Y_MIN"`
	YMax     float64 `yaml:"y_max" env:"FARM_MANDELBROT_Y_MAX"`
	Nx       int     `yaml:"nx" env:"FARM_MANDELBROT_NX"`
	Ny       int     `yaml:"ny" env:"FARM_MANDELBROT_NY"`
	Tasks    int     `yaml:"tasks" env:"FARM_MANDELBROT_TASKS"`
	MaxIters int     `yaml:"max_iters" env:"FARM_MANDELBROT_MAX_ITERS"`
	Output   string  `yaml:"output" env:"FARM_MANDELBROT_OUTPUT"`
}

// Params converts the section to mandelbrot parameters.
func (c MandelbrotConfig) Params() mandelbrot.Params {
	return mandelbrot.Params{
		XMin:     c.XMin,
		XMax:     c.XMax,
		YMin:     c.YMin,
		YMax:     c.YMax,
		Nx:       c.Nx,
		Ny:       c.Ny,
		MaxIters: c.MaxIters,
	}
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"FARM_LOG_LEVEL"`
	Format     string `yaml:"format" env:"FARM_LOG_FORMAT"`
	Output     string `yaml:"output" env:"FARM_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"FARM_LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"FARM_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"FARM_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"FARM_LOG_MAX_AGE"`
}

// Logger converts the section to logger configuration.
func (c LoggingConfig) Logger() *logger.Config {
	return &logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
	}
}

// ReportConfig selects the result reporters.
type ReportConfig struct {
	Console  bool   `yaml:"console" env:"FARM_REPORT_CONSOLE"`
	Color    bool   `yaml:"color" env:"FARM_REPORT_COLOR"`
	JSONPath string `yaml:"json_path" env:"FARM_REPORT_JSON_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	params := mandelbrot.DefaultParams()
	return &Config{
		Manager: ManagerConfig{
			NumWorkers:      4,
			RegisterTimeout: time.Minute,
		},
		Worker: WorkerConfig{
			ManagerURL: "ws://localhost:8080/api/v1/worker-ws",
		},
		Transport: TransportConfig{
			Kind: TransportInproc,
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				Prefix:       "taskfarm",
				PollInterval: time.Second,
				KeyTTL:       time.Hour,
			},
		},
		Server: ServerConfig{
			Enabled:      false,
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Mandelbrot: MandelbrotConfig{
			XMin:     params.XMin,
			XMax:     params.XMax,
			YMin:     params.YMin,
			YMax:     params.YMax,
			Nx:       params.Nx,
			Ny:       params.Ny,
			Tasks:    100,
			MaxIters: params.MaxIters,
			Output:   "mandelbrot.png",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Report: ReportConfig{
			Console: true,
			Color:   true,
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		cmdArgs: make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets dot-notation overrides, e.g. "manager.num_workers" -> "8".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	for key, value := range l.cmdArgs {
		if err := SetValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("应用命令行参数覆盖失败: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. A missing file keeps the defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}
	return nil
}

// SetValue sets a configuration value by its yaml dot path, e.g. "transport.redis.addr".
func SetValue(cfg *Config, path, value string) error {
	v := reflect.ValueOf(cfg).Elem()
	parts := strings.Split(path, ".")

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}
	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, strings.ReplaceAll(name, "_", "")) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}
	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
