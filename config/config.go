package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
	Shift      ShiftConfig      `mapstructure:"shift"`
	Attendance AttendanceConfig `mapstructure:"attendance"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置（Token 由管理后台签发，本服务只做校验）
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ShiftConfig 班次估算配置
type ShiftConfig struct {
	Timezone               string         `mapstructure:"timezone"`
	ExcludedWeekdays       []string       `mapstructure:"excluded_weekdays"` // sunday | monday ...
	Holidays               []string       `mapstructure:"holidays"`          // YYYY-MM-DD
	HolidayICSPath         string         `mapstructure:"holiday_ics_path"`
	DefaultDurationMinutes int            `mapstructure:"default_duration_minutes"`
	RoleDurations          map[string]int `mapstructure:"role_durations"` // station_role → 分钟
	AlgorithmVersion       int            `mapstructure:"algorithm_version"`
	GroupConcurrency       int            `mapstructure:"group_concurrency"`
	FetchConcurrency       int            `mapstructure:"fetch_concurrency"`
	MaxRangeDays           int            `mapstructure:"max_range_days"`
	CoverageCacheTTL       time.Duration  `mapstructure:"coverage_cache_ttl"`
}

// AttendanceConfig 外部考勤系统配置
type AttendanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// SchedulerConfig 定时计算任务配置
type SchedulerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ComputeSpec  string `mapstructure:"compute_spec"` // 含秒的 cron 表达式
	LookbackDays int    `mapstructure:"lookback_days"`
	RunOnStart   bool   `mapstructure:"run_on_start"` // 启动时立即补算一次
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "factory_production")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("shift.timezone", "UTC")
	v.SetDefault("shift.excluded_weekdays", []string{"sunday"})
	v.SetDefault("shift.holidays", []string{})
	v.SetDefault("shift.holiday_ics_path", "")
	v.SetDefault("shift.default_duration_minutes", 540)
	v.SetDefault("shift.algorithm_version", 1)
	v.SetDefault("shift.group_concurrency", 4)
	v.SetDefault("shift.fetch_concurrency", 8)
	v.SetDefault("shift.max_range_days", 366)
	v.SetDefault("shift.coverage_cache_ttl", "5m")

	v.SetDefault("attendance.base_url", "http://localhost:9090")
	v.SetDefault("attendance.api_key", "")
	v.SetDefault("attendance.timeout", "10s")
	v.SetDefault("attendance.max_retries", 2)
	v.SetDefault("attendance.retry_base_delay", "200ms")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.compute_spec", "0 30 2 * * *")
	v.SetDefault("scheduler.lookback_days", 1)
	v.SetDefault("scheduler.run_on_start", true)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("FACTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if _, err := time.LoadLocation(c.Shift.Timezone); err != nil {
		return fmt.Errorf("配置校验失败: shift.timezone 无效: %w", err)
	}
	if c.Shift.DefaultDurationMinutes <= 0 {
		return fmt.Errorf("配置校验失败: shift.default_duration_minutes 必须大于 0")
	}
	for role, minutes := range c.Shift.RoleDurations {
		if minutes <= 0 {
			return fmt.Errorf("配置校验失败: shift.role_durations.%s 必须大于 0", role)
		}
	}
	if c.Shift.AlgorithmVersion <= 0 {
		return fmt.Errorf("配置校验失败: shift.algorithm_version 必须大于 0")
	}
	if c.Shift.GroupConcurrency <= 0 || c.Shift.FetchConcurrency <= 0 {
		return fmt.Errorf("配置校验失败: shift 并发上限必须大于 0")
	}
	if c.Shift.MaxRangeDays <= 0 {
		return fmt.Errorf("配置校验失败: shift.max_range_days 必须大于 0")
	}
	if c.Attendance.BaseURL == "" {
		return fmt.Errorf("配置校验失败: attendance.base_url 不能为空")
	}
	if c.Scheduler.Enabled && c.Scheduler.LookbackDays <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.lookback_days 必须大于 0")
	}
	return nil
}
