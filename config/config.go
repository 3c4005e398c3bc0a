package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Room     RoomConfig     `mapstructure:"room"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address" validate:"required"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" validate:"min=1"`
	PingInterval   time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	MaxMessageSize int64         `mapstructure:"max_message_size" validate:"gt=0"`
}

type RoomConfig struct {
	DefaultName string   `mapstructure:"default_name" validate:"required"`
	Territories []string `mapstructure:"territories" validate:"min=1,unique,dive,required"`
	MaxPlayers  int      `mapstructure:"max_players" validate:"min=1"`
	InboxSize   int      `mapstructure:"inbox_size" validate:"min=1"`
	MaxRooms    int      `mapstructure:"max_rooms" validate:"min=0"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver" validate:"oneof=memory gorm postgres"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN renders the connection string shared by the gorm and lib/pq drivers.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.metrics_address", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.ping_interval", 30*time.Second)
	v.SetDefault("server.max_message_size", 4096)

	v.SetDefault("room.default_name", "default-room")
	v.SetDefault("room.territories", []string{"t1", "t2", "t3", "t4", "t5"})
	v.SetDefault("room.max_players", 8)
	v.SetDefault("room.inbox_size", 64)
	v.SetDefault("room.max_rooms", 16)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path, applies TERRITORY_* environment
// overrides and validates the result. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("territory")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
