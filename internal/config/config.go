package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DBSource       string
	DataDir        string
	MigrationsPath string
	Port           string
	Env            string
	LogLevel       string
}

// Load reads configuration from the environment, after loading a local
// .env file if one exists. DB_SOURCE is optional: when empty the service
// runs on the file-backed snapshot store instead of Postgres.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", "data")
	v.SetDefault("migrations_path", "migrations")

	return &Config{
		DBSource:       v.GetString("db_source"),
		DataDir:        v.GetString("data_dir"),
		MigrationsPath: v.GetString("migrations_path"),
		Port:           v.GetString("server_port"),
		Env:            v.GetString("environment"),
		LogLevel:       v.GetString("log_level"),
	}, nil
}
