package utils

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig loads a .env file from path (when present) and binds every
// environment variable into viper so flags and env share one lookup.
func LoadConfig(path string) {
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}
