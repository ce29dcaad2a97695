package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional file and environment variables,
// layered over the built-in defaults. Environment variables use the CAPSIZE
// prefix, e.g. CAPSIZE_TARGET_MB=5.
func Load(configPath string) (*Config, error) {
	setDefaults()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("CAPSIZE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("ffmpeg_path", DefaultFFmpegPath)
	viper.SetDefault("ffprobe_path", DefaultFFprobePath)
	viper.SetDefault("target_mb", DefaultTargetMB)
	viper.SetDefault("encoder", DefaultEncoderName)
	viper.SetDefault("device_id", -1)
	viper.SetDefault("speed", string(SpeedBalanced))
	viper.SetDefault("max_concurrent", DefaultMaxConcurrent)
	viper.SetDefault("log_level", "info")
}
