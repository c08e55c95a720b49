package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`

	Transcode TranscodeConfig `mapstructure:"transcode"`
	Speech    SpeechConfig    `mapstructure:"speech"`
}

// TranscodeConfig drives the per-session ffmpeg subprocess.
type TranscodeConfig struct {
	BinaryPath   string        `mapstructure:"binary_path"`
	SampleRate   int           `mapstructure:"sample_rate"`
	Channels     int           `mapstructure:"channels"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// SpeechConfig configures the streaming recognizer.
type SpeechConfig struct {
	Region       string `mapstructure:"region"`
	LanguageCode string `mapstructure:"language_code"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 5000)
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("transcode.binary_path", "ffmpeg")
	v.SetDefault("transcode.sample_rate", 16000)
	v.SetDefault("transcode.channels", 1)
	v.SetDefault("transcode.drain_timeout", "3s")
	v.SetDefault("speech.region", "us-east-1")
	v.SetDefault("speech.language_code", "en-US")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
