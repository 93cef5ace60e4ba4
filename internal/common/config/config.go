package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
	}

	Telegram struct {
		BotToken string `env:"BOT_TOKEN,required"`
		// Long-poll timeout in seconds for getUpdates.
		PollTimeout int `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"30"`
	}

	OpenAI struct {
		SecretKey string `env:"OPENAI_SECRET_KEY,required"`
		BaseURL   string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
		ChatModel string `env:"CHAT_MODEL" envDefault:"gpt-3.5-turbo"`
		ImageSize string `env:"IMAGE_SIZE" envDefault:"1024x1024"`
	}

	Storage struct {
		// Backend selects the account store implementation: sqlite or redis.
		Backend    string `env:"STORAGE" envDefault:"sqlite"`
		SQLitePath string `env:"SQLITE_PATH" envDefault:"gptgate.db"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}
}

func Load() (*Config, error) {
	// A missing .env file is fine; in production the variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
