package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/tracing"
)

type Config struct {
	AppConfig            *AppConfig
	Logger               *logger.Config
	Tracing              *tracing.JaegerConfig
	EngineConfig         *EngineConfig
	EngineDatabaseConfig *EngineDatabaseConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:            &AppConfig{},
		Logger:               &logger.Config{},
		Tracing:              &tracing.JaegerConfig{},
		EngineConfig:         &EngineConfig{},
		EngineDatabaseConfig: &EngineDatabaseConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailroom config: %v", err)
	}

	return config, nil
}
