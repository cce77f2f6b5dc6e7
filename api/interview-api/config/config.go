// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`

	// live agent endpoint
	AgentUrl   string `mapstructure:"agent_url" validate:"required"`
	AgentToken string `mapstructure:"agent_token"`

	// post-session evaluation
	GeminiApiKey    string `mapstructure:"gemini_api_key"`
	EvaluationModel string `mapstructure:"evaluation_model"`

	// local persistence
	DatabasePath string `mapstructure:"database_path" validate:"required"`
	ArtifactDir  string `mapstructure:"artifact_dir" validate:"required"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// keeping watch on https://github.com/spf13/viper/issues/188
	v.SetDefault("SERVICE_NAME", "interview-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("AGENT_URL", "ws://localhost:9090/live")
	v.SetDefault("AGENT_TOKEN", "")

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("EVALUATION_MODEL", "gemini-2.5-flash")

	v.SetDefault("DATABASE_PATH", "interviews.db")
	v.SetDefault("ARTIFACT_DIR", "artifacts")
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
