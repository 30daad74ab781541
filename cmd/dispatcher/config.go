package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/andrej220/NTC/pkg/config"
)

const (
	serviceName    = "NTC-dispatcher"
	configFileName = "config.yaml"
)

type DispatcherConfig struct {
	Server struct {
		Port string `yaml:"port" json:"port" validate:"required"`
	} `yaml:"server" json:"server"`

	Kafka struct {
		Brokers       []string `yaml:"brokers" json:"brokers" validate:"required,min=1"`
		RequestTopic  string   `yaml:"requestTopic" json:"requestTopic" validate:"required"`
		PullTopic     string   `yaml:"pullTopic" json:"pullTopic" validate:"required"`
		ResponseTopic string   `yaml:"responseTopic" json:"responseTopic" validate:"required"`
		BatchTopic    string   `yaml:"batchTopic" json:"batchTopic" validate:"required"`
		GroupID       string   `yaml:"groupID" json:"groupID" validate:"required"`
	} `yaml:"kafka" json:"kafka"`

	Catalog struct {
		MongoURI   string `yaml:"mongoURI" json:"mongoURI" validate:"required"`
		DBName     string `yaml:"dbName" json:"dbName" validate:"required"`
		Collection string `yaml:"collection" json:"collection" validate:"required"`
	} `yaml:"catalog" json:"catalog"`
}

func loadConfig(path string) (*DispatcherConfig, error) {
	store, err := config.NewStore(config.FileStore, &config.FileConfig{Path: path})
	if err != nil {
		return nil, err
	}

	cfg := &DispatcherConfig{}
	if err := store.Load(cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}
	return cfg, nil
}
