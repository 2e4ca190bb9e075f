// Package config содержит логику чтения конфигурации сервиса синхронизации.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса синхронизации котировок.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	HubspotBaseURL string        `env:"HUBSPOT_BASE_URL"`
	HubspotToken   string        `env:"HUBSPOT_TOKEN"`
	ShopifyBaseURL string        `env:"SHOPIFY_BASE_URL"`
	ShopifyToken   string        `env:"SHOPIFY_TOKEN"`
	GatewayPool    int           `env:"GATEWAY_POOL_SIZE"`
	GatewayMinGap  time.Duration `env:"GATEWAY_MIN_GAP"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envHubspotBaseURL := cfg.HubspotBaseURL
	envHubspotToken := cfg.HubspotToken
	envShopifyBaseURL := cfg.ShopifyBaseURL
	envShopifyToken := cfg.ShopifyToken
	envGatewayPool := cfg.GatewayPool
	envGatewayMinGap := cfg.GatewayMinGap

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for the sync run history (optional)")
	flag.StringVar(&cfg.HubspotBaseURL, "hubspot-url", "https://api.hubapi.com", "HubSpot API base URL")
	flag.StringVar(&cfg.HubspotToken, "hubspot-token", "", "HubSpot private app token")
	flag.StringVar(&cfg.ShopifyBaseURL, "shopify-url", "", "Shopify admin API base URL (https://<shop>.myshopify.com)")
	flag.StringVar(&cfg.ShopifyToken, "shopify-token", "", "Shopify admin API access token")
	flag.IntVar(&cfg.GatewayPool, "pool", 0, "max concurrent HubSpot calls (0 = default)")
	flag.DurationVar(&cfg.GatewayMinGap, "min-gap", 0, "min interval between HubSpot calls (0 = default)")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envHubspotBaseURL != "" {
		cfg.HubspotBaseURL = envHubspotBaseURL
	}
	if envHubspotToken != "" {
		cfg.HubspotToken = envHubspotToken
	}
	if envShopifyBaseURL != "" {
		cfg.ShopifyBaseURL = envShopifyBaseURL
	}
	if envShopifyToken != "" {
		cfg.ShopifyToken = envShopifyToken
	}
	if envGatewayPool != 0 {
		cfg.GatewayPool = envGatewayPool
	}
	if envGatewayMinGap != 0 {
		cfg.GatewayMinGap = envGatewayMinGap
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.HubspotBaseURL == "" {
		cfg.HubspotBaseURL = "https://api.hubapi.com"
	}

	return cfg, nil
}
