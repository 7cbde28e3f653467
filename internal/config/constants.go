package config

import "time"

// Application constants for the RideX API service
const (
	// Application Info
	AppName    = "RideX API"
	AppVersion = "1.0.0"

	// Banner served on the base route
	LivenessBanner = "RideX API is running"

	// Environment
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	// Config file override
	ConfigFileEnv = "RIDEX_CONFIG"

	// Server defaults
	DefaultPort             = 5000
	DefaultReadTimeout      = 15 * time.Second
	DefaultWriteTimeout     = 15 * time.Second
	DefaultIdleTimeout      = 60 * time.Second
	DefaultStartupTimeout   = 20 * time.Second
	DefaultDrainTimeout     = 10 * time.Second
	DefaultForceExitTimeout = 30 * time.Second

	// Store defaults
	DefaultMongoURI          = "mongodb://localhost:27017/Zum"
	DefaultSelectionTimeout  = 5 * time.Second
	DefaultSocketIdleTimeout = 45 * time.Second
	DefaultMaxPoolSize       = 10
	DefaultStoreCloseTimeout = 5 * time.Second

	// CORS defaults
	DefaultFrontendURL = "http://localhost:5173"

	// Request bodies on /api
	DefaultMaxBodyBytes = 1 << 20

	// Rate limiting
	DefaultRateLimitRPS   = 100
	DefaultRateLimitBurst = 50

	// WebSocket defaults
	DefaultWebSocketPath       = "/ws"
	DefaultWebSocketBufferSize = 1024
	DefaultWebSocketSendBuffer = 256
	DefaultChannelCloseTimeout = 5 * time.Second
)
