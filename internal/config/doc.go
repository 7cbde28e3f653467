// Package config provides configuration management for the RideX API.
//
// # Configuration Sources
//
// Configuration is resolved in the following order, later sources winning:
//
//	1. Default values (Default)
//	2. A YAML file named by RIDEX_CONFIG, or config.yaml when present
//	3. Environment variables
//
// # Environment Variables
//
// The service keeps the flat variable names its deployments already use:
//
//	PORT=5000
//	NODE_ENV=production
//	MONGODB_URI=mongodb://db:27017/Zum
//	FRONTEND_URL=https://app.ridex.example
//	TWILIO_ACCOUNT_SID=AC...
//
// Nested keys such as SERVER_PORT are also accepted.
//
// # Validation
//
// Load validates struct tags with go-playground/validator and then checks
// timing relationships: the store selection timeout must fit inside the
// startup timeout, and the force-exit ceiling must cover every shutdown step.
package config
