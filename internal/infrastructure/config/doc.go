// Package config provides configuration loading for the Gray Logic client.
//
// Configuration is loaded from a YAML file and merged with environment
// variable overrides in a fixed order: hardcoded defaults first, file values
// second, environment variables last. The merged result is validated before
// it is handed to the rest of the client.
//
// # Environment Variables
//
// Overrides follow the pattern GRAYLOGIC_CLIENT_SECTION_KEY:
//
//	GRAYLOGIC_CLIENT_PLATFORM_HOST=core.local
//	GRAYLOGIC_CLIENT_PLATFORM_PORT=8443
//	GRAYLOGIC_CLIENT_AUTH_TOKEN=eyJhbGciOi...
//	GRAYLOGIC_CLIENT_AUTH_MOCK=true
//	GRAYLOGIC_CLIENT_LOG_LEVEL=debug
//
// Tokens should come from the environment rather than the file so they never
// land on disk alongside the rest of the configuration.
//
// # Usage
//
//	cfg, err := config.Load("client.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Address())
package config
