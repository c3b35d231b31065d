// Package config defines the YAML configuration for a streamer instance.
//
// Config files support ${VAR} environment variable expansion, which keeps
// API credentials out of the file itself:
//
//	api:
//	  api_key: ${MEXC_API_KEY}
//	  secret_key: ${MEXC_SECRET_KEY}
package config
