// Package config provides configuration parsing for Orrery deployments.
//
// The configuration is stored in orrery.json. This package handles
// loading, saving, and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  "listen": "localhost:8080",
//	  "database": "orrery.db",
//	  "astro": {
//	    "baseUrl": "https://astro.example.com",
//	    "apiKey": "..."
//	  },
//	  "exports": {
//	    "bucket": "orrery-exports",
//	    "prefix": "charts/"
//	  },
//	  "writeRate": 10,
//	  "writeBurst": 5,
//	  "metrics": true,
//	  "tracing": false
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
