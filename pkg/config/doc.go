// Package config loads typed configuration structs from the process
// environment, optionally seeded from .env files.
//
// Parsing is delegated to github.com/caarlos0/env/v11 and .env loading to
// github.com/joho/godotenv. Fields are described with env tags:
//
//	type Config struct {
//		Session session.Config
//		Redis   redis.Config
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
// Load reads the .env file in the working directory once per process if it
// exists; values already present in the environment are never overridden.
package config
