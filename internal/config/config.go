package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	LocationID            string
	AuthSecret            string
	AccessTokenTTLMinutes int
	ServerURL             string
	TerminalID            string
	SyncProbeSeconds      int
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "43200"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 43200
	}
	probe, err := strconv.Atoi(getEnv("SYNC_PROBE_SECONDS", "15"))
	if err != nil || probe < 1 {
		probe = 15
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		LocationID:            getEnv("DEFAULT_LOCATION_ID", "main-store"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ServerURL:             strings.TrimRight(getEnv("SERVER_URL", "http://127.0.0.1:8080"), "/"),
		TerminalID:            getEnv("TERMINAL_ID", "terminal-1"),
		SyncProbeSeconds:      probe,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
