package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	MessageStorePostgres = "postgres"
	MessageStoreMongo    = "mongo"

	RelayNone  = "none"
	RelayRedis = "redis"
	RelayNats  = "nats"
)

type Config struct {
	Port                    string
	Env                     string
	PostgresConnStr         string
	MongoURI                string
	MongoDatabase           string
	MessageStore            string
	JWTSecret               string
	FirebaseCredentialsPath string
	FCMEnabled              bool
	BusRelay                string
	BusQueueSize            int
	RedisURL                string
	NatsURL                 string
}

// Load reads configuration from the environment, after applying a .env file
// if one is present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, assuming environment variables are set.")
	}

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		PostgresConnStr:         getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "collab"),
		MessageStore:            strings.ToLower(getEnv("MESSAGE_STORE", MessageStorePostgres)),
		JWTSecret:               getEnv("JWT_SECRET", "supersecretjwtkey"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FCMEnabled:              getEnvBool("FCM_ENABLED", false),
		BusRelay:                strings.ToLower(getEnv("BUS_RELAY", RelayNone)),
		BusQueueSize:            getEnvInt("BUS_QUEUE_SIZE", 64),
		RedisURL:                getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NatsURL:                 getEnv("NATS_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}
