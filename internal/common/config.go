package common

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all process configuration, read once from the environment at
// startup and passed by reference to everything that needs it.
type Config struct {
	AppEnv string // environment (development/production)

	ListenAddr string // server listen address
	CertPath   string // TLS certificate path (empty disables TLS)
	KeyPath    string // TLS key path

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string // redis address (host:port) for the job queue
	RedisPassword string

	LogPath string // log file path
	DataDir string // root directory for job output and stage logs

	DockerHosts  []string // pool of docker daemon endpoints
	DockerUseEnv bool     // discover the daemon from DOCKER_HOST et al

	ExternalURL string // base URL used in commit status target links

	GithubAPIBase string
	GithubToken   string
	GitlabAPIBase string
	GitlabToken   string

	WorkerConcurrency int // jobs executed in parallel by one worker process

	JWTKey string
}

// LoadConfig reads configuration from the environment, applying defaults
// where sensible. Values with no default must be set in the environment.
func LoadConfig() Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "3306"))
	concurrency, _ := strconv.Atoi(getEnv("WORKER_CONCURRENCY", "5"))

	return Config{
		AppEnv: getEnv("APP_ENV", "development"),

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		CertPath:   getEnv("CERT_PATH", ""),
		KeyPath:    getEnv("KEY_PATH", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "slipway"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		LogPath: getEnv("LOG_PATH", "./logs/slipway.log"),
		DataDir: getEnv("DATA_DIR", "./data"),

		DockerHosts: splitList(getEnv(
			"DOCKER_HOSTS", "unix:///var/run/docker.sock",
		)),
		DockerUseEnv: getEnv("DOCKER_USE_ENV", "") != "",

		ExternalURL: getEnv("EXTERNAL_URL", "http://localhost:8080"),

		GithubAPIBase: getEnv("GITHUB_API_BASE", "https://api.github.com"),
		GithubToken:   getEnv("GITHUB_TOKEN", ""),
		GitlabAPIBase: getEnv("GITLAB_API_BASE", "https://gitlab.com"),
		GitlabToken:   getEnv("GITLAB_TOKEN", ""),

		WorkerConcurrency: concurrency,

		JWTKey: getEnv("JWT_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
