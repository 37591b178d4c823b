package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	StormID          int `storm:"id"`
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseDbname   string
	DatabaseSslmode  string
	UploadPath       string // where incoming PDFs are stored
	OutputPath       string // where built DOCX files are stored
	ArtifactPath     string // per-conversion renders and diff overlays
	CleanupInterval  int    // hours between artifact and job cleanup runs
	JobRetentionDays int    // completed jobs older than this are deleted
	UseReverseProxy  bool
	BaseURL          string
	QualityConfig
	FrontEndConfig
}

// QualityConfig holds the tunables of the visual fidelity loop
type QualityConfig struct {
	DPI           int
	SSIMThreshold float64
	MaxRounds     int
	MaxTokens     int
	Strategy      string // "A" iterative post-build, "B" pre-build advisory
	GeminiAPIKey  string `json:"-"`
	SofficePath   string // "auto" probes the usual install locations
}

// FrontEndConfig stores all of the frontend settings
type FrontEndConfig struct {
	RecentConversionCount int
	ServerAPIURL          string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "godocx")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "godocx")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "")

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	// Storage configuration
	serverConfigLive.UploadPath = mustAbs(logger, getEnv("UPLOAD_PATH", "uploads"))
	serverConfigLive.OutputPath = mustAbs(logger, getEnv("OUTPUT_PATH", "output"))
	serverConfigLive.ArtifactPath = mustAbs(logger, getEnv("ARTIFACT_PATH", "artifacts"))
	serverConfigLive.CleanupInterval = getEnvInt("CLEANUP_INTERVAL", 24)
	serverConfigLive.JobRetentionDays = getEnvInt("JOB_RETENTION_DAYS", 7)

	// Quality loop configuration
	serverConfigLive.DPI = getEnvInt("RENDER_DPI", 150)
	serverConfigLive.SSIMThreshold = getEnvFloat("SSIM_THRESHOLD", 0.95)
	serverConfigLive.MaxRounds = getEnvInt("MAX_ROUNDS", 3)
	serverConfigLive.MaxTokens = getEnvInt("MAX_TOKENS_PER_CONVERSION", 50000)
	serverConfigLive.Strategy = getEnv("QUALITY_STRATEGY", "B")
	serverConfigLive.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	serverConfigLive.SofficePath = getEnv("SOFFICE_PATH", "auto")

	if serverConfigLive.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, AI difference detection will be disabled")
	}

	fmt.Println("\n========================================")
	fmt.Println("   godocx - PDF to Word Converter")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "godocx.log"))
	fmt.Println("Initializing...")

	// Reverse proxy configuration
	serverConfigLive.UseReverseProxy = getEnvBool("PROXY_ENABLED", false)
	serverConfigLive.BaseURL = getEnv("BASE_URL", "https://godocx.domain.org")

	if serverConfigLive.UseReverseProxy {
		logger.Info("Using Reverse Proxy", "baseURL", serverConfigLive.BaseURL)
	} else {
		logger.Info("Using relative URLs for API calls (frontend will use same host it was served from)")
	}

	// Frontend configuration
	serverConfigLive.RecentConversionCount = getEnvInt("RECENT_CONVERSION_COUNT", 10)
	serverConfigLive.ServerAPIURL = getEnv("SERVER_API_URL", "")

	logger.Info("About to setup database", "type", serverConfigLive.DatabaseType)

	return serverConfigLive, logger
}

// SetupFrontend loads configuration for frontend-only server
func SetupFrontend() (FrontEndConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
	_ = godotenv.Load("frontend.env")

	logger := setupLogging()
	Logger = logger

	frontendConfig := FrontEndConfig{}

	frontendConfig.RecentConversionCount = getEnvInt("RECENT_CONVERSION_COUNT", 10)
	frontendConfig.ServerAPIURL = getEnv("SERVER_API_URL", "http://localhost:8000")

	logger.Info("Frontend configuration loaded",
		"apiURL", frontendConfig.ServerAPIURL,
		"recentConversionCount", frontendConfig.RecentConversionCount)

	return frontendConfig, logger
}

func mustAbs(logger *slog.Logger, path string) string {
	abs, err := filepath.Abs(filepath.ToSlash(path))
	if err != nil {
		logger.Error("Failed creating absolute path", "path", path, "error", err)
		return path
	}
	return abs
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "godocx.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// GetPreferredOutboundIP gets preferred outbound IP of this machine
func GetPreferredOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP, nil
}
