package village

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string

	DatabaseDriver string
	DatabaseURL    string

	// RunnerProvider selects the execution backend: local | fargate |
	// cloudrun.
	RunnerProvider string
	// SchedulerProvider selects the durable cron backend: local |
	// cloudscheduler.
	SchedulerProvider string

	// TriggerURL is the endpoint durable schedulers call on each tick.
	TriggerURL string

	BuildTimeout time.Duration

	UseInfisical bool
	// SecretNames is the allowlist of secrets injected into executed
	// containers.
	SecretNames []string

	GCPProjectID        string
	GCPRegion           string
	GCPServiceAccount   string
	AWSRegion           string
	ECSCluster          string
	ECSTaskFamily       string
	ECSContainerName    string
	ECSLogGroup         string
	ECSExecutionRoleArn string
	ECSSubnets          []string
	ECSSecurityGroups   []string
}

func Load() (*Config, error) {
	// let's load the config from the .env file
	err := godotenv.Load()
	if err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	buildTimeout, err := time.ParseDuration(getEnv("BUILD_TIMEOUT", "10m"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:              getEnv("PORT", "8000"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		DatabaseDriver:    getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:       getEnv("DATABASE_URL", "village.db"),
		RunnerProvider:    getEnv("RUNNER_PROVIDER", "local"),
		SchedulerProvider: getEnv("SCHEDULER_PROVIDER", "local"),
		TriggerURL:        getEnv("TRIGGER_URL", "http://localhost:8000/schedule/run"),
		BuildTimeout:      buildTimeout,
		UseInfisical:      getEnv("USE_INFISICAL", "") == "true",
		SecretNames:       splitList(getEnv("SECRET_NAMES", "")),
		GCPProjectID:      getEnv("GCP_PROJECT_ID", ""),
		GCPRegion:         getEnv("GCP_REGION", "us-central1"),
		GCPServiceAccount: getEnv("GCP_SERVICE_ACCOUNT", ""),
		AWSRegion:         getEnv("AWS_REGION", "us-west-1"),
		ECSCluster:        getEnv("ECS_CLUSTER", "village-cluster"),
		ECSTaskFamily:     getEnv("ECS_TASK_FAMILY", "village-run"),
		ECSContainerName:  getEnv("ECS_CONTAINER_NAME", "village"),
		ECSLogGroup:       getEnv("ECS_LOG_GROUP", "/village/runs"),
		ECSExecutionRoleArn: getEnv("ECS_EXECUTION_ROLE_ARN", ""),
		ECSSubnets:          splitList(getEnv("ECS_SUBNETS", "")),
		ECSSecurityGroups:   splitList(getEnv("ECS_SECURITY_GROUPS", "")),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
