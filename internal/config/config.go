package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Agent    *agentConfig
	Pipeline *pipelineConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	DataDir  string `envconfig:"DB_DATA_DIR" default:"data"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"biovault"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address        string `envconfig:"BIOVAULT_ADDRESS" default:":8000"`
	MetricsAddress string `envconfig:"BIOVAULT_METRICS_ADDRESS" default:":8080"`
	LogLevel       string `envconfig:"BIOVAULT_LOG_LEVEL" default:"info"`
	UploadDir      string `envconfig:"BIOVAULT_UPLOAD_DIR" default:"data/uploads"`
	MaxUploadBytes int64  `envconfig:"BIOVAULT_MAX_UPLOAD_BYTES" default:"20971520"`
	DemoChartPath  string `envconfig:"BIOVAULT_DEMO_CHART_PATH" default:"data/demo_chart.png"`
}

type agentConfig struct {
	PollInterval      time.Duration `envconfig:"BIOVAULT_POLL_INTERVAL" default:"30s"`
	LivenessThreshold time.Duration `envconfig:"BIOVAULT_LIVENESS_THRESHOLD" default:"90s"`
	AlertWebhookURL   string        `envconfig:"BIOVAULT_ALERT_WEBHOOK_URL" default:""`
}

type pipelineConfig struct {
	VisionBaseURL      string        `envconfig:"BIOVAULT_VISION_BASE_URL" default:"https://api.minimax.io/v1"`
	VisionAPIKey       string        `envconfig:"BIOVAULT_VISION_API_KEY" default:""`
	VisionModel        string        `envconfig:"BIOVAULT_VISION_MODEL" default:"MiniMax-VL-01"`
	StandardizeBaseURL string        `envconfig:"BIOVAULT_STANDARDIZE_BASE_URL" default:"https://api.akashml.com/v1"`
	StandardizeAPIKey  string        `envconfig:"BIOVAULT_STANDARDIZE_API_KEY" default:""`
	StandardizeModel   string        `envconfig:"BIOVAULT_STANDARDIZE_MODEL" default:"Qwen/Qwen3-30B-A3B"`
	StageTimeout       time.Duration `envconfig:"BIOVAULT_STAGE_TIMEOUT" default:"120s"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a fresh config populated with defaults, bypassing the
// singleton. Intended for tests that need to tweak fields in isolation.
func NewDefault() (*Config, error) {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, err
	}
	return c, nil
}
