package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/facematch"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Match strategies understood by the recognizer.
const (
	StrategyEuclidean = "euclidean"
	StrategyCosine    = "cosine"
	StrategyExact     = "exact"
)

// DateLayout is the format of encoding last_updated dates.
const DateLayout = "2006-01-02"

type Config struct {
	Face       FaceConfig       `yaml:"face"`
	Encodings  []EncodingSeed   `yaml:"encodings"`
	Cameras    []CameraConfig   `yaml:"cameras"`
	Database   DatabaseConfig   `yaml:"-"`
	HRDatabase HRDatabaseConfig `yaml:"-"`
	Web        WebConfig        `yaml:"-"`
}

// FaceConfig holds the recognition model tuning parameters.
type FaceConfig struct {
	ModelType            string  `yaml:"model_type" json:"model_type"`
	Tolerance            float64 `yaml:"tolerance" json:"tolerance"`
	DetectionMethod      string  `yaml:"detection_method" json:"detection_method"` // hog or cnn
	EncodingModel        string  `yaml:"encoding_model" json:"encoding_model"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
	MatchStrategy        string  `yaml:"match_strategy" json:"match_strategy"`
	EnforceDetectionArea bool    `yaml:"enforce_detection_area" json:"enforce_detection_area"`
	FrameChangeThreshold int     `yaml:"frame_change_threshold" json:"frame_change_threshold"` // max differing hash bits of an unchanged frame, negative disables
}

// EncodingSeed is a known face loaded into an empty store on startup.
type EncodingSeed struct {
	EmployeeID     string    `yaml:"employee_id"`
	Name           string    `yaml:"name"`
	Encoding       []float32 `yaml:"encoding"`
	LastUpdated    string    `yaml:"last_updated"` // YYYY-MM-DD
	TrainingImages int       `yaml:"training_images"`
}

// LastUpdatedTime parses LastUpdated, returning the zero time when it is empty.
func (s EncodingSeed) LastUpdatedTime() (time.Time, error) {
	if s.LastUpdated == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s.LastUpdated)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last_updated of %s: %w", s.EmployeeID, err)
	}
	return t, nil
}

type CameraConfig struct {
	ID                     int              `yaml:"camera_id" json:"camera_id"`
	Name                   string           `yaml:"name" json:"name"`
	ProcessingFPS          int              `yaml:"processing_fps" json:"processing_fps"`
	DetectionArea          facematch.Region `yaml:"detection_area" json:"detection_area"`
	FaceRecognitionEnabled bool             `yaml:"face_recognition_enabled" json:"face_recognition_enabled"`
}

// FrameInterval returns the time between two processed frames.
func (c CameraConfig) FrameInterval() time.Duration {
	if c.ProcessingFPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.ProcessingFPS)
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL, empty selects the in-memory store
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the encoding HNSW index (optional)
}

// HRDatabaseConfig points at the MariaDB HR database that mirrors attendance rows.
type HRDatabaseConfig struct {
	DSN string // e.g. hr:hr@tcp(mariadb:3306)/hr?parseTime=true
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins, localhost is always allowed
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float, keeping defaultVal when unset or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Parse decodes a recognition setup document (face, encodings and cameras blocks).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Defaults returns the embedded recognition setup without environment overrides.
func Defaults() (*Config, error) {
	return Parse(defaultsYAML)
}

// Load reads the embedded defaults, layers FACE_CONFIG_FILE over them when set,
// applies environment overrides and validates the result. Lists given in the file
// replace the default lists, omitted keys keep their default values.
func Load() (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}
	if path := os.Getenv("FACE_CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path) //nolint:gosec // path is from trusted env
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	cfg.Face.Tolerance = envFloat("FACE_TOLERANCE", cfg.Face.Tolerance)
	cfg.Face.ConfidenceThreshold = envFloat("FACE_CONFIDENCE_THRESHOLD", cfg.Face.ConfidenceThreshold)
	cfg.Face.MatchStrategy = envString("FACE_MATCH_STRATEGY", cfg.Face.MatchStrategy)

	cfg.Database = DatabaseConfig{
		URL:           os.Getenv("DATABASE_URL"),
		MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
		HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
	}
	cfg.HRDatabase = HRDatabaseConfig{
		DSN: os.Getenv("HR_DATABASE_URL"),
	}
	cfg.Web = WebConfig{
		Host: envString("WEB_HOST", "0.0.0.0"),
		Port: envInt("WEB_PORT", 8080),
	}
	if origins := os.Getenv("WEB_ALLOWED_ORIGINS"); origins != "" {
		cfg.Web.AllowedOrigins = strings.Split(origins, ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the recognition setup and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Face.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("face.tolerance must be positive, got %v", c.Face.Tolerance))
	}
	if c.Face.ConfidenceThreshold < 0 || c.Face.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("face.confidence_threshold must be within [0, 1], got %v", c.Face.ConfidenceThreshold))
	}
	switch c.Face.MatchStrategy {
	case StrategyEuclidean, StrategyCosine, StrategyExact:
	default:
		errs = append(errs, fmt.Errorf("unknown face.match_strategy %q", c.Face.MatchStrategy))
	}

	dim := 0
	seenEmployees := make(map[string]struct{}, len(c.Encodings))
	for _, e := range c.Encodings {
		if e.EmployeeID == "" {
			errs = append(errs, errors.New("encoding without employee_id"))
			continue
		}
		if _, dup := seenEmployees[e.EmployeeID]; dup {
			errs = append(errs, fmt.Errorf("duplicate employee_id %s", e.EmployeeID))
		}
		seenEmployees[e.EmployeeID] = struct{}{}

		if len(e.Encoding) == 0 {
			errs = append(errs, fmt.Errorf("employee %s has an empty encoding", e.EmployeeID))
		} else if dim == 0 {
			dim = len(e.Encoding)
		} else if len(e.Encoding) != dim {
			errs = append(errs, fmt.Errorf("employee %s encoding has %d dims, expected %d", e.EmployeeID, len(e.Encoding), dim))
		}
		if _, err := e.LastUpdatedTime(); err != nil {
			errs = append(errs, err)
		}
	}

	seenCameras := make(map[int]struct{}, len(c.Cameras))
	for _, cam := range c.Cameras {
		if _, dup := seenCameras[cam.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate camera_id %d", cam.ID))
		}
		seenCameras[cam.ID] = struct{}{}

		if cam.ProcessingFPS <= 0 {
			errs = append(errs, fmt.Errorf("camera %d: processing_fps must be positive", cam.ID))
		}
		if !cam.DetectionArea.IsZero() && !cam.DetectionArea.Valid() {
			errs = append(errs, fmt.Errorf("camera %d: invalid detection_area %+v", cam.ID, cam.DetectionArea))
		}
	}

	if c.Web.Port != 0 && (c.Web.Port < 1 || c.Web.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid web port: %d", c.Web.Port))
	}

	return errors.Join(errs...)
}

// Camera returns the camera with the given id.
func (c *Config) Camera(id int) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.ID == id {
			return cam, true
		}
	}
	return CameraConfig{}, false
}

// EnabledCameras returns cameras with face recognition turned on, in configured order.
func (c *Config) EnabledCameras() []CameraConfig {
	out := make([]CameraConfig, 0, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cam.FaceRecognitionEnabled {
			out = append(out, cam)
		}
	}
	return out
}

// ServerAddress returns the HTTP listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}
