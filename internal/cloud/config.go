// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud defines the data structures for application configuration,
// loaded from TOML files, and the clients used to reach external services
// (Cloud Storage, Pub/Sub, Vertex AI / Gemini).
//
// Structs:
//   - Application: Network binding, worker pool sizing and Google project settings.
//   - Upload: Where request uploads are spooled and how large they may be.
//   - OnnxRuntime: Shared library location and threading for ONNX Runtime.
//   - FFMpeg: Location of the ffmpeg binary used for frame sampling.
//   - ClassifierModel: One ONNX classifier (general, crime or image).
//   - TextGeneratorModel: The text generator used for video descriptions.
//   - ModelCache: Local cache for model artifacts fetched from Cloud Storage.
//   - Events: Optional Pub/Sub topic for analysis events.
//   - Telemetry: Logging and OpenTelemetry switches.
//   - Config: The top-level struct that aggregates all other configuration structs.
package cloud

import (
	"os"
	"runtime"
	"strconv"

	"google.golang.org/genai"
)

// Classifier kinds.
const (
	KindVideo = "video"
	KindImage = "image"
)

// Text generator backends.
const (
	BackendGenAI  = "genai"
	BackendOpenAI = "openai"
)

// Environment variables that take precedence over the TOML files.
const (
	EnvAppHost         = "APP_HOST"
	EnvAppPort         = "APP_PORT"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvOnnxLibraryPath = "ONNX_LIBRARY_PATH"
)

// DefaultSafetySettings relaxes the Gemini content filters. Classifier labels
// for the crime model ("fighting", "shooting", ...) would otherwise be blocked
// before a description is produced.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Application holds general application settings.
type Application struct {
	Name            string `toml:"name"`              // The name of the application, also used as the OTel service name.
	Host            string `toml:"host"`              // Interface the HTTP server binds to.
	Port            int    `toml:"port"`              // Port the HTTP server listens on.
	GinMode         string `toml:"gin_mode"`          // debug, release or test.
	ThreadPoolSize  int    `toml:"thread_pool_size"`  // Number of inference workers.
	GoogleProjectId string `toml:"google_project_id"` // The Google Cloud project ID.
	GoogleLocation  string `toml:"location"`          // The Google Cloud location.
}

// Upload represents the configuration for request file spooling.
type Upload struct {
	ScratchDir  string `toml:"scratch_dir"`   // Directory for per-request scratch files. Empty means os.TempDir().
	MaxUploadMB int64  `toml:"max_upload_mb"` // Request body cap in megabytes, 0 disables the cap.
}

// OnnxRuntime represents the configuration of the ONNX Runtime environment.
type OnnxRuntime struct {
	LibraryPath    string `toml:"library_path"`     // Path to onnxruntime.so / .dylib / .dll. Empty uses the platform default.
	IntraOpThreads int    `toml:"intra_op_threads"` // Threads per session, 0 lets ONNX Runtime decide.
}

// FFMpeg represents the configuration of the frame sampler.
type FFMpeg struct {
	CommandPath string `toml:"command_path"`
}

// ClassifierModel represents one ONNX classification model.
type ClassifierModel struct {
	Kind         string `toml:"kind"`          // KindVideo or KindImage.
	ModelPath    string `toml:"model_path"`    // Local path or gs:// URI of the .onnx graph.
	MetadataPath string `toml:"metadata_path"` // Local path or gs:// URI of the metadata JSON.
	TopK         int    `toml:"top_k"`         // Number of ranked predictions returned by the model handle.
}

// TextGeneratorModel represents the configuration of the description generator.
type TextGeneratorModel struct {
	Backend   string `toml:"backend"`    // BackendGenAI or BackendOpenAI.
	Model     string `toml:"model"`      // Model name, e.g. "gemini-2.0-flash" or "google/flan-t5-small".
	BaseURL   string `toml:"base_url"`   // OpenAI-compatible endpoint, ignored by the genai backend.
	APIKey    string `toml:"api_key"`    // API key. For genai an empty key selects Vertex AI with ADC.
	RateLimit int    `toml:"rate_limit"` // Requests per second, 0 disables limiting.
}

// ModelCache represents the local cache used for gs:// model artifacts.
type ModelCache struct {
	Dir               string `toml:"dir"`
	Anonymous         bool   `toml:"anonymous"`           // Fetch public buckets without credentials.
	MaxElapsedSeconds int    `toml:"max_elapsed_seconds"` // Upper bound for retrying a single artifact download.
	InitialIntervalMs int    `toml:"initial_interval_ms"` // First backoff interval in milliseconds.
}

// Events represents the optional Pub/Sub publication of analysis results.
type Events struct {
	Topic string `toml:"topic"` // Empty disables publishing.
}

// Telemetry represents the observability switches.
type Telemetry struct {
	Enabled  bool   `toml:"enabled"`   // Export traces and metrics to Cloud Trace / Cloud Monitoring.
	LogLevel string `toml:"log_level"` // debug, info, warn or error.
	LogFile  string `toml:"log_file"`  // Optional file that receives a copy of every log line.
}

// Config represents the overall configuration for the application, loaded from TOML files.
// It acts as the root container for all other configuration structs.
type Config struct {
	Application Application                `toml:"application"`
	Upload      Upload                     `toml:"upload"`
	OnnxRuntime OnnxRuntime                `toml:"onnx"`
	FFMpeg      FFMpeg                     `toml:"ffmpeg"`
	Classifiers map[string]ClassifierModel `toml:"classifiers"` // Keyed by analysis mode: general, crime, image.
	Generator   TextGeneratorModel         `toml:"generator"`
	ModelCache  ModelCache                 `toml:"model_cache"`
	Events      Events                     `toml:"events"`
	Telemetry   Telemetry                  `toml:"telemetry"`
}

// NewConfig is a constructor function that creates a new Config populated with
// the defaults of a local deployment. Values decoded from TOML files replace
// these defaults field by field; an entry of the Classifiers map is replaced as
// a whole.
//
// Outputs:
//   - *Config: A pointer to a new Config struct with defaults and initialized maps.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:           "media-analyzer",
			Host:           "0.0.0.0",
			Port:           8000,
			GinMode:        "release",
			ThreadPoolSize: runtime.NumCPU(),
		},
		FFMpeg: FFMpeg{CommandPath: "ffmpeg"},
		Classifiers: map[string]ClassifierModel{
			"general": {
				Kind:         KindVideo,
				ModelPath:    "models/videomae-base-finetuned-kinetics/model.onnx",
				MetadataPath: "models/videomae-base-finetuned-kinetics/metadata.json",
				TopK:         5,
			},
			"crime": {
				Kind:         KindVideo,
				ModelPath:    "models/timesformer-crime-detection/model.onnx",
				MetadataPath: "models/timesformer-crime-detection/metadata.json",
				TopK:         5,
			},
			"image": {
				Kind:         KindImage,
				ModelPath:    "models/vit-base-patch16-224/model.onnx",
				MetadataPath: "models/vit-base-patch16-224/metadata.json",
				TopK:         5,
			},
		},
		Generator: TextGeneratorModel{
			Backend: BackendOpenAI,
			Model:   "google/flan-t5-small",
			BaseURL: "http://localhost:8080/v1",
		},
		ModelCache: ModelCache{
			Dir:               "models/.cache",
			MaxElapsedSeconds: 120,
			InitialIntervalMs: 500,
		},
		Telemetry: Telemetry{LogLevel: "info"},
	}
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return c.Application.Host + ":" + strconv.Itoa(c.Application.Port)
}

// ApplyEnvOverrides lets deployment environments replace a handful of settings
// (bind address, secrets, the ONNX Runtime location) without shipping a TOML file.
func ApplyEnvOverrides(c *Config) {
	c.Application.Host = getEnv(EnvAppHost, c.Application.Host)
	c.Application.Port = getEnvAsInt(EnvAppPort, c.Application.Port)
	c.OnnxRuntime.LibraryPath = getEnv(EnvOnnxLibraryPath, c.OnnxRuntime.LibraryPath)
	switch c.Generator.Backend {
	case BackendGenAI:
		c.Generator.APIKey = getEnv(EnvGeminiAPIKey, c.Generator.APIKey)
	case BackendOpenAI:
		c.Generator.APIKey = getEnv(EnvOpenAIAPIKey, c.Generator.APIKey)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
