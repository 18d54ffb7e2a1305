package config

import "time"

// StoreConfig holds Hot Store TTLs and Cold Store location (§4.5, §4.7).
type StoreConfig struct {
	SessionTTL      time.Duration `yaml:"session_ttl"`
	TaskTTL         time.Duration `yaml:"task_ttl"`
	MedicAttemptTTL time.Duration `yaml:"medic_attempt_ttl"`
	HITLTaskTTL     time.Duration `yaml:"hitl_task_ttl"`
	MetricBucketTTL time.Duration `yaml:"metric_bucket_ttl"`

	ColdStorePath          string  `yaml:"cold_store_path"`
	ColdStoreMinSimilarity float64 `yaml:"cold_store_min_similarity"`
	ColdStoreDefaultK      int     `yaml:"cold_store_default_k"`
	// ColdStoreUseCGO selects the mattn/go-sqlite3 cgo driver instead of the
	// default pure-Go modernc.org/sqlite driver. The on-disk schema and
	// query surface are identical either way; cgo only matters for whether
	// the sqlite-vec ANN extension can be loaded (§4.7).
	ColdStoreUseCGO bool `yaml:"cold_store_use_cgo"`

	TestsDir     string `yaml:"tests_dir"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	LogsDir      string `yaml:"logs_dir"`
}

// DefaultStoreConfig matches the TTLs enumerated in §4.5.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		SessionTTL:             time.Hour,
		TaskTTL:                24 * time.Hour,
		MedicAttemptTTL:        24 * time.Hour,
		HITLTaskTTL:            24 * time.Hour,
		MetricBucketTTL:        30 * 24 * time.Hour,
		ColdStorePath:          "data/kaya_cold.db",
		ColdStoreMinSimilarity: 0.7,
		ColdStoreDefaultK:      5,
		TestsDir:               "tests",
		ArtifactsDir:           "artifacts",
		LogsDir:                "logs",
	}
}
