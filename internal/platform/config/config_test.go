package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "DECIMAL_PLACES", "KAFKA_BROKERS", "INGEST_FLUSH_INTERVAL", "WORKER_COUNT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreBackend != BackendMemory || cfg.DecimalPlaces != 2 || cfg.WorkerCount != 5 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.IngestFlush != 5*time.Second || cfg.KafkaEnabled() {
		t.Errorf("ingest defaults: flush=%s kafka=%v", cfg.IngestFlush, cfg.KafkaEnabled())
	}
	if !cfg.MetricsEnabled {
		t.Error("metrics should be enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/offers.db")
	t.Setenv("DECIMAL_PLACES", "4")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("INGEST_FLUSH_INTERVAL", "250ms")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendSQLite || cfg.SQLitePath != "/tmp/offers.db" || cfg.DecimalPlaces != 4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.IngestFlush != 250*time.Millisecond || cfg.MetricsEnabled {
		t.Errorf("flush=%s metrics=%v", cfg.IngestFlush, cfg.MetricsEnabled)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad decimal places", map[string]string{"DECIMAL_PLACES": "two"}},
		{"decimal places range", map[string]string{"DECIMAL_PLACES": "12"}},
		{"zero decimal places", map[string]string{"DECIMAL_PLACES": "0"}},
		{"bad flush", map[string]string{"INGEST_FLUSH_INTERVAL": "soon"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "postgres"}},
		{"firestore without project", map[string]string{"STORE_BACKEND": "firestore", "FIREBASE_PROJECT_ID": ""}},
		{"firestore without creds", map[string]string{"STORE_BACKEND": "firestore", "FIREBASE_PROJECT_ID": "p", "FIREBASE_CREDS_BASE64": "", "FIREBASE_CREDS_FILE": "", "FIRESTORE_EMULATOR_HOST": ""}},
		{"zero workers", map[string]string{"WORKER_COUNT": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFirebaseCredentialsJSON(t *testing.T) {
	creds := []byte(`{"type":"service_account"}`)

	cfg := Config{FirebaseCredsBase64: base64.StdEncoding.EncodeToString(creds)}
	got, source, err := cfg.FirebaseCredentialsJSON()
	if err != nil || source != "base64" || string(got) != string(creds) {
		t.Errorf("base64: %s %s %v", got, source, err)
	}

	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, creds, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg = Config{FirebaseCredsFile: path}
	got, source, err = cfg.FirebaseCredentialsJSON()
	if err != nil || source != "file" || string(got) != string(creds) {
		t.Errorf("file: %s %s %v", got, source, err)
	}

	if _, _, err := (Config{}).FirebaseCredentialsJSON(); err == nil {
		t.Error("expected error without credentials")
	}
}
