package store

import (
	"database/sql"
	"strconv"

	"github.com/hireloop/interviewd/internal/model"
)

// SetMetadata upserts a key-value pair in the service_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO service_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM service_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetEngineConfig records the serving interview parameters as metadata so
// exports can report the configuration sessions ran under.
func (s *Store) SetEngineConfig(cfg model.EngineConfig) error {
	pairs := []struct{ k, v string }{
		{"questions_per_tier", strconv.Itoa(cfg.QuestionsPerTier)},
		{"select_per_tier", strconv.Itoa(cfg.SelectPerTier)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetEngineConfig reads the recorded interview parameters from metadata.
// Missing keys are returned as zero values.
func (s *Store) GetEngineConfig() (model.EngineConfig, error) {
	var cfg model.EngineConfig
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"questions_per_tier", &cfg.QuestionsPerTier},
		{"select_per_tier", &cfg.SelectPerTier},
	} {
		v, err := s.GetMetadata(f.key)
		if err != nil {
			return cfg, err
		}
		if v != "" {
			if *f.dst, err = strconv.Atoi(v); err != nil {
				return cfg, err
			}
		}
	}
	return cfg, nil
}
