package postgres

import "pivot/internal/storage"

func init() {
	// registers the preset repository factory
	storage.RegisterPresets("postgres", NewPresets)
}
