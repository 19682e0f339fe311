package config

import (
	"fmt"

	supa "github.com/supabase-community/supabase-go"
)

// NewSupabase initializes the Supabase client from the loaded configuration.
// The service key is required: the gateway writes rows and storage objects the
// anonymous role is not allowed to touch.
func NewSupabase(cfg *Config) (*supa.Client, error) {
	client, err := supa.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing supabase client: %w", err)
	}
	return client, nil
}
