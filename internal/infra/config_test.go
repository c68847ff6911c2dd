package infra

import "testing"

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sitesmith")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "")
	t.Setenv("BUILDER_MODEL", "")
	t.Setenv("DAILY_GENERATIONS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.BuilderModel == "" {
		t.Fatal("expected a default builder model")
	}
	if cfg.DailyGenerations != 20 {
		t.Fatalf("DailyGenerations = %d, want 20", cfg.DailyGenerations)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	if got := getEnvInt("SOME_INT", 7); got != 7 {
		t.Fatalf("getEnvInt on junk = %d, want fallback 7", got)
	}
	t.Setenv("SOME_INT", "42")
	if got := getEnvInt("SOME_INT", 7); got != 42 {
		t.Fatalf("getEnvInt = %d, want 42", got)
	}
}
