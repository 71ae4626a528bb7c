package store

import (
	"context"
	"testing"

	"github.com/erazemk/bazar/internal/db"
)

func TestJWTSecret_GeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	// First call should generate a secret.
	secret1, err := JWTSecret(ctx, database, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	// Second call should return the same secret.
	secret2, err := JWTSecret(ctx, database, "")
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestJWTSecret_ConfiguredWins(t *testing.T) {
	database := db.NewTestDB(t)

	secret, err := JWTSecret(context.Background(), database, "from-env")
	if err != nil {
		t.Fatal(err)
	}
	if secret != "from-env" {
		t.Fatalf("expected configured secret, got %q", secret)
	}
}

func TestSetSettingOverwrites(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if v, _ := GetSetting(ctx, database, "missing"); v != "" {
		t.Fatalf("expected empty value, got %q", v)
	}
	if err := SetSetting(ctx, database, "k", "one"); err != nil {
		t.Fatal(err)
	}
	if err := SetSetting(ctx, database, "k", "two"); err != nil {
		t.Fatal(err)
	}
	if v, _ := GetSetting(ctx, database, "k"); v != "two" {
		t.Fatalf("expected 'two', got %q", v)
	}
}
