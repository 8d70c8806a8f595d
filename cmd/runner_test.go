package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"soundshift/internal/shared"
	tu "soundshift/internal/testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testRunnerConfig() *shared.Config {
	config := shared.DefaultConfig()
	config.Security.EncryptionKeys = []string{testKey}
	config.Security.JWTSecret = "runner-test-secret"
	return config
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := testRunnerConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			provider := tu.NewMockProvider()
			generator := &tu.MockGenerator{}

			runner := NewRunner(RunnerOpts{
				Config:    config,
				Logger:    logger,
				Output:    output,
				Provider:  provider,
				Generator: generator,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.provider != provider {
				t.Error("expected provider to be set")
			}
			if runner.generator != generator {
				t.Error("expected generator to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("bootstrap", func(t *testing.T) {
		t.Run("wires the session layers", func(t *testing.T) {
			db, err := shared.NewDatabase(":memory:")
			if err != nil {
				t.Fatalf("failed to open database: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			if err := shared.RunMigrations(db); err != nil {
				t.Fatalf("failed to run migrations: %v", err)
			}

			runner := NewRunner(RunnerOpts{
				Config:   testRunnerConfig(),
				Provider: tu.NewMockProvider(),
				DB:       db,
			})

			if err := runner.bootstrap(context.Background()); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if runner.manager == nil {
				t.Error("expected manager to be wired")
			}
			if runner.repo == nil {
				t.Error("expected repository to be wired")
			}
			if runner.engine == nil {
				t.Error("expected library engine to be wired")
			}
			if runner.orchestrator == nil {
				t.Error("expected orchestrator to be wired")
			}

			manager := runner.manager
			if err := runner.bootstrap(context.Background()); err != nil {
				t.Fatalf("expected idempotent bootstrap, got %v", err)
			}
			if runner.manager != manager {
				t.Error("expected second bootstrap to keep the wired manager")
			}
		})

		t.Run("requires a provider", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: testRunnerConfig()})

			err := runner.bootstrap(context.Background())
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("requires encryption material", func(t *testing.T) {
			db, err := shared.NewDatabase(":memory:")
			if err != nil {
				t.Fatalf("failed to open database: %v", err)
			}
			t.Cleanup(func() { db.Close() })

			config := testRunnerConfig()
			config.Security.EncryptionKeys = nil
			config.Security.EncryptionPassphrase = ""

			runner := NewRunner(RunnerOpts{
				Config:   config,
				Provider: tu.NewMockProvider(),
				DB:       db,
			})

			err = runner.bootstrap(context.Background())
			if !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})
	})

	t.Run("buildKeyring", func(t *testing.T) {
		t.Run("prefers hex keys", func(t *testing.T) {
			keys, err := buildKeyring(shared.SecurityConfig{
				EncryptionKeys:       []string{testKey},
				EncryptionPassphrase: "also set",
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if keys == nil {
				t.Fatal("expected a keyring")
			}
		})

		t.Run("falls back to passphrase", func(t *testing.T) {
			keys, err := buildKeyring(shared.SecurityConfig{
				EncryptionPassphrase: "correct horse battery staple",
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if keys == nil {
				t.Fatal("expected a keyring")
			}
		})

		t.Run("rejects invalid hex keys", func(t *testing.T) {
			if _, err := buildKeyring(shared.SecurityConfig{
				EncryptionKeys: []string{"not hex"},
			}); err == nil {
				t.Fatal("expected error for invalid key material")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			expected := `{"key":"value"}` + "\n"
			if result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			// channels cannot be marshaled to JSON
			data := make(chan int)
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			data := map[string]string{"key": "value"}
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writePlain("hello %s", "world")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			err := runner.writePlain("test")

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}

		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
			}
		}
	})
}
