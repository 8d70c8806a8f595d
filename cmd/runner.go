package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"soundshift/internal/recommend"
	"soundshift/internal/repositories"
	"soundshift/internal/services"
	"soundshift/internal/session"
	"soundshift/internal/shared"
	"soundshift/internal/tasks"
	"soundshift/internal/vault"
)

// Runner holds all dependencies for CLI commands and provides methods for
// each command action. The database and the layers built on top of it are
// opened lazily so that commands which never touch the store (mood
// classification against a configured generator, setup itself) do not
// require one.
type Runner struct {
	config    *shared.Config
	provider  services.Provider
	generator services.Generator
	logger    *log.Logger
	output    io.Writer

	db           *sql.DB
	repo         *repositories.SessionRepository
	keys         *vault.Keyring
	manager      *session.Manager
	engine       *tasks.LibraryEngine
	orchestrator *recommend.Orchestrator
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config    *shared.Config
	Provider  services.Provider
	Generator services.Generator
	Logger    *log.Logger
	Output    io.Writer
	DB        *sql.DB
}

// NewRunner creates a new Runner with the provided configuration.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:    opts.Config,
		provider:  opts.Provider,
		generator: opts.Generator,
		logger:    opts.Logger,
		output:    opts.Output,
		db:        opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, authCommand, playerCommand, recommendCommand, libraryCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// bootstrap opens the database and wires the repository, keyring, session
// manager, library engine, and recommendation orchestrator. Idempotent.
func (r *Runner) bootstrap(ctx context.Context) error {
	if r.manager != nil {
		return nil
	}

	if r.provider == nil {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set", shared.ErrMissingCredentials)
	}

	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		r.db = db
	}

	keys, err := buildKeyring(r.config.Security)
	if err != nil {
		return err
	}

	r.keys = keys
	r.repo = repositories.NewSessionRepository(r.db)
	r.manager = session.NewManager(r.provider, r.repo, r.keys, r.config, r.logger)
	r.engine = tasks.NewLibraryEngine(r.provider, r.repo, r.config.Library)
	r.orchestrator = recommend.NewOrchestrator(r.generator, r.provider, r.config.Library, r.logger)

	r.manager.SetSyncHook(func(userID, accessToken string) {
		go func() {
			if _, err := r.engine.SyncLikedTracks(context.Background(), nil, userID, accessToken); err != nil {
				r.logger.Warn("background library sync failed", "user", userID, "error", err)
			}
		}()
	})

	return nil
}

// buildKeyring prefers configured hex keys and falls back to passphrase
// derivation.
func buildKeyring(security shared.SecurityConfig) (*vault.Keyring, error) {
	if len(security.EncryptionKeys) > 0 {
		return vault.New(security.EncryptionKeys)
	}
	if security.EncryptionPassphrase != "" {
		return vault.NewFromPassphrase(security.EncryptionPassphrase)
	}
	return nil, fmt.Errorf("%w: no encryption keys or passphrase configured", shared.ErrMissingConfig)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
