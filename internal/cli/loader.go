package cli

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/entity"
	"github.com/roach88/strata/internal/gormstore"
	"github.com/roach88/strata/internal/logger"
	"github.com/roach88/strata/internal/memstore"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/schema"
	"github.com/roach88/strata/internal/session"
	"github.com/roach88/strata/internal/store"
)

// LoadError represents an error that occurred while opening a workspace.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Workspace bundles everything a command needs to talk to a store.
type Workspace struct {
	Config  *config.Config
	Logger  *zap.Logger
	Backend persist.Backend
	Schema  *schema.Schema // nil when no schema dir is configured
	Session *session.Session
	Entity  *entity.Entity
}

// Close releases the backend and flushes the logger.
func (w *Workspace) Close() error {
	err := w.Backend.Close()
	_ = w.Logger.Sync()
	return err
}

// OpenWorkspace loads configuration from opts.ConfigDir and opens the
// configured backend. --verbose raises the log level to debug.
func OpenWorkspace(opts *RootOptions) (*Workspace, error) {
	cfg, err := loadConfigOnly(opts)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "building logger", Err: err}
	}

	var sch *schema.Schema
	if cfg.Schema.Dir != "" {
		sch, err = LoadSchema(cfg.Schema.Dir)
		if err != nil {
			return nil, err
		}
	}

	backend, err := OpenBackend(cfg.Store)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeOpenFailed, Message: fmt.Sprintf("opening %s store", cfg.Store.Driver), Err: err}
	}
	log.Debug("store opened",
		zap.String("driver", cfg.Store.Driver),
		zap.String("store", backend.Identifier()))

	sessOpts := []session.Option{session.WithLogger(log)}
	if sch != nil {
		sessOpts = append(sessOpts, session.WithSchema(sch))
	}
	sess := session.New(backend, sessOpts...)

	return &Workspace{
		Config:  cfg,
		Logger:  log,
		Backend: backend,
		Schema:  sch,
		Session: sess,
		Entity:  entity.New(sess),
	}, nil
}

func loadConfigOnly(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.ConfigDir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "loading configuration", Err: err}
	}
	return cfg, nil
}

// OpenBackend opens the backend selected by cfg.Driver.
func OpenBackend(cfg config.StoreConfig) (persist.Backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return store.Open(cfg.Path, cfg.Identifier)
	case config.DriverGorm:
		return gormstore.Open(cfg.Path, cfg.Identifier)
	case config.DriverMemory:
		id := cfg.Identifier
		if id == "" {
			id = config.DriverMemory
		}
		return memstore.New(id), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// LoadSchema loads the CUE schemas in dir.
func LoadSchema(dir string) (*schema.Schema, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "accessing schema directory", Err: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	sch, err := schema.Load(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: "loading schema", Err: err}
	}
	return sch, nil
}

// failLoad reports a workspace error. Every load failure is a command error.
func (f *OutputFormatter) failLoad(err error) error {
	code := ErrCodeGeneric
	message := err.Error()
	cause := err
	var le *LoadError
	if errors.As(err, &le) {
		code = le.Code
		message = le.Message
		cause = le.Err
	}
	return f.Fail(ExitCommandError, code, message, cause)
}
