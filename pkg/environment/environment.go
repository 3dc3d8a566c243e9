package environment

import (
	"fmt"
	"path/filepath"

	env "github.com/Netflix/go-env"
	"github.com/adrg/xdg"
	"github.com/spf13/afero"
)

// Environment holds runtime configuration loaded from the OS or defaults.
//
// The two concurrency knobs are independent: AdmissionCapacity bounds how many
// jobs may be actively processing system-wide, PoolSize bounds how many engine
// instances are loaded. Workers sizes the dispatcher pool and must be at least
// AdmissionCapacity so workers are not wasted purely waiting on the gate.
type Environment struct {
	HostIP            string `env:"MEDSCRIBE_HOST,default=127.0.0.1"`
	Port              uint16 `env:"MEDSCRIBE_PORT,default=8600"`
	DataDir           string `env:"MEDSCRIBE_DATA_DIR"`
	WorkDir           string `env:"MEDSCRIBE_WORK_DIR"`
	DBPath            string `env:"MEDSCRIBE_DB"`
	AdmissionCapacity int    `env:"MEDSCRIBE_MAX_JOBS,default=2"`
	PoolSize          int    `env:"MEDSCRIBE_POOL_SIZE,default=2"`
	Workers           int    `env:"MEDSCRIBE_WORKERS,default=2"`
	FFmpegPath        string `env:"MEDSCRIBE_FFMPEG,default=ffmpeg"`
	FFprobePath       string `env:"MEDSCRIBE_FFPROBE,default=ffprobe"`
	WhisperBin        string `env:"MEDSCRIBE_WHISPER_BIN,default=whisper-cli"`
	WhisperModel      string `env:"MEDSCRIBE_WHISPER_MODEL"`
	Language          string `env:"MEDSCRIBE_LANGUAGE,default=es"`
	PrimingPrompt     string `env:"MEDSCRIBE_PROMPT,default=Este audio corresponde a una consulta medica con terminos clinicos."`
	Extras            env.EnvSet
}

// NewEnvironment initializes and returns an Environment based on provided or
// default settings. Passing a non-nil environ skips OS lookup, which keeps
// tests hermetic.
func NewEnvironment(fs afero.Fs, environ *Environment) (*Environment, error) {
	if environ == nil {
		environ = &Environment{}
		extras, err := env.UnmarshalFromEnviron(environ)
		if err != nil {
			return nil, err
		}
		environ.Extras = extras
	}

	applyDefaults(environ)

	if err := validate(environ); err != nil {
		return nil, err
	}

	for _, dir := range []string{environ.DataDir, environ.WorkDir} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return environ, nil
}

// applyDefaults fills in derived paths that depend on other fields.
func applyDefaults(environ *Environment) {
	if environ.DataDir == "" {
		environ.DataDir = filepath.Join(xdg.DataHome, "medscribe")
	}
	if environ.WorkDir == "" {
		environ.WorkDir = filepath.Join(environ.DataDir, "work")
	}
	if environ.DBPath == "" {
		environ.DBPath = filepath.Join(environ.DataDir, "medscribe.db")
	}
	if environ.Workers < environ.AdmissionCapacity {
		environ.Workers = environ.AdmissionCapacity
	}
}

func validate(environ *Environment) error {
	if environ.AdmissionCapacity < 1 {
		return fmt.Errorf("admission capacity must be at least 1, got %d", environ.AdmissionCapacity)
	}
	if environ.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", environ.PoolSize)
	}
	return nil
}

// Addr returns the host:port the API server binds to.
func (e *Environment) Addr() string {
	return fmt.Sprintf("%s:%d", e.HostIP, e.Port)
}
