package config

import "errors"

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config")
	ErrMetaPathEmpty      = errors.New("meta_path must not be empty")
	ErrDataDirEmpty       = errors.New("data_dir must not be empty")
	ErrUnknownDataBackend = errors.New("unknown data_backend")
)
