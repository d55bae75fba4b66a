package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUsage = errors.New("usage error")

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// ReadConfig decodes a JSON or YAML config file, picking the format from the
// file extension.
func ReadConfig(filename string, config interface{}) error {
	if isYAML(filename) {
		return ReadYAMLConfig(filename, config)
	}
	return ReadJSONConfig(filename, config)
}

func ReadJSONConfig(filename string, config interface{}) error {
	configData, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(configData, config); err != nil {
		return fmt.Errorf("parse %v: %w", filename, err)
	}
	return nil
}

func ReadYAMLConfig(filename string, config interface{}) error {
	configData, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(configData, config); err != nil {
		return fmt.Errorf("parse %v: %w", filename, err)
	}
	return nil
}

// WriteConfig writes config back in the format its extension names.
func WriteConfig(filename string, config interface{}) error {
	var (
		configData []byte
		err        error
	)
	if isYAML(filename) {
		configData, err = yaml.Marshal(config)
	} else {
		configData, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode %v: %w", filename, err)
	}
	return os.WriteFile(filename, configData, 0644)
}

func CheckErr(err error, errfmsg string, fargs ...interface{}) {
	if err != nil {
		fmt.Fprintf(os.Stderr, errfmsg, fargs...)
		os.Exit(1)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLog sends the standard logger to stderr and, when logPath is set, to
// an append-only log file as well. The returned closer releases the file.
func SetupLog(prefix string, logPath string) (io.Closer, error) {
	log.SetPrefix(prefix)
	if logPath == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	logFile, err := os.OpenFile(
		logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644,
	)
	if err != nil {
		log.SetOutput(os.Stderr)
		return nopCloser{}, fmt.Errorf("open log file %v: %w", logPath, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	return logFile, nil
}
