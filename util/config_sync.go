package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CoordConfig configures a coordinator process in distributed mode.
type CoordConfig struct {
	WalkerAPIListenAddr string        `json:"walkerAPIListenAddr" yaml:"walkerAPIListenAddr"`
	StatusAPIListenAddr string        `json:"statusAPIListenAddr" yaml:"statusAPIListenAddr"`
	LostMsgsThresh      uint8         `json:"lostMsgsThresh" yaml:"lostMsgsThresh"`
	HeartbeatRTT        time.Duration `json:"heartbeatRTT" yaml:"heartbeatRTT"`
	LogFile             string        `json:"logFile" yaml:"logFile"`
}

// UnmarshalJSON accepts heartbeatRTT either as a duration string ("2s"), as
// in the YAML form, or as integer nanoseconds.
func (c *CoordConfig) UnmarshalJSON(data []byte) error {
	type plain CoordConfig
	aux := struct {
		*plain
		HeartbeatRTT json.RawMessage `json:"heartbeatRTT"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.HeartbeatRTT)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		rtt, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("heartbeatRTT: %w", err)
		}
		c.HeartbeatRTT = rtt
		return nil
	}
	var nanos int64
	if err := json.Unmarshal(raw, &nanos); err != nil {
		return fmt.Errorf("heartbeatRTT: %w", err)
	}
	c.HeartbeatRTT = time.Duration(nanos)
	return nil
}

// WalkerConfig configures one walker process in distributed mode.
type WalkerConfig struct {
	WalkerId              uint32 `json:"walkerId" yaml:"walkerId"`
	CoordAddr             string `json:"coordAddr" yaml:"coordAddr"`
	FCheckAckLocalAddress string `json:"fCheckAckLocalAddress" yaml:"fCheckAckLocalAddress"`
	LogFile               string `json:"logFile" yaml:"logFile"`
}

const (
	COORD   = "coord"
	WALKERS = "walker"
)

// SynchronizeConfigs points every walker config in dir at the coordinator's
// walker API address. It returns the names of the files it rewrote.
func SynchronizeConfigs(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	coordFile, err := findCoordConfig(dir, files)
	if err != nil {
		return nil, err
	}
	var coord CoordConfig
	if err := ReadConfig(coordFile, &coord); err != nil {
		return nil, err
	}
	if coord.WalkerAPIListenAddr == "" {
		return nil, fmt.Errorf("%v has no walkerAPIListenAddr", coordFile)
	}

	var synced []string
	for _, file := range files {
		filename := file.Name()
		if file.IsDir() || !IsWalkerConfig(filename) {
			continue
		}

		path := filepath.Join(dir, filename)
		var walker WalkerConfig
		if err := ReadConfig(path, &walker); err != nil {
			return synced, err
		}
		walker.CoordAddr = coord.WalkerAPIListenAddr
		if err := WriteConfig(path, walker); err != nil {
			return synced, err
		}
		synced = append(synced, filename)
	}
	return synced, nil
}

func findCoordConfig(dir string, files []os.DirEntry) (string, error) {
	for _, file := range files {
		if !file.IsDir() && IsCoordConfig(file.Name()) {
			return filepath.Join(dir, file.Name()), nil
		}
	}
	return "", fmt.Errorf("no %s config in %v", COORD, dir)
}

func isConfigFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".json" || ext == ".yaml" || ext == ".yml"
}

func IsCoordConfig(filename string) bool {
	return strings.HasPrefix(filename, COORD) && isConfigFile(filename)
}

func IsWalkerConfig(filename string) bool {
	return strings.HasPrefix(filename, WALKERS) && isConfigFile(filename)
}
