package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"cbd-eventstream/internal/logging"
)

// Credentials is the access key pair used to sign tokens.
type Credentials struct {
	KeyID  string
	Secret string
}

func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.KeyID) != "" && strings.TrimSpace(c.Secret) != ""
}

// LoadCredentials reads CBD_KEY_ID and CBD_SECRET from a dotenv file without
// touching the process environment.
func LoadCredentials(path string) (Credentials, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return Credentials{}, err
	}
	creds := Credentials{
		KeyID:  strings.TrimSpace(values["CBD_KEY_ID"]),
		Secret: strings.TrimSpace(values["CBD_SECRET"]),
	}
	if !creds.Valid() {
		return Credentials{}, errors.New("env file is missing CBD_KEY_ID or CBD_SECRET")
	}
	return creds, nil
}

// WatchCredentials calls onChange with the reloaded key pair whenever the
// dotenv file is written or replaced. It blocks until ctx is done. The parent
// directory is watched so editors that save via rename are still seen.
func WatchCredentials(ctx context.Context, path string, logger *logging.Logger, onChange func(Credentials)) error {
	if logger == nil {
		panic("config.WatchCredentials: logger must not be nil")
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	target = filepath.Clean(target)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to initialize fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch env directory %s: %w", dir, err)
	}
	logger.Debug("watching credentials file", logging.Field("path", target))

	last, _ := LoadCredentials(target)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			creds, loadErr := LoadCredentials(target)
			if loadErr != nil {
				logger.Warn("ignoring unreadable credentials file", logging.Field("path", target), logging.Field("error", loadErr))
				continue
			}
			if creds == last {
				continue
			}
			last = creds
			logger.Info("access key changed on disk", logging.Field("key_id", creds.KeyID))
			onChange(creds)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("credentials watcher error", logging.Field("error", watchErr))
		}
	}
}
