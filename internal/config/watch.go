package config

import (
	"context"
	"os"
	"time"
)

// WatchCatalog reloads catalog.yaml on change and calls onUpdate with the latest
// catalog. It performs an initial load before entering the watch loop.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, onUpdate func(*Catalog)) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cat)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cat, err := LoadCatalog(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					onUpdate(cat)
				}
			}
		}
	}()

	return nil
}
