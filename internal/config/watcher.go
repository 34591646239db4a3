package config

import (
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the configuration file whenever it is written and hands the
// result to onReload. Runs until the watcher fails.
func Watch(path string, onReload func(*Cfg)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) {
				cfg, err := LoadConfig(path)
				if err != nil {
					log.Errorf("config reload failed, keeping previous: %v", err)
					continue
				}
				log.Infof("reloaded configuration from %s", path)
				onReload(cfg)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("config watcher error: %v", err)
		}
	}
}
