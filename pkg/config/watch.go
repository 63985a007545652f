package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the provider whenever its file is rewritten. Editors and config deployers
// tend to fire several events per save, so writes are debounced before reloading. The
// watcher runs until stop is closed.
func (p *Provider) Watch(stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// watch the directory, not the file: rename-style saves replace the inode
	dir := filepath.Dir(p.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	base := filepath.Base(p.path)
	go func() {
		defer w.Close()
		var pending time.Time
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					pending = time.Now()
				}
			case <-ticker.C:
				if pending.IsZero() || time.Since(pending) < 300*time.Millisecond {
					continue
				}
				pending = time.Time{}
				if err := p.Reload(); err != nil {
					log.Printf("config reload failed (keeping previous): %v", err)
				} else {
					log.Printf("config reloaded from %s (%d guilds)", p.path, len(p.GuildIDs()))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("config watch error: %v", err)
			case <-stop:
				return
			}
		}
	}()
	return nil
}
