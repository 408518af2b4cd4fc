package scheduler

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"thorlearn/internal/logging"
)

// Watch re-seeds the topic store when the dictionary file changes on disk,
// so operators can append topics without restarting the learner. The watcher
// runs until stop is closed. Watching a dictionary that does not exist yet is
// fine; the directory watch catches its later creation.
func (s *Scheduler) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: editors replace files on save,
	// which drops a direct file watch.
	dir := filepath.Dir(s.cfg.DictionaryPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.cfg.DictionaryPath)
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				logging.Scheduler("dictionary changed (%s), re-seeding", event.Op)
				if err := s.Seed(); err != nil {
					logging.Scheduler("re-seed failed: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.SchedulerDebug("dictionary watch error: %v", err)
			}
		}
	}()

	logging.Scheduler("watching dictionary %s", s.cfg.DictionaryPath)
	return nil
}
