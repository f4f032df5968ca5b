package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"sheetsync/internal/config"
	"sheetsync/internal/logging"
)

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher and cron and rebuilds
// them from the job list. It returns the number of armed triggers.
// Cancelling ctx stops new triggered runs; runs already in flight keep
// its values but not its cancellation, and are bounded by the run timeout.
func (s *SyncService) RestartWatchers(ctx context.Context) (int, error) {
	s.stopWatchers()
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logging.FromContext(ctx)
	armed := 0

	// ── Cron jobs ──
	var c *cron.Cron
	for i := range s.jobs {
		j := &s.jobs[i]
		if j.Trigger != config.TriggerSchedule || j.Schedule == "" {
			continue
		}
		if c == nil {
			c = cron.New()
		}
		name := j.Name
		if _, err := c.AddFunc(j.Schedule, func() {
			s.runTriggered(ctx, name, config.TriggerSchedule)
		}); err != nil {
			log.Error().Err(err).Str("job", name).Str("schedule", j.Schedule).Msg("invalid schedule")
			continue
		}
		armed++
	}
	if c != nil {
		c.Start()
		s.cronSched = c
		log.Info().Int("jobs", armed).Msg("cron scheduled")
	}

	// ── File watchers ──
	pathToJob := make(map[string]string)
	for i := range s.jobs {
		j := &s.jobs[i]
		if j.Trigger != config.TriggerFileWatch {
			continue
		}
		absPath, err := filepath.Abs(j.SourcePath())
		if err != nil || j.SourcePath() == "" {
			log.Error().Err(err).Str("job", j.Name).Msg("file_watch job has no usable source path")
			continue
		}
		pathToJob[absPath] = j.Name
	}
	if len(pathToJob) == 0 {
		return armed, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return armed, err
	}

	watchedDirs := make(map[string]bool)
	var watchErrs []error
	for absPath, name := range pathToJob {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			armed++
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Error().Err(err).Str("job", name).Str("dir", dir).Msg("failed to watch dir")
			watchErrs = append(watchErrs, err)
			delete(pathToJob, absPath)
			continue
		}
		watchedDirs[dir] = true
		armed++
	}
	if len(watchedDirs) == 0 {
		watcher.Close()
		return armed, errors.Join(watchErrs...)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, watcher, pathToJob)

	log.Info().Int("files", len(pathToJob)).Msg("watching source files")
	return armed, errors.Join(watchErrs...)
}

// watchLoop debounces write events per job. Annotation rewrites the
// watched file, so every run is followed by one more run that finds
// nothing to write.
func (s *SyncService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pathToJob map[string]string) {
	log := logging.FromContext(ctx)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			name, ok := pathToJob[absPath]
			if !ok {
				continue
			}
			if t, exists := timers[name]; exists {
				t.Stop()
			}
			timers[name] = time.AfterFunc(s.debounce, func() {
				log.Debug().Str("job", name).Str("path", absPath).Msg("source changed")
				s.runTriggered(ctx, name, config.TriggerFileWatch)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (s *SyncService) runTriggered(ctx context.Context, name, trigger string) {
	if ctx.Err() != nil {
		return
	}
	// A shutdown signal must not abort a run between commit and annotation.
	if _, err := s.RunJob(context.WithoutCancel(ctx), name, trigger); err != nil {
		// Failures are already recorded and emitted.
		log := logging.FromContext(ctx)
		if errors.Is(err, ErrJobRunning) {
			log.Info().Str("job", name).Str("trigger", trigger).Msg("skipped, job still running")
			return
		}
		log.Debug().Err(err).Str("job", name).Str("trigger", trigger).Msg("triggered run failed")
	}
}

// Stop tears down all watchers and schedulers. Running jobs are not
// interrupted; use WaitRunning to wait for them.
func (s *SyncService) Stop() {
	s.stopWatchers()
}

func (s *SyncService) stopWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
