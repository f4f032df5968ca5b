package service

import "context"

// LockJob holds the run guard for name, as a concurrent run would.
func LockJob(s *SyncService, name string) bool { return s.runningJobs.TryLock(name) }

// UnlockJob releases a guard taken with LockJob.
func UnlockJob(s *SyncService, name string) { s.runningJobs.Unlock(name) }

// RunTriggered starts name the way a cron or file trigger does.
func RunTriggered(ctx context.Context, s *SyncService, name, trigger string) {
	s.runTriggered(ctx, name, trigger)
}
