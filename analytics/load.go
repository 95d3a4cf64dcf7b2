package analytics

import (
	"context"

	store "github.com/phillip/volunteer-hub-go/store"
)

// Load reads every record the dashboard needs from s.
func Load(ctx context.Context, s *store.Store) (Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.Projects, err = s.Projects.List(ctx, store.SubmissionFilter{}); err != nil {
		return snap, err
	}
	if snap.Events, err = s.Events.List(ctx, store.SubmissionFilter{}); err != nil {
		return snap, err
	}
	if snap.Applications, err = s.Applications.List(ctx, store.EntryFilter{}); err != nil {
		return snap, err
	}
	if snap.Registrations, err = s.Registrations.List(ctx, store.EntryFilter{}); err != nil {
		return snap, err
	}
	if snap.EditRequests, err = s.EditRequests.List(ctx, store.EditRequestFilter{}); err != nil {
		return snap, err
	}
	users, err := s.Users.Count(ctx)
	if err != nil {
		return snap, err
	}
	snap.Users = int(users)
	return snap, nil
}
