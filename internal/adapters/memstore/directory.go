package memstore

import (
	"context"
	"sync"

	"github.com/dkeye/pulse/internal/domain"
)

// Directory is an in-memory user directory and administrator list.
type Directory struct {
	mu       sync.RWMutex
	profiles map[domain.UserID]domain.Profile
	admins   map[domain.UserID]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		profiles: make(map[domain.UserID]domain.Profile),
		admins:   make(map[domain.UserID]struct{}),
	}
}

func (d *Directory) Put(p domain.Profile, admin bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.UID] = p
	if admin {
		d.admins[p.UID] = struct{}{}
	} else {
		delete(d.admins, p.UID)
	}
}

func (d *Directory) GetProfile(_ context.Context, uid domain.UserID) (*domain.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[uid]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (d *Directory) GetProfiles(ctx context.Context, uids []domain.UserID) ([]*domain.Profile, error) {
	out := make([]*domain.Profile, len(uids))
	for i, uid := range uids {
		out[i], _ = d.GetProfile(ctx, uid)
	}
	return out, nil
}

func (d *Directory) IsAdministrator(_ context.Context, uid domain.UserID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.admins[uid]
	return ok, nil
}
