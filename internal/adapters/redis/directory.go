package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dkeye/pulse/internal/domain"
)

// AdministratorsKey is the sorted set holding administrator uids.
const AdministratorsKey = "group:administrators:members"

var profileFields = []string{"uid", "username", "userslug", "picture", "status", "email:confirmed"}

// Directory reads user profiles kept as hashes under "user:<uid>".
type Directory struct {
	client goredis.UniversalClient
}

func NewDirectory(client goredis.UniversalClient) *Directory {
	return &Directory{client: client}
}

func userKey(uid domain.UserID) string { return "user:" + uid.String() }

type profileHash struct {
	UID            string `redis:"uid"`
	Username       string `redis:"username"`
	Userslug       string `redis:"userslug"`
	Picture        string `redis:"picture"`
	Status         string `redis:"status"`
	EmailConfirmed string `redis:"email:confirmed"`
}

func (h profileHash) profile() (*domain.Profile, error) {
	if h.UID == "" {
		return nil, nil
	}
	uid, err := domain.ParseUserID(h.UID)
	if err != nil {
		return nil, err
	}
	status := domain.Status(h.Status)
	if status == "" {
		status = domain.StatusOnline
	}
	return &domain.Profile{
		UID:            uid,
		Username:       h.Username,
		Userslug:       h.Userslug,
		Picture:        h.Picture,
		Status:         status,
		EmailConfirmed: h.EmailConfirmed == "1" || h.EmailConfirmed == "true",
	}, nil
}

func (d *Directory) GetProfile(ctx context.Context, uid domain.UserID) (*domain.Profile, error) {
	list, err := d.GetProfiles(ctx, []domain.UserID{uid})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// GetProfiles keeps the order of uids; unknown users are nil.
func (d *Directory) GetProfiles(ctx context.Context, uids []domain.UserID) ([]*domain.Profile, error) {
	pipe := d.client.Pipeline()
	cmds := make([]*goredis.SliceCmd, len(uids))
	for i, uid := range uids {
		cmds[i] = pipe.HMGet(ctx, userKey(uid), profileFields...)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	out := make([]*domain.Profile, len(uids))
	for i, cmd := range cmds {
		var h profileHash
		if err := cmd.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan profile %s: %w", uids[i], err)
		}
		p, err := h.profile()
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (d *Directory) IsAdministrator(ctx context.Context, uid domain.UserID) (bool, error) {
	err := d.client.ZScore(ctx, AdministratorsKey, uid.String()).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
