package provision

import (
	"context"

	"github.com/elliotchance/pie/v2"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
	"github.com/DoyleJ11/match-setup-backend/internal/steamid"
)

type SteamIDLister interface {
	TeamSteamIDs(ctx context.Context, team engine.TeamID) ([]uint64, error)
}

// StoreRoster resolves a team to the steam ids of its registered members.
// Members without a steam id are left out.
type StoreRoster struct {
	Store SteamIDLister
}

func (r StoreRoster) Roster(ctx context.Context, team engine.TeamID) ([]string, error) {
	ids, err := r.Store.TeamSteamIDs(ctx, team)
	if err != nil {
		return nil, err
	}
	ids = pie.Sort(pie.Unique(pie.Filter(ids, func(id uint64) bool { return id != 0 })))
	return pie.Map(ids, steamid.Steam2), nil
}
