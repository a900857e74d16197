package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
	"github.com/DoyleJ11/match-setup-backend/internal/finalize"
	"github.com/DoyleJ11/match-setup-backend/internal/steamid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

const uniqueViolation = "23505"

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(allModels...)
}

// Seed inserts maps, servers and login tokens, keeping existing rows.
func (s *Store) Seed(ctx context.Context, maps []string, servers []engine.MatchServer, tokens []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip := tx.Clauses(clause.OnConflict{DoNothing: true}).Session(&gorm.Session{})
		for _, m := range maps {
			if err := skip.Create(&Map{Name: m}).Error; err != nil {
				return translate(err)
			}
		}
		for _, srv := range servers {
			if err := skip.Create(&MatchServer{ServerID: srv.ServerID, RegionLabel: srv.Label}).Error; err != nil {
				return translate(err)
			}
		}
		for _, t := range tokens {
			if err := skip.Create(&GsltToken{Token: t}).Error; err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

func (s *Store) MapPool(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&Map{}).Order("name").Pluck("name", &names).Error
	return names, translate(err)
}

func (s *Store) MatchServers(ctx context.Context) ([]engine.MatchServer, error) {
	var rows []MatchServer
	if err := s.db.WithContext(ctx).Order("region_label").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	servers := make([]engine.MatchServer, len(rows))
	for i, r := range rows {
		servers[i] = engine.MatchServer{Label: r.RegionLabel, ServerID: r.ServerID}
	}
	return servers, nil
}

func (s *Store) GetMatch(ctx context.Context, id int) (Match, error) {
	var m Match
	err := s.db.WithContext(ctx).First(&m, id).Error
	return m, translate(err)
}

// ListMatches returns up to limit matches, either completed ones or the
// ones still waiting for setup.
func (s *Store) ListMatches(ctx context.Context, completed bool, limit int) ([]Match, error) {
	state := MatchEntered
	if completed {
		state = MatchCompleted
	}
	var ms []Match
	err := s.db.WithContext(ctx).Where("match_state = ?", state).Order("id").Limit(limit).Find(&ms).Error
	return ms, translate(err)
}

func (s *Store) CreateMatch(ctx context.Context, m *Match) error {
	if m.MatchState == "" {
		m.MatchState = MatchEntered
	}
	return translate(s.db.WithContext(ctx).Create(m).Error)
}

func (s *Store) DeleteMatch(ctx context.Context, id int) error {
	res := s.db.WithContext(ctx).Delete(&Match{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// NextTeamMatch is the lowest id match of the team still waiting for setup.
func (s *Store) NextTeamMatch(ctx context.Context, team engine.TeamID) (Match, error) {
	var m Match
	err := s.db.WithContext(ctx).
		Where("(team_one_role_id = ? OR team_two_role_id = ?) AND match_state = ?", int64(team), int64(team), MatchEntered).
		Order("id").
		First(&m).Error
	return m, translate(err)
}

func (s *Store) ScheduleMatch(ctx context.Context, id int, when string) error {
	res := s.db.WithContext(ctx).Model(&Match{}).Where("id = ?", id).Update("scheduled_time_str", when)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TeamsForUser(ctx context.Context, userID int64) ([]engine.TeamID, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&TeamMember{}).Where("user_id = ?", userID).Order("team_id").Pluck("team_id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	teams := make([]engine.TeamID, len(ids))
	for i, id := range ids {
		teams[i] = engine.TeamID(id)
	}
	return teams, nil
}

func (s *Store) AddTeamMember(ctx context.Context, userID int64, team engine.TeamID) error {
	return translate(s.db.WithContext(ctx).Create(&TeamMember{UserID: userID, TeamID: int64(team)}).Error)
}

// UpsertUser sets the steam id of a chat user, creating the user if needed.
func (s *Store) UpsertUser(ctx context.Context, discordID int64, steamID string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "discord_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"steam_id"}),
	}).Create(&User{DiscordID: discordID, SteamID: steamID}).Error
	return translate(err)
}

func (s *Store) TeamSteamIDs(ctx context.Context, team engine.TeamID) ([]uint64, error) {
	var raw []string
	err := s.db.WithContext(ctx).Model(&User{}).
		Joins("JOIN team_members ON team_members.user_id = users.discord_id").
		Where("team_members.team_id = ?", int64(team)).
		Pluck("users.steam_id", &raw).Error
	if err != nil {
		return nil, translate(err)
	}
	ids := make([]uint64, 0, len(raw))
	for _, r := range raw {
		id, err := steamid.Parse(r)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ClaimToken takes one unused login token and marks it in use in the same
// transaction. Rows locked by a concurrent claim are skipped.
func (s *Store) ClaimToken(ctx context.Context) (string, error) {
	var tok GsltToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("in_use = ?", false).Order("token").Take(&tok).Error
		if err != nil {
			return translate(err)
		}
		return tx.Model(&GsltToken{}).Where("token = ?", tok.Token).Update("in_use", true).Error
	})
	if err != nil {
		return "", fmt.Errorf("no unused login token: %w", err)
	}
	return tok.Token, nil
}

func (s *Store) ReleaseToken(ctx context.Context, token string) error {
	res := s.db.WithContext(ctx).Model(&GsltToken{}).Where("token = ?", token).Update("in_use", false)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetupSteps(ctx context.Context, matchID int) ([]engine.VetoStep, error) {
	var rows []MatchSetupStep
	if err := s.db.WithContext(ctx).Where("match_id = ?", matchID).Order("id").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	steps := make([]engine.VetoStep, len(rows))
	for i, r := range rows {
		steps[i] = engine.VetoStep{Team: engine.TeamID(r.TeamRoleID), Action: engine.Action(r.StepType)}
		if r.Map != nil {
			steps[i].Map = *r.Map
		}
	}
	return steps, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(finalize.SetupWriter) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txWriter{db: tx})
	})
}

type txWriter struct {
	db *gorm.DB
}

func (w *txWriter) CreateSetupSteps(ctx context.Context, matchID int, steps []engine.VetoStep) error {
	if len(steps) == 0 {
		return nil
	}
	rows := make([]MatchSetupStep, len(steps))
	for i, st := range steps {
		rows[i] = MatchSetupStep{MatchID: matchID, StepType: string(st.Action), TeamRoleID: int64(st.Team)}
		if st.Map != "" {
			m := st.Map
			rows[i].Map = &m
		}
	}
	return translate(w.db.WithContext(ctx).Create(&rows).Error)
}

func (w *txWriter) CreateSeriesMaps(ctx context.Context, matchID int, maps []engine.SeriesMap) error {
	if len(maps) == 0 {
		return nil
	}
	rows := make([]SeriesMap, len(maps))
	for i, m := range maps {
		rows[i] = SeriesMap{
			MatchID:                matchID,
			Map:                    m.Map,
			PickedByRoleID:         int64(m.PickedBy),
			StartAttackTeamRoleID:  optionalTeam(m.StartAttack),
			StartDefenseTeamRoleID: optionalTeam(m.StartDefense),
		}
	}
	return translate(w.db.WithContext(ctx).Create(&rows).Error)
}

func (w *txWriter) SetMatchState(ctx context.Context, matchID int, state string) error {
	res := w.db.WithContext(ctx).Model(&Match{}).Where("id = ?", matchID).Update("match_state", MatchState(state))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func optionalTeam(t engine.TeamID) *int64 {
	if t == 0 {
		return nil
	}
	v := int64(t)
	return &v
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
