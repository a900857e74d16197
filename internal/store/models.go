package store

import "time"

type MatchState string

const (
	MatchEntered   MatchState = "entered"
	MatchScheduled MatchState = "scheduled"
	MatchCompleted MatchState = "completed"
)

type User struct {
	ID        uint   `gorm:"primaryKey"`
	DiscordID int64  `gorm:"uniqueIndex;not null"`
	SteamID   string `gorm:"not null"`
}

// TeamMember links a chat user to a team role.
type TeamMember struct {
	UserID int64 `gorm:"primaryKey"`
	TeamID int64 `gorm:"primaryKey;index"`
}

type Match struct {
	ID               int        `gorm:"primaryKey" json:"id"`
	TeamOneRoleID    int64      `gorm:"not null;index" json:"team_one_id"`
	TeamOneName      string     `gorm:"not null" json:"team_one_name"`
	TeamTwoRoleID    int64      `gorm:"not null;index" json:"team_two_id"`
	TeamTwoName      string     `gorm:"not null" json:"team_two_name"`
	Note             *string    `json:"note,omitempty"`
	DateAdded        time.Time  `gorm:"not null" json:"date_added"`
	MatchState       MatchState `gorm:"not null;default:entered" json:"match_state"`
	ScheduledTimeStr *string    `json:"scheduled_time,omitempty"`
	SeriesType       string     `gorm:"not null" json:"series_type"`
}

type MatchSetupStep struct {
	ID         int     `gorm:"primaryKey"`
	MatchID    int     `gorm:"not null;index"`
	StepType   string  `gorm:"not null"`
	TeamRoleID int64   `gorm:"not null"`
	Map        *string
}

func (MatchSetupStep) TableName() string { return "match_setup_step" }

type SeriesMap struct {
	ID                     int    `gorm:"primaryKey"`
	MatchID                int    `gorm:"not null;index"`
	Map                    string `gorm:"not null"`
	PickedByRoleID         int64  `gorm:"not null"`
	StartAttackTeamRoleID  *int64
	StartDefenseTeamRoleID *int64
}

func (SeriesMap) TableName() string { return "series_map" }

type MatchServer struct {
	ServerID    string `gorm:"primaryKey"`
	RegionLabel string `gorm:"not null"`
}

type GsltToken struct {
	Token string `gorm:"primaryKey"`
	InUse bool   `gorm:"not null;default:false"`
}

type Map struct {
	Name string `gorm:"primaryKey"`
}

var allModels = []any{&User{}, &TeamMember{}, &Match{}, &MatchSetupStep{}, &SeriesMap{}, &MatchServer{}, &GsltToken{}, &Map{}}
