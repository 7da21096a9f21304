package trickster

import (
	"fmt"
	"log/slog"
	"math"
)

// User is a member the bot has seen at least once. XP, level and
// social credit are the bot's running opinion of them; relationship and
// the example dialogue pair shape how the persona addresses them.
type User struct {
	// ID is the discord snowflake
	ID string `json:"id" gorm:"primaryKey"`

	// Name is the most recently seen display name
	Name string `json:"name"`

	Level        int   `json:"level"`
	XP           int   `json:"xp"`
	SocialCredit int64 `json:"social_credit"`

	// Relationship is freeform persona context ("sworn rival",
	// "beloved moderator", ...)
	Relationship string `json:"relationship"`

	// ExampleInput/ExampleOutput are a sample exchange demonstrating
	// how the persona talks to this user
	ExampleInput  string `json:"example_input"`
	ExampleOutput string `json:"example_output"`

	ModelUnixTime
}

func NewUser(id string, name string) *User {
	return &User{ID: id, Name: name, SocialCredit: 1000}
}

func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.ID),
		slog.String("name", u.Name),
		slog.Int("level", u.Level),
		slog.Int("xp", u.XP),
		slog.Int64("social_credit", u.SocialCredit),
	)
}

// StatLine renders the user's stats the way they appear in prompts and
// level-up announcements.
func (u User) StatLine() string {
	return fmt.Sprintf(
		"level %d (%d/%d xp), social credit %d",
		u.Level,
		u.XP,
		xpRequiredForLevel(u.Level),
		u.SocialCredit,
	)
}

// xpRequiredForLevel returns the XP threshold for advancing out of the
// given level. Strictly increasing for level >= 1; level 0 is a
// transient state with a zero threshold.
func xpRequiredForLevel(level int) int {
	return int(20 * math.Pow(float64(level), 1.3))
}

// GrantXP adds the given XP to the user and applies at most one level
// advancement. Crossing the threshold zeroes the XP counter; surplus is
// never carried into the new level, and multiple levels are never
// skipped in a single grant.
func (u *User) GrantXP(amount int) (leveledUp bool) {
	u.XP += amount
	if u.XP >= xpRequiredForLevel(u.Level) {
		u.Level++
		u.XP = 0
		return true
	}
	return false
}
