package trickster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXPRequiredForLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, xpRequiredForLevel(0))
	assert.Equal(t, 20, xpRequiredForLevel(1))

	// strictly increasing from level 1 up
	prev := xpRequiredForLevel(1)
	for level := 2; level <= 50; level++ {
		required := xpRequiredForLevel(level)
		assert.Greater(t, required, prev, "level %d", level)
		prev = required
	}
}

func TestGrantXP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		startLevel    int
		startXP       int
		grant         int
		wantLevel     int
		wantXP        int
		wantLeveledUp bool
	}{
		{
			name:       "below threshold",
			startLevel: 1,
			startXP:    5,
			grant:      5,
			wantLevel:  1,
			wantXP:     10,
		},
		{
			name:          "exact threshold",
			startLevel:    1,
			startXP:       18,
			grant:         2,
			wantLevel:     2,
			wantXP:        0,
			wantLeveledUp: true,
		},
		{
			name:          "surplus is discarded",
			startLevel:    1,
			startXP:       18,
			grant:         5,
			wantLevel:     2,
			wantXP:        0,
			wantLeveledUp: true,
		},
		{
			name:          "huge grant advances one level only",
			startLevel:    1,
			startXP:       0,
			grant:         100000,
			wantLevel:     2,
			wantXP:        0,
			wantLeveledUp: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(
			tc.name, func(t *testing.T) {
				t.Parallel()
				u := &User{ID: "u", Level: tc.startLevel, XP: tc.startXP}
				leveledUp := u.GrantXP(tc.grant)
				assert.Equal(t, tc.wantLeveledUp, leveledUp)
				assert.Equal(t, tc.wantLevel, u.Level)
				assert.Equal(t, tc.wantXP, u.XP)
			},
		)
	}
}

func TestNewUserDefaults(t *testing.T) {
	t.Parallel()

	u := NewUser("123", "someone")
	assert.Equal(t, 0, u.Level)
	assert.Equal(t, 0, u.XP)
	assert.Equal(t, int64(1000), u.SocialCredit)
}

// A brand-new user's first message records the XP grant directly with
// no level-up, even though the level 0 threshold is zero.
func TestGrantPassiveXPNewUser(t *testing.T) {
	t.Parallel()

	bot, session, db := newTestTrickster(1)
	cmd := bot.grantPassiveXP(context.Background(), guildMessage("hello"))

	assert.Equal(t, CommandNothing, cmd.Kind)
	assert.Empty(t, session.sentContents())

	u, _, err := db.GetOrCreateUser(context.Background(), testUserID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Level)
	assert.Positive(t, u.XP)
}

func TestGrantPassiveXPLevelUp(t *testing.T) {
	t.Parallel()

	bot, _, db := newTestTrickster(1)
	ctx := context.Background()

	// seed an existing user sitting just under the level 1 threshold
	u := NewUser(testUserID, testUserName)
	u.Level = 1
	u.XP = xpRequiredForLevel(1) - 1
	require.NoError(t, db.Save(u))

	cmd := bot.grantPassiveXP(ctx, guildMessage("ding"))
	require.Equal(t, CommandText, cmd.Kind)
	assert.Contains(t, cmd.Text, "leveled up to level 2")

	after, _, err := db.GetOrCreateUser(ctx, testUserID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, after.Level)
	assert.Equal(t, 0, after.XP)
}
