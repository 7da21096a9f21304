package trickster

import "log/slog"

// Memory is a single keyed fact the bot has stored about a user.
// (user, key) pairs are unique; rewriting a key replaces the record so
// the updated timestamp always reflects the latest write.
type Memory struct {
	ModelUintID
	UserID  string `json:"user_id" gorm:"index:idx_memory_user_key,unique"`
	Key     string `json:"key" gorm:"index:idx_memory_user_key,unique"`
	Content string `json:"content"`
	ModelUnixTime
}

func (m Memory) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("id", uint64(m.ID)),
		slog.String("user_id", m.UserID),
		slog.String("key", m.Key),
	)
}

// MathQuestion logs every generated quiz expression, so repeats can be
// rejected.
type MathQuestion struct {
	ModelUintID
	Question string  `json:"question" gorm:"index"`
	Answer   float64 `json:"answer"`
	ModelUnixTime
}
