package trickster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ModelUintID is embedded in models with an autoincrementing primary key.
type ModelUintID struct {
	ID uint `gorm:"primarykey" json:"id"`
}

// ModelUnixTime is embedded in models to provide created/updated
// timestamps in unix milliseconds.
type ModelUnixTime struct {
	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli" json:"updated_at"`
}

// DBI is the bot's interface to the persistent store. Writes are
// serialized when the backing database is sqlite.
type DBI interface {
	// DB returns the underlying gorm handle, for reads
	DB() *gorm.DB

	Create(value any) error
	Save(value any) error
	Delete(value any, conds ...any) error

	// GetOrCreateUser returns the stored user for the given discord ID,
	// creating a fresh record on first sight. The stored display name is
	// refreshed when it differs. The boolean reports whether the user
	// was created.
	GetOrCreateUser(ctx context.Context, id string, name string) (*User, bool, error)

	// UserByName resolves a cached user by display name,
	// case-insensitively
	UserByName(name string) (*User, bool)

	// UpsertMemory replaces any memory with the same (user, key) pair
	UpsertMemory(ctx context.Context, userID string, key string, content string) error

	// RemoveMemory deletes the memory with the given (user, key) pair,
	// reporting whether a record existed
	RemoveMemory(ctx context.Context, userID string, key string) (bool, error)

	// UserMemories returns up to limit memories for the user, most
	// recently written first. limit<=0 returns all.
	UserMemories(userID string, limit int) ([]Memory, error)

	// MathQuestionSeen reports whether the exact question text was
	// asked before
	MathQuestionSeen(question string) (bool, error)

	// RecordMathQuestion logs a generated question and its answer
	RecordMathQuestion(question string, answer float64) error
}

type database struct {
	db     *gorm.DB
	logger *slog.Logger

	// Serializes writes. sqlite misbehaves under concurrent writers, so
	// the lock is held for every write unless concurrentWrites is set.
	writeMu          sync.Mutex
	concurrentWrites bool

	// userCache holds every known user, keyed by discord ID. Loaded on
	// startup, updated on every write through this interface. Cached
	// structs are never mutated in place; lookups hand out copies so
	// concurrent holders cannot race on the same struct.
	userCache   map[string]*User
	userCacheMu sync.RWMutex
}

// CreateDB opens (and migrates) the database indicated by dbType
// ("sqlite" or "postgres") and dsn.
func CreateDB(
	ctx context.Context,
	dbType string,
	dsn string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "sqlite":
		dialector = sqlite.Open(
			fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", dsn),
		)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database type: %s", dbType)
	}

	cfg := &gorm.Config{}
	if gormLogger != nil {
		cfg.Logger = gormLogger
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	err = db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&User{},
				&Memory{},
				&MathQuestion{},
			)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return db, nil
}

func newDatabase(
	ctx context.Context,
	db *gorm.DB,
	logger *slog.Logger,
	concurrentWrites bool,
) (*database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &database{
		db:               db,
		logger:           logger.With(loggerNameKey, "database"),
		concurrentWrites: concurrentWrites,
		userCache:        map[string]*User{},
	}
	var users []User
	if err := db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("error loading users: %w", err)
	}
	for i := range users {
		u := users[i]
		d.userCache[u.ID] = &u
	}
	d.logger.InfoContext(ctx, "loaded user cache", "users", len(d.userCache))
	return d, nil
}

func (d *database) lockWrites() func() {
	if d.concurrentWrites {
		return func() {}
	}
	d.writeMu.Lock()
	return d.writeMu.Unlock
}

func (d *database) DB() *gorm.DB {
	return d.db
}

func (d *database) Create(value any) error {
	defer d.lockWrites()()
	return d.db.Create(value).Error
}

func (d *database) Save(value any) error {
	defer d.lockWrites()()
	if u, ok := value.(*User); ok {
		defer d.cacheUser(u)
	}
	return d.db.Save(value).Error
}

func (d *database) Delete(value any, conds ...any) error {
	defer d.lockWrites()()
	return d.db.Delete(value, conds...).Error
}

func (d *database) cacheUser(u *User) {
	cp := *u
	d.userCacheMu.Lock()
	defer d.userCacheMu.Unlock()
	d.userCache[cp.ID] = &cp
}

func (d *database) GetOrCreateUser(
	ctx context.Context,
	id string,
	name string,
) (*User, bool, error) {
	d.userCacheMu.RLock()
	cached, ok := d.userCache[id]
	var user User
	if ok {
		user = *cached
	}
	d.userCacheMu.RUnlock()
	if ok {
		if name != "" && user.Name != name {
			user.Name = name
			if err := d.Save(&user); err != nil {
				return nil, false, fmt.Errorf("error updating user name: %w", err)
			}
		}
		return &user, false, nil
	}

	fresh := NewUser(id, name)
	unlock := d.lockWrites()
	err := d.db.WithContext(ctx).FirstOrCreate(fresh, "id = ?", id).Error
	unlock()
	if err != nil {
		return nil, false, fmt.Errorf("error creating user: %w", err)
	}
	d.cacheUser(fresh)
	d.logger.InfoContext(
		ctx,
		"created user",
		"user_id", fresh.ID,
		"name", fresh.Name,
	)
	return fresh, true, nil
}

func (d *database) UserByName(name string) (*User, bool) {
	d.userCacheMu.RLock()
	defer d.userCacheMu.RUnlock()
	for _, u := range d.userCache {
		if strings.EqualFold(u.Name, name) {
			cp := *u
			return &cp, true
		}
	}
	return nil, false
}

func (d *database) UpsertMemory(
	ctx context.Context,
	userID string,
	key string,
	content string,
) error {
	defer d.lockWrites()()
	return d.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			err := tx.Where(
				"user_id = ? AND key = ?", userID, key,
			).Delete(&Memory{}).Error
			if err != nil {
				return err
			}
			return tx.Create(
				&Memory{UserID: userID, Key: key, Content: content},
			).Error
		},
	)
}

func (d *database) RemoveMemory(
	ctx context.Context,
	userID string,
	key string,
) (bool, error) {
	defer d.lockWrites()()
	rv := d.db.WithContext(ctx).Where(
		"user_id = ? AND key = ?", userID, key,
	).Delete(&Memory{})
	return rv.RowsAffected > 0, rv.Error
}

func (d *database) UserMemories(userID string, limit int) ([]Memory, error) {
	var memories []Memory
	q := d.db.Where("user_id = ?", userID).Order("updated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&memories).Error
	return memories, err
}

func (d *database) MathQuestionSeen(question string) (bool, error) {
	var count int64
	err := d.db.Model(&MathQuestion{}).Where(
		"question = ?", question,
	).Count(&count).Error
	return count > 0, err
}

func (d *database) RecordMathQuestion(question string, answer float64) error {
	defer d.lockWrites()()
	return d.db.Create(
		&MathQuestion{Question: question, Answer: answer},
	).Error
}
