package trickster

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"
)

// mockSession records every discord call so handler tests can assert on
// what the bot actually did.
type mockSession struct {
	mu sync.Mutex

	sent      []mockSent
	edits     []mockEdit
	deletes   []string
	reactions []string
	timeouts  []string
	leaves    []string

	channelEdits []*discordgo.ChannelEdit

	// members backs GuildMember lookups; unknown IDs fall back to a
	// member whose username is the ID itself
	members map[string]*discordgo.Member

	sendErr error
	nextID  int
}

type mockSent struct {
	ChannelID string
	Content   string
	Reply     bool
	FileName  string
}

type mockEdit struct {
	MessageID string
	Content   string
}

func (m *mockSession) Open() error  { return nil }
func (m *mockSession) Close() error { return nil }

func (m *mockSession) AddHandler(any) func() { return func() {} }

func (m *mockSession) nextMessage(channelID string) *discordgo.Message {
	m.nextID++
	return &discordgo.Message{
		ID:        fmt.Sprintf("msg-%d", m.nextID),
		ChannelID: channelID,
	}
}

func (m *mockSession) ChannelMessageSend(
	channelID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, mockSent{ChannelID: channelID, Content: content})
	return m.nextMessage(channelID), nil
}

func (m *mockSession) ChannelMessageSendReply(
	channelID string,
	content string,
	_ *discordgo.MessageReference,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(
		m.sent,
		mockSent{ChannelID: channelID, Content: content, Reply: true},
	)
	return m.nextMessage(channelID), nil
}

func (m *mockSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	sent := mockSent{ChannelID: channelID, Content: data.Content}
	if len(data.Files) > 0 {
		sent.FileName = data.Files[0].Name
	}
	m.sent = append(m.sent, sent)
	return m.nextMessage(channelID), nil
}

func (m *mockSession) ChannelMessageEdit(
	channelID string,
	messageID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, mockEdit{MessageID: messageID, Content: content})
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, nil
}

func (m *mockSession) ChannelMessageDelete(
	_ string,
	messageID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, messageID)
	return nil
}

func (m *mockSession) MessageReactionAdd(
	_ string,
	_ string,
	emojiID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, emojiID)
	return nil
}

func (m *mockSession) ChannelEdit(
	channelID string,
	data *discordgo.ChannelEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelEdits = append(m.channelEdits, data)
	return &discordgo.Channel{ID: channelID}, nil
}

func (m *mockSession) GuildMember(
	_ string,
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member, ok := m.members[userID]; ok {
		return member, nil
	}
	return &discordgo.Member{
		User: &discordgo.User{ID: userID, Username: userID},
	}, nil
}

func (m *mockSession) GuildMemberTimeout(
	_ string,
	userID string,
	_ *time.Time,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = append(m.timeouts, userID)
	return nil
}

func (m *mockSession) GuildLeave(
	guildID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves = append(m.leaves, guildID)
	return nil
}

func (m *mockSession) UpdateStatusComplex(discordgo.UpdateStatusData) error {
	return nil
}

func (m *mockSession) sentContents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Content
	}
	return out
}

// stubDB is an in-memory DBI for handler tests. It has no gorm handle,
// so anything reaching for DB() must use a real database instead.
type stubDB struct {
	mu            sync.Mutex
	users         map[string]*User
	memories      map[string]map[string]Memory
	mathQuestions map[string]float64
	saveErr       error
}

func newStubDB() *stubDB {
	return &stubDB{
		users:         map[string]*User{},
		memories:      map[string]map[string]Memory{},
		mathQuestions: map[string]float64{},
	}
}

func (s *stubDB) DB() *gorm.DB { return nil }

func (s *stubDB) Create(value any) error { return s.Save(value) }

func (s *stubDB) Save(value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if u, ok := value.(*User); ok {
		cp := *u
		s.users[u.ID] = &cp
	}
	return nil
}

func (s *stubDB) Delete(any, ...any) error { return nil }

func (s *stubDB) GetOrCreateUser(
	_ context.Context,
	id string,
	name string,
) (*User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		if name != "" {
			u.Name = name
		}
		cp := *u
		return &cp, false, nil
	}
	u := NewUser(id, name)
	s.users[id] = u
	cp := *u
	return &cp, true, nil
}

func (s *stubDB) UserByName(name string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Name, name) {
			cp := *u
			return &cp, true
		}
	}
	return nil, false
}

func (s *stubDB) UpsertMemory(
	_ context.Context,
	userID string,
	key string,
	content string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memories[userID] == nil {
		s.memories[userID] = map[string]Memory{}
	}
	s.memories[userID][key] = Memory{
		UserID:  userID,
		Key:     key,
		Content: content,
	}
	return nil
}

func (s *stubDB) RemoveMemory(
	_ context.Context,
	userID string,
	key string,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[userID][key]; !ok {
		return false, nil
	}
	delete(s.memories[userID], key)
	return true, nil
}

func (s *stubDB) UserMemories(userID string, limit int) ([]Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Memory
	for _, m := range s.memories[userID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubDB) MathQuestionSeen(question string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mathQuestions[question]
	return ok, nil
}

func (s *stubDB) RecordMathQuestion(question string, answer float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mathQuestions[question] = answer
	return nil
}

const (
	testGuildID   = "guild-1"
	testChannelID = "channel-1"
	testUserID    = "user-1"
	testUserName  = "somebody"
)

// newTestTrickster builds a bot wired to a stub store and a recording
// session, with a seeded rng so branch rolls are reproducible.
func newTestTrickster(seed int64) (*Trickster, *mockSession, *stubDB) {
	session := &mockSession{}
	db := newStubDB()
	cfg := DefaultConfig()
	cfg.Discord.GuildID = testGuildID

	t := &Trickster{
		config:         cfg,
		logger:         slog.Default(),
		logHandler:     slog.Default().Handler(),
		db:             db,
		discord:        session,
		rng:            rand.New(rand.NewSource(seed)),
		typingMessages: map[string]string{},
		messageCounts:  map[string]int{},
		pendingMath:    map[string]*PendingMathTest{},
		pendingColor:   map[string]*PendingColorTest{},
		userBucket:     NewBucket(userBucketLimit, userBucketWindow),
		channelBucket:  NewBucket(channelBucketLimit, channelBucketWindow),
		dmBucket:       NewBucket(dmBucketLimit, dmBucketWindow),
		cache:          newMessageCache(),
		eventCtx:       context.Background(),
		cancelEvent:    func() {},
		botUserID:      "bot-user",
	}
	return t, session, db
}

// losingSource drives math/rand to always return zero, so every
// 1-in-N roll that wins on a specific value loses.
type losingSource struct{}

func (losingSource) Int63() int64 { return 0 }
func (losingSource) Seed(int64)   {}

func guildMessage(content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "incoming-1",
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Content:   content,
			Author: &discordgo.User{
				ID:       testUserID,
				Username: testUserName,
			},
		},
	}
}
