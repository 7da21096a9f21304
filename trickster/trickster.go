package trickster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

// odds that a typing-start event produces a callout message
const typingCalloutOdds = 100

// Trickster is the bot. One instance serves one guild plus DMs.
type Trickster struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	db      DBI
	discord DiscordSessionHandler
	llm     *LLM
	brave   *BraveAPI

	httpClient *http.Client
	api        *http.Server

	// botUserID is set from the Ready payload
	botUserID string

	// mu guards all dispatch state below: the rng, pending quizzes,
	// counters and novelty bookkeeping. Discord handlers run on
	// discordgo's goroutines, so every dispatch path takes it.
	mu             sync.Mutex
	rng            *rand.Rand
	lastRename     time.Time
	lastTyper      string
	typingMessages map[string]string
	messageCounts  map[string]int
	pendingMath    map[string]*PendingMathTest
	pendingColor   map[string]*PendingColorTest

	userBucket    *Bucket
	channelBucket *Bucket
	dmBucket      *Bucket

	cache *messageCache

	// background goroutines spawned by handlers (AI replies, relays,
	// memory creation)
	wg sync.WaitGroup

	eventCtx    context.Context
	cancelEvent context.CancelFunc
}

// New creates a Trickster from the given config. The database and
// gateway connections are established in Run.
func New(cfg *Config) (*Trickster, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if cfg.Discord == nil || cfg.Discord.Token == "" {
		return nil, errors.New("discord token is required")
	}
	if cfg.Discord.GuildID == "" {
		return nil, errors.New("discord guild_id is required")
	}

	handler := newLogHandler(cfg.LogLevel)
	logger := slog.New(handler).With(loggerNameKey, "trickster")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageTyping |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	discordgo.Logger = discordgoLoggerFunc(context.Background(), handler)
	session.LogLevel = discordgoLogLevel(cfg.Discord.DiscordGoLogLevel)
	if cfg.Discord.httpClient != nil {
		session.Client = cfg.Discord.httpClient
	}

	t := &Trickster{
		config:     cfg,
		logger:     logger,
		logHandler: handler,
		discord: DiscordSession{
			Session: session,
			logger:  slog.New(handler).With(loggerNameKey, "discord"),
		},
		llm:            newLLM(cfg.LLM, httpClient, handler),
		brave:          NewBraveAPI(httpClient, cfg.BraveAPIKey),
		httpClient:     httpClient,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		typingMessages: map[string]string{},
		messageCounts:  map[string]int{},
		pendingMath:    map[string]*PendingMathTest{},
		pendingColor:   map[string]*PendingColorTest{},
		userBucket:     NewBucket(userBucketLimit, userBucketWindow),
		channelBucket:  NewBucket(channelBucketLimit, channelBucketWindow),
		dmBucket:       NewBucket(dmBucketLimit, dmBucketWindow),
		cache:          newMessageCache(),
	}
	if t.llm == nil {
		logger.Warn("no LLM API key set, conversational features disabled")
	}
	if t.brave == nil {
		logger.Info("no brave API key set, web search tool disabled")
	}
	return t, nil
}

// Run connects to the database and the gateway, starts the state API
// when enabled, and blocks until ctx is cancelled or a component fails.
func (t *Trickster) Run(ctx context.Context) error {
	ctx = WithLogger(ctx, t.logger)

	startupCtx, startupCancel := context.WithTimeout(
		ctx,
		t.config.StartupTimeout,
	)
	defer startupCancel()

	gdb, err := CreateDB(
		startupCtx,
		t.config.DatabaseType,
		t.config.Database,
		newGORMLogger(t.logHandler, t.config.DatabaseSlowThreshold),
	)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	db, err := newDatabase(
		startupCtx,
		gdb,
		slog.New(t.logHandler),
		t.config.DatabaseType == "postgres",
	)
	if err != nil {
		return err
	}
	t.db = db

	t.eventCtx, t.cancelEvent = context.WithCancel(ctx)
	defer t.cancelEvent()

	t.discord.AddHandler(t.handleReady)
	t.discord.AddHandler(t.handleGuildCreate)
	t.discord.AddHandler(t.handleMemberAdd)
	t.discord.AddHandler(t.handleTypingStart)
	t.discord.AddHandler(t.handleMessageCreate)

	if err = t.discord.Open(); err != nil {
		return fmt.Errorf("error connecting to gateway: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)

	if t.config.API != nil && t.config.API.Enabled {
		t.api = t.newAPIServer()
		g.Go(
			func() error {
				t.logger.Info("starting state API", "listen", t.api.Addr)
				serveErr := t.api.ListenAndServe()
				if errors.Is(serveErr, http.ErrServerClosed) {
					return nil
				}
				return serveErr
			},
		)
	}

	g.Go(
		func() error {
			<-groupCtx.Done()
			t.shutdown()
			return nil
		},
	)

	t.logger.Info("bot is up", "guild_id", t.config.Discord.GuildID)
	return g.Wait()
}

// shutdown closes the gateway and API server and waits (bounded) for
// background goroutines.
func (t *Trickster) shutdown() {
	t.logger.Info("shutting down")
	t.cancelEvent()

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		t.config.ShutdownTimeout,
	)
	defer cancel()

	if t.api != nil {
		if err := t.api.Shutdown(shutdownCtx); err != nil {
			t.logger.Error("error shutting down state API", tint.Err(err))
		}
	}
	if err := t.discord.Close(); err != nil {
		t.logger.Error("error closing gateway", tint.Err(err))
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		t.logger.Warn("shutdown timeout reached with goroutines outstanding")
	}
}

func (t *Trickster) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	t.mu.Lock()
	t.botUserID = r.User.ID
	t.mu.Unlock()

	status := t.config.Discord.CustomStatus
	if status == "" {
		status = DefaultCustomStatus
	}
	err := t.discord.UpdateStatusComplex(
		discordgo.UpdateStatusData{
			Status: string(discordgo.StatusOnline),
			Activities: []*discordgo.Activity{
				{
					Name:  status,
					Type:  discordgo.ActivityTypeCustom,
					State: status,
				},
			},
		},
	)
	if err != nil {
		t.logger.Error("error setting custom status", tint.Err(err))
	}
	t.logger.Info(
		"gateway ready",
		"bot_user_id", r.User.ID,
		"username", r.User.Username,
	)
}

// handleGuildCreate leaves any guild other than the configured one.
func (t *Trickster) handleGuildCreate(
	_ *discordgo.Session,
	g *discordgo.GuildCreate,
) {
	if g.ID == t.config.Discord.GuildID {
		return
	}
	t.logger.Warn("leaving unknown guild", "guild_id", g.ID, "name", g.Name)
	if err := t.discord.GuildLeave(g.ID); err != nil {
		t.logger.Error("error leaving guild", "guild_id", g.ID, tint.Err(err))
	}
}

func (t *Trickster) handleMemberAdd(
	_ *discordgo.Session,
	g *discordgo.GuildMemberAdd,
) {
	if t.config.Discord.JoinChannel == "" ||
		g.GuildID != t.config.Discord.GuildID {
		return
	}
	_, err := t.discord.ChannelMessageSend(
		t.config.Discord.JoinChannel,
		fmt.Sprintf("Welcome <@%s>! Say something, I dare you.", g.User.ID),
	)
	if err != nil {
		t.logger.Error("error sending join message", tint.Err(err))
	}
}

// handleTypingStart occasionally calls out whoever is typing, replacing
// the previous callout in that channel. The same user is never called
// out twice in a row.
func (t *Trickster) handleTypingStart(
	_ *discordgo.Session,
	ev *discordgo.TypingStart,
) {
	if ev.GuildID == "" || ev.GuildID != t.config.Discord.GuildID {
		return
	}

	t.mu.Lock()
	if ev.UserID == t.botUserID ||
		ev.UserID == t.lastTyper ||
		t.rng.Intn(typingCalloutOdds) != 2 {
		t.mu.Unlock()
		return
	}
	t.lastTyper = ev.UserID
	previous := t.typingMessages[ev.ChannelID]
	t.mu.Unlock()

	// the typing event only carries IDs, so the display name comes from
	// a member lookup once the roll has won
	member, err := t.discord.GuildMember(ev.GuildID, ev.UserID)
	if err != nil {
		t.logger.Warn("error resolving typing member", tint.Err(err))
		return
	}
	name := member.Nick
	if name == "" && member.User != nil {
		name = member.User.Username
	}
	if name == "" {
		return
	}

	if previous != "" {
		if err := t.discord.ChannelMessageDelete(ev.ChannelID, previous); err != nil {
			t.logger.Warn("error deleting typing callout", tint.Err(err))
		}
	}
	msg, err := t.discord.ChannelMessageSend(
		ev.ChannelID,
		fmt.Sprintf("%s is typing", name),
	)
	if err != nil {
		t.logger.Error("error sending typing callout", tint.Err(err))
		return
	}
	t.mu.Lock()
	t.typingMessages[ev.ChannelID] = msg.ID
	t.mu.Unlock()
}

// handleMessageCreate is the main dispatch entrypoint for every
// incoming message, guild or DM.
func (t *Trickster) handleMessageCreate(
	_ *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	if m.Author == nil || m.Author.Bot {
		// own messages still feed the context cache so the responder
		// sees its half of the conversation
		if m.Author != nil && m.Author.ID == t.botUserID {
			t.cache.add(
				m.ChannelID, cachedMessage{
					AuthorID:   m.Author.ID,
					AuthorName: "The Trickster",
					Content: truncate(
						m.ContentWithMentionsReplaced(),
						promptMessageLimit,
					),
				},
			)
		}
		return
	}

	ctx := WithLogger(t.eventCtx, t.logger)

	if m.GuildID == "" {
		t.handleDirectMessage(ctx, m)
		return
	}
	if m.GuildID != t.config.Discord.GuildID {
		t.logger.Warn("message from unknown guild", "guild_id", m.GuildID)
		if err := t.discord.GuildLeave(m.GuildID); err != nil {
			t.logger.Error("error leaving guild", tint.Err(err))
		}
		return
	}

	if t.moderateTodayI(ctx, m) {
		return
	}

	t.cache.add(
		m.ChannelID, cachedMessage{
			AuthorID:   m.Author.ID,
			AuthorName: messageDisplayName(m.Message),
			Content: truncate(
				m.ContentWithMentionsReplaced(),
				promptMessageLimit,
			),
		},
	)

	if _, ok := t.channelBucket.Check(m.ChannelID); !ok {
		t.logger.Debug("channel rate limited", "channel_id", m.ChannelID)
		return
	}
	if wait, ok := t.userBucket.Check(m.Author.ID); !ok {
		if wait >= userBucketSleepLimit {
			t.logger.Debug(
				"user rate limited",
				"user_id", m.Author.ID,
				"wait", wait,
			)
			return
		}
		time.Sleep(wait)
	}

	t.mu.Lock()
	cmd := t.dispatch(ctx, m)
	var (
		aiTriggered bool
		req         AIRequest
	)
	if cmd.Kind == CommandNothing && t.shouldTriggerAI(m) {
		aiTriggered = true
		req = t.buildAIRequest(m)
	}
	t.mu.Unlock()

	if cmd.Effectful() {
		if err := cmd.execute(t.discord, m); err != nil {
			t.logger.ErrorContext(
				ctx,
				"error executing command",
				"kind", cmd.Kind.String(),
				tint.Err(err),
			)
		}
		t.userBucket.Register(m.Author.ID)
		t.channelBucket.Register(m.ChannelID)
	}

	if aiTriggered {
		t.userBucket.Register(m.Author.ID)
		t.channelBucket.Register(m.ChannelID)
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.respondWithAI(ctx, m, req)
		}()
	}

	t.bumpSummarizer(ctx, m.ChannelID)
}

// handleDirectMessage routes DMs straight to the conversational
// responder, under the DM rate limit.
func (t *Trickster) handleDirectMessage(
	ctx context.Context,
	m *discordgo.MessageCreate,
) {
	if _, ok := t.dmBucket.Check(m.Author.ID); !ok {
		_, err := t.discord.ChannelMessageSend(
			m.ChannelID,
			"Slow down. Try again in a while.",
		)
		if err != nil {
			t.logger.ErrorContext(ctx, "error sending DM notice", tint.Err(err))
		}
		return
	}
	t.dmBucket.Register(m.Author.ID)

	t.cache.add(
		m.ChannelID, cachedMessage{
			AuthorID:   m.Author.ID,
			AuthorName: messageDisplayName(m.Message),
			Content: truncate(
				m.ContentWithMentionsReplaced(),
				promptMessageLimit,
			),
		},
	)

	t.mu.Lock()
	req := t.buildAIRequest(m)
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.respondWithAI(ctx, m, req)
	}()

	t.bumpSummarizer(ctx, m.ChannelID)
}

// bumpSummarizer counts messages per channel and kicks off background
// memory creation every time the threshold is reached.
func (t *Trickster) bumpSummarizer(ctx context.Context, channelID string) {
	t.mu.Lock()
	t.messageCounts[channelID]++
	if t.messageCounts[channelID] < summarizerMessageThreshold {
		t.mu.Unlock()
		return
	}
	t.messageCounts[channelID] = 0
	t.mu.Unlock()

	recent := t.cache.recent(channelID, channelContextSize)
	if len(recent) == 0 {
		return
	}
	seen := map[string]bool{}
	var participants []string
	var lines []string
	for _, msg := range recent {
		if !seen[msg.AuthorName] && msg.AuthorID != t.botUserID {
			seen[msg.AuthorName] = true
			participants = append(participants, msg.AuthorName)
		}
		lines = append(lines, msg.AuthorName+": "+msg.Content)
	}
	if len(participants) == 0 {
		return
	}
	conversation := strings.Join(lines, "\n")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.createMemories(ctx, conversation, participants)
	}()
}
