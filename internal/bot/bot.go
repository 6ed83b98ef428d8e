package bot

import (
	"context"
	"fmt"
	"time"

	"eventpoints-bot/internal/analytics"
	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/config"
	"eventpoints-bot/internal/conversation"
	"eventpoints-bot/internal/metrics"
	"eventpoints-bot/internal/moderation"
	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/modules/throttle"
	"eventpoints-bot/internal/session"
	"eventpoints-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	catalog    *catalog.Catalog
	registry   *session.Registry
	machine    *conversation.Machine
	moderation *moderation.Engine
	announcer  *Announcer
	throttle   *throttle.Module
	audit      *audit.Logger
	analytics  *analytics.Service
	metrics    *metrics.Metrics
	session    *discordgo.Session
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, registry *session.Registry, auditLogger *audit.Logger, analyticsSvc *analytics.Service, metricsSvc *metrics.Metrics) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		catalog:   catalog.Default(),
		registry:  registry,
		audit:     auditLogger,
		analytics: analyticsSvc,
		metrics:   metricsSvc,
		session:   dg,
	}

	b.machine = conversation.New(registry, b.catalog, store, auditLogger, logger)
	b.machine.WithMaxParticipants(cfg.Points.MaxParticipants)
	if cfg.Screenshots.Probe {
		b.machine.WithVerifier(conversation.HTTPVerifier{Client: dg.Client, MaxBytes: cfg.Screenshots.MaxBytes})
	}

	b.announcer = NewAnnouncer(func(channelID, messageID string, embed *discordgo.MessageEmbed) error {
		_, err := b.session.ChannelMessageEditEmbed(channelID, messageID, embed)
		return err
	}, b.catalog, cfg, b.language)
	if metricsSvc != nil {
		b.announcer.observe = metricsSvc.AnnouncementEdit
	}

	b.moderation = moderation.New(store, b.announcer, auditLogger, logger, cfg.Points.Multipliers)
	b.moderation.WithPointsWindow(func(ctx context.Context, guildID string) moderation.PointsWindow {
		gc := b.guildConfig(ctx, guildID)
		return moderation.PointsWindow{Start: gc.PointsStartDate, End: gc.PointsEndDate}
	})

	b.throttle = throttle.New(throttle.Config{
		Actions:       cfg.Throttle.MaxSessions,
		WindowSeconds: cfg.Throttle.WindowSeconds,
	}, auditLogger)

	if b.audit != nil {
		b.audit.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
			if entry.Level == audit.LevelInfo {
				return
			}
			b.notifyAudit(ctx, entry)
		})
	}

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	return b.registerCommands()
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

// Housekeeping drops idle throttle windows and refreshes the active session gauge.
func (b *Bot) Housekeeping() {
	b.throttle.Prune()
	b.observeSessions()
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) observeSessions() {
	if b.metrics != nil {
		b.metrics.SetSessionsActive(b.registry.Len())
	}
}

func (b *Bot) guildConfig(ctx context.Context, guildID string) storage.GuildConfig {
	defaults := storage.GuildConfig{
		GuildID:          guildID,
		Language:         b.cfg.DefaultLanguage,
		EventsChannel:    b.cfg.EventsChannel,
		ModeratorChannel: b.cfg.ModeratorChannel,
	}
	gc, err := b.store.GetGuildConfig(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild config fallback", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	return gc
}

func (b *Bot) language(ctx context.Context, guildID string) string {
	if guildID == "" {
		return b.cfg.DefaultLanguage
	}
	lang := b.guildConfig(ctx, guildID).Language
	if lang == "" {
		return b.cfg.DefaultLanguage
	}
	return lang
}

// channelLocation describes a channel the way the conversation machine needs it.
func (b *Bot) channelLocation(channelID string) conversation.Location {
	loc := conversation.Location{ChannelID: channelID}
	ch, err := b.session.State.Channel(channelID)
	if err != nil || ch == nil {
		ch, err = b.session.Channel(channelID)
		if err != nil || ch == nil {
			return loc
		}
	}
	if ch.IsThread() {
		loc.IsThread = true
		loc.ParentID = ch.ParentID
		loc.ThreadName = ch.Name
	}
	return loc
}

func interactionUser(interaction *discordgo.InteractionCreate) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	return interaction.User
}

// canModerate allows Manage Messages, Administrator or the guild's moderator role.
func (b *Bot) canModerate(ctx context.Context, interaction *discordgo.InteractionCreate) bool {
	member := interaction.Member
	if member == nil {
		return false
	}
	if member.Permissions&(discordgo.PermissionManageMessages|discordgo.PermissionAdministrator) != 0 {
		return true
	}
	role := b.guildConfig(ctx, interaction.GuildID).ModeratorRole
	if role == "" {
		return false
	}
	for _, id := range member.Roles {
		if id == role {
			return true
		}
	}
	return false
}

func isAdmin(interaction *discordgo.InteractionCreate) bool {
	return interaction.Member != nil && interaction.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func (b *Bot) moderatorChannel(ctx context.Context, guildID, fallback string) string {
	if channelID := b.guildConfig(ctx, guildID).ModeratorChannel; channelID != "" {
		return channelID
	}
	return fallback
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	channelID := b.moderatorChannel(ctx, entry.GuildID, "")
	if channelID == "" {
		return
	}
	lang := b.language(ctx, entry.GuildID)
	who := entry.UserID
	if who != "" {
		who = "<@" + who + ">"
	}
	if _, err := b.session.ChannelMessageSend(channelID, tf(lang, "audit_notice", entry.Level, entry.Event, fmt.Sprintf("%s %s", who, entry.Details))); err != nil {
		b.logger.Warn("audit notify failed", zap.String("guild_id", entry.GuildID), zap.Error(err))
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respondComponents(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, components []discordgo.MessageComponent, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
			Flags:      flags,
		},
	}); err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	}); err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

// updateMessage replaces the message a component belongs to and drops its components.
func (b *Bot) updateMessage(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}); err != nil {
		b.logger.Warn("interaction update failed", zap.Error(err))
	}
}

// deferResponse acknowledges the interaction before slow work. Later output goes
// through editResponse or followup.
func (b *Bot) deferResponse(session *discordgo.Session, interaction *discordgo.InteractionCreate, kind discordgo.InteractionResponseType, ephemeral bool) bool {
	resp := &discordgo.InteractionResponse{Type: kind}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := session.InteractionRespond(interaction.Interaction, resp); err != nil {
		b.logger.Warn("interaction defer failed", zap.Error(err))
		return false
	}
	return true
}

// editResponse replaces the deferred response and drops its components.
func (b *Bot) editResponse(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	components := []discordgo.MessageComponent{}
	if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &components,
	}); err != nil {
		b.logger.Warn("interaction edit failed", zap.Error(err))
	}
}

func (b *Bot) followup(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	if _, err := session.FollowupMessageCreate(interaction.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); err != nil {
		b.logger.Warn("interaction followup failed", zap.Error(err))
	}
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
