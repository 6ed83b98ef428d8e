package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/moderation"
	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	leaderboardLimit = 10
	leaderboardMax   = 25
	historyLimit     = 10
	pendingLimit     = 15
)

type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) commandOptions {
	m := make(commandOptions, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	ctx := context.Background()
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, session, interaction)
	case discordgo.InteractionMessageComponent:
		prefix, parts := splitCustomID(interaction.MessageComponentData().CustomID)
		switch prefix {
		case idEventSelect:
			b.handleEventSelect(ctx, session, interaction)
		case idSubConfirm, idSubScreenshot, idSubCancel:
			b.handleSubmissionButton(ctx, session, interaction, prefix)
		case idModMultiplier:
			b.handleMultiplier(ctx, session, interaction, parts)
		case idModApprove:
			b.handleApprove(ctx, session, interaction, parts)
		case idModRejectModal:
			b.handleRejectModal(ctx, session, interaction, parts)
		case idShopBuy:
			b.handleShopBuy(ctx, session, interaction, parts)
		case idShopDone, idShopReject:
			b.handleShopProcess(ctx, session, interaction, prefix, parts)
		default:
			b.logger.Debug("unrouted component", zap.String("custom_id", interaction.MessageComponentData().CustomID))
		}
	case discordgo.InteractionModalSubmit:
		prefix, parts := splitCustomID(interaction.ModalSubmitData().CustomID)
		if prefix == idModReject {
			b.handleReject(ctx, session, interaction, parts)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	lang := b.language(ctx, interaction.GuildID)
	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Events", t(lang, "error_only_guild"), b.cfg.EmbedColors.Error, nil), true)
		return
	}

	data := interaction.ApplicationCommandData()
	switch data.Name {
	case "events_panel":
		b.handlePanelCommand(ctx, session, interaction, lang)
	case "balance":
		b.handleBalanceCommand(ctx, session, interaction, lang, optionMap(data.Options))
	case "leaderboard":
		b.handleLeaderboardCommand(ctx, session, interaction, lang, optionMap(data.Options))
	case "history":
		b.handleHistoryCommand(ctx, session, interaction, lang, optionMap(data.Options))
	case "pending":
		b.handlePendingCommand(ctx, session, interaction, lang)
	case "event_stats":
		b.handleStatsCommand(ctx, session, interaction, lang, optionMap(data.Options))
	case "points":
		b.handlePointsCommand(ctx, session, interaction, lang, data.Options)
	case "submission_delete":
		b.handleDeleteCommand(ctx, session, interaction, lang, optionMap(data.Options))
	case "shop":
		b.handleShopCommand(ctx, session, interaction, lang)
	case "event_config":
		b.handleConfigCommand(ctx, session, interaction, lang, optionMap(data.Options))
	case "debug_sessions":
		b.handleDebugSessionsCommand(ctx, session, interaction, lang)
	case "dump_sessions":
		b.handleDumpSessionsCommand(ctx, session, interaction, lang)
	default:
		b.respond(session, interaction, t(lang, "error_failed"), true)
	}
}

func (b *Bot) handlePanelCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	if !b.canModerate(ctx, interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	if _, err := session.ChannelMessageSendComplex(interaction.ChannelID, b.eventPanel(lang)); err != nil {
		b.logger.Warn("panel post failed", zap.String("channel_id", interaction.ChannelID), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	b.respond(session, interaction, t(lang, "panel_posted"), true)
}

// targetUser returns the "user" option or the caller.
func targetUser(session *discordgo.Session, interaction *discordgo.InteractionCreate, options commandOptions) *discordgo.User {
	if opt, ok := options["user"]; ok {
		if u := opt.UserValue(session); u != nil {
			return u
		}
	}
	return interactionUser(interaction)
}

func (b *Bot) handleBalanceCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options commandOptions) {
	user := targetUser(session, interaction, options)
	if user == nil {
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	balance, err := b.store.GetPoints(ctx, interaction.GuildID, user.ID)
	if err != nil {
		b.logger.Warn("balance lookup failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	desc := tf(lang, "balance_desc", user.ID, catalog.FormatPoints(balance.TotalPoints), balance.EventsParticipated)
	b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "balance_title"), desc, b.cfg.EmbedColors.Info, nil), true)
}

func leaderboardSize(options commandOptions) int {
	opt, ok := options["limit"]
	if !ok {
		return leaderboardLimit
	}
	n := int(opt.IntValue())
	if n < 1 {
		return 1
	}
	if n > leaderboardMax {
		return leaderboardMax
	}
	return n
}

func (b *Bot) handleLeaderboardCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options commandOptions) {
	rows, err := b.store.Leaderboard(ctx, interaction.GuildID, leaderboardSize(options))
	if err != nil {
		b.logger.Warn("leaderboard failed", zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	if len(rows) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "leaderboard_title"), t(lang, "leaderboard_empty"), b.cfg.EmbedColors.Info, nil), false)
		return
	}
	var sb strings.Builder
	for n, row := range rows {
		fmt.Fprintf(&sb, "%d. <@%s> %s (%d)\n", n+1, row.UserID, catalog.FormatPoints(row.TotalPoints), row.EventsParticipated)
	}
	b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "leaderboard_title"), sb.String(), b.cfg.EmbedColors.Info, nil), false)
}

func (b *Bot) submissionLines(lang string, subs []storage.Submission) string {
	var sb strings.Builder
	for _, sub := range subs {
		points := catalog.FormatPoints(sub.BasePoints)
		if sub.FinalPoints != nil {
			points = catalog.FormatPoints(*sub.FinalPoints)
		}
		fmt.Fprintf(&sb, "#%d %s <@%s> %s (%s)\n", sub.ID, b.catalog.DisplayName(catalog.EventType(sub.EventType), catalog.Action(sub.Action)), sub.SubmitterID, statusLabel(lang, sub.Status), points)
	}
	return sb.String()
}

func (b *Bot) handleHistoryCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options commandOptions) {
	user := targetUser(session, interaction, options)
	if user == nil {
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	subs, err := b.store.UserHistory(ctx, interaction.GuildID, user.ID, historyLimit)
	if err != nil {
		b.logger.Warn("history failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	desc := t(lang, "history_empty")
	if len(subs) > 0 {
		desc = b.submissionLines(lang, subs)
	}
	b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "history_title"), desc, b.cfg.EmbedColors.Info, nil), true)
}

func (b *Bot) handlePendingCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	if !b.canModerate(ctx, interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	subs, err := b.store.ListSubmissions(ctx, interaction.GuildID, storage.StatusPending, pendingLimit)
	if err != nil {
		b.logger.Warn("pending list failed", zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	purchases, err := b.store.ListPurchases(ctx, interaction.GuildID, storage.PurchasePending)
	if err != nil {
		b.logger.Warn("pending purchases failed", zap.Error(err))
	}
	desc := b.submissionLines(lang, subs) + purchaseLines(purchases)
	if desc == "" {
		desc = t(lang, "pending_empty")
	}
	b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "pending_title"), desc, b.cfg.EmbedColors.Warning, nil), true)
}

func statsSince(now time.Time, period string) time.Time {
	switch period {
	case "week":
		return now.Add(-7 * 24 * time.Hour)
	case "month":
		return now.AddDate(0, -1, 0)
	default:
		return now.Add(-24 * time.Hour)
	}
}

func (b *Bot) handleStatsCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options commandOptions) {
	if !b.canModerate(ctx, interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	period := "day"
	if opt, ok := options["period"]; ok {
		period = opt.StringValue()
	}
	report, err := b.analytics.Report(ctx, interaction.GuildID, statsSince(time.Now(), period))
	if err != nil {
		b.logger.Warn("stats failed", zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: t(lang, "field_pending"), Value: fmt.Sprintf("%d", report.Pending), Inline: true},
		{Name: t(lang, "field_approved"), Value: fmt.Sprintf("%d", report.Approved), Inline: true},
		{Name: t(lang, "field_rejected"), Value: fmt.Sprintf("%d", report.Rejected), Inline: true},
		{Name: t(lang, "field_distributed"), Value: catalog.FormatPoints(report.PointsDistributed), Inline: true},
		{Name: t(lang, "field_active_users"), Value: fmt.Sprintf("%d", report.ActiveUsers), Inline: true},
		{Name: t(lang, "field_recent"), Value: fmt.Sprintf("%d", report.RecentActivity), Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "stats_title"), period, b.cfg.EmbedColors.Info, fields), true)
}

func (b *Bot) handlePointsCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if !isAdmin(interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	if len(options) == 0 {
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	sub := options[0]
	actor := interactionUser(interaction)

	if sub.Name == "reset" {
		rows, err := b.store.ResetAllPoints(ctx, interaction.GuildID)
		if err != nil {
			b.logger.Error("points reset failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
			b.respond(session, interaction, t(lang, "error_failed"), true)
			return
		}
		b.audit.Log(ctx, audit.LevelWarn, interaction.GuildID, actor.ID, audit.EventPointsReset, fmt.Sprintf("%d balances", rows))
		b.respond(session, interaction, tf(lang, "points_reset", rows), true)
		return
	}

	args := optionMap(sub.Options)
	userOpt, okUser := args["user"]
	amountOpt, okAmount := args["amount"]
	if !okUser || !okAmount {
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	target := userOpt.UserValue(nil)
	amount := catalog.Round2(amountOpt.FloatValue())

	var err error
	switch sub.Name {
	case "add":
		err = b.store.AddPoints(ctx, interaction.GuildID, target.ID, amount)
	case "set":
		err = b.store.SetPoints(ctx, interaction.GuildID, target.ID, amount)
	default:
		err = fmt.Errorf("unknown subcommand %q", sub.Name)
	}
	if err != nil {
		b.logger.Error("points update failed", zap.String("user_id", target.ID), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	balance, err := b.store.GetPoints(ctx, interaction.GuildID, target.ID)
	if err != nil {
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, target.ID, audit.EventPointsAdjusted, fmt.Sprintf("%s %s by %s", sub.Name, catalog.FormatPoints(amount), actor.ID))
	b.respond(session, interaction, tf(lang, "points_updated", target.ID, catalog.FormatPoints(balance.TotalPoints)), true)
}

func (b *Bot) handleDeleteCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options commandOptions) {
	if !isAdmin(interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	opt, ok := options["id"]
	if !ok {
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	id := opt.IntValue()
	sub, err := b.store.GetSubmission(ctx, id)
	if err != nil || sub.GuildID != interaction.GuildID {
		b.respond(session, interaction, t(lang, "not_found"), true)
		return
	}
	if err := b.store.DeleteSubmission(ctx, id); err != nil {
		b.logger.Error("delete submission failed", zap.Int64("submission_id", id), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	actor := interactionUser(interaction)
	b.audit.Log(ctx, audit.LevelWarn, interaction.GuildID, actor.ID, audit.EventSubmissionDeleted, fmt.Sprintf("#%d %s/%s", id, sub.EventType, sub.Action))
	b.respond(session, interaction, tf(lang, "submission_deleted", id), true)
}

// dateOption reads a date option; "-" clears the bound.
func dateOption(options commandOptions, name, current string) (string, bool) {
	opt, ok := options[name]
	if !ok {
		return current, true
	}
	value := strings.TrimSpace(opt.StringValue())
	if value == "-" {
		return "", true
	}
	return value, value != "" && moderation.ValidDate(value)
}

func configFields(gc storage.GuildConfig) []*discordgo.MessageEmbedField {
	orDash := func(prefix, value, suffix string) string {
		if value == "" {
			return "-"
		}
		return prefix + value + suffix
	}
	return []*discordgo.MessageEmbedField{
		{Name: "language", Value: orDash("", gc.Language, ""), Inline: true},
		{Name: "events_channel", Value: orDash("<#", gc.EventsChannel, ">"), Inline: true},
		{Name: "moderator_channel", Value: orDash("<#", gc.ModeratorChannel, ">"), Inline: true},
		{Name: "moderator_role", Value: orDash("<@&", gc.ModeratorRole, ">"), Inline: true},
		{Name: "start_date", Value: orDash("", gc.PointsStartDate, ""), Inline: true},
		{Name: "end_date", Value: orDash("", gc.PointsEndDate, ""), Inline: true},
	}
}

func (b *Bot) handleConfigCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options commandOptions) {
	if !isAdmin(interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	gc := b.guildConfig(ctx, interaction.GuildID)
	if len(options) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "config_title"), "", b.cfg.EmbedColors.Info, configFields(gc)), true)
		return
	}

	if opt, ok := options["language"]; ok {
		gc.Language = opt.StringValue()
	}
	if opt, ok := options["events_channel"]; ok {
		gc.EventsChannel = opt.ChannelValue(nil).ID
	}
	if opt, ok := options["moderator_channel"]; ok {
		gc.ModeratorChannel = opt.ChannelValue(nil).ID
	}
	if opt, ok := options["moderator_role"]; ok {
		gc.ModeratorRole = opt.RoleValue(nil, interaction.GuildID).ID
	}
	var okStart, okEnd bool
	gc.PointsStartDate, okStart = dateOption(options, "start_date", gc.PointsStartDate)
	gc.PointsEndDate, okEnd = dateOption(options, "end_date", gc.PointsEndDate)
	if !okStart || !okEnd {
		b.respond(session, interaction, t(lang, "invalid_date"), true)
		return
	}

	if err := b.store.UpsertGuildConfig(ctx, gc); err != nil {
		b.logger.Error("config update failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	actor := interactionUser(interaction)
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, actor.ID, audit.EventConfigUpdated, fmt.Sprintf("lang=%s events=%s mod=%s role=%s window=%s..%s", gc.Language, gc.EventsChannel, gc.ModeratorChannel, gc.ModeratorRole, gc.PointsStartDate, gc.PointsEndDate))
	b.respondEmbed(session, interaction, b.commandEmbed(t(gc.Language, "config_title"), t(gc.Language, "config_updated"), b.cfg.EmbedColors.Success, configFields(gc)), true)
}
