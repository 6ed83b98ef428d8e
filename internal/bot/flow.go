package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/conversation"
	"eventpoints-bot/internal/moderation"
	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/session"
	"eventpoints-bot/internal/storage"
	"eventpoints-bot/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	threadNameLimit    = 100
	threadArchiveAfter = 1440
)

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func (b *Bot) eventPanel(lang string) *discordgo.MessageSend {
	options := b.catalog.Options()
	menuOptions := make([]discordgo.SelectMenuOption, 0, len(options))
	for _, opt := range options {
		menuOptions = append(menuOptions, discordgo.SelectMenuOption{
			Label:       strings.TrimSpace(opt.Emoji + " " + opt.Label),
			Value:       opt.Value,
			Description: opt.Description,
		})
	}
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{b.commandEmbed(t(lang, "panel_title"), t(lang, "panel_desc"), b.cfg.EmbedColors.Info, nil)},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					CustomID:    idEventSelect,
					Placeholder: t(lang, "panel_placeholder"),
					Options:     menuOptions,
				},
			}},
		},
	}
}

func (b *Bot) submissionButtons(lang string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: idSubConfirm, Label: t(lang, "btn_confirm"), Style: discordgo.SuccessButton},
			discordgo.Button{CustomID: idSubScreenshot, Label: t(lang, "btn_screenshot"), Style: discordgo.SecondaryButton},
			discordgo.Button{CustomID: idSubCancel, Label: t(lang, "btn_cancel"), Style: discordgo.DangerButton},
		}},
	}
}

func windowMessage(lang string, window moderation.PointsWindow, err error) string {
	if errors.Is(err, moderation.ErrPointsNotStarted) {
		return tf(lang, "window_not_started", window.Start)
	}
	return tf(lang, "window_ended", window.End)
}

// handleEventSelect opens a submission: announcement, thread, session, prompt.
func (b *Bot) handleEventSelect(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	lang := b.language(ctx, i.GuildID)
	if i.GuildID == "" {
		b.respond(s, i, t(lang, "error_only_guild"), true)
		return
	}
	user := interactionUser(i)
	values := i.MessageComponentData().Values
	if user == nil || len(values) == 0 {
		b.respond(s, i, t(lang, "error_failed"), true)
		return
	}
	eventType, action, err := b.catalog.ParseSelection(values[0])
	if err != nil {
		b.logger.Warn("unknown event selection", zap.String("value", values[0]), zap.Error(err))
		b.respond(s, i, t(lang, "error_failed"), true)
		return
	}

	gc := b.guildConfig(ctx, i.GuildID)
	window := moderation.PointsWindow{Start: gc.PointsStartDate, End: gc.PointsEndDate}
	if err := window.Check(b.registry.Now()); err != nil {
		b.respond(s, i, windowMessage(lang, window, err), true)
		return
	}
	if !b.throttle.Allow(ctx, i.GuildID, user.ID) {
		if b.metrics != nil {
			b.metrics.Throttled()
		}
		b.respond(s, i, t(lang, "throttled"), true)
		return
	}

	if !b.deferResponse(s, i, discordgo.InteractionResponseDeferredChannelMessageWithSource, true) {
		return
	}

	announceChannel := gc.EventsChannel
	if announceChannel == "" {
		announceChannel = i.ChannelID
	}
	if previous, ok := b.registry.Lookup(user.ID, announceChannel); ok {
		snap, err := previous.BeginCancel()
		if err != nil {
			b.editResponse(s, i, t(lang, "finalize_busy"))
			return
		}
		b.registry.RemoveSession(previous)
		b.announcer.Announce(ctx, cancelledDraft(lang, snap))
		b.logger.Info("replaced live session", zap.String("user_id", user.ID), zap.String("channel_id", announceChannel))
	}

	draft := storage.Submission{
		GuildID:      i.GuildID,
		SubmitterID:  user.ID,
		EventType:    string(eventType),
		Action:       string(action),
		Participants: []string{user.ID},
	}
	if base, err := b.catalog.BasePoints(eventType, action); err == nil {
		draft.BasePoints = base
	}
	msg, err := s.ChannelMessageSendComplex(announceChannel, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{submissionEmbed(lang, b.catalog, b.cfg.EmbedColors, draft)},
	})
	if err != nil {
		b.logger.Error("announcement post failed", zap.String("channel_id", announceChannel), zap.Error(err))
		b.editResponse(s, i, t(lang, "error_failed"))
		return
	}

	sess, err := b.registry.Create(i.GuildID, user.ID, announceChannel, eventType, action)
	if err != nil {
		b.logger.Error("session create failed", zap.String("user_id", user.ID), zap.Error(err))
		b.editResponse(s, i, t(lang, "error_failed"))
		return
	}
	sess.SetAnnouncement(announceChannel, msg.ID, b.registry.Now())

	conversationChannel := announceChannel
	threadName := truncateRunes(tf(lang, "announce_title", b.catalog.DisplayName(eventType, action)), threadNameLimit)
	thread, err := s.MessageThreadStart(announceChannel, msg.ID, threadName, threadArchiveAfter)
	if err != nil {
		b.logger.Warn("thread create failed", zap.String("channel_id", announceChannel), zap.Error(err))
	} else if _, err := b.registry.Rebind(announceChannel, thread.ID, user.ID); err != nil {
		b.logger.Warn("session rebind failed", zap.String("thread_id", thread.ID), zap.Error(err))
	} else {
		conversationChannel = thread.ID
	}

	if _, err := s.ChannelMessageSend(conversationChannel, tf(lang, "thread_prompt", user.ID)); err != nil {
		b.logger.Warn("prompt send failed", zap.String("channel_id", conversationChannel), zap.Error(err))
	}
	if conversationChannel == announceChannel {
		b.editResponse(s, i, t(lang, "thread_fallback"))
	} else {
		b.editResponse(s, i, tf(lang, "thread_opened", conversationChannel))
	}

	b.observeSessions()
	if b.audit != nil {
		b.audit.Log(ctx, audit.LevelInfo, i.GuildID, user.ID, audit.EventSubmissionStarted, fmt.Sprintf("%s/%s token=%s", eventType, action, sess.Snapshot().CorrelationToken))
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	ctx := context.Background()

	msg := conversation.Message{
		GuildID:  m.GuildID,
		AuthorID: m.Author.ID,
		Location: b.channelLocation(m.ChannelID),
		Content:  m.Content,
	}
	for _, u := range m.Mentions {
		if u == nil {
			continue
		}
		msg.Mentions = append(msg.Mentions, conversation.User{ID: u.ID, Bot: u.Bot})
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, conversation.Attachment{URL: a.URL, Filename: a.Filename, ContentType: a.ContentType})
	}

	res := b.machine.HandleMessage(ctx, msg)
	if res.Outcome == conversation.NotHandled && res.Err == nil {
		return
	}
	lang := b.language(ctx, m.GuildID)
	b.replyToOutcome(ctx, s, m.GuildID, m.ChannelID, lang, res)
	b.observeSessions()
}

// replyToOutcome posts the follow-up for a conversation step into the channel it happened in.
func (b *Bot) replyToOutcome(ctx context.Context, s *discordgo.Session, guildID, channelID, lang string, res conversation.Result) {
	send := func(content string, components []discordgo.MessageComponent) {
		if _, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: content, Components: components}); err != nil {
			b.logger.Warn("conversation reply failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}

	if text := b.outcomeText(lang, res); text != "" {
		var components []discordgo.MessageComponent
		switch res.Outcome {
		case conversation.ParticipantsConfirmed, conversation.ScreenshotAttached:
			components = b.submissionButtons(lang)
		}
		send(text, components)
	}
	if res.Outcome == conversation.Finalized {
		b.afterFinalize(ctx, s, guildID, channelID, lang, res)
	}
}

func (b *Bot) outcomeText(lang string, res conversation.Result) string {
	switch res.Outcome {
	case conversation.ParticipantsConfirmed:
		return tf(lang, "participants_ok", len(res.Snapshot.Participants), mentionList(res.Snapshot.Participants), catalog.FormatPoints(res.BasePoints))
	case conversation.ParticipantsRejected:
		return tf(lang, "participants_limit", b.cfg.Points.MaxParticipants)
	case conversation.ScreenshotRequested:
		return t(lang, "screenshot_prompt")
	case conversation.ScreenshotAttached:
		return t(lang, "screenshot_attached")
	case conversation.ScreenshotRejected:
		return t(lang, "screenshot_rejected")
	case conversation.ScreenshotAcknowledged:
		return t(lang, "screenshot_waiting")
	case conversation.Finalized:
		return tf(lang, "submitted", res.SubmissionID)
	case conversation.FinalizeFailed:
		return t(lang, "try_again")
	case conversation.Cancelled:
		return t(lang, "cancelled")
	case conversation.SessionLost:
		return t(lang, "session_lost")
	}

	switch {
	case errors.Is(res.Err, conversation.ErrNoParticipantsRecognized):
		return t(lang, "participants_none")
	case errors.Is(res.Err, session.ErrFinalizeInProgress):
		return t(lang, "finalize_busy")
	case errors.Is(res.Err, session.ErrInvalidTransition):
		return t(lang, "invalid_step")
	case errors.Is(res.Err, utils.ErrTryAgain):
		return t(lang, "try_again")
	}
	return ""
}

// afterFinalize announces a persisted submission and hands it to moderators.
func (b *Bot) afterFinalize(ctx context.Context, s *discordgo.Session, guildID, channelID, lang string, res conversation.Result) {
	if b.metrics != nil {
		b.metrics.SubmissionCreated(string(res.Snapshot.EventType))
	}
	sub, err := b.store.GetSubmission(ctx, res.SubmissionID)
	if err != nil {
		b.logger.Error("load submission failed", zap.Int64("submission_id", res.SubmissionID), zap.Error(err))
		return
	}
	b.announcer.Announce(ctx, sub)

	modChannel := b.moderatorChannel(ctx, guildID, channelID)
	modMsg, err := s.ChannelMessageSendComplex(modChannel, &discordgo.MessageSend{
		Content:    tf(lang, "mod_title", sub.ID),
		Embeds:     []*discordgo.MessageEmbed{submissionEmbed(lang, b.catalog, b.cfg.EmbedColors, sub)},
		Components: b.reviewComponents(lang, sub),
	})
	if err != nil {
		b.logger.Error("moderator message failed", zap.Int64("submission_id", sub.ID), zap.String("channel_id", modChannel), zap.Error(err))
		return
	}
	if err := b.store.SetModeratorMessage(ctx, sub.ID, modChannel, modMsg.ID); err != nil {
		b.logger.Warn("store moderator message failed", zap.Int64("submission_id", sub.ID), zap.Error(err))
	}
}

func (b *Bot) handleSubmissionButton(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, id string) {
	lang := b.language(ctx, i.GuildID)
	user := interactionUser(i)
	if user == nil {
		b.respond(s, i, t(lang, "error_failed"), true)
		return
	}
	loc := b.channelLocation(i.ChannelID)

	var res conversation.Result
	switch id {
	case idSubConfirm:
		res = b.machine.Confirm(ctx, user.ID, loc)
	case idSubScreenshot:
		res = b.machine.RequestScreenshot(user.ID, loc)
	case idSubCancel:
		res = b.machine.Cancel(ctx, user.ID, loc)
	}
	b.observeSessions()

	switch {
	case errors.Is(res.Err, conversation.ErrNotOwner):
		b.respond(s, i, t(lang, "not_owner"), true)
		return
	case res.Outcome == conversation.SessionLost:
		b.respond(s, i, t(lang, "session_missing"), true)
		return
	}

	text := b.outcomeText(lang, res)
	if text == "" {
		text = t(lang, "error_failed")
	}
	if res.Outcome == conversation.NotHandled || res.Outcome == conversation.FinalizeFailed {
		b.respond(s, i, text, true)
		return
	}
	b.updateMessage(s, i, text)
	if res.Outcome == conversation.Finalized {
		b.afterFinalize(ctx, s, i.GuildID, i.ChannelID, lang, res)
	}
	if res.Outcome == conversation.Cancelled {
		b.announcer.Announce(ctx, cancelledDraft(lang, res.Snapshot))
	}
}

// cancelledDraft is the announcement state of a session dropped before submission.
func cancelledDraft(lang string, snap session.Snapshot) storage.Submission {
	return storage.Submission{
		GuildID:               snap.GuildID,
		SubmitterID:           snap.SubmitterID,
		EventType:             string(snap.EventType),
		Action:                string(snap.Action),
		Participants:          snap.Participants,
		Status:                storage.StatusRejected,
		Reason:                t(lang, "cancelled"),
		AnnouncementChannelID: snap.AnnouncementChannelID,
		AnnouncementMessageID: snap.AnnouncementMessageID,
	}
}
