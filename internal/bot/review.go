package bot

import (
	"context"
	"errors"
	"strings"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/moderation"
	"eventpoints-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const rejectReasonLimit = 500

func (b *Bot) reviewComponents(lang string, sub storage.Submission) []discordgo.MessageComponent {
	ref := formatID(sub.ID)
	options := make([]discordgo.SelectMenuOption, 0, len(b.moderation.Multipliers()))
	for _, m := range b.moderation.Multipliers() {
		points := catalog.FinalPoints(sub.BasePoints, m, sub.GroupSize)
		options = append(options, discordgo.SelectMenuOption{
			Label:       "x" + formatMultiplier(m),
			Value:       formatMultiplier(m),
			Description: catalog.FormatPoints(points),
		})
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    customID(idModMultiplier, ref),
				Placeholder: t(lang, "mod_multiplier"),
				Options:     options,
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: customID(idModRejectModal, ref), Label: t(lang, "btn_reject"), Style: discordgo.DangerButton},
		}},
	}
}

// handleMultiplier asks the moderator to confirm the chosen multiplier before anything is credited.
func (b *Bot) handleMultiplier(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, parts []string) {
	lang := b.language(ctx, i.GuildID)
	if !b.canModerate(ctx, i) {
		b.respond(s, i, t(lang, "no_permission"), true)
		return
	}
	id, err := parseSubmissionRef(parts)
	values := i.MessageComponentData().Values
	if err != nil || len(values) == 0 {
		b.respond(s, i, t(lang, "error_failed"), true)
		return
	}
	sub, err := b.store.GetSubmission(ctx, id)
	if err != nil {
		b.respond(s, i, t(lang, "not_found"), true)
		return
	}
	if sub.Status != storage.StatusPending {
		b.respond(s, i, t(lang, "mod_already"), true)
		return
	}
	_, multiplier, err := parseApproveRef([]string{formatID(id), values[0]})
	if err != nil {
		b.respond(s, i, t(lang, "error_failed"), true)
		return
	}

	points := catalog.FinalPoints(sub.BasePoints, multiplier, sub.GroupSize)
	b.respondComponents(s, i, tf(lang, "mod_confirm", id, formatMultiplier(multiplier), catalog.FormatPoints(points)), []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: customID(idModApprove, formatID(id), formatMultiplier(multiplier)), Label: t(lang, "btn_approve"), Style: discordgo.SuccessButton},
		}},
	}, true)
}

func (b *Bot) handleApprove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, parts []string) {
	lang := b.language(ctx, i.GuildID)
	if !b.canModerate(ctx, i) {
		b.respond(s, i, t(lang, "no_permission"), true)
		return
	}
	id, multiplier, err := parseApproveRef(parts)
	if err != nil {
		b.respond(s, i, t(lang, "error_failed"), true)
		return
	}
	reviewer := interactionUser(i)
	if !b.deferResponse(s, i, discordgo.InteractionResponseDeferredMessageUpdate, false) {
		return
	}

	decision, err := b.moderation.Approve(ctx, id, reviewer.ID, multiplier)
	if err != nil {
		b.decisionFailed(s, i, lang, id, err)
		return
	}
	if b.metrics != nil {
		b.metrics.Decision(storage.StatusApproved)
	}

	text := tf(lang, "mod_approved", id, formatMultiplier(multiplier), catalog.FormatPoints(decision.PointsPerParticipant))
	if len(decision.CreditFailed) > 0 {
		text += "\n" + tf(lang, "mod_credit_partial", mentionList(decision.CreditFailed))
	}
	b.editResponse(s, i, text)
	b.closeReview(s, lang, decision.Submission)
	b.notifyThread(s, decision.Submission, tf(lang, "notify_approved", id, mentionList(decision.Credited), catalog.FormatPoints(decision.PointsPerParticipant)))
}

func (b *Bot) handleRejectModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, parts []string) {
	lang := b.language(ctx, i.GuildID)
	if !b.canModerate(ctx, i) {
		b.respond(s, i, t(lang, "no_permission"), true)
		return
	}
	id, err := parseSubmissionRef(parts)
	if err != nil {
		b.respond(s, i, t(lang, "error_failed"), true)
		return
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID(idModReject, formatID(id)),
			Title:    t(lang, "reject_title"),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  fieldRejectReason,
						Label:     t(lang, "reject_reason"),
						Style:     discordgo.TextInputParagraph,
						Required:  true,
						MaxLength: rejectReasonLimit,
					},
				}},
			},
		},
	}); err != nil {
		b.logger.Warn("reject modal failed", zap.Int64("submission_id", id), zap.Error(err))
	}
}

func modalValue(data discordgo.ModalSubmitInteractionData, fieldID string) string {
	for _, row := range data.Components {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actions.Components {
			if input, ok := component.(*discordgo.TextInput); ok && input.CustomID == fieldID {
				return strings.TrimSpace(input.Value)
			}
		}
	}
	return ""
}

func (b *Bot) handleReject(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, parts []string) {
	lang := b.language(ctx, i.GuildID)
	if !b.canModerate(ctx, i) {
		b.respond(s, i, t(lang, "no_permission"), true)
		return
	}
	id, err := parseSubmissionRef(parts)
	if err != nil {
		b.respond(s, i, t(lang, "error_failed"), true)
		return
	}
	reason := modalValue(i.ModalSubmitData(), fieldRejectReason)
	reviewer := interactionUser(i)
	if !b.deferResponse(s, i, discordgo.InteractionResponseDeferredMessageUpdate, false) {
		return
	}

	decision, err := b.moderation.Reject(ctx, id, reviewer.ID, reason)
	if err != nil {
		b.decisionFailed(s, i, lang, id, err)
		return
	}
	if b.metrics != nil {
		b.metrics.Decision(storage.StatusRejected)
	}
	b.editResponse(s, i, tf(lang, "mod_rejected", id))
	b.closeReview(s, lang, decision.Submission)
	b.notifyThread(s, decision.Submission, tf(lang, "notify_rejected", id, reason))
}

// decisionFailed reports a refused decision after the interaction was deferred.
func (b *Bot) decisionFailed(s *discordgo.Session, i *discordgo.InteractionCreate, lang string, id int64, err error) {
	switch {
	case errors.Is(err, moderation.ErrAlreadyDecided):
		if b.metrics != nil {
			b.metrics.Decision("conflict")
		}
		b.followup(s, i, t(lang, "mod_already"))
	case errors.Is(err, moderation.ErrSubmissionNotFound):
		b.followup(s, i, t(lang, "not_found"))
	case errors.Is(err, moderation.ErrPointsNotStarted), errors.Is(err, moderation.ErrPointsEnded):
		window := b.moderationWindow(i.GuildID)
		b.followup(s, i, windowMessage(lang, window, err))
	default:
		b.logger.Error("moderation decision failed", zap.Int64("submission_id", id), zap.Error(err))
		b.followup(s, i, t(lang, "error_failed"))
	}
}

func (b *Bot) moderationWindow(guildID string) moderation.PointsWindow {
	gc := b.guildConfig(context.Background(), guildID)
	return moderation.PointsWindow{Start: gc.PointsStartDate, End: gc.PointsEndDate}
}

// closeReview replaces the moderator message embed with the decided state.
func (b *Bot) closeReview(s *discordgo.Session, lang string, sub storage.Submission) {
	if sub.ModeratorChannelID == "" || sub.ModeratorMessageID == "" {
		return
	}
	if _, err := s.ChannelMessageEditEmbed(sub.ModeratorChannelID, sub.ModeratorMessageID, submissionEmbed(lang, b.catalog, b.cfg.EmbedColors, sub)); err != nil {
		b.logger.Warn("moderator message edit failed", zap.Int64("submission_id", sub.ID), zap.Error(err))
	}
}

func (b *Bot) notifyThread(s *discordgo.Session, sub storage.Submission, content string) {
	if sub.ThreadID == "" {
		return
	}
	if _, err := s.ChannelMessageSend(sub.ThreadID, content); err != nil {
		b.logger.Warn("thread notify failed", zap.Int64("submission_id", sub.ID), zap.String("thread_id", sub.ThreadID), zap.Error(err))
	}
}
