package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/config"
	"eventpoints-bot/internal/moderation"
	"eventpoints-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

type embedEditor func(channelID, messageID string, embed *discordgo.MessageEmbed) error

// Announcer keeps the public announcement of a submission in sync with its status.
// Edits are rate limited so a burst of decisions does not trip Discord limits.
type Announcer struct {
	edit     embedEditor
	limiter  *rate.Limiter
	catalog  *catalog.Catalog
	colors   config.EmbedColors
	language func(ctx context.Context, guildID string) string
	observe  func(ok bool)
}

func NewAnnouncer(edit embedEditor, cat *catalog.Catalog, cfg config.Config, language func(ctx context.Context, guildID string) string) *Announcer {
	return &Announcer{
		edit:     edit,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Announcements.EditsPerSecond), cfg.Announcements.Burst),
		catalog:  cat,
		colors:   cfg.EmbedColors,
		language: language,
	}
}

func (a *Announcer) Announce(ctx context.Context, sub storage.Submission) moderation.AnnouncementOutcome {
	if sub.AnnouncementChannelID == "" || sub.AnnouncementMessageID == "" {
		return moderation.AnnouncementOutcome{}
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return moderation.AnnouncementOutcome{Attempted: true, Err: err}
	}

	lang := "ru"
	if a.language != nil {
		lang = a.language(ctx, sub.GuildID)
	}
	err := a.edit(sub.AnnouncementChannelID, sub.AnnouncementMessageID, submissionEmbed(lang, a.catalog, a.colors, sub))
	if isUnknownMessage(err) {
		err = fmt.Errorf("%w: %s/%s", moderation.ErrAnnouncementMessageNotFound, sub.AnnouncementChannelID, sub.AnnouncementMessageID)
	}
	if a.observe != nil {
		a.observe(err == nil)
	}
	return moderation.AnnouncementOutcome{Attempted: true, Err: err}
}

func isUnknownMessage(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func statusColor(colors config.EmbedColors, status string) int {
	switch status {
	case storage.StatusApproved:
		return colors.Success
	case storage.StatusRejected:
		return colors.Error
	case storage.StatusPending:
		return colors.Warning
	default:
		return colors.Info
	}
}

func statusLabel(lang, status string) string {
	switch status {
	case storage.StatusApproved, storage.StatusRejected, storage.StatusPending:
		return t(lang, "status_"+status)
	default:
		return t(lang, "status_collecting")
	}
}

func mentionList(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	mentions := make([]string, 0, len(ids))
	for _, id := range ids {
		mentions = append(mentions, "<@"+id+">")
	}
	return strings.Join(mentions, ", ")
}

// submissionEmbed renders a stored submission for the announcement and moderator messages.
func submissionEmbed(lang string, cat *catalog.Catalog, colors config.EmbedColors, sub storage.Submission) *discordgo.MessageEmbed {
	name := cat.DisplayName(catalog.EventType(sub.EventType), catalog.Action(sub.Action))
	fields := []*discordgo.MessageEmbedField{
		{Name: t(lang, "field_submitter"), Value: "<@" + sub.SubmitterID + ">", Inline: true},
		{Name: t(lang, "field_status"), Value: statusLabel(lang, sub.Status), Inline: true},
		{Name: t(lang, "field_base_points"), Value: catalog.FormatPoints(sub.BasePoints), Inline: true},
		{Name: fmt.Sprintf("%s (%d)", t(lang, "field_participants"), len(sub.Participants)), Value: mentionList(sub.Participants)},
	}
	if sub.FinalMultiplier != nil && sub.FinalPoints != nil {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: t(lang, "field_multiplier"), Value: "x" + catalog.FormatPoints(*sub.FinalMultiplier), Inline: true},
			&discordgo.MessageEmbedField{Name: t(lang, "field_points"), Value: catalog.FormatPoints(*sub.FinalPoints), Inline: true},
		)
	}
	if sub.ReviewerID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: t(lang, "field_reviewer"), Value: "<@" + sub.ReviewerID + ">", Inline: true})
	}
	if sub.Reason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: t(lang, "field_reason"), Value: sub.Reason})
	}
	if sub.Screenshot != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: t(lang, "field_screenshot"), Value: sub.Screenshot})
	}

	embed := &discordgo.MessageEmbed{
		Title:     tf(lang, "announce_title", name),
		Color:     statusColor(colors, sub.Status),
		Timestamp: time.Now().Format(time.RFC3339),
		Fields:    fields,
	}
	if sub.ID > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: tf(lang, "footer_submission", sub.ID)}
	}
	if sub.Screenshot != "" && strings.HasPrefix(sub.Screenshot, "http") {
		embed.Image = &discordgo.MessageEmbedImage{URL: sub.Screenshot}
	}
	return embed
}
