package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/session"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	sessionFieldLimit = 10
	sessionDumpLimit  = 20
	sessionDumpRunes  = 1900
)

// guildSessions returns the live sessions of one guild, oldest first.
func guildSessions(registry *session.Registry, guildID string) []session.Snapshot {
	var snaps []session.Snapshot
	for _, key := range registry.Keys() {
		s, ok := registry.Lookup(key.SubmitterID, key.ChannelID)
		if !ok {
			continue
		}
		snap := s.Snapshot()
		if snap.GuildID == guildID {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return snaps
}

func sessionFields(lang string, cat *catalog.Catalog, snaps []session.Snapshot) []*discordgo.MessageEmbedField {
	fields := make([]*discordgo.MessageEmbedField, 0, sessionFieldLimit+1)
	for n, snap := range snaps {
		if n == sessionFieldLimit {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "...", Value: tf(lang, "sessions_more", len(snaps)-sessionFieldLimit)})
			break
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: fmt.Sprintf("#%d %s", n+1, cat.DisplayName(snap.EventType, snap.Action)),
			Value: tf(lang, "sessions_entry",
				snap.SubmitterID, snap.ChannelID, snap.State.String(), len(snap.Participants), snap.UpdatedAt.Unix()),
			Inline: true,
		})
	}
	return fields
}

type sessionRecord struct {
	Key          string   `yaml:"key"`
	Event        string   `yaml:"event"`
	Action       string   `yaml:"action"`
	State        string   `yaml:"state"`
	Participants []string `yaml:"participants,omitempty"`
	Screenshot   string   `yaml:"screenshot,omitempty"`
	Announcement string   `yaml:"announcement,omitempty"`
	Token        string   `yaml:"token"`
	Updated      string   `yaml:"updated"`
}

// sessionDump renders up to sessionDumpLimit sessions as a YAML code block.
func sessionDump(snaps []session.Snapshot) (string, error) {
	if len(snaps) > sessionDumpLimit {
		snaps = snaps[:sessionDumpLimit]
	}
	records := make([]sessionRecord, 0, len(snaps))
	for _, snap := range snaps {
		records = append(records, sessionRecord{
			Key:          session.Key{SubmitterID: snap.SubmitterID, ChannelID: snap.ChannelID}.String(),
			Event:        string(snap.EventType),
			Action:       string(snap.Action),
			State:        snap.State.String(),
			Participants: snap.Participants,
			Screenshot:   snap.Screenshot,
			Announcement: snap.AnnouncementMessageID,
			Token:        snap.CorrelationToken,
			Updated:      snap.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	out, err := yaml.Marshal(records)
	if err != nil {
		return "", err
	}
	text := truncateRunes(strings.TrimSpace(string(out)), sessionDumpRunes)
	return "```yaml\n" + text + "\n```", nil
}

func (b *Bot) handleDebugSessionsCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	if !b.canModerate(ctx, interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	snaps := guildSessions(b.registry, interaction.GuildID)
	if len(snaps) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "sessions_title"), t(lang, "sessions_empty"), b.cfg.EmbedColors.Warning, nil), true)
		return
	}
	b.respondEmbed(session, interaction, b.commandEmbed(t(lang, "sessions_title"), tf(lang, "sessions_found", len(snaps)), b.cfg.EmbedColors.Success, sessionFields(lang, b.catalog, snaps)), true)
}

func (b *Bot) handleDumpSessionsCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	if !b.canModerate(ctx, interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	snaps := guildSessions(b.registry, interaction.GuildID)
	if len(snaps) == 0 {
		b.respond(session, interaction, t(lang, "sessions_empty"), true)
		return
	}
	dump, err := sessionDump(snaps)
	if err != nil {
		b.logger.Warn("session dump failed", zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	b.respond(session, interaction, dump, true)
}
