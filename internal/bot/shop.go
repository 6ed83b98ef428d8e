package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"eventpoints-bot/internal/catalog"
	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleShopCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	user := interactionUser(interaction)
	balance, err := b.store.GetPoints(ctx, interaction.GuildID, user.ID)
	if err != nil {
		b.logger.Warn("balance lookup failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}

	items := catalog.ShopItems()
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, tf(lang, "balance_desc", user.ID, catalog.FormatPoints(balance.TotalPoints), balance.EventsParticipated))
	buttons := make([]discordgo.MessageComponent, 0, len(items))
	for _, item := range items {
		lines = append(lines, tf(lang, "shop_item", item.Emoji, item.Name, item.Cost, item.Description))
		buttons = append(buttons, discordgo.Button{
			CustomID: customID(idShopBuy, item.ID),
			Label:    tf(lang, "btn_buy", item.Name),
			Style:    discordgo.PrimaryButton,
			Disabled: balance.TotalPoints < float64(item.Cost),
		})
	}

	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{b.commandEmbed(t(lang, "shop_title"), strings.Join(lines, "\n\n"), b.cfg.EmbedColors.Info, nil)},
			Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}},
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		b.logger.Warn("shop respond failed", zap.Error(err))
	}
}

func (b *Bot) handleShopBuy(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, parts []string) {
	lang := b.language(ctx, interaction.GuildID)
	user := interactionUser(interaction)
	if interaction.GuildID == "" || user == nil || len(parts) != 1 {
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	item, ok := catalog.ShopItemByID(parts[0])
	if !ok {
		b.respond(session, interaction, t(lang, "shop_unknown"), true)
		return
	}

	id, err := b.store.CreatePurchase(ctx, storage.NewPurchase{
		GuildID:  interaction.GuildID,
		UserID:   user.ID,
		ItemID:   item.ID,
		ItemName: item.Name,
		Cost:     item.Cost,
	})
	if errors.Is(err, storage.ErrInsufficientPoints) {
		b.respond(session, interaction, t(lang, "shop_insufficient"), true)
		return
	}
	if err != nil {
		b.logger.Error("purchase failed", zap.String("user_id", user.ID), zap.String("item_id", item.ID), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, user.ID, audit.EventPurchaseCreated, fmt.Sprintf("#%d %s (%d)", id, item.ID, item.Cost))
	b.updateMessage(session, interaction, tf(lang, "shop_bought", id, item.Name, item.Cost))

	modChannel := b.moderatorChannel(ctx, interaction.GuildID, "")
	if modChannel == "" {
		return
	}
	ref := formatID(id)
	if _, err := session.ChannelMessageSendComplex(modChannel, &discordgo.MessageSend{
		Content: tf(lang, "shop_request", id, user.ID, item.Name, item.Cost),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{CustomID: customID(idShopDone, ref), Label: t(lang, "btn_done"), Style: discordgo.SuccessButton},
				discordgo.Button{CustomID: customID(idShopReject, ref), Label: t(lang, "btn_reject"), Style: discordgo.DangerButton},
			}},
		},
	}); err != nil {
		b.logger.Warn("purchase notify failed", zap.Int64("purchase_id", id), zap.Error(err))
	}
}

// handleShopProcess completes a purchase, or rejects it and refunds the cost.
func (b *Bot) handleShopProcess(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, action string, parts []string) {
	lang := b.language(ctx, interaction.GuildID)
	if !b.canModerate(ctx, interaction) {
		b.respond(session, interaction, t(lang, "no_permission"), true)
		return
	}
	id, err := parseSubmissionRef(parts)
	if err != nil {
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	status, key := storage.PurchaseCompleted, "shop_completed"
	if action == idShopReject {
		status, key = storage.PurchaseRejected, "shop_refunded"
	}

	actor := interactionUser(interaction)
	purchase, err := b.store.ProcessPurchase(ctx, id, status, actor.ID, "")
	switch {
	case errors.Is(err, storage.ErrAlreadyProcessed):
		b.respond(session, interaction, t(lang, "shop_already"), true)
		return
	case errors.Is(err, storage.ErrNotFound):
		b.respond(session, interaction, t(lang, "not_found"), true)
		return
	case err != nil:
		b.logger.Error("process purchase failed", zap.Int64("purchase_id", id), zap.Error(err))
		b.respond(session, interaction, t(lang, "error_failed"), true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, purchase.GuildID, purchase.UserID, audit.EventPurchaseProcessed, fmt.Sprintf("#%d %s by %s", id, status, actor.ID))
	b.updateMessage(session, interaction, tf(lang, "shop_request", purchase.ID, purchase.UserID, purchase.ItemName, purchase.Cost)+"\n"+tf(lang, key, purchase.ID))
}

func purchaseLines(purchases []storage.Purchase) string {
	var sb strings.Builder
	for _, p := range purchases {
		fmt.Fprintf(&sb, "🛒 #%d <@%s> %s (%d)\n", p.ID, p.UserID, p.ItemName, p.Cost)
	}
	return sb.String()
}
