package bot

import "github.com/bwmarrin/discordgo"

func localized(ru, en string) map[discordgo.Locale]string {
	return map[discordgo.Locale]string{
		discordgo.Russian:   ru,
		discordgo.EnglishUS: en,
		discordgo.EnglishGB: en,
	}
}

func localizedPtr(ru, en string) *map[discordgo.Locale]string {
	m := localized(ru, en)
	return &m
}

func userOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:                     discordgo.ApplicationCommandOptionUser,
		Name:                     "user",
		Description:              "Member",
		DescriptionLocalizations: localized("Участник", "Member"),
		Required:                 required,
	}
}

func pointsOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:                     discordgo.ApplicationCommandOptionNumber,
		Name:                     "amount",
		Description:              "Points",
		DescriptionLocalizations: localized("Очки", "Points"),
		Required:                 true,
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "events_panel",
			Description:              "Post the event submission panel",
			DescriptionLocalizations: localizedPtr("Опубликовать панель ивентов", "Post the event submission panel"),
		},
		{
			Name:                     "balance",
			Description:              "Show a points balance",
			DescriptionLocalizations: localizedPtr("Показать баланс очков", "Show a points balance"),
			Options:                  []*discordgo.ApplicationCommandOption{userOption(false)},
		},
		{
			Name:                     "leaderboard",
			Description:              "Top point holders",
			DescriptionLocalizations: localizedPtr("Таблица лидеров", "Top point holders"),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:                     discordgo.ApplicationCommandOptionInteger,
					Name:                     "limit",
					Description:              "Rows to show (1-25)",
					DescriptionLocalizations: localized("Сколько строк показать (1-25)", "Rows to show (1-25)"),
				},
			},
		},
		{
			Name:                     "history",
			Description:              "Recent submissions of a member",
			DescriptionLocalizations: localizedPtr("Последние заявки участника", "Recent submissions of a member"),
			Options:                  []*discordgo.ApplicationCommandOption{userOption(false)},
		},
		{
			Name:                     "pending",
			Description:              "Submissions waiting for review",
			DescriptionLocalizations: localizedPtr("Заявки на проверке", "Submissions waiting for review"),
		},
		{
			Name:                     "event_stats",
			Description:              "Event statistics",
			DescriptionLocalizations: localizedPtr("Статистика ивентов", "Event statistics"),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:                     discordgo.ApplicationCommandOptionString,
					Name:                     "period",
					Description:              "day, week or month",
					DescriptionLocalizations: localized("день, неделя или месяц", "day, week or month"),
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "day", Value: "day"},
						{Name: "week", Value: "week"},
						{Name: "month", Value: "month"},
					},
				},
			},
		},
		{
			Name:                     "points",
			Description:              "Adjust member points",
			DescriptionLocalizations: localizedPtr("Изменить очки участника", "Adjust member points"),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:                     discordgo.ApplicationCommandOptionSubCommand,
					Name:                     "add",
					Description:              "Add or remove points",
					DescriptionLocalizations: localized("Добавить или списать очки", "Add or remove points"),
					Options:                  []*discordgo.ApplicationCommandOption{userOption(true), pointsOption()},
				},
				{
					Type:                     discordgo.ApplicationCommandOptionSubCommand,
					Name:                     "set",
					Description:              "Set the balance",
					DescriptionLocalizations: localized("Установить баланс", "Set the balance"),
					Options:                  []*discordgo.ApplicationCommandOption{userOption(true), pointsOption()},
				},
				{
					Type:                     discordgo.ApplicationCommandOptionSubCommand,
					Name:                     "reset",
					Description:              "Reset every balance in the server",
					DescriptionLocalizations: localized("Сбросить все балансы сервера", "Reset every balance in the server"),
				},
			},
		},
		{
			Name:                     "submission_delete",
			Description:              "Delete a submission",
			DescriptionLocalizations: localizedPtr("Удалить заявку", "Delete a submission"),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:                     discordgo.ApplicationCommandOptionInteger,
					Name:                     "id",
					Description:              "Submission ID",
					DescriptionLocalizations: localized("ID заявки", "Submission ID"),
					Required:                 true,
				},
			},
		},
		{
			Name:                     "debug_sessions",
			Description:              "Active submission sessions",
			DescriptionLocalizations: localizedPtr("Отладка активных сессий заявок", "Active submission sessions"),
		},
		{
			Name:                     "dump_sessions",
			Description:              "Dump active submission sessions",
			DescriptionLocalizations: localizedPtr("Диагностика: выгрузка активных сессий", "Dump active submission sessions"),
		},
		{
			Name:                     "shop",
			Description:              "Spend points in the shop",
			DescriptionLocalizations: localizedPtr("Потратить очки в магазине", "Spend points in the shop"),
		},
		{
			Name:                     "event_config",
			Description:              "Show or change event settings",
			DescriptionLocalizations: localizedPtr("Показать или изменить настройки ивентов", "Show or change event settings"),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "language",
					Description: "ru or en",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "ru", Value: "ru"},
						{Name: "en", Value: "en"},
					},
				},
				{
					Type:                     discordgo.ApplicationCommandOptionChannel,
					Name:                     "events_channel",
					Description:              "Where announcements are posted",
					DescriptionLocalizations: localized("Канал для объявлений", "Where announcements are posted"),
				},
				{
					Type:                     discordgo.ApplicationCommandOptionChannel,
					Name:                     "moderator_channel",
					Description:              "Where moderators review submissions",
					DescriptionLocalizations: localized("Канал модераторов", "Where moderators review submissions"),
				},
				{
					Type:                     discordgo.ApplicationCommandOptionRole,
					Name:                     "moderator_role",
					Description:              "Role allowed to review",
					DescriptionLocalizations: localized("Роль модераторов", "Role allowed to review"),
				},
				{
					Type:                     discordgo.ApplicationCommandOptionString,
					Name:                     "start_date",
					Description:              "First day points are awarded (YYYY-MM-DD, - to clear)",
					DescriptionLocalizations: localized("Первый день начисления (ГГГГ-ММ-ДД, - сбросить)", "First day points are awarded (YYYY-MM-DD, - to clear)"),
				},
				{
					Type:                     discordgo.ApplicationCommandOptionString,
					Name:                     "end_date",
					Description:              "Last day points are awarded (YYYY-MM-DD, - to clear)",
					DescriptionLocalizations: localized("Последний день начисления (ГГГГ-ММ-ДД, - сбросить)", "Last day points are awarded (YYYY-MM-DD, - to clear)"),
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}

	for _, guild := range b.session.State.Guilds {
		if guild == nil {
			continue
		}
		guildCmds, err := b.session.ApplicationCommands(appID, guild.ID)
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			if _, ok := desired[cmd.Name]; ok {
				continue
			}
			_ = b.session.ApplicationCommandDelete(appID, guild.ID, cmd.ID)
		}
	}
	return nil
}
