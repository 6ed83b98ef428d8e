package bot

import "fmt"

var translations = map[string]map[string]string{
	"ru": {
		"panel_title":         "🎯 Ивенты",
		"panel_desc":          "Выберите событие, чтобы подать заявку на очки. Бот создаст ветку, где нужно указать участников.",
		"panel_placeholder":   "Выберите событие",
		"panel_posted":        "Панель опубликована.",
		"thread_prompt":       "<@%s>, укажите участников: упомяните их через @ или напишите «только я».",
		"thread_opened":       "Заявка открыта: <#%s>",
		"thread_fallback":     "Не удалось создать ветку, продолжаем здесь.",
		"announce_title":      "Заявка: %s",
		"field_event":         "Событие",
		"field_submitter":     "Автор",
		"field_participants":  "Участники",
		"field_status":        "Статус",
		"field_points":        "Очки",
		"field_base_points":   "Базовые очки",
		"field_multiplier":    "Множитель",
		"field_reviewer":      "Модератор",
		"field_reason":        "Причина",
		"field_screenshot":    "Скриншот",
		"status_collecting":   "Сбор участников",
		"status_pending":      "На проверке",
		"status_approved":     "Одобрено",
		"status_rejected":     "Отклонено",
		"footer_submission":   "ID заявки: %d",
		"participants_ok":     "Участники (%d): %s\nБазовые очки: %s\nПодтвердите отправку, добавьте скриншот или отмените заявку.",
		"participants_limit":  "Слишком много участников: максимум %d.",
		"participants_none":   "Не удалось распознать участников. Упомяните их через @ или напишите «только я».",
		"btn_confirm":         "✅ Отправить",
		"btn_screenshot":      "📷 Добавить скриншот",
		"btn_cancel":          "✖ Отмена",
		"screenshot_prompt":   "Прикрепите скриншот или ссылку на изображение. Затем нажмите «Отправить» или напишите «отправить».",
		"screenshot_attached": "Скриншот добавлен. Нажмите «Отправить» или напишите «отправить».",
		"screenshot_rejected": "Это не похоже на изображение. Попробуйте другой файл.",
		"screenshot_waiting":  "Жду скриншот. Можно сразу отправить заявку без него.",
		"submitted":           "Заявка #%d отправлена на проверку.",
		"try_again":           "Не удалось сохранить заявку. Попробуйте ещё раз.",
		"cancelled":           "Заявка отменена.",
		"session_lost":        "Сессия заявки потеряна (например, после перезапуска бота). Начните заново через панель ивентов.",
		"session_missing":     "Активная заявка не найдена. Начните заново через панель ивентов.",
		"not_owner":           "Это чужая заявка.",
		"finalize_busy":       "Заявка уже отправляется.",
		"invalid_step":        "Сейчас это действие недоступно.",
		"window_not_started":  "Начисление очков ещё не началось (с %s).",
		"window_ended":        "Начисление очков завершено (%s).",
		"throttled":           "Слишком много заявок подряд. Подождите немного.",
		"mod_title":           "Заявка #%d на проверку",
		"mod_multiplier":      "Множитель",
		"mod_confirm":         "Одобрить заявку #%d с множителем x%s? Каждый участник получит %s.",
		"mod_approved":        "Заявка #%d одобрена (x%s): по %s очков каждому.",
		"mod_rejected":        "Заявка #%d отклонена.",
		"mod_already":         "По этой заявке уже принято решение.",
		"mod_credit_partial":  "Не удалось начислить очки: %s.",
		"btn_approve":         "Одобрить",
		"btn_reject":          "Отклонить",
		"reject_title":        "Отклонение заявки",
		"reject_reason":       "Причина",
		"notify_approved":     "✅ Заявка #%d одобрена. %s получают по %s очков.",
		"notify_rejected":     "❌ Заявка #%d отклонена. Причина: %s",
		"no_permission":       "Недостаточно прав.",
		"error_only_guild":    "Команда доступна только на сервере.",
		"error_failed":        "Что-то пошло не так.",
		"not_found":           "Не найдено.",
		"balance_title":       "Баланс",
		"balance_desc":        "<@%s>: %s очков, событий: %d",
		"leaderboard_title":   "🏆 Таблица лидеров",
		"leaderboard_empty":   "Пока никто не заработал очков.",
		"history_title":       "История заявок",
		"history_empty":       "Заявок нет.",
		"pending_title":       "Заявки на проверке",
		"pending_empty":       "Нет заявок на проверке.",
		"sessions_title":      "Активные сессии",
		"sessions_empty":      "Нет активных сессий.",
		"sessions_found":      "Найдено активных сессий: %d",
		"sessions_more":       "И ещё %d",
		"sessions_entry":      "Автор: <@%s>\nКанал: <#%s>\nСостояние: %s\nУчастников: %d\nОбновлена: <t:%d:R>",
		"stats_title":         "Статистика ивентов",
		"field_pending":       "На проверке",
		"field_approved":      "Одобрено",
		"field_rejected":      "Отклонено",
		"field_distributed":   "Выдано очков",
		"field_active_users":  "Активных игроков",
		"field_recent":        "Действий за период",
		"points_updated":      "Баланс <@%s>: %s.",
		"points_reset":        "Очки сброшены (%d записей).",
		"submission_deleted":  "Заявка #%d удалена.",
		"config_title":        "Настройки ивентов",
		"config_updated":      "Настройки сохранены.",
		"invalid_date":        "Дата должна быть в формате ГГГГ-ММ-ДД.",
		"shop_title":          "🛒 Магазин",
		"shop_item":           "%s **%s** (%d очков)\n%s",
		"btn_buy":             "Купить: %s",
		"btn_done":            "Выдано",
		"shop_bought":         "Покупка #%d оформлена: %s. Списано %d очков.",
		"shop_insufficient":   "Недостаточно очков для покупки.",
		"shop_request":        "Покупка #%d: <@%s> купил(а) %s за %d очков.",
		"shop_completed":      "Покупка #%d выдана.",
		"shop_refunded":       "Покупка #%d отклонена, очки возвращены.",
		"shop_already":        "Эта покупка уже обработана.",
		"shop_unknown":        "Такого товара нет.",
		"audit_notice":        "[%s] %s: %s",
	},
	"en": {
		"panel_title":         "🎯 Events",
		"panel_desc":          "Pick an event to claim points. The bot opens a thread where you list the participants.",
		"panel_placeholder":   "Choose an event",
		"panel_posted":        "Panel posted.",
		"thread_prompt":       "<@%s>, list the participants: mention them with @ or write \"only me\".",
		"thread_opened":       "Submission opened: <#%s>",
		"thread_fallback":     "Could not create a thread, continuing here.",
		"announce_title":      "Submission: %s",
		"field_event":         "Event",
		"field_submitter":     "Submitter",
		"field_participants":  "Participants",
		"field_status":        "Status",
		"field_points":        "Points",
		"field_base_points":   "Base points",
		"field_multiplier":    "Multiplier",
		"field_reviewer":      "Moderator",
		"field_reason":        "Reason",
		"field_screenshot":    "Screenshot",
		"status_collecting":   "Collecting participants",
		"status_pending":      "Pending review",
		"status_approved":     "Approved",
		"status_rejected":     "Rejected",
		"footer_submission":   "Submission ID: %d",
		"participants_ok":     "Participants (%d): %s\nBase points: %s\nSubmit now, add a screenshot or cancel.",
		"participants_limit":  "Too many participants: at most %d.",
		"participants_none":   "No participants recognized. Mention them with @ or write \"only me\".",
		"btn_confirm":         "✅ Submit",
		"btn_screenshot":      "📷 Add screenshot",
		"btn_cancel":          "✖ Cancel",
		"screenshot_prompt":   "Attach a screenshot or an image link, then press Submit or type \"submit\".",
		"screenshot_attached": "Screenshot attached. Press Submit or type \"submit\".",
		"screenshot_rejected": "That does not look like an image. Try another file.",
		"screenshot_waiting":  "Waiting for a screenshot. You can also submit without one.",
		"submitted":           "Submission #%d sent for review.",
		"try_again":           "Could not save the submission. Please try again.",
		"cancelled":           "Submission cancelled.",
		"session_lost":        "This submission session was lost (for example after a bot restart). Please start again from the events panel.",
		"session_missing":     "No active submission found. Start again from the events panel.",
		"not_owner":           "This submission belongs to someone else.",
		"finalize_busy":       "The submission is already being sent.",
		"invalid_step":        "That action is not available right now.",
		"window_not_started":  "Points period has not started yet (from %s).",
		"window_ended":        "Points period has ended (%s).",
		"throttled":           "Too many submissions in a row. Please wait a moment.",
		"mod_title":           "Submission #%d for review",
		"mod_multiplier":      "Multiplier",
		"mod_confirm":         "Approve submission #%d with multiplier x%s? Each participant gets %s.",
		"mod_approved":        "Submission #%d approved (x%s): %s points each.",
		"mod_rejected":        "Submission #%d rejected.",
		"mod_already":         "This submission has already been decided.",
		"mod_credit_partial":  "Could not credit points to: %s.",
		"btn_approve":         "Approve",
		"btn_reject":          "Reject",
		"reject_title":        "Reject submission",
		"reject_reason":       "Reason",
		"notify_approved":     "✅ Submission #%d approved. %s receive %s points each.",
		"notify_rejected":     "❌ Submission #%d rejected. Reason: %s",
		"no_permission":       "You do not have permission to do that.",
		"error_only_guild":    "This command only works in a server.",
		"error_failed":        "Something went wrong.",
		"not_found":           "Not found.",
		"balance_title":       "Balance",
		"balance_desc":        "<@%s>: %s points, events: %d",
		"leaderboard_title":   "🏆 Leaderboard",
		"leaderboard_empty":   "Nobody has earned points yet.",
		"history_title":       "Submission history",
		"history_empty":       "No submissions.",
		"pending_title":       "Pending submissions",
		"pending_empty":       "Nothing is waiting for review.",
		"sessions_title":      "Active sessions",
		"sessions_empty":      "No active sessions.",
		"sessions_found":      "Active sessions found: %d",
		"sessions_more":       "And %d more",
		"sessions_entry":      "Author: <@%s>\nChannel: <#%s>\nState: %s\nParticipants: %d\nUpdated: <t:%d:R>",
		"stats_title":         "Event statistics",
		"field_pending":       "Pending",
		"field_approved":      "Approved",
		"field_rejected":      "Rejected",
		"field_distributed":   "Points distributed",
		"field_active_users":  "Active players",
		"field_recent":        "Actions in period",
		"points_updated":      "<@%s> balance: %s.",
		"points_reset":        "Points reset (%d rows).",
		"submission_deleted":  "Submission #%d deleted.",
		"config_title":        "Event settings",
		"config_updated":      "Settings saved.",
		"invalid_date":        "Dates must look like YYYY-MM-DD.",
		"shop_title":          "🛒 Shop",
		"shop_item":           "%s **%s** (%d points)\n%s",
		"btn_buy":             "Buy: %s",
		"btn_done":            "Delivered",
		"shop_bought":         "Purchase #%d placed: %s. %d points deducted.",
		"shop_insufficient":   "Not enough points for this item.",
		"shop_request":        "Purchase #%d: <@%s> bought %s for %d points.",
		"shop_completed":      "Purchase #%d delivered.",
		"shop_refunded":       "Purchase #%d rejected, points refunded.",
		"shop_already":        "This purchase was already processed.",
		"shop_unknown":        "No such item.",
		"audit_notice":        "[%s] %s: %s",
	},
}

func t(lang, key string) string {
	if table, ok := translations[lang]; ok {
		if value, ok := table[key]; ok {
			return value
		}
	}
	if value, ok := translations["ru"][key]; ok {
		return value
	}
	return key
}

func tf(lang, key string, args ...any) string {
	return fmt.Sprintf(t(lang, key), args...)
}
