package catalog

type ShopItem struct {
	ID          string
	Name        string
	Description string
	Cost        int
	Emoji       string
	Category    string
}

var shopItems = []ShopItem{
	{ID: "silver_200k", Name: "200,000 серебра", Description: "Получите 200k серебра в игре", Cost: 10, Emoji: "💰", Category: "currency"},
	{ID: "random_item", Name: "Рандомная вещь", Description: "Случайный предмет из звездного лута", Cost: 30, Emoji: "🎲", Category: "items"},
	{ID: "gear_set", Name: "Комплект экипировки", Description: "Полный сет экипировки на выбор", Cost: 50, Emoji: "⚔️", Category: "gear"},
}

func ShopItems() []ShopItem {
	return append([]ShopItem(nil), shopItems...)
}

func ShopItemByID(id string) (ShopItem, bool) {
	for _, item := range shopItems {
		if item.ID == id {
			return item, true
		}
	}
	return ShopItem{}, false
}
