package tgCallback

// Callbacks buttons uniques. Данные кнопки: вид списка и тикер, через "|".
const (
	AddItem    string = "add_item"    // инициировать добавление тикера в список
	EditItem   string = "edit_item"   // изменить вес или количество
	RemoveItem string = "remove_item" // удалить тикер из списка
	ToggleMode string = "toggle_mode" // переключить режим позиции: штуки/сумма
	Calculate  string = "calculate"   // пересчитать пополнение или ребалансировку
)
