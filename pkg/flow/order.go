package flow

import "strings"

var orderIntents = map[string]string{
	"create_order": "create",
	"check_order":  "check",
	"order_status": "check",
	"modify_order": "modify",
	"cancel_order": "cancel",
}

var orderGroups = []keywordGroup{
	{"create", []string{"создать", "оформить", "заказать", "купить"}},
	{"check", []string{"проверить", "статус", "где заказ", "отследить"}},
	{"modify", []string{"изменить", "поменять", "добавить к заказу"}},
	{"cancel", []string{"отменить", "аннулировать", "не нужен"}},
	{"shipping", []string{"доставка", "когда получу", "адрес"}},
	{"payment", []string{"оплата", "заплатить", "карта", "счет"}},
}

// productCatalog lists recognised product words by category.
var productCatalog = []keywordGroup{
	{"electronics", []string{"телефон", "смартфон", "планшет", "ноутбук", "компьютер"}},
	{"clothing", []string{"футболка", "джинсы", "платье", "куртка", "обувь"}},
	{"books", []string{"книга", "роман", "учебник", "словарь"}},
	{"home", []string{"мебель", "посуда", "декор", "текстиль"}},
}

func (d *dialogue) orderEnter(sc *SessionContext) StateResult {
	if n := orderNumberFor(sc, sc.TurnMessage); n != "" {
		sc.SetEntity("order_number", n)
		return d.orderStatus(n)
	}
	return reply(d.text("order.enter", nil),
		"Создать новый заказ",
		"Проверить статус заказа",
		"Изменить заказ",
		"Отменить заказ",
	)
}

func (d *dialogue) orderInput(sc *SessionContext, in Input) StateResult {
	if blank(in.Message) {
		return StateResult{Response: d.text("order.invalid", nil), ShouldContinue: true, RequiresInput: true}
	}
	msg := normalize(in.Message)

	if n := extractOrderNumber(in.Message); n != "" {
		sc.SetEntity("order_number", n)
		return d.orderStatus(n)
	}

	label, ok := orderIntents[in.Intent]
	if !ok {
		label = matchGroup(orderGroups, msg)
	}

	switch label {
	case "create":
		return d.orderCreate(sc, msg)
	case "check":
		if sc.HasEntity("order_number") {
			return d.orderStatus(sc.Entity("order_number"))
		}
		return reply(d.text("order.ask_number", nil),
			"Ввести номер заказа",
			"Найти по телефону",
			"Найти по email",
		)
	case "modify":
		return d.orderModify(sc, msg)
	case "cancel":
		return d.orderCancel(sc)
	case "shipping":
		return route(d.text("order.to_shipping", nil), StateShipping)
	case "payment":
		return route(d.text("order.to_payment", nil), StatePayment)
	}

	if res, left := d.leaveRequest(sc, msg); left {
		return res
	}
	return reply(d.text("order.general", nil),
		"Создать новый заказ",
		"Проверить статус заказа",
		"Изменить заказ",
		"Отменить заказ",
	)
}

func (d *dialogue) orderStatus(number string) StateResult {
	return reply(d.text("order.status", map[string]any{"OrderNumber": number}),
		"Изменить адрес доставки",
		"Изменить товары",
		"Отменить заказ",
		"Связаться с курьером",
	)
}

func (d *dialogue) orderCreate(sc *SessionContext, msg string) StateResult {
	var products []string
	for _, category := range productCatalog {
		for _, p := range category.words {
			if strings.Contains(msg, p) {
				products = append(products, p)
			}
		}
	}

	text := d.text("order.create_ask", nil)
	if len(products) > 0 {
		sc.SetEntity("requested_products", products)
		text = d.text("order.create_products", map[string]any{"Products": products})
	}
	return reply(text,
		"Указать количество",
		"Выбрать модель",
		"Перейти к оформлению",
		"Посмотреть каталог",
	)
}

func (d *dialogue) orderModify(sc *SessionContext, msg string) StateResult {
	number := sc.Entity("order_number")
	if number == "" {
		return StateResult{Response: d.text("order.modify_need_number", nil), ShouldContinue: true, RequiresInput: true}
	}

	switch {
	case containsAny(msg, []string{"адрес", "доставка"}):
		return route(d.text("order.modify_address", nil), StateShipping)
	case containsAny(msg, []string{"товар", "добавить", "убрать", "количество"}):
		return reply(d.text("order.modify_items", map[string]any{"OrderNumber": number}),
			"Добавить товар",
			"Убрать товар",
			"Изменить количество",
			"Заменить товар",
		)
	}
	return StateResult{Response: d.text("order.modify_ask", nil), ShouldContinue: true, RequiresInput: true}
}

func (d *dialogue) orderCancel(sc *SessionContext) StateResult {
	number := sc.Entity("order_number")
	if number == "" {
		return StateResult{Response: d.text("order.cancel_need_number", nil), ShouldContinue: true, RequiresInput: true}
	}
	return reply(d.text("order.cancel", map[string]any{"OrderNumber": number}),
		"Подтвердить отмену",
		"Отложить отмену",
		"Связаться с оператором",
	)
}

func orderActions(sc *SessionContext) []string {
	actions := []string{
		"Создать новый заказ",
		"Проверить статус заказа",
		"Помощь с оформлением",
	}
	if sc.HasEntity("order_number") {
		actions = append(actions,
			"Изменить заказ",
			"Отменить заказ",
			"Связаться с курьером",
		)
	}
	return actions
}
