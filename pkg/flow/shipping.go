package flow

import "maps"

var deliveryMethods = []keywordGroup{
	{"courier", []string{"курьер", "курьером", "доставка курьером"}},
	{"pickup", []string{"самовывоз", "забрать", "pickup", "пункт выдачи"}},
	{"post", []string{"почта", "почтой", "российская почта"}},
	{"express", []string{"экспресс", "быстрая доставка", "срочно"}},
}

var shippingIntents = map[string]string{
	"delivery_methods": "methods",
	"change_address":   "address",
	"track_delivery":   "track",
	"delivery_time":    "time",
	"delivery_cost":    "cost",
}

var shippingGroups = []keywordGroup{
	{"methods", []string{"способы", "как доставить", "варианты доставки"}},
	{"address", []string{"изменить адрес", "новый адрес", "другой адрес"}},
	{"track", []string{"отследить", "где посылка", "статус доставки"}},
	{"time", []string{"время доставки", "когда привезут", "сроки"}},
	{"cost", []string{"стоимость", "цена доставки", "сколько стоит"}},
	{"payment", []string{"оплата", "оплатить"}},
	{"order", []string{"заказ", "товар"}},
}

func (d *dialogue) shippingEnter(sc *SessionContext) StateResult {
	return reply(d.text("shipping.enter", nil),
		"Способы доставки",
		"Изменить адрес",
		"Отследить посылку",
		"Время доставки",
	)
}

func (d *dialogue) shippingInput(sc *SessionContext, in Input) StateResult {
	if blank(in.Message) {
		return StateResult{Response: d.text("shipping.invalid", nil), ShouldContinue: true, RequiresInput: true}
	}
	msg := normalize(in.Message)

	if found := extractAddress(in.Message); len(found) > 0 {
		parts := addressParts(sc.Entities["address_parts"])
		maps.Copy(parts, found)
		sc.SetEntity("address_parts", parts)
	}
	if method := matchGroup(deliveryMethods, msg); method != "" {
		sc.SetEntity("delivery_method", method)
	}

	label, ok := shippingIntents[in.Intent]
	if !ok {
		label = matchGroup(shippingGroups, msg)
	}

	switch label {
	case "methods":
		return reply(d.text("shipping.methods", nil),
			"Выбрать курьерскую доставку",
			"Найти пункт выдачи",
			"Экспресс-доставка",
			"Рассчитать стоимость",
		)
	case "address":
		return d.shippingAddress(sc, in.Message)
	case "track":
		return d.shippingTrack(sc, in.Message)
	case "time":
		return d.shippingTime(sc)
	case "cost":
		return reply(d.text("shipping.cost", nil),
			"Рассчитать для моего города",
			"Бесплатная доставка",
			"Способы экономии",
		)
	case "payment":
		return route(d.text("shipping.to_payment", nil), StatePayment)
	case "order":
		return route(d.text("shipping.to_order", nil), StateOrder)
	}

	if res, left := d.leaveRequest(sc, msg); left {
		return res
	}
	return reply(d.text("shipping.general", nil),
		"Способы доставки",
		"Изменить адрес",
		"Отследить посылку",
		"Время доставки",
	)
}

func (d *dialogue) shippingAddress(sc *SessionContext, message string) StateResult {
	if n := extractOrderNumber(message); n != "" {
		sc.SetEntity("order_number", n)
	}
	parts := addressParts(sc.Entities["address_parts"])

	var text string
	if len(parts) == 0 {
		text = d.text("shipping.address_help", nil)
	} else {
		text = d.text("shipping.address_confirmed", map[string]any{"Address": formatAddress(parts)})
		if n := sc.Entity("order_number"); n != "" {
			text += "\n\n" + d.text("shipping.address_for_order", map[string]any{"OrderNumber": n})
		} else {
			text += "\n\n" + d.text("shipping.address_need_order", nil)
		}
	}

	return reply(text,
		"Подтвердить изменение",
		"Указать номер заказа",
		"Выбрать из сохраненных адресов",
	)
}

func (d *dialogue) shippingTrack(sc *SessionContext, message string) StateResult {
	n := sc.Entity("order_number")
	if n == "" {
		n = extractOrderNumber(message)
	}

	text := d.text("shipping.tracking_need_number", nil)
	if n != "" {
		sc.SetEntity("order_number", n)
		text = d.text("shipping.tracking", map[string]any{"OrderNumber": n})
	}
	return reply(text,
		"Связаться с курьером",
		"Изменить время доставки",
		"Другой заказ",
	)
}

func (d *dialogue) shippingTime(sc *SessionContext) StateResult {
	key := "shipping.time_general"
	switch sc.Entity("delivery_method") {
	case "courier":
		key = "shipping.time_courier"
	case "express":
		key = "shipping.time_express"
	}
	return reply(d.text(key, nil),
		"Выбрать интервал доставки",
		"Ускорить доставку",
		"Другой способ доставки",
	)
}

func shippingActions(sc *SessionContext) []string {
	actions := []string{
		"Способы доставки",
		"Время доставки",
		"Стоимость доставки",
	}
	if sc.HasEntity("order_number") {
		actions = append(actions,
			"Отследить доставку",
			"Изменить адрес",
			"Связаться с курьером",
		)
	}
	return actions
}
