package flow

var paymentMethods = []keywordGroup{
	{"card", []string{"карта", "картой", "банковская карта", "visa", "mastercard"}},
	{"cash", []string{"наличные", "наличными", "деньги", "кэш"}},
	{"online", []string{"онлайн", "интернет", "сбербанк онлайн", "тинькофф"}},
	{"yoomoney", []string{"яндекс деньги", "yoomoney", "яндекс.деньги"}},
	{"qr", []string{"qr", "кью ар", "qr код", "по коду"}},
}

var paymentMethodNames = map[string]string{
	"card":     "Банковская карта",
	"cash":     "Наличные",
	"online":   "Онлайн-банкинг",
	"yoomoney": "YooMoney",
	"qr":       "QR-код",
}

var paymentIntents = map[string]string{
	"payment_methods": "methods",
	"make_payment":    "make",
	"payment_problem": "problem",
	"refund":          "refund",
	"refund_request":  "refund",
	"check_payment":   "check",
}

var paymentGroups = []keywordGroup{
	{"methods", []string{"способы", "как оплатить", "варианты оплаты"}},
	{"make", []string{"оплатить", "заплатить", "перевести"}},
	{"problem", []string{"не прошла", "ошибка", "проблема", "не получается"}},
	{"refund", []string{"вернуть", "возврат", "отменить платеж"}},
	{"check", []string{"проверить", "статус", "прошла ли"}},
	{"order", []string{"заказ", "товар", "купить"}},
}

var paymentProblems = []keywordGroup{
	{"declined", []string{"не прошла", "отклонена", "declined"}},
	{"error", []string{"ошибка", "error", "не работает"}},
}

var paymentMethodHints = map[string]string{
	"card":   "payment.card_hint",
	"online": "payment.online_hint",
	"qr":     "payment.qr_hint",
}

func (d *dialogue) paymentEnter(sc *SessionContext) StateResult {
	return reply(d.text("payment.enter", nil),
		"Способы оплаты",
		"Оплатить заказ",
		"Проблемы с оплатой",
		"Вернуть деньги",
	)
}

func (d *dialogue) paymentInput(sc *SessionContext, in Input) StateResult {
	if blank(in.Message) {
		return StateResult{Response: d.text("payment.invalid", nil), ShouldContinue: true, RequiresInput: true}
	}
	msg := normalize(in.Message)

	if amount := extractAmount(in.Message); amount != "" {
		sc.SetEntity("payment_amount", amount)
	}
	method := matchGroup(paymentMethods, msg)
	if method != "" {
		sc.SetEntity("payment_method", method)
	}

	label, ok := paymentIntents[in.Intent]
	if !ok {
		label = matchGroup(paymentGroups, msg)
	}

	switch label {
	case "methods":
		return reply(d.text("payment.methods", nil),
			"Оплатить картой",
			"Оплатить онлайн",
			"Наличные курьеру",
			"QR-код",
		)
	case "make":
		return d.paymentMake(sc)
	case "problem":
		return d.paymentProblem(sc, msg)
	case "refund":
		return d.paymentRefund(sc)
	case "check":
		return reply(d.text("payment.status", nil),
			"Справка об оплате",
			"Чек на email",
			"Другой платеж",
			"Готово",
		)
	case "order":
		return route(d.text("payment.to_order", nil), StateOrder)
	}

	if method != "" {
		return d.paymentMake(sc)
	}
	if res, left := d.leaveRequest(sc, msg); left {
		return res
	}
	return reply(d.text("payment.general", nil),
		"Способы оплаты",
		"Оплатить заказ",
		"Проблемы с оплатой",
		"Вернуть деньги",
	)
}

func (d *dialogue) paymentMake(sc *SessionContext) StateResult {
	method := sc.Entity("payment_method")

	var text string
	if name, ok := paymentMethodNames[method]; ok {
		text = d.text("payment.method_chosen", map[string]any{"Method": name})
	} else {
		text = d.text("payment.ask_method", nil)
	}
	if amount := sc.Entity("payment_amount"); amount != "" {
		text += d.text("payment.amount", map[string]any{"Amount": amount})
	}
	if key, ok := paymentMethodHints[method]; ok {
		text += "\n\n" + d.text(key, nil)
	}

	return reply(text,
		"Подтвердить оплату",
		"Изменить способ оплаты",
		"Проблемы с оплатой",
	)
}

func (d *dialogue) paymentProblem(sc *SessionContext, msg string) StateResult {
	kind := matchGroup(paymentProblems, msg)
	key := "payment." + kind
	if kind == "" {
		kind = "general"
		key = "payment.problem_general"
	}
	sc.SetEntity("payment_problem_type", kind)

	return reply(d.text(key, nil),
		"Попробовать еще раз",
		"Другой способ оплаты",
		"Связаться с банком",
		"Связаться с оператором",
	)
}

func (d *dialogue) paymentRefund(sc *SessionContext) StateResult {
	text := d.text("payment.refund_need_number", nil)
	if n := sc.Entity("order_number"); n != "" {
		text = d.text("payment.refund", map[string]any{"OrderNumber": n})
	}
	return reply(text,
		"Подтвердить возврат",
		"Указать номер заказа",
		"Условия возврата",
		"Связаться с оператором",
	)
}

func paymentActions(sc *SessionContext) []string {
	actions := []string{
		"Способы оплаты",
		"Оплатить заказ",
		"Проверить платеж",
	}
	if sc.HasEntity("payment_problem_type") {
		actions = append(actions,
			"Решить проблему",
			"Связаться с банком",
			"Другой способ оплаты",
		)
	}
	return actions
}
