package flow

const userReturning = "is_returning_user"

var helloGroups = []keywordGroup{
	{"greeting", []string{"привет", "здравствуй", "добро пожаловать"}},
	{"order", []string{"заказ", "заказать", "купить"}},
	{"shipping", []string{"доставка", "доставить", "когда получу"}},
	{"payment", []string{"оплата", "заплатить", "карта"}},
	{"complaint", []string{"жалоба", "проблема", "не работает"}},
}

// helloSmallTalk is checked after farewell and operator requests.
var helloSmallTalk = []keywordGroup{
	{"help", []string{"помощь", "помоги", "не понимаю"}},
	{"thanks", []string{"спасибо", "благодарю", "хорошо", "отлично"}},
}

var helloIntents = map[string]string{
	"greeting":         "greeting",
	"order_inquiry":    "order",
	"shipping_inquiry": "shipping",
	"payment_inquiry":  "payment",
	"complaint":        "complaint",
	"help":             "help",
}

func (d *dialogue) helloEnter(sc *SessionContext) StateResult {
	delete(sc.Data, MetaEscalationReason)

	returning, _ := sc.UserData[userReturning].(bool)
	key := "hello.greeting"
	if returning {
		key = "hello.returning"
	} else {
		sc.UserData[userReturning] = true
	}

	return reply(d.text(key, nil),
		"Узнать о товарах",
		"Проверить заказ",
		"Связаться с оператором",
		"Помощь",
	)
}

func (d *dialogue) helloInput(sc *SessionContext, in Input) StateResult {
	if blank(in.Message) {
		return StateResult{Response: d.text("hello.invalid", nil), ShouldContinue: true, RequiresInput: true}
	}
	msg := normalize(in.Message)

	label, ok := helloIntents[in.Intent]
	if !ok {
		label = matchGroup(helloGroups, msg)
	}
	if label == "" {
		if res, left := d.leaveRequest(sc, msg); left {
			return res
		}
		label = matchGroup(helloSmallTalk, msg)
	}

	switch label {
	case "greeting":
		return reply(d.text("hello.small_talk", nil), "Узнать о товарах", "Проверить заказ", "Помощь")
	case "order":
		if n := orderNumberFor(sc, in.Message); n != "" {
			sc.SetEntity("order_number", n)
		}
		return route(d.text("hello.to_order", nil), StateOrder)
	case "shipping":
		return route(d.text("hello.to_shipping", nil), StateShipping)
	case "payment":
		return route(d.text("hello.to_payment", nil), StatePayment)
	case "complaint":
		return StateResult{
			Response:       d.text("hello.complaint", nil),
			NextState:      StateHangup.String(),
			ShouldContinue: false,
			RequiresInput:  true,
			Metadata:       map[string]any{MetaEscalationReason: ReasonComplaint},
		}
	case "help":
		return reply(d.text("hello.help", nil),
			"Узнать о товарах",
			"Проверить заказ",
			"Вопросы доставки",
			"Связаться с оператором",
		)
	case "thanks":
		return reply(d.text("hello.thanks", nil), "Узнать о товарах", "Проверить заказ", "Помощь")
	}

	sc.SetEntity("unknown_request", in.Message)
	return reply(d.text("hello.unknown", nil),
		"Узнать о товарах",
		"Проверить заказ",
		"Связаться с оператором",
		"Помощь",
	)
}

func helloActions() []string {
	return []string{
		"Узнать о товарах",
		"Проверить заказ",
		"Вопросы доставки",
		"Помощь с оплатой",
		"Связаться с оператором",
	}
}
