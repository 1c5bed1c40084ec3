package messages

import (
	"fmt"
	"strings"
	"time"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func FormatDate(t time.Time) string {
	return t.UTC().Format("02.01.2006")
}

func FormatPrice(price float64) string {
	s := fmt.Sprintf("%.0f", price)
	// thousands separated by thin spaces: 3500 -> 3 500
	n := len(s)
	if n <= 3 {
		return s + " ₽"
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String() + " ₽"
}

func ErrorDefault() string {
	return "🚫 <b>Ошибка сервиса</b>\nПопробуйте ещё раз."
}

func ErrorUnknownCommand() string {
	return "❓ <b>Команда не найдена</b>"
}

func ActionCancelled() string {
	return "Действие отменено"
}

func StartWelcome(firstName string) string {
	name := Escape(firstName)
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Добро пожаловать в <b>Shmukler Art Club</b> — закрытое сообщество для тех, "+
			"кто хочет глубже понимать искусство и быть в курсе главных культурных событий.\n\n"+
			"🎨 <b>Что входит в клуб:</b>\n"+
			"• Частные экскурсии и арт-туры\n"+
			"• Посещение мастерских художников\n"+
			"• Онлайн-лекции от Оли Шмуклер\n"+
			"• Подборки выставок и культурных событий\n"+
			"• Бесплатный арт-консалтинг\n"+
			"• Скидка 15%% на покупку произведений искусства\n\n"+
			"Выберите действие:", name)
}

func PlansIntro() string {
	return "💳 <b>Выберите тариф подписки:</b>\n\n" +
		"При подписке на 3+ месяца действуют скидки!"
}

func CheckoutOffer(planName string, price float64, discounted bool) string {
	line := fmt.Sprintf("Тариф: <b>%s</b>\nСтоимость: <b>%s</b>", Escape(planName), FormatPrice(price))
	if discounted {
		line += "\n🎫 Промокод применён."
	}
	return "💳 <b>Оплата подписки</b>\n\n" + line + "\n\n" +
		"Нажмите кнопку ниже для перехода к оплате.\n" +
		"После успешной оплаты вам автоматически придёт инвайт-ссылка в канал клуба."
}

func PaymentSucceeded(until time.Time, inviteLink string) string {
	return fmt.Sprintf(
		"🎉 <b>Оплата прошла успешно!</b>\n\n"+
			"Ваша подписка активирована до <b>%s</b>\n\n"+
			"🔗 <b>Ссылка для входа в канал клуба:</b>\n%s\n\n"+
			"<i>Ссылка действительна 24 часа и работает только для вас.</i>\n\n"+
			"Добро пожаловать в Shmukler Art Club! 🎨",
		FormatDate(until), inviteLink)
}

func PaymentSucceededNoInvite(until time.Time) string {
	return fmt.Sprintf(
		"🎉 <b>Оплата прошла успешно!</b>\n\n"+
			"Ваша подписка активирована до <b>%s</b>\n\n"+
			"Ссылка для входа в канал придёт отдельным сообщением.",
		FormatDate(until))
}

func AutopayRenewed(until time.Time) string {
	return fmt.Sprintf(
		"🔄 <b>Подписка продлена</b>\n\n"+
			"Автоплатёж прошёл успешно.\n"+
			"Подписка действует до <b>%s</b>.",
		FormatDate(until))
}

func GiftPurchased(code string, months int) string {
	return fmt.Sprintf(
		"🎁 <b>Подарочная подписка оплачена!</b>\n\n"+
			"Ваш уникальный код:\n<code>%s</code>\n\n"+
			"📅 Срок подписки: <b>%d мес.</b>\n\n"+
			"📤 <b>Как подарить:</b>\n"+
			"1. Скопируйте код выше\n"+
			"2. Отправьте его получателю\n"+
			"3. Получатель вводит код в боте → «🎁 Промокод»\n\n"+
			"✅ После активации получатель сразу получит доступ в клуб!",
		Escape(code), months)
}

func InviteReissued(inviteLink string) string {
	return "🔗 <b>Ваша ссылка для входа в канал клуба:</b>\n" + inviteLink + "\n\n" +
		"<i>Ссылка действительна 24 часа и работает только для вас.</i>"
}

func PromoPrompt() string {
	return "🎁 <b>Активация промокода</b>\n\n" +
		"Введите промокод для получения скидки или бесплатного доступа:"
}

func PromoNotFound() string {
	return "❌ Промокод не найден. Проверьте правильность ввода."
}

func PromoInactive() string {
	return "❌ Этот промокод больше не активен."
}

func PromoExpired() string {
	return "❌ Срок действия промокода истёк."
}

func PromoExhausted() string {
	return "❌ Достигнут лимит использований промокода."
}

func PromoNotYours() string {
	return "❌ Этот промокод предназначен другому пользователю."
}

func PromoFreeActivated(months int, until time.Time, inviteLink string) string {
	msg := fmt.Sprintf(
		"🎉 <b>Промокод активирован!</b>\n\n"+
			"Вам предоставлена бесплатная подписка на %d мес.\n"+
			"Действует до: <b>%s</b>",
		months, FormatDate(until))
	if inviteLink != "" {
		msg += "\n\n🔗 Ссылка для входа в канал:\n" + inviteLink
	}
	return msg
}

func PromoDiscountApplied(code string, kind string, value float64) string {
	unit := " ₽"
	if kind == "percent" {
		unit = "%"
	}
	return fmt.Sprintf(
		"✅ Промокод <b>%s</b> применён!\n\n"+
			"Скидка: <b>%.0f%s</b>\n"+
			"Теперь выберите тариф для покупки со скидкой:",
		Escape(code), value, unit)
}

func PromoCreateUsage() string {
	return "📝 <b>Создание промокода</b>\n\n" +
		"<code>/addpromo КОД тип значение [мес.] [лимит] [получатель]</code>\n\n" +
		"Тип: <code>percent</code>, <code>fixed</code> или <code>free</code>\n" +
		"Получатель: @username или ID пользователя\n\n" +
		"Пример: <code>/addpromo SAVE50 percent 50 3 10</code>"
}

func PromoCreated(code string) string {
	return fmt.Sprintf("✅ Промокод <code>%s</code> создан.", Escape(code))
}

func GiftIntro() string {
	return "🎁 <b>Подарочная подписка</b>\n\n" +
		"Оплатите подписку и получите уникальный код, который можно подарить.\n" +
		"Получатель активирует код в боте и сразу получит доступ в клуб.\n\n" +
		"Выберите срок подарочной подписки:"
}

func AutoRenewalInfo() string {
	return "ℹ️ <b>Об автопродлении</b>\n\n" +
		"Подписка продлевается автоматически: оплата списывается с привязанной карты " +
		"в конце оплаченного периода.\n\n" +
		"За 3 дня до списания мы пришлём напоминание.\n" +
		"Отключить автопродление можно в личном кабинете платёжной системы " +
		"или написав в поддержку."
}

func StatsSummary(totalUsers, activeSubscribers int64, totalRevenue float64) string {
	return fmt.Sprintf(
		"📊 <b>Статистика</b>\n\n"+
			"👥 Пользователей: <b>%d</b>\n"+
			"✅ Активных подписок: <b>%d</b>\n"+
			"💰 Выручка: <b>%s</b>",
		totalUsers, activeSubscribers, FormatPrice(totalRevenue))
}

func SubscriptionLapsed() string {
	return "⏰ <b>Подписка не продлена</b>\n\n" +
		"Автоматическое продление не прошло (возможно, недостаточно средств на карте).\n\n" +
		"Доступ к закрытому каналу клуба отключён.\n\n" +
		"Чтобы продолжить участие в клубе, оформите новую подписку:\n/start"
}

func RenewalReminder(days int) string {
	return fmt.Sprintf(
		"💳 <b>Напоминание о продлении подписки</b>\n\n"+
			"Через <b>%d дня</b> с вашей карты автоматически спишется оплата за следующий период.\n\n"+
			"🔄 <b>Подписка продлится автоматически</b>\n"+
			"Вам ничего не нужно делать.\n\n"+
			"⚠️ Пожалуйста, убедитесь, что на карте достаточно средств для списания.\n\n"+
			"<i>Если хотите отменить подписку или изменить тариф, используйте кнопки ниже.</i>",
		days)
}

func SubscriptionStatusActive(until time.Time, daysLeft int) string {
	emoji := "✅"
	if daysLeft <= 7 {
		emoji = "⚠️"
	}
	return fmt.Sprintf(
		"%s <b>Ваша подписка активна</b>\n\n"+
			"Действует до: <b>%s</b>\n"+
			"Осталось дней: <b>%d</b>\n\n"+
			"После истечения срока подписки доступ к каналу будет автоматически закрыт.",
		emoji, FormatDate(until), daysLeft)
}

func SubscriptionStatusNone() string {
	return "❌ <b>У вас нет активной подписки</b>\n\n" +
		"Оформите подписку, чтобы получить доступ к эксклюзивному контенту клуба!"
}

func PaymentPendingHint() string {
	return "⏳ Платёж ещё не поступил. Подождите несколько минут после оплаты."
}

func AboutClub() string {
	return "🎨 <b>О Shmukler Art Club</b>\n\n" +
		"Shmukler art club — это закрытое сообщество, созданное Олей Шмуклер " +
		"и командой культурного центра Артишок.\n\n" +
		"<b>Наша миссия:</b>\n" +
		"Объединить людей, которые хотят видеть, понимать, чувствовать искусство глубже.\n\n" +
		"Подробнее: https://artishokcenter.ru/shmuklerartclub"
}

func Support() string {
	return "📞 <b>Связаться с нами:</b>\n\n" +
		"Если у вас возникли вопросы или проблемы, напишите нам — мы всегда на связи!"
}

func AlertIdentityUnresolved(orderID string) string {
	return fmt.Sprintf(
		"⚠️ <b>Платёж без пользователя</b>\n\n"+
			"Получено уведомление об оплате <code>%s</code>, но не удалось определить пользователя.\n"+
			"Платёж не записан — требуется ручная обработка.",
		Escape(orderID))
}

func AlertInviteFailed(userID int64) string {
	return fmt.Sprintf(
		"⚠️ Не удалось отправить инвайт-ссылку пользователю %d\n"+
			"Отправьте ссылку вручную!", userID)
}
