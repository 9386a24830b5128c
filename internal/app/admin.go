package app

import (
	"errors"
	"fmt"
	"log"

	tele "gopkg.in/telebot.v3"

	"github.com/Bagi4-source/Mirotok/internal/backend"
	"github.com/Bagi4-source/Mirotok/internal/store"
)

const defaultListLimit = 5

// ==========================================
// АДМИН-ПАНЕЛЬ
// ==========================================

func (a *App) listLimit() int {
	if a.cfg.ListLimit > 0 {
		return a.cfg.ListLimit
	}
	return defaultListLimit
}

func (a *App) handleAdmin(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || !a.cfg.IsAdmin(sender.ID) {
		return nil
	}
	a.states.clear(sender.ID)
	return a.showAdminPanel(c)
}

func adminPanelMarkup() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("Заявки", cbAdminRequests)),
		menu.Row(
			menu.Data("О нас", cbAdminMessage, store.MessageAbout),
			menu.Data("Реквизиты", cbAdminMessage, store.MessagePayments),
		),
		menu.Row(menu.Data("Тарифы", cbAdminTariffs)),
	)
	return menu
}

func (a *App) showAdminPanel(c tele.Context) error {
	ctx, cancel := backendCtx()
	defer cancel()
	n, err := a.api.CountUsers(ctx)
	if err != nil {
		log.Printf("⚠️ Количество пользователей: %v", err)
	}
	text := fmt.Sprintf("Админ-панель:\nБотом пользуется (%d) человек", n)
	return reply(c, text, adminPanelMarkup())
}

func (a *App) handleAdminCallback(c tele.Context, unique, payload string) error {
	id := c.Sender().ID
	a.states.clear(id)

	switch unique {
	case cbAdmin:
		return a.showAdminPanel(c)
	case cbAdminRequests:
		return a.showPending(c, 0)
	case cbAdminRequestsPage:
		return a.showPending(c, atoiOrZero(payload))
	case cbAccept:
		return a.resolve(c, payload, true)
	case cbDeny:
		return a.resolve(c, payload, false)
	case cbAdminTariffs:
		return a.showAdminTariffs(c)
	case cbTariffAdd:
		a.states.set(id, userState{kind: stateTariffDays, updated: a.now()})
		menu := &tele.ReplyMarkup{}
		menu.Inline(menu.Row(menu.Data("Назад", cbAdminTariffs)))
		return tryEdit(c, "Введите количество дней", menu)
	case cbTariffDel:
		return a.deleteTariff(c, payload)
	case cbAdminMessage:
		return a.showMessage(c, payload)
	case cbMessageEdit:
		if payload != store.MessageAbout && payload != store.MessagePayments {
			return nil
		}
		a.states.set(id, userState{kind: stateMessageText, tag: payload, updated: a.now()})
		menu := &tele.ReplyMarkup{}
		menu.Inline(menu.Row(menu.Data("Назад", cbAdminMessage, payload)))
		return tryEdit(c, "Введите новый текст", menu)
	}
	return nil
}

// ===== ЗАЯВКИ =====

func pendingText(r store.PaymentRequest) string {
	return fmt.Sprintf("ID заявки: #%s\nID: %d\nСумма: %d₽\nТариф: %d дней\nВремя создания: %s",
		r.ID, r.TelegramID, r.Amount, r.Days, formatStamp(r.CreatedAt))
}

// pendingSummaryMarkup offers the next page, a refresh and the way back.
func pendingSummaryMarkup(offset, limit int, count int64) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	var rows []tele.Row
	if rest := count - int64(offset+limit); rest > 0 {
		rows = append(rows, menu.Row(menu.Data(fmt.Sprintf("Показать еще (%d)", rest), cbAdminRequestsPage, fmt.Sprint(offset+limit))))
	}
	rows = append(rows, menu.Row(menu.Data("Обновить", cbAdminRequests)), menu.Row(menu.Data("Назад", cbAdmin)))
	menu.Inline(rows...)
	return menu
}

func (a *App) showPending(c tele.Context, offset int) error {
	limit := a.listLimit()
	ctx, cancel := backendCtx()
	defer cancel()
	page, err := a.api.PendingRequests(ctx, limit, offset)
	if err != nil {
		log.Printf("❌ Заявки на оплату: %v", err)
		return reply(c, textBackendFailed)
	}
	if page.Count == 0 || len(page.Results) == 0 {
		menu := &tele.ReplyMarkup{}
		menu.Inline(menu.Row(menu.Data("Назад", cbAdmin)))
		return reply(c, "Заявки не найдены!", menu)
	}

	if c.Callback() != nil {
		_ = c.Delete()
	}
	for _, r := range page.Results {
		if err := c.Send(pendingText(r), resolveMarkup(r.ID)); err != nil {
			return err
		}
	}
	return c.Send(fmt.Sprintf("Всего заявок %d", page.Count), pendingSummaryMarkup(offset, limit, page.Count))
}

func resolutionText(res *store.Resolution) string {
	verdict := "отклонена"
	if res.Request.Status {
		verdict = "подтверждена"
	}
	text := fmt.Sprintf("Ваша заявка #%s %s!\nСумма: %d₽\nТариф: %d дней",
		res.Request.ID, verdict, res.Request.Amount, res.Request.Days)
	if res.User != nil && res.User.SubscriptionEnd != nil {
		text += "\nПодписка действует до " + formatDate(*res.User.SubscriptionEnd)
	}
	return text
}

func (a *App) resolve(c tele.Context, requestID string, approve bool) error {
	ctx, cancel := backendCtx()
	defer cancel()
	res, err := a.api.ResolveRequest(ctx, requestID, approve)
	switch {
	case errors.Is(err, backend.ErrConflict):
		return tryEdit(c, fmt.Sprintf("Заявка #%s уже обработана", requestID))
	case errors.Is(err, backend.ErrNotFound):
		return tryEdit(c, fmt.Sprintf("Заявка #%s не найдена", requestID))
	case err != nil:
		log.Printf("❌ Обработка заявки %s: %v", requestID, err)
		return c.Respond(&tele.CallbackResponse{Text: textBackendFailed})
	}
	log.Printf("✅ Заявка #%s обработана админом %d (одобрена: %v)", requestID, c.Sender().ID, approve)

	if err := c.Delete(); err != nil {
		log.Printf("⚠️ Не удалось удалить сообщение заявки: %v", err)
	}
	if _, err := a.bot.Send(tele.ChatID(res.Request.TelegramID), resolutionText(res)); err != nil {
		log.Printf("⚠️ Не удалось уведомить пользователя %d: %v", res.Request.TelegramID, err)
	}
	return nil
}

// ===== ТАРИФЫ =====

func (a *App) showAdminTariffs(c tele.Context) error {
	ctx, cancel := backendCtx()
	defer cancel()
	tariffs, err := a.api.Tariffs(ctx)
	if err != nil {
		log.Printf("❌ Тарифы: %v", err)
		return reply(c, textBackendFailed)
	}

	if c.Callback() != nil {
		_ = c.Delete()
	}
	for _, t := range tariffs {
		menu := &tele.ReplyMarkup{}
		menu.Inline(menu.Row(menu.Data("❌удалить", cbTariffDel, t.ID)))
		if err := c.Send(tariffLabel(t), menu); err != nil {
			return err
		}
	}
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("Назад", cbAdmin),
		menu.Data("Добавить", cbTariffAdd),
	))
	return c.Send("Добавить тариф?", menu)
}

func (a *App) deleteTariff(c tele.Context, tariffID string) error {
	ctx, cancel := backendCtx()
	defer cancel()
	err := a.api.DeleteTariff(ctx, tariffID)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		log.Printf("❌ Удаление тарифа %s: %v", tariffID, err)
		return c.Respond(&tele.CallbackResponse{Text: textBackendFailed})
	}
	return c.Delete()
}

// ===== ТЕКСТЫ =====

func (a *App) showMessage(c tele.Context, tag string) error {
	ctx, cancel := backendCtx()
	defer cancel()
	text := "Текста нет"
	msg, err := a.api.Message(ctx, tag)
	switch {
	case err == nil && msg.Text != "":
		text = msg.Text
	case err != nil && !errors.Is(err, backend.ErrNotFound):
		log.Printf("❌ Текст %s: %v", tag, err)
		return reply(c, textBackendFailed)
	}
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("Изменить", cbMessageEdit, tag)),
		menu.Row(menu.Data("Назад", cbAdmin)),
	)
	return reply(c, text, menu, tele.ModeHTML)
}

// ===== ВВОД АДМИНА =====

// handleAdminInput consumes a text answer to a pending admin dialogue.
func (a *App) handleAdminInput(c tele.Context) (bool, error) {
	sender := c.Sender()
	if sender == nil || !a.cfg.IsAdmin(sender.ID) {
		return false, nil
	}
	st := a.states.get(sender.ID)
	switch st.kind {
	case stateTariffDays:
		days, ok := digitsOnly(c.Text())
		if !ok || days <= 0 {
			return true, c.Send("Введите количество дней числом")
		}
		a.states.set(sender.ID, userState{kind: stateTariffAmount, days: days, updated: a.now()})
		return true, c.Send("Теперь введите сумму оплаты (₽)")

	case stateTariffAmount:
		amount, ok := digitsOnly(c.Text())
		if !ok || amount <= 0 {
			return true, c.Send("Введите сумму числом")
		}
		ctx, cancel := backendCtx()
		defer cancel()
		if _, err := a.api.CreateTariff(ctx, st.days, amount); err != nil {
			log.Printf("❌ Создание тарифа: %v", err)
			return true, c.Send(textBackendFailed)
		}
		a.states.clear(sender.ID)
		if err := c.Send(fmt.Sprintf("Тариф (%d - %d₽) успешно добавлен", st.days, amount)); err != nil {
			return true, err
		}
		return true, a.showAdminPanel(c)

	case stateMessageText:
		ctx, cancel := backendCtx()
		defer cancel()
		if err := a.api.PutMessage(ctx, st.tag, c.Text()); err != nil {
			log.Printf("❌ Сохранение текста %s: %v", st.tag, err)
			return true, c.Send(textBackendFailed)
		}
		a.states.clear(sender.ID)
		log.Printf("✅ Текст %s обновлен админом %d: %q", st.tag, sender.ID, shorten(c.Text(), 40))
		if err := c.Send("Текст обновлен"); err != nil {
			return true, err
		}
		return true, a.showAdminPanel(c)
	}
	return false, nil
}
