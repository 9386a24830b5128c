package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v3"

	"github.com/Bagi4-source/Mirotok/internal/backend"
	"github.com/Bagi4-source/Mirotok/internal/formula"
	"github.com/Bagi4-source/Mirotok/internal/reading"
	"github.com/Bagi4-source/Mirotok/internal/store"
)

// ==========================================
// КНОПКИ (unique части callback data)
// ==========================================

const (
	cbHome         = "home"
	cbAddRequest   = "add_request"
	cbTariff       = "tariff"
	cbPay          = "pay"
	cbRecs         = "recs"
	cbRequestsPage = "requests_page"

	cbAdmin             = "admin"
	cbAdminRequests     = "admin_requests"
	cbAdminRequestsPage = "admin_requests_page"
	cbAccept            = "req_accept"
	cbDeny              = "req_deny"
	cbAdminTariffs      = "admin_tariffs"
	cbTariffAdd         = "tariff_add"
	cbTariffDel         = "tariff_del"
	cbAdminMessage      = "admin_msg"
	cbMessageEdit       = "msg_edit"
)

const (
	backendTimeout = 15 * time.Second
	readingTimeout = 90 * time.Second

	maxCaption = 1024
	maxMessage = 4096
)

const (
	textWebAppButton  = "Пройти тест"
	textUnknown       = "Я не знаю, что на это ответить"
	textUnexpected    = "Непредвиденная ошибка!"
	textBackendFailed = "Что-то пошло не так, попробуйте позже"
	textNotPaid       = "Подписка не оплачена!"
)

// ==========================================
// РЕГИСТРАЦИЯ ХЕНДЛЕРОВ
// ==========================================

func (a *App) RegisterHandlers(b *tele.Bot) {
	a.bot = b
	b.Use(RecoverMiddleware())
	b.Use(a.RateLimitMiddleware())

	b.Handle("/start", a.handleStart)
	b.Handle("/about", a.handleAbout)
	b.Handle("/balance", a.handleBalance)
	b.Handle("/requests", a.handleRequests)
	b.Handle("/admin", a.handleAdmin)

	b.Handle(tele.OnWebApp, a.handleWebApp)
	b.Handle(tele.OnText, a.handleText)
	b.Handle(tele.OnCallback, a.handleCallback)
}

// parseCallback splits "\f<unique>|<payload>" produced by ReplyMarkup.Data.
func parseCallback(data string) (unique, payload string) {
	data = strings.TrimSpace(data)
	unique, payload, _ = strings.Cut(data, "|")
	return unique, payload
}

func backendCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), backendTimeout)
}

func tryEdit(c tele.Context, what interface{}, opts ...interface{}) error {
	err := c.Edit(what, opts...)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return c.Respond()
	}
	if err != nil {
		log.Printf("⚠️ Ошибка редактирования сообщения: %v", err)
	}
	return err
}

// reply edits the message behind a button press or sends a new one.
func reply(c tele.Context, what interface{}, opts ...interface{}) error {
	if c.Callback() != nil && c.Callback().Message != nil {
		return tryEdit(c, what, opts...)
	}
	return c.Send(what, opts...)
}

// ==========================================
// ПОЛЬЗОВАТЕЛИ
// ==========================================

func (a *App) handleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := backendCtx()
	defer cancel()
	if _, err := a.api.Register(ctx, sender.ID, sender.Username, fullName(sender)); err != nil {
		log.Printf("❌ Регистрация %d: %v", sender.ID, err)
	}
	return c.Send(fmt.Sprintf("Привет, %s! Мы рады тебя видеть)", sender.FirstName), a.mainKeyboard())
}

func (a *App) mainKeyboard() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	if a.cfg.WebAppURL == "" {
		menu.RemoveKeyboard = true
		return menu
	}
	menu.Reply(menu.Row(menu.WebApp(textWebAppButton, &tele.WebApp{URL: a.cfg.WebAppURL})))
	return menu
}

func fullName(u *tele.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (a *App) handleAbout(c tele.Context) error {
	ctx, cancel := backendCtx()
	defer cancel()
	msg, err := a.api.Message(ctx, store.MessageAbout)
	switch {
	case errors.Is(err, backend.ErrNotFound) || (err == nil && msg.Text == ""):
		return c.Send("Информация пока не добавлена")
	case err != nil:
		log.Printf("❌ Текст about: %v", err)
		return c.Send(textBackendFailed)
	}
	return c.Send(msg.Text, tele.ModeHTML)
}

func renewMarkup() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.Data("Продлить подписку", cbAddRequest)))
	return menu
}

func balanceText(u *store.User) string {
	if u.SubscriptionEnd == nil {
		return "Подписка не оформлена"
	}
	return "Дата окончания подписки: " + formatDate(*u.SubscriptionEnd)
}

func (a *App) handleBalance(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := backendCtx()
	defer cancel()
	u, err := a.api.User(ctx, sender.ID)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return c.Send("Пользователь не найден! Нажмите /start")
	case err != nil:
		log.Printf("❌ Баланс %d: %v", sender.ID, err)
		return c.Send(textBackendFailed)
	}
	return c.Send(balanceText(u), renewMarkup())
}

// ==========================================
// ЗАЯВКИ ПОЛЬЗОВАТЕЛЯ
// ==========================================

func (a *App) handleRequests(c tele.Context) error {
	return a.showRequests(c, 0)
}

func requestText(r store.PaymentRequest) string {
	return fmt.Sprintf("ID заявки: #%s\nСумма: %d₽\nТариф: %d дней\nСтатус: %s\nВремя создания: %s",
		r.ID, r.Amount, r.Days, r.StatusText(), formatStamp(r.CreatedAt))
}

func requestsText(rs []store.PaymentRequest) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, requestText(r))
	}
	return strings.Join(parts, "\n\n")
}

// pagerRow is "Назад (shown before)" and "Далее (left after)" for an
// offset-based listing. Nil when everything fits on one page.
func pagerRow(menu *tele.ReplyMarkup, unique string, offset, limit int, count int64) tele.Row {
	var row tele.Row
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		row = append(row, menu.Data(fmt.Sprintf("Назад (%d)", offset), unique, strconv.Itoa(prev)))
	}
	if rest := count - int64(offset+limit); rest > 0 {
		row = append(row, menu.Data(fmt.Sprintf("Далее (%d)", rest), unique, strconv.Itoa(offset+limit)))
	}
	return row
}

func (a *App) showRequests(c tele.Context, offset int) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	limit := a.listLimit()
	ctx, cancel := backendCtx()
	defer cancel()
	page, err := a.api.Requests(ctx, sender.ID, limit, offset)
	if err != nil {
		log.Printf("❌ Заявки %d: %v", sender.ID, err)
		return c.Send(textBackendFailed)
	}
	if page.Count == 0 || len(page.Results) == 0 {
		return reply(c, "Заявки не найдены!")
	}
	menu := &tele.ReplyMarkup{}
	row := pagerRow(menu, cbRequestsPage, offset, limit, page.Count)
	if len(row) == 0 {
		return reply(c, requestsText(page.Results))
	}
	menu.Inline(row)
	return reply(c, requestsText(page.Results), menu)
}

// ==========================================
// ТАРИФЫ И ОПЛАТА
// ==========================================

func tariffLabel(t store.Tariff) string {
	return fmt.Sprintf("%d дней (%d₽)", t.Days, t.Amount)
}

func tariffsMarkup(tariffs []store.Tariff) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	btns := make([]tele.Btn, 0, len(tariffs))
	for _, t := range tariffs {
		btns = append(btns, menu.Data(tariffLabel(t), cbTariff, t.ID))
	}
	menu.Inline(menu.Split(2, btns)...)
	return menu
}

func (a *App) showTariffs(c tele.Context) error {
	ctx, cancel := backendCtx()
	defer cancel()
	tariffs, err := a.api.Tariffs(ctx)
	if err != nil {
		log.Printf("❌ Тарифы: %v", err)
		return reply(c, textBackendFailed)
	}
	if len(tariffs) == 0 {
		return reply(c, "Тарифы пока не добавлены")
	}
	return reply(c, "Выберите тариф:", tariffsMarkup(tariffs))
}

func (a *App) showPayment(c tele.Context, tariffID string) error {
	ctx, cancel := backendCtx()
	defer cancel()
	tariff, err := a.api.Tariff(ctx, tariffID)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return tryEdit(c, "Тариф больше не доступен")
	case err != nil:
		log.Printf("❌ Тариф %s: %v", tariffID, err)
		return tryEdit(c, textBackendFailed)
	}

	var payments string
	msg, err := a.api.Message(ctx, store.MessagePayments)
	switch {
	case err == nil:
		payments = msg.Text
	case !errors.Is(err, backend.ErrNotFound):
		log.Printf("⚠️ Текст payments: %v", err)
	}

	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("Назад", cbAddRequest),
		menu.Data("Оплатил", cbPay, tariff.ID),
	))
	text := strings.TrimSpace(payments + fmt.Sprintf("\nНеобходимо перевести %d₽", tariff.Amount))
	return tryEdit(c, text, menu, tele.ModeHTML)
}

func (a *App) createRequest(c tele.Context, tariffID string) error {
	sender := c.Sender()
	ctx, cancel := backendCtx()
	defer cancel()
	req, err := a.api.CreateRequest(ctx, sender.ID, tariffID)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return tryEdit(c, "Тариф больше не доступен")
	case err != nil:
		log.Printf("❌ Создание заявки %d: %v", sender.ID, err)
		return tryEdit(c, textBackendFailed)
	}
	log.Printf("✅ Новая заявка #%s от %d (%d₽, %d дней)", req.ID, sender.ID, req.Amount, req.Days)

	text := newRequestText(req, sender)
	for _, admin := range a.cfg.Admins {
		if _, err := a.bot.Send(tele.ChatID(admin), text, resolveMarkup(req.ID)); err != nil {
			log.Printf("⚠️ Не удалось уведомить админа %d: %v", admin, err)
		}
	}
	return tryEdit(c, "Заявка в обработке!")
}

func newRequestText(r *store.PaymentRequest, u *tele.User) string {
	return fmt.Sprintf("Пользователь оставил заявку об оплате!\n#%s\nID: %d\nНик: @%s\nИмя: %s\nСумма: %d₽\nТариф: %d дней",
		r.ID, u.ID, u.Username, fullName(u), r.Amount, r.Days)
}

func resolveMarkup(requestID string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("❌", cbDeny, requestID),
		menu.Data("✅", cbAccept, requestID),
	))
	return menu
}

// ==========================================
// РАСЧЕТ
// ==========================================

// hasSubscription is false for users the backend does not know.
func (a *App) hasSubscription(telegramID int64) (bool, error) {
	ctx, cancel := backendCtx()
	defer cancel()
	u, err := a.api.User(ctx, telegramID)
	if errors.Is(err, backend.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Active(a.now()), nil
}

func (a *App) handleWebApp(c tele.Context) error {
	msg := c.Message()
	sender := c.Sender()
	if msg == nil || msg.WebAppData == nil || sender == nil {
		return nil
	}
	ok, err := a.hasSubscription(sender.ID)
	if err != nil {
		log.Printf("❌ Проверка подписки %d: %v", sender.ID, err)
		return c.Send(textBackendFailed)
	}
	if !ok {
		return c.Send(textNotPaid, renewMarkup())
	}
	raw, err := formula.ParseWebAppPayload(msg.WebAppData.Data)
	if err != nil {
		log.Printf("⚠️ Web app данные от %d: %v", sender.ID, err)
		return c.Send(textUnexpected)
	}
	return a.performReading(c, raw)
}

func (a *App) handleText(c tele.Context) error {
	if handled, err := a.handleAdminInput(c); handled {
		return err
	}
	raw := formula.ParseManualInput(c.Text())
	if len(raw) == 0 {
		return c.Send(textUnknown)
	}
	return a.performReading(c, raw)
}

func selectionErrorText(err error) string {
	switch {
	case errors.Is(err, formula.ErrOutOfRange), errors.Is(err, formula.ErrUnknownCard):
		return "Номера картин должны быть от 1 до 49"
	case errors.Is(err, formula.ErrWrongCount):
		return "Должно быть 5 чисел"
	case errors.Is(err, formula.ErrDuplicateCard):
		return "Номера картин не должны повторяться"
	}
	return textUnexpected
}

func (a *App) performReading(c tele.Context, raw []string) error {
	sender := c.Sender()
	ctx, cancel := context.WithTimeout(context.Background(), readingTimeout)
	defer cancel()

	var (
		res    *reading.Reading
		charts *reading.Charts
	)
	err := a.limiter.run(ctx, func() error {
		var err error
		res, charts, err = a.readings.Perform(ctx, sender.ID, raw)
		return err
	})
	var selErr *formula.SelectionError
	switch {
	case errors.As(err, &selErr):
		return c.Send(selectionErrorText(selErr))
	case err != nil && res == nil:
		log.Printf("❌ Расчет для %d: %v", sender.ID, err)
		return c.Send(textUnexpected)
	case err != nil:
		log.Printf("⚠️ История для %d недоступна: %v", sender.ID, err)
	}
	log.Printf("✅ Расчет для %d: баланс %d%%, pH %g", sender.ID, res.Result.Score, formula.RoundPH(res.Result.PH))

	if err := a.sendReading(c.Recipient(), res, charts, res.Caption()); err != nil {
		log.Printf("❌ Отправка расчета %d: %v", sender.ID, err)
		return c.Send(textUnexpected)
	}
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.Data("Подробнее", cbRecs, res.Token)))
	if err := c.Send("Рекомендации", menu); err != nil {
		return err
	}

	a.forwardToDoctors(sender, res, charts)
	return nil
}

func photo(data []byte) *tele.Photo {
	return &tele.Photo{File: tele.FromReader(bytes.NewReader(data))}
}

// readingAlbum is the score chart, pH chart, bone image, tally image and
// the card table. Charts are left out when the history failed.
func (a *App) readingAlbum(res *reading.Reading, charts *reading.Charts) tele.Album {
	var album tele.Album
	if charts != nil {
		album = append(album, photo(charts.Score), photo(charts.PH))
	}
	bones := photo(res.BonePNG)
	if summary := res.Result.BoneSummary(); utf8.RuneCountInString(summary) <= maxCaption {
		bones.Caption = summary
	}
	album = append(album, bones, photo(res.TallyPNG))
	if len(a.tablePNG) > 0 {
		album = append(album, photo(a.tablePNG))
	}
	return album
}

// sendReading sends the album and the caption. A caption over the
// Telegram limit goes out as separate text messages.
func (a *App) sendReading(to tele.Recipient, res *reading.Reading, charts *reading.Charts, caption string) error {
	album := a.readingAlbum(res, charts)
	long := utf8.RuneCountInString(caption) > maxCaption
	if !long {
		album[0].(*tele.Photo).Caption = caption
	}
	if _, err := a.bot.SendAlbum(to, album); err != nil {
		return err
	}
	if !long {
		return nil
	}
	for _, part := range splitText(caption, maxMessage) {
		if _, err := a.bot.Send(to, part); err != nil {
			return err
		}
	}
	return nil
}

func doctorHeader(u *tele.User) string {
	return fmt.Sprintf("@%s\n%s\n#id%d", u.Username, fullName(u), u.ID)
}

func (a *App) forwardToDoctors(u *tele.User, res *reading.Reading, charts *reading.Charts) {
	caption := doctorHeader(u) + "\n\n" + res.Caption()
	for _, doc := range a.cfg.Doctors {
		to := tele.ChatID(doc)
		err := sendWithRetry(2, time.Second, func() error {
			return a.sendReading(to, res, charts, caption)
		})
		if err != nil {
			log.Printf("⚠️ Не удалось переслать расчет врачу %d: %v", doc, err)
		}
	}
}

func (a *App) showRecommendations(c tele.Context, token string) error {
	text, err := a.readings.Recommendations(token)
	if errors.Is(err, reading.ErrTokenExpired) {
		return c.Respond(&tele.CallbackResponse{Text: "Рекомендации устарели, пройдите тест еще раз", ShowAlert: true})
	}
	if err != nil {
		log.Printf("❌ Рекомендации: %v", err)
		return c.Send(textUnexpected)
	}
	parts := splitText(text, maxMessage)
	if err := tryEdit(c, parts[0]); err != nil {
		return err
	}
	for _, p := range parts[1:] {
		if err := c.Send(p); err != nil {
			return err
		}
	}
	return nil
}

// ==========================================
// CALLBACKS
// ==========================================

func (a *App) handleCallback(c tele.Context) error {
	cb := c.Callback()
	sender := c.Sender()
	if cb == nil || sender == nil {
		return nil
	}
	defer func() { _ = c.Respond() }()

	unique, payload := parseCallback(cb.Data)
	switch unique {
	case cbHome:
		return c.Delete()
	case cbAddRequest:
		return a.showTariffs(c)
	case cbTariff:
		return a.showPayment(c, payload)
	case cbPay:
		return a.createRequest(c, payload)
	case cbRecs:
		return a.showRecommendations(c, payload)
	case cbRequestsPage:
		return a.showRequests(c, atoiOrZero(payload))
	}

	if !a.cfg.IsAdmin(sender.ID) {
		return nil
	}
	return a.handleAdminCallback(c, unique, payload)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
