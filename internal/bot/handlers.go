package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"evcharge/internal/auth"
	"evcharge/internal/billing"
	"evcharge/internal/classify"
	"evcharge/internal/models"
	"evcharge/internal/ocr"
	"evcharge/internal/phototime"
	"evcharge/internal/reading"
	"evcharge/internal/session"
)

const helpText = `I track EV charging sessions from meter photos.

/new — start a charging session
/finish — mark charging as finished
/status — show the current session
/report [YYYY-MM] — monthly report
/tariff [YYYY-MM] <price> — set the tariff (owner only)
/history — recent sessions

Send meter photos as they are taken; I read the numbers and ask you to confirm. You can also type a reading as plain text.`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, role auth.Role) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, helpText)
	case "new":
		b.cmdNew(ctx, chatID, userID)
	case "finish":
		b.cmdFinish(ctx, chatID, userID)
	case "status":
		b.cmdStatus(ctx, chatID, userID)
	case "report":
		b.cmdReport(ctx, chatID, userID, msg.CommandArguments())
	case "tariff":
		if role != auth.RoleOwner {
			b.reply(chatID, "Only the owner can manage tariffs.")
			return
		}
		b.cmdTariff(ctx, chatID, msg.CommandArguments())
	case "history":
		b.cmdHistory(ctx, chatID, userID)
	default:
		b.reply(chatID, "Unknown command. Send /help for the list.")
	}
}

func (b *Bot) cmdNew(ctx context.Context, chatID, userID int64) {
	s, err := b.sessions.Start(ctx, userID)
	if errors.Is(err, session.ErrSessionOpen) {
		markup := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Continue it", "new:continue"),
				tgbotapi.NewInlineKeyboardButtonData("Start fresh", "new:force"),
			),
		)
		reply := tgbotapi.NewMessage(chatID, fmt.Sprintf(
			"Session #%d is still open (%s). Continue it or start a fresh one?",
			s.ID, s.State))
		reply.ReplyMarkup = markup
		b.send(reply)
		return
	}
	if err != nil {
		b.fail(chatID, "Could not start a session.", err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Session #%d started. Send a photo of the meter before charging.", s.ID))
}

func (b *Bot) cmdFinish(ctx context.Context, chatID, userID int64) {
	active, err := b.sessions.Active(ctx, userID)
	if errors.Is(err, session.ErrNoOpenSession) {
		b.reply(chatID, "No open session. Start one with /new.")
		return
	}
	if err != nil {
		b.fail(chatID, "Could not look up the session.", err)
		return
	}

	if _, err := b.sessions.Finish(ctx, active.ID); err != nil {
		b.fail(chatID, "Could not finish the session.", err)
		return
	}
	b.reply(chatID, "Charging finished. Send a photo of the meter after charging.")
}

func (b *Bot) cmdStatus(ctx context.Context, chatID, userID int64) {
	active, err := b.sessions.Active(ctx, userID)
	if errors.Is(err, session.ErrNoOpenSession) {
		b.reply(chatID, "No open session. Start one with /new.")
		return
	}
	if err != nil {
		b.fail(chatID, "Could not look up the session.", err)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Session #%d</b> — %s\n", active.ID, active.State)
	fmt.Fprintf(&sb, "Started: %s\n", active.StartedAt.Format("02.01.2006 15:04"))
	if active.MeterBefore != nil {
		fmt.Fprintf(&sb, "Meter before: %s kWh\n", reading.FormatReading(*active.MeterBefore))
	}
	if active.MeterAfter != nil {
		fmt.Fprintf(&sb, "Meter after: %s kWh\n", reading.FormatReading(*active.MeterAfter))
	}
	if active.KwhDisplay != nil {
		fmt.Fprintf(&sb, "Station display: %s kWh\n", reading.FormatReading(*active.KwhDisplay))
	}
	if active.KwhCalculated != nil {
		fmt.Fprintf(&sb, "Consumed: %s kWh\n", reading.FormatReading(*active.KwhCalculated))
	}
	fmt.Fprintf(&sb, "Photos: %d\n", len(active.Photos))
	if tariff, err := b.tariffs.Current(ctx); err == nil {
		fmt.Fprintf(&sb, "Current tariff: %.2f UAH/kWh", tariff.PriceUAHPerKwh)
	} else {
		sb.WriteString("Current tariff: not set")
	}
	b.replyHTML(chatID, sb.String())
}

func (b *Bot) cmdReport(ctx context.Context, chatID, userID int64, args string) {
	yearMonth := strings.TrimSpace(args)
	if yearMonth == "" {
		yearMonth = billing.CurrentYearMonth()
	}
	if err := billing.ValidateYearMonth(yearMonth); err != nil {
		b.reply(chatID, "Use /report YYYY-MM, for example /report 2026-08.")
		return
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Summary", "rep:summary:"+yearMonth),
			tgbotapi.NewInlineKeyboardButtonData("CSV", "rep:csv:"+yearMonth),
			tgbotapi.NewInlineKeyboardButtonData("Excel", "rep:xlsx:"+yearMonth),
		),
	)
	reply := tgbotapi.NewMessage(chatID, fmt.Sprintf("Report for %s — pick a format:", yearMonth))
	reply.ReplyMarkup = markup
	b.send(reply)
}

func (b *Bot) cmdTariff(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		b.listTariffs(ctx, chatID)
	case 1:
		b.setTariff(ctx, chatID, billing.CurrentYearMonth(), fields[0])
	default:
		b.setTariff(ctx, chatID, fields[0], fields[1])
	}
}

func (b *Bot) listTariffs(ctx context.Context, chatID int64) {
	tariffs, err := b.tariffs.All(ctx)
	if err != nil {
		b.fail(chatID, "Could not load tariffs.", err)
		return
	}
	if len(tariffs) == 0 {
		b.reply(chatID, "No tariffs yet. Set one with /tariff <price>.")
		return
	}
	var sb strings.Builder
	sb.WriteString("<b>Tariffs</b>\n")
	for _, t := range tariffs {
		fmt.Fprintf(&sb, "%s — %.2f UAH/kWh\n", t.YearMonth, t.PriceUAHPerKwh)
	}
	b.replyHTML(chatID, sb.String())
}

func (b *Bot) setTariff(ctx context.Context, chatID int64, yearMonth, rawPrice string) {
	price, err := parseValue(rawPrice)
	if err != nil {
		b.reply(chatID, "The price must be a number, for example /tariff 7.50.")
		return
	}
	tariff, err := b.tariffs.Set(ctx, yearMonth, price, "set by owner")
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrBadYearMonth):
			b.reply(chatID, "The month must look like YYYY-MM, for example 2026-08.")
		case errors.Is(err, billing.ErrBadPrice):
			b.reply(chatID, "The price must be above 0 and at most 100 UAH/kWh.")
		default:
			b.fail(chatID, "Could not save the tariff.", err)
		}
		return
	}
	b.reply(chatID, fmt.Sprintf("Tariff for %s set to %.2f UAH/kWh.", tariff.YearMonth, tariff.PriceUAHPerKwh))
}

func (b *Bot) cmdHistory(ctx context.Context, chatID, userID int64) {
	sessions, err := b.sessions.History(ctx, userID, 5)
	if err != nil {
		b.fail(chatID, "Could not load history.", err)
		return
	}
	if len(sessions) == 0 {
		b.reply(chatID, "No sessions yet. Start one with /new.")
		return
	}
	var sb strings.Builder
	sb.WriteString("<b>Recent sessions</b>\n")
	for _, s := range sessions {
		fmt.Fprintf(&sb, "#%d %s — %s", s.ID, s.StartedAt.Format("02.01 15:04"), s.State)
		if s.KwhAgreed != nil && s.AmountUAH != nil {
			fmt.Fprintf(&sb, ", %.2f kWh, %.2f UAH", *s.KwhAgreed, *s.AmountUAH)
		}
		sb.WriteString("\n")
	}
	b.replyHTML(chatID, sb.String())
}

// handlePhoto handles compressed Telegram photos: largest size wins.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	best := msg.Photo[len(msg.Photo)-1]
	b.ingestImage(ctx, msg, best.FileID, "")
}

// handleDocument handles photos sent as files, which keep their EXIF data
// and original filename.
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	doc := msg.Document
	if !strings.HasPrefix(doc.MimeType, "image/") {
		b.reply(msg.Chat.ID, "I can only read images.")
		return
	}
	b.ingestImage(ctx, msg, doc.FileID, doc.FileName)
}

func (b *Bot) ingestImage(ctx context.Context, msg *tgbotapi.Message, fileID, fileName string) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	active, err := b.sessions.Active(ctx, userID)
	if errors.Is(err, session.ErrNoOpenSession) {
		b.reply(chatID, "No open session for this photo. Start one with /new first.")
		return
	}
	if err != nil {
		b.fail(chatID, "Could not look up the session.", err)
		return
	}

	img, filePath, err := b.download(fileID)
	if err != nil {
		b.fail(chatID, "Could not download the photo.", err)
		return
	}
	if fileName == "" {
		fileName = filePath
	}

	ts := phototime.Extract(img, fileName)
	var takenAt *time.Time
	if ts.OK {
		t := ts.Timestamp
		takenAt = &t
	}

	slot := classify.Photo(active, takenAt)
	hint := ocr.HintNone
	rctx := reading.Context{ExpectedSlot: slot}
	switch slot {
	case models.SlotBefore, models.SlotAfter:
		hint = ocr.HintMeter
		if slot == models.SlotAfter {
			rctx.PreviousReading = active.MeterBefore
		}
	case models.SlotDisplay:
		hint = ocr.HintDisplay
	}

	result := b.recognizer.Recognize(ctx, img, hint, rctx)

	photo := models.Photo{
		Slot:            slot,
		FileID:          fileID,
		FileName:        fileName,
		TakenAt:         takenAt,
		TimestampSource: ts.Source,
		Recognition:     &result,
	}
	if _, err := b.sessions.AttachPhoto(ctx, active.ID, photo); err != nil {
		b.fail(chatID, "Could not save the photo.", err)
		return
	}

	b.logger.Info("photo ingested",
		zap.Int64("session_id", active.ID),
		zap.String("slot", string(slot)),
		zap.Bool("recognized", result.Success),
		zap.Int("confidence", result.Confidence),
	)

	if slot == models.SlotExtra {
		b.reply(chatID, "Photo saved with the session.")
		return
	}
	if !result.Success || result.Reading == nil {
		b.reply(chatID, fmt.Sprintf(
			"Saved the %s photo, but I could not read the number. Please type it.", slotLabel(slot)))
		return
	}

	value := reading.FormatReading(*result.Reading)
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", fmt.Sprintf("cfm:%d:%s:%s", active.ID, slot, value)),
			tgbotapi.NewInlineKeyboardButtonData("Wrong", fmt.Sprintf("edt:%d:%s", active.ID, slot)),
		),
	)
	reply := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"I read %s kWh on the %s photo (confidence %d%%). Is that right?",
		value, slotLabel(slot), result.Confidence))
	reply.ReplyMarkup = markup
	b.send(reply)
}

// handleText treats plain numbers as manually entered readings.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	value, err := parseValue(msg.Text)
	if err != nil {
		b.reply(chatID, "Send a meter photo, a numeric reading, or /help.")
		return
	}

	active, err := b.sessions.Active(ctx, userID)
	if errors.Is(err, session.ErrNoOpenSession) {
		b.reply(chatID, "No open session. Start one with /new first.")
		return
	}
	if err != nil {
		b.fail(chatID, "Could not look up the session.", err)
		return
	}

	slot, err := b.sessions.ClassifyManualValue(active, value)
	if errors.Is(err, session.ErrAmbiguousReading) {
		formatted := reading.FormatReading(value)
		markup := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Meter after", fmt.Sprintf("amb:%d:after:%s", active.ID, formatted)),
				tgbotapi.NewInlineKeyboardButtonData("Station display", fmt.Sprintf("amb:%d:display:%s", active.ID, formatted)),
			),
		)
		reply := tgbotapi.NewMessage(chatID, fmt.Sprintf("Is %s the meter reading after charging, or the station display?", formatted))
		reply.ReplyMarkup = markup
		b.send(reply)
		return
	}
	if err != nil {
		b.fail(chatID, "Could not classify the number.", err)
		return
	}

	b.recordAndAdvance(ctx, chatID, active.ID, slot, value, session.SourceManual)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.logger.Warn("failed to ack callback", zap.Error(err))
		}
	}()

	chatID := cq.Message.Chat.ID
	userID := cq.From.ID
	if b.authz.RoleOf(userID) == auth.RoleUnknown {
		return
	}

	parts := strings.Split(cq.Data, ":")
	switch parts[0] {
	case "new":
		b.callbackNew(ctx, chatID, userID, parts)
	case "cfm":
		b.callbackConfirm(ctx, chatID, parts)
	case "edt":
		if len(parts) == 3 {
			b.reply(chatID, fmt.Sprintf("Type the correct %s reading.", slotLabel(models.Slot(parts[2]))))
		}
	case "amb":
		b.callbackAmbiguous(ctx, chatID, parts)
	case "rep":
		b.callbackReport(ctx, chatID, userID, parts)
	}
}

func (b *Bot) callbackNew(ctx context.Context, chatID, userID int64, parts []string) {
	if len(parts) != 2 {
		return
	}
	switch parts[1] {
	case "continue":
		b.cmdStatus(ctx, chatID, userID)
	case "force":
		s, err := b.sessions.ForceStart(ctx, userID)
		if err != nil {
			b.fail(chatID, "Could not start a fresh session.", err)
			return
		}
		b.reply(chatID, fmt.Sprintf("Session #%d started. Send a photo of the meter before charging.", s.ID))
	}
}

func (b *Bot) callbackConfirm(ctx context.Context, chatID int64, parts []string) {
	if len(parts) != 4 {
		return
	}
	sessionID, err1 := strconv.ParseInt(parts[1], 10, 64)
	value, err2 := parseValue(parts[3])
	if err1 != nil || err2 != nil {
		return
	}
	b.recordAndAdvance(ctx, chatID, sessionID, models.Slot(parts[2]), value, session.SourceOCR)
}

func (b *Bot) callbackAmbiguous(ctx context.Context, chatID int64, parts []string) {
	if len(parts) != 4 {
		return
	}
	sessionID, err1 := strconv.ParseInt(parts[1], 10, 64)
	value, err2 := parseValue(parts[3])
	if err1 != nil || err2 != nil {
		return
	}
	b.recordAndAdvance(ctx, chatID, sessionID, models.Slot(parts[2]), value, session.SourceManual)
}

func (b *Bot) callbackReport(ctx context.Context, chatID, userID int64, parts []string) {
	if len(parts) != 3 {
		return
	}
	format, yearMonth := parts[1], parts[2]
	switch format {
	case "summary":
		text, err := b.reports.Summary(ctx, userID, yearMonth)
		if err != nil {
			b.fail(chatID, "Could not build the report.", err)
			return
		}
		b.replyHTML(chatID, text)
	case "csv":
		body, err := b.reports.CSV(ctx, userID, yearMonth)
		if err != nil {
			b.fail(chatID, "Could not build the report.", err)
			return
		}
		b.sendDocument(chatID, fmt.Sprintf("charging-%s.csv", yearMonth), body)
	case "xlsx":
		body, err := b.reports.XLSX(ctx, userID, yearMonth)
		if err != nil {
			b.fail(chatID, "Could not build the report.", err)
			return
		}
		b.sendDocument(chatID, fmt.Sprintf("charging-%s.xlsx", yearMonth), body)
	}
}

// recordAndAdvance stores the reading and, after an after-reading, tries to
// complete the session right away.
func (b *Bot) recordAndAdvance(ctx context.Context, chatID, sessionID int64, slot models.Slot, value float64, source session.ReadingSource) {
	s, err := b.sessions.RecordReading(ctx, sessionID, slot, value, source)
	if errors.Is(err, session.ErrAlreadyCompleted) {
		b.reply(chatID, "That session is already completed.")
		return
	}
	if err != nil {
		b.fail(chatID, "Could not save the reading.", err)
		return
	}

	switch slot {
	case models.SlotBefore:
		b.reply(chatID, fmt.Sprintf("Meter before: %s kWh. Charge away — /finish when done.", reading.FormatReading(value)))
	case models.SlotDisplay:
		b.reply(chatID, fmt.Sprintf("Station display: %s kWh noted.", reading.FormatReading(value)))
	case models.SlotAfter:
		b.tryComplete(ctx, chatID, s)
	}
}

func (b *Bot) tryComplete(ctx context.Context, chatID int64, s *models.ChargingSession) {
	completed, err := b.sessions.Complete(ctx, s.ID)
	switch {
	case errors.Is(err, session.ErrReadingsMissing):
		b.reply(chatID, "Meter after saved. I still need the before reading to bill this session.")
		return
	case errors.Is(err, session.ErrNoTariff):
		b.reply(chatID, fmt.Sprintf(
			"Meter after saved, %s kWh consumed. No tariff for this month yet — the owner can set one with /tariff <price>, then finish with another after reading or /finish.",
			reading.FormatReading(optFloat(s.KwhCalculated))))
		return
	case err != nil:
		b.fail(chatID, "Could not complete the session.", err)
		return
	}

	b.replyHTML(chatID, fmt.Sprintf(
		"<b>Session #%d completed</b>\nConsumed: %.2f kWh\nTariff: %.2f UAH/kWh\nAmount: <b>%.2f UAH</b>",
		completed.ID, optFloat(completed.KwhAgreed), optFloat(completed.TariffValue), optFloat(completed.AmountUAH)))
}

func (b *Bot) fail(chatID int64, text string, err error) {
	b.logger.Error(text, zap.Error(err))
	b.reply(chatID, text+" Please try again.")
}

func slotLabel(slot models.Slot) string {
	switch slot {
	case models.SlotBefore:
		return "meter-before"
	case models.SlotAfter:
		return "meter-after"
	case models.SlotDisplay:
		return "station display"
	default:
		return "extra"
	}
}

func parseValue(raw string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("not a reading: %q", raw)
	}
	return v, nil
}

func optFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
