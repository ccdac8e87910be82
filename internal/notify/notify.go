// Package notify — уведомления пользователям без ожидания доставки.
//
// Notify кладёт сообщение в буферизованную очередь и сразу возвращается.
// Один воркер отправляет сообщения с ограничением скорости, чтобы не упереться
// в лимиты Telegram. Если очередь заполнена, сообщение теряется с записью в лог.
package notify

import (
	"context"
	"sync/atomic"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Sender — то, что доставляет сообщение.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Message — одно уведомление.
type Message struct {
	ChatID int64
	Text   string
}

// Dispatcher — очередь уведомлений.
type Dispatcher struct {
	sender  Sender
	queue   chan Message
	limiter *rate.Limiter
	dropped atomic.Int64
	sent    atomic.Int64
}

// NewDispatcher создаёт очередь на buffer сообщений с отправкой не чаще perSecond в секунду.
func NewDispatcher(sender Sender, buffer int, perSecond float64) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan Message, buffer),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Notify ставит сообщение в очередь. Никогда не блокируется.
func (d *Dispatcher) Notify(chatID int64, text string) {
	select {
	case d.queue <- Message{ChatID: chatID, Text: text}:
	default:
		d.dropped.Add(1)
		log.WithField("chat_id", chatID).Warn("Очередь уведомлений переполнена, сообщение отброшено")
	}
}

// Run отправляет сообщения до отмены ctx.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info("Воркер уведомлений запущен")
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				log.WithField("pending", n).Warn("Воркер уведомлений остановлен, в очереди остались сообщения")
			}
			return nil
		case msg := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := d.sender.Send(ctx, msg.ChatID, msg.Text); err != nil {
				log.WithError(err).WithField("chat_id", msg.ChatID).Warn("Не удалось доставить уведомление")
				continue
			}
			d.sent.Add(1)
		}
	}
}

// Dropped — сколько сообщений потеряно из-за переполнения.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Sent — сколько сообщений доставлено.
func (d *Dispatcher) Sent() int64 { return d.sent.Load() }

// BotSender отправляет уведомления через Telegram.
type BotSender struct {
	bot *telego.Bot
}

// NewBotSender создаёт отправителя через бота.
func NewBotSender(bot *telego.Bot) *BotSender {
	return &BotSender{bot: bot}
}

// Send отправляет текст в чат.
func (s *BotSender) Send(ctx context.Context, chatID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	return err
}
