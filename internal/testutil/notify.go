package testutil

import (
	"context"
	"sync"
	"time"
)

// Sent — одно записанное уведомление.
type Sent struct {
	ChatID int64
	Text   string
}

// Recorder запоминает уведомления. Подходит и как recommendations.Notifier,
// и как notify.Sender.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent

	// Err, если задан, возвращается из Send.
	Err error
}

// Notify записывает уведомление.
func (r *Recorder) Notify(chatID int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{ChatID: chatID, Text: text})
}

// Send записывает сообщение и возвращает Err.
func (r *Recorder) Send(_ context.Context, chatID int64, text string) error {
	r.Notify(chatID, text)
	return r.Err
}

// Messages возвращает копию записанного.
func (r *Recorder) Messages() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// To возвращает тексты, отправленные в chatID.
func (r *Recorder) To(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

// RevealRecorder — recommendations.RevealScheduler, который только запоминает вызовы.
type RevealRecorder struct {
	mu        sync.Mutex
	scheduled map[int64]time.Time
}

func (r *RevealRecorder) ScheduleReveal(id int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduled == nil {
		r.scheduled = make(map[int64]time.Time)
	}
	r.scheduled[id] = at
}

func (r *RevealRecorder) CancelReveal(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scheduled, id)
}

// At возвращает запланированный момент раскрытия.
func (r *RevealRecorder) At(id int64) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.scheduled[id]
	return at, ok
}
