package points

import "sort"

// Levels — упорядоченная таблица порогов.
// Уровень всегда пересчитывается из баланса, а не увеличивается,
// поэтому отрицательные начисления и повторы не ломают его.
type Levels struct {
	thresholds []Threshold
}

// NewLevels копирует и сортирует пороги по возрастанию.
func NewLevels(thresholds []Threshold) *Levels {
	ts := make([]Threshold, len(thresholds))
	copy(ts, thresholds)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Value < ts[j].Value })
	return &Levels{thresholds: ts}
}

// Level — количество порогов, значение которых <= balance.
func (l *Levels) Level(balance int64) int {
	n := 0
	for _, t := range l.thresholds {
		if t.Value > balance {
			break
		}
		n++
	}
	return n
}

// Crossed возвращает пороги t, для которых oldBalance < t.Value <= newBalance.
// Для списаний результат пустой.
func (l *Levels) Crossed(oldBalance, newBalance int64) []Threshold {
	if newBalance <= oldBalance {
		return nil
	}
	var out []Threshold
	for _, t := range l.thresholds {
		if t.Value > oldBalance && t.Value <= newBalance {
			out = append(out, t)
		}
	}
	return out
}

// Next — ближайший ещё не достигнутый порог.
func (l *Levels) Next(balance int64) (Threshold, bool) {
	for _, t := range l.thresholds {
		if t.Value > balance {
			return t, true
		}
	}
	return Threshold{}, false
}

// All возвращает копию таблицы порогов.
func (l *Levels) All() []Threshold {
	out := make([]Threshold, len(l.thresholds))
	copy(out, l.thresholds)
	return out
}
