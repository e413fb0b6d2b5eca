package temporal

import "sort"

// Query находит индексы prev/current/next в отсортированном срезе событий.
// Набор реализаций закрыт: Point, Interval и StateSpan.
// Если подходящего события нет, методы возвращают -1.
type Query[T any] interface {
	prevIndex(items []T, key func(T) float64, at float64) int
	currentIndex(items []T, key func(T) float64, at float64) int
	nextIndex(items []T, key func(T) float64, at float64) int
}

// Point считает события мгновенными.
//
//	prev:    последнее событие со временем <= at
//	current: событие со временем == at
//	next:    первое событие со временем >= at
type Point[T any] struct{}

func (Point[T]) prevIndex(items []T, key func(T) float64, at float64) int {
	return firstAfter(items, key, at) - 1
}

func (Point[T]) currentIndex(items []T, key func(T) float64, at float64) int {
	i := firstAtOrAfter(items, key, at)
	if i < len(items) && key(items[i]) == at {
		return i
	}
	return -1
}

func (Point[T]) nextIndex(items []T, key func(T) float64, at float64) int {
	i := firstAtOrAfter(items, key, at)
	if i < len(items) {
		return i
	}
	return -1
}

// Interval считает события замкнутыми отрезками [key, End].
// На общей границе соседние отрезки оба считаются текущими.
//
//	prev:    событие с самым поздним концом строго до at
//	current: первое событие с start <= at <= end
//	next:    событие с самым ранним началом строго после at
type Interval[T any] struct {
	End func(T) float64
}

func (q Interval[T]) prevIndex(items []T, _ func(T) float64, at float64) int {
	best := -1
	for i, v := range items {
		end := q.End(v)
		if end < at && (best < 0 || end > q.End(items[best])) {
			best = i
		}
	}
	return best
}

func (q Interval[T]) currentIndex(items []T, key func(T) float64, at float64) int {
	for i, v := range items {
		if key(v) <= at && at <= q.End(v) {
			return i
		}
	}
	return -1
}

func (Interval[T]) nextIndex(items []T, key func(T) float64, at float64) int {
	i := firstAfter(items, key, at)
	if i < len(items) {
		return i
	}
	return -1
}

// StateSpan считает событие состоянием, которое действует с его начала
// до начала следующего.
//
//	prev:    событие перед текущим
//	current: последнее событие с start <= at
//	next:    первое событие с start > at
type StateSpan[T any] struct{}

func (StateSpan[T]) prevIndex(items []T, key func(T) float64, at float64) int {
	return firstAfter(items, key, at) - 2
}

func (StateSpan[T]) currentIndex(items []T, key func(T) float64, at float64) int {
	return firstAfter(items, key, at) - 1
}

func (StateSpan[T]) nextIndex(items []T, key func(T) float64, at float64) int {
	i := firstAfter(items, key, at)
	if i < len(items) {
		return i
	}
	return -1
}

func firstAfter[T any](items []T, key func(T) float64, at float64) int {
	return sort.Search(len(items), func(i int) bool { return key(items[i]) > at })
}

func firstAtOrAfter[T any](items []T, key func(T) float64, at float64) int {
	return sort.Search(len(items), func(i int) bool { return key(items[i]) >= at })
}
