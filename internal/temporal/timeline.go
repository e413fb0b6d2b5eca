// Package temporal хранит упорядоченные по времени события и отвечает на
// вопросы "что было до", "что идет сейчас" и "что будет дальше".
//
// Timeline держит события отсортированными по ключу. Смысл соседей в
// конкретный момент задает Query: Point для мгновенных событий, Interval для
// событий с началом и концом, StateSpan для состояний, которые действуют до
// следующего события.
package temporal

import (
	"errors"
	"iter"
	"sort"
)

// ErrNotFound возвращается, если в указанный момент нет текущего события.
var ErrNotFound = errors.New("no event at the given time")

// Timeline - изменяемая, всегда отсортированная последовательность событий.
// Без внешней синхронизации использовать из нескольких горутин нельзя.
type Timeline[T any] struct {
	items []T
	key   func(T) float64
	query Query[T]
}

// New создает ленту с ключом key и семантикой запросов q.
// Переданные элементы копируются и стабильно сортируются.
func New[T any](key func(T) float64, q Query[T], items ...T) *Timeline[T] {
	tl := &Timeline[T]{
		items: append([]T(nil), items...),
		key:   key,
		query: q,
	}
	tl.Sort()
	return tl
}

// NewPoint создает ленту мгновенных событий.
func NewPoint[T any](key func(T) float64, items ...T) *Timeline[T] {
	return New(key, Point[T]{}, items...)
}

// NewInterval создает ленту событий на отрезках [start, end].
func NewInterval[T any](start, end func(T) float64, items ...T) *Timeline[T] {
	return New(start, Interval[T]{End: end}, items...)
}

// NewStateSpan создает ленту состояний, действующих до начала следующего.
func NewStateSpan[T any](key func(T) float64, items ...T) *Timeline[T] {
	return New(key, StateSpan[T]{}, items...)
}

// Len возвращает число событий.
func (tl *Timeline[T]) Len() int {
	return len(tl.items)
}

// At возвращает i-е событие по времени.
func (tl *Timeline[T]) At(i int) T {
	return tl.items[i]
}

// Items возвращает копию событий в порядке времени.
func (tl *Timeline[T]) Items() []T {
	return append([]T(nil), tl.items...)
}

// All перебирает события в порядке времени.
func (tl *Timeline[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range tl.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Insert добавляет v после всех событий с ключом не больше ключа v.
func (tl *Timeline[T]) Insert(v T) {
	k := tl.key(v)
	pos := sort.Search(len(tl.items), func(i int) bool {
		return tl.key(tl.items[i]) > k
	})

	var zero T
	tl.items = append(tl.items, zero)
	copy(tl.items[pos+1:], tl.items[pos:])
	tl.items[pos] = v
}

// Sort восстанавливает порядок после правки ключей на месте.
func (tl *Timeline[T]) Sort() {
	sort.SliceStable(tl.items, func(i, j int) bool {
		return tl.key(tl.items[i]) < tl.key(tl.items[j])
	})
}

// RemoveAt удаляет событие, текущее в указанный момент.
func (tl *Timeline[T]) RemoveAt(at float64) (T, error) {
	i := tl.query.currentIndex(tl.items, tl.key, at)
	if i < 0 {
		var zero T
		return zero, ErrNotFound
	}
	return tl.RemoveIndex(i)
}

// RemoveIndex удаляет i-е событие по времени.
func (tl *Timeline[T]) RemoveIndex(i int) (T, error) {
	var zero T
	if i < 0 || i >= len(tl.items) {
		return zero, ErrNotFound
	}
	v := tl.items[i]
	copy(tl.items[i:], tl.items[i+1:])
	tl.items[len(tl.items)-1] = zero
	tl.items = tl.items[:len(tl.items)-1]
	return v, nil
}

// Prev возвращает событие перед указанным моментом.
func (tl *Timeline[T]) Prev(at float64) (T, bool) {
	return tl.pick(tl.query.prevIndex(tl.items, tl.key, at))
}

// Current возвращает событие, действующее в указанный момент.
func (tl *Timeline[T]) Current(at float64) (T, bool) {
	return tl.pick(tl.query.currentIndex(tl.items, tl.key, at))
}

// Next возвращает событие после указанного момента.
func (tl *Timeline[T]) Next(at float64) (T, bool) {
	return tl.pick(tl.query.nextIndex(tl.items, tl.key, at))
}

// PrevN возвращает до n событий, заканчивая Prev(at), по возрастанию.
func (tl *Timeline[T]) PrevN(at float64, n int) []T {
	i := tl.query.prevIndex(tl.items, tl.key, at)
	if i < 0 || n < 1 {
		return []T{}
	}
	return append([]T(nil), tl.items[max(i-n+1, 0):i+1]...)
}

// NextN возвращает до n событий, начиная с Next(at), по возрастанию.
func (tl *Timeline[T]) NextN(at float64, n int) []T {
	i := tl.query.nextIndex(tl.items, tl.key, at)
	if i < 0 || n < 1 {
		return []T{}
	}
	return append([]T(nil), tl.items[i:min(i+n, len(tl.items))]...)
}

func (tl *Timeline[T]) pick(i int) (T, bool) {
	if i < 0 {
		var zero T
		return zero, false
	}
	return tl.items[i], true
}
