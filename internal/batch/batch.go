// Package batch разбивает большие списки идентификаторов на группы
// ограниченного размера и собирает частичные результаты.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrAbsent помечает идентификатор, который провайдер не вернул,
// хотя его группа была прочитана успешно.
var ErrAbsent = errors.New("batch: id not returned by provider")

// Result описывает исход чтения одного идентификатора: значение либо
// причина его отсутствия. Отсутствие всегда типизировано, чтобы вызывающий
// не перепутал «не вернулось» с «не запрашивалось».
type Result[T any] struct {
	Value T
	Err   error
}

// Missing сообщает, что значение для идентификатора получить не удалось.
func (r Result[T]) Missing() bool {
	return r.Err != nil
}

// ChunkError описывает одну группу, завершившуюся ошибкой.
type ChunkError struct {
	Index int
	IDs   []string
	Err   error
}

// PartialError сообщает, что часть групп завершилась ошибкой,
// но остальные результаты пригодны для использования.
type PartialError struct {
	Failed []ChunkError
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("batch: %d chunk(s) failed", len(e.Failed))
}

// FetchFunc загружает значения для одной группы идентификаторов.
// Возвращённое отображение может не содержать часть запрошенных id.
type FetchFunc[T any] func(ctx context.Context, ids []string) (map[string]T, error)

// Read разбивает ids на последовательные группы не больше pageSize,
// загружает все группы конкурентно и объединяет результаты. Ошибка одной
// группы не прерывает остальные: её идентификаторы получают Result с ошибкой,
// а итог сопровождается *PartialError. Каждый запрошенный id присутствует
// в результате ровно один раз.
func Read[T any](ctx context.Context, ids []string, pageSize int, fetch FetchFunc[T]) (map[string]Result[T], error) {
	results := make(map[string]Result[T], len(ids))
	if len(ids) == 0 {
		return results, nil
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("batch: invalid page size %d", pageSize)
	}

	chunks := split(ids, pageSize)

	var (
		mu     sync.Mutex
		failed []ChunkError
	)

	// Конкурентность ограничивает только пул шлюза внутри fetch,
	// дополнительного лимита здесь нет.
	var g errgroup.Group
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			values, err := fetch(ctx, chunk)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failed = append(failed, ChunkError{Index: i, IDs: chunk, Err: err})
				for _, id := range chunk {
					results[id] = Result[T]{Err: err}
				}
				return nil
			}

			for _, id := range chunk {
				if v, ok := values[id]; ok {
					results[id] = Result[T]{Value: v}
				} else {
					results[id] = Result[T]{Err: ErrAbsent}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return results, &PartialError{Failed: failed}
	}

	return results, nil
}

func split(ids []string, pageSize int) [][]string {
	chunks := make([][]string, 0, (len(ids)+pageSize-1)/pageSize)
	for start := 0; start < len(ids); start += pageSize {
		end := min(start+pageSize, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
