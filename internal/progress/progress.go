// Package progress определяет события хода синхронизации и их доставку
// вызывающей стороне в виде server-sent events.
package progress

import (
	"encoding/json"
	"net/http"
	"sync"
)

// Sink — односторонний упорядоченный канал событий одного запуска
// синхронизации. Complete и Error терминальны: после любого из них
// дальнейшие события не доставляются.
type Sink interface {
	Progress(step string, percent int, link string)
	Complete(ok bool, quoteLink, pdfLink, runID string)
	Error(message string)
}

// ProgressEvent описывает промежуточный шаг синхронизации.
type ProgressEvent struct {
	Step    string `json:"step"`
	Percent int    `json:"percent"`
	Link    string `json:"link,omitempty"`
}

// CompleteEvent описывает успешное завершение запуска.
type CompleteEvent struct {
	OK        bool   `json:"ok"`
	QuoteLink string `json:"quote_link,omitempty"`
	PDFLink   string `json:"pdf_link,omitempty"`
	RunID     string `json:"run_id"`
}

// ErrorEvent описывает терминальную ошибку запуска.
type ErrorEvent struct {
	Message string `json:"message"`
}

// SSESink пишет события в HTTP-ответ в формате text/event-stream,
// сбрасывая буфер после каждого события. Буферизации и повторной доставки
// нет: отключившийся клиент теряет дальнейшие события.
type SSESink struct {
	mu          sync.Mutex
	w           http.ResponseWriter
	flusher     http.Flusher
	lastPercent int
	terminated  bool
}

// NewSSESink создаёт sink поверх HTTP-ответа. Возвращает false,
// если транспорт не поддерживает потоковую отдачу.
func NewSSESink(w http.ResponseWriter) (*SSESink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &SSESink{w: w, flusher: flusher}, true
}

// Progress отправляет промежуточное событие. Процент внутри одного запуска
// не убывает: меньшее значение поднимается до последнего отправленного.
func (s *SSESink) Progress(step string, percent int, link string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return
	}

	if percent < s.lastPercent {
		percent = s.lastPercent
	}
	s.lastPercent = percent

	s.write("progress", ProgressEvent{Step: step, Percent: percent, Link: link})
}

// Complete отправляет терминальное событие успешного завершения.
func (s *SSESink) Complete(ok bool, quoteLink, pdfLink, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return
	}
	s.terminated = true

	s.write("complete", CompleteEvent{OK: ok, QuoteLink: quoteLink, PDFLink: pdfLink, RunID: runID})
}

// Error отправляет терминальное событие ошибки.
func (s *SSESink) Error(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return
	}
	s.terminated = true

	s.write("error", ErrorEvent{Message: message})
}

func (s *SSESink) write(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if _, err := s.w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n")); err != nil {
		return
	}
	s.flusher.Flush()
}
