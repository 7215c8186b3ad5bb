// Package textparse разбирает свободный текст заявки (письмо, сообщение) в
// структуру заказа с помощью LLM и правит типичные ошибки модели.
package textparse

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Completer - языковая модель: системная инструкция + запрос -> ответ
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type OrderInfo struct {
	Deadline    string `json:"deadline"`
	FullAddress string `json:"full_address"`
	Email       string `json:"email"`
	ClientName  string `json:"client_name"`
}

// Quantity принимает и число, и строку ("2", "2 шт")
type Quantity int

func (q *Quantity) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*q = Quantity(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*q = 0
		return nil
	}
	digits := leadingDigits.FindString(strings.TrimSpace(s))
	v, _ := strconv.Atoi(digits)
	*q = Quantity(v)
	return nil
}

type Part struct {
	Name     string   `json:"name"`
	Brand    string   `json:"brand,omitempty"`
	Article  string   `json:"article,omitempty"`
	Quantity Quantity `json:"quantity"`
	UOM      string   `json:"uom,omitempty"`
}

type Result struct {
	OrderInfo OrderInfo `json:"order_info"`
	Parts     []Part    `json:"parts"`
}

var (
	leadingDigits = regexp.MustCompile(`^\d+`)
	russiaLine    = regexp.MustCompile(`(?i)Россия[^\n]*`)
	dayMonth      = regexp.MustCompile(`^(\d{2})\.(\d{2})$`)
	fence         = regexp.MustCompile("```(?:json)?")
)

// Parser - разбор текста заявки
type Parser struct {
	llm Completer
	now func() time.Time
}

func NewParser(llm Completer) *Parser {
	return &Parser{llm: llm, now: time.Now}
}

// WithClock подменяет текущее время (год для исправления дат)
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

func systemPrompt(year int) string {
	return fmt.Sprintf("Extract auto parts. Year is %d.\n"+
		"Address rule: find the full string starting with 'Россия'.\n"+
		"JSON only.", year)
}

func userPrompt(text string) string {
	return fmt.Sprintf("Text: %q\n"+
		`Return JSON: { "order_info": { "deadline": "YYYY-MM-DD", "full_address": "", "email": "", "client_name": "" }, "parts": [ { "name": "", "brand": "", "article": "", "quantity": 1, "uom": "шт" } ] }`,
		text)
}

// Parse отправляет текст модели и возвращает исправленный результат
func (p *Parser) Parse(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	now := p.now()

	raw, err := p.llm.Complete(ctx, systemPrompt(now.Year()), userPrompt(text))
	if err != nil {
		return nil, errors.Wrap(err, "failed to complete parse request")
	}

	var res Result
	if err := json.Unmarshal([]byte(StripFences(raw)), &res); err != nil {
		return nil, errors.Wrap(err, "model returned invalid JSON")
	}
	Fix(&res, text, now)
	return &res, nil
}

// StripFences убирает markdown-обёртку ```json ... ```
func StripFences(s string) string {
	return strings.TrimSpace(fence.ReplaceAllString(s, ""))
}

// FallbackAddress - строка текста, начинающаяся с «Россия», до конца строки
// или до двойного пробела
func FallbackAddress(text string) string {
	m := russiaLine.FindString(text)
	if i := strings.Index(m, "  "); i > 0 {
		m = m[:i]
	}
	return strings.TrimSpace(m)
}

// FixDeadline: годы за три года до текущего заменяются текущим, «ДД.ММ» - на дату текущего года
func FixDeadline(deadline string, year int) string {
	if deadline == "" {
		return ""
	}
	for y := year - 3; y < year; y++ {
		deadline = strings.ReplaceAll(deadline, strconv.Itoa(y), strconv.Itoa(year))
	}
	if m := dayMonth.FindStringSubmatch(deadline); m != nil {
		deadline = fmt.Sprintf("%d-%s-%s", year, m[2], m[1])
	}
	return deadline
}

// Fix применяет исправления к ответу модели
func Fix(res *Result, text string, now time.Time) {
	if fb := FallbackAddress(text); len([]rune(fb)) > len([]rune(res.OrderInfo.FullAddress)) {
		res.OrderInfo.FullAddress = fb
	}
	res.OrderInfo.Deadline = FixDeadline(res.OrderInfo.Deadline, now.Year())
	if res.Parts == nil {
		res.Parts = []Part{}
	}
}
