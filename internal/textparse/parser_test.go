package textparse_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"partsmarket/internal/textparse"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Error(1)
}

var clock = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

func TestStripFences(t *testing.T) {
	require.Equal(t, `{"a":1}`, textparse.StripFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, textparse.StripFences(` {"a":1} `))
}

func TestFallbackAddress(t *testing.T) {
	text := "Добрый день!\nДоставка: Россия, г. Казань, ул. Баумана, д. 1\nСпасибо"
	require.Equal(t, "Россия, г. Казань, ул. Баумана, д. 1", textparse.FallbackAddress(text))

	require.Equal(t, "россия, Омск", textparse.FallbackAddress("адрес россия, Омск  тел 123"))
	require.Equal(t, "", textparse.FallbackAddress("без адреса"))
}

func TestFixDeadline(t *testing.T) {
	require.Equal(t, "2026-01-23", textparse.FixDeadline("2024-01-23", 2026))
	require.Equal(t, "2026-01-23", textparse.FixDeadline("2025-01-23", 2026))
	require.Equal(t, "2022-01-23", textparse.FixDeadline("2022-01-23", 2026))
	require.Equal(t, "2026-01-23", textparse.FixDeadline("23.01", 2026))
	require.Equal(t, "2027-05-01", textparse.FixDeadline("2027-05-01", 2026))
	require.Equal(t, "", textparse.FixDeadline("", 2026))
}

func TestParse(t *testing.T) {
	llm := new(MockCompleter)
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(s string) bool {
		return strings.Contains(s, "2026")
	}), mock.Anything).Return("```json\n"+`{
		"order_info": {"deadline": "2025-11-01", "full_address": "Казань", "email": "c@x.ru", "client_name": "ООО Ромашка"},
		"parts": [{"name": "Фильтр масляный", "brand": "Mann", "quantity": "2 шт"}, {"name": "Свеча", "quantity": 4}]
	}`+"\n```", nil)

	text := "Нужны фильтры\nРоссия, Татарстан, г. Казань, ул. Баумана 1\n"
	res, err := textparse.NewParser(llm).WithClock(clock).Parse(context.Background(), text)
	require.NoError(t, err)

	require.Equal(t, "2026-11-01", res.OrderInfo.Deadline)
	require.Equal(t, "Россия, Татарстан, г. Казань, ул. Баумана 1", res.OrderInfo.FullAddress)
	require.Equal(t, "ООО Ромашка", res.OrderInfo.ClientName)
	require.Len(t, res.Parts, 2)
	require.Equal(t, textparse.Quantity(2), res.Parts[0].Quantity)
	require.Equal(t, textparse.Quantity(4), res.Parts[1].Quantity)
	llm.AssertExpectations(t)
}

func TestParseErrors(t *testing.T) {
	_, err := textparse.NewParser(new(MockCompleter)).Parse(context.Background(), "  ")
	require.Error(t, err)

	llm := new(MockCompleter)
	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("quota")).Once()
	_, err = textparse.NewParser(llm).Parse(context.Background(), "текст")
	require.Error(t, err)

	llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("не json", nil).Once()
	_, err = textparse.NewParser(llm).Parse(context.Background(), "текст")
	require.Error(t, err)
}
