package quote_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"partsmarket/internal/quote"
)

func TestDeliveryWeeks(t *testing.T) {
	require.Equal(t, 0, quote.DeliveryWeeks(0, 0))
	require.Equal(t, 1, quote.DeliveryWeeks(0, 1))
	require.Equal(t, 1, quote.DeliveryWeeks(0, 7))
	require.Equal(t, 2, quote.DeliveryWeeks(0, 8))
	require.Equal(t, 3, quote.DeliveryWeeks(3, 30))
}

func TestClientDeliveryWeeks(t *testing.T) {
	require.Nil(t, quote.ClientDeliveryWeeks(0, 2))
	w := quote.ClientDeliveryWeeks(3, 2)
	require.NotNil(t, w)
	require.Equal(t, 5, *w)
}

func TestBuildLines(t *testing.T) {
	orderItem := int64(42)
	zero := 0
	lines, err := quote.BuildLines([]quote.Line{
		{OrderItemID: &orderItem, Name: " Фильтр ", Quantity: 4, Price: decimal.NewFromInt(120), DeliveryDays: 10},
		{Name: "Свеча", OfferedQuantity: &zero, Quantity: 5, Currency: "rub"},
		{Name: "Ремень"},
	}, 2)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	require.Equal(t, "Фильтр", lines[0].Name)
	require.Equal(t, 4, lines[0].Quantity)
	require.Equal(t, "CNY", lines[0].Currency)
	require.Equal(t, 14, lines[0].DeliveryDays)
	require.Equal(t, 4, *lines[0].ClientDeliveryWeeks)
	require.Equal(t, &orderItem, lines[0].OrderItemID)

	require.Equal(t, 0, lines[1].Quantity)
	require.Equal(t, "RUB", lines[1].Currency)
	require.Nil(t, lines[1].ClientDeliveryWeeks)

	require.Equal(t, 1, lines[2].Quantity)
	require.Equal(t, 0, lines[2].DeliveryDays)
}

func TestBuildLinesRejects(t *testing.T) {
	_, err := quote.BuildLines([]quote.Line{{Name: "x", Currency: "EUR"}}, 0)
	require.Error(t, err)

	_, err = quote.BuildLines([]quote.Line{{Name: " "}}, 0)
	require.Error(t, err)

	_, err = quote.BuildLines([]quote.Line{{Name: "x", Price: decimal.NewFromInt(-1)}}, 0)
	require.Error(t, err)
}

func TestBuildLinesKeepsSavedManualLineID(t *testing.T) {
	saved := int64(9)
	lines, err := quote.BuildLines([]quote.Line{
		{OfferItemID: &saved, Name: "X"},
		{Name: "Новая строка"},
	}, 0)
	require.NoError(t, err)
	require.Equal(t, int64(9), lines[0].ID)
	require.Nil(t, lines[0].OrderItemID)
	require.Zero(t, lines[1].ID)
}
