package mailintake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"partsmarket/internal/mailintake"
	"partsmarket/models"
)

type fakeMailbox struct {
	msgs   []mailintake.Message
	seen   []uint32
	closed bool
}

func (f *fakeMailbox) Unseen(ctx context.Context) ([]mailintake.Message, error) { return f.msgs, nil }
func (f *fakeMailbox) MarkSeen(ctx context.Context, uids ...uint32) error {
	f.seen = append(f.seen, uids...)
	return nil
}
func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) CreateIncomingEmail(ctx context.Context, e *models.IncomingEmail) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func TestIsOrderRequest(t *testing.T) {
	require.True(t, mailintake.IsOrderRequest("ЗАЯВКА №5", "ЗАЯВКА"))
	require.True(t, mailintake.IsOrderRequest("заявка на фильтры", "ЗАЯВКА"))
	require.False(t, mailintake.IsOrderRequest("Re: заявка", "ЗАЯВКА"))
	require.False(t, mailintake.IsOrderRequest("", "ЗАЯВКА"))
}

func TestPoll(t *testing.T) {
	mb := &fakeMailbox{msgs: []mailintake.Message{
		{UID: 1, From: "a@x.ru", Subject: "Заявка: фильтр", Body: "тело"},
		{UID: 2, From: "spam@x.ru", Subject: "Скидки"},
		{UID: 3, From: "b@x.ru", Subject: "ЗАЯВКА 2", Body: "сломается"},
	}}
	sink := new(MockSink)
	sink.On("CreateIncomingEmail", mock.Anything, mock.MatchedBy(func(e *models.IncomingEmail) bool {
		return e.FromAddress == "a@x.ru"
	})).Return(nil).Once()
	sink.On("CreateIncomingEmail", mock.Anything, mock.MatchedBy(func(e *models.IncomingEmail) bool {
		return e.FromAddress == "b@x.ru"
	})).Return(errors.New("db down")).Once()

	p := mailintake.NewPoller(func(ctx context.Context) (mailintake.Mailbox, error) { return mb, nil }, sink, "ЗАЯВКА", nil)
	n, err := p.Poll(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.ElementsMatch(t, []uint32{1, 2}, mb.seen)
	require.True(t, mb.closed)
	sink.AssertExpectations(t)

	stored := sink.Calls[0].Arguments.Get(1).(*models.IncomingEmail)
	require.Equal(t, models.EmailStatusNew, stored.Status)
	require.Equal(t, "тело", stored.Body)
}

func TestPollDialError(t *testing.T) {
	p := mailintake.NewPoller(func(ctx context.Context) (mailintake.Mailbox, error) {
		return nil, errors.New("refused")
	}, new(MockSink), "ЗАЯВКА", nil)
	_, err := p.Poll(context.Background())
	require.Error(t, err)
}
