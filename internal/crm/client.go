// Package crm - выгрузка заказов в Битрикс24 через входящий вебхук
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Код единицы измерения «штука»
const MeasurePiece = 796

// Client - REST-клиент вебхука Битрикс24
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// NewClient: webhookURL вида https://portal/rest/1/<token>/
func NewClient(webhookURL string, timeout time.Duration) (*Client, error) {
	if !strings.HasSuffix(webhookURL, "/") {
		webhookURL += "/"
	}
	base, err := url.Parse(webhookURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid CRM webhook url")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{base: base, httpClient: &http.Client{Timeout: timeout}}, nil
}

// APIError - ошибка, которую вернул Битрикс
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return "Bitrix API Error: " + e.Description
	}
	return "Bitrix API Error: " + e.Code
}

type response struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// call выполняет метод REST API; параметры передаются в строке запроса
func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	u := c.base.ResolveReference(&url.URL{Path: method})
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", method)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", method)
	}
	defer resp.Body.Close()

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return errors.Wrapf(err, "failed to decode %s response (status %d)", method, resp.StatusCode)
	}
	if r.Error != "" {
		return &APIError{Code: r.Error, Description: r.ErrorDescription}
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(r.Result, out), "failed to decode %s result", method)
}

// id принимает идентификатор и числом, и строкой
type id string

func (i *id) UnmarshalJSON(b []byte) error {
	*i = id(strings.Trim(string(b), `"`))
	return nil
}

// FindContactByPhone возвращает ID первого контакта с телефоном или ""
func (c *Client) FindContactByPhone(ctx context.Context, phone string) (string, error) {
	params := url.Values{}
	params.Set("filter[PHONE]", phone)
	params.Set("select[]", "ID")

	var contacts []struct {
		ID id `json:"ID"`
	}
	if err := c.call(ctx, "crm.contact.list", params, &contacts); err != nil {
		return "", err
	}
	if len(contacts) == 0 {
		return "", nil
	}
	return string(contacts[0].ID), nil
}

type Contact struct {
	Name     string
	LastName string
	Phone    string
	Email    string
}

func (c *Client) AddContact(ctx context.Context, ct Contact) (string, error) {
	params := url.Values{}
	params.Set("fields[NAME]", ct.Name)
	params.Set("fields[LAST_NAME]", ct.LastName)
	params.Set("fields[PHONE][0][VALUE]", ct.Phone)
	params.Set("fields[PHONE][0][VALUE_TYPE]", "WORK")
	params.Set("fields[EMAIL][0][VALUE]", ct.Email)
	params.Set("fields[EMAIL][0][VALUE_TYPE]", "WORK")

	var newID id
	if err := c.call(ctx, "crm.contact.add", params, &newID); err != nil {
		return "", err
	}
	return string(newID), nil
}

type Deal struct {
	Title     string
	ContactID string
	StageID   string
	Currency  string
}

func (c *Client) AddDeal(ctx context.Context, d Deal) (string, error) {
	params := url.Values{}
	params.Set("fields[TITLE]", d.Title)
	params.Set("fields[CONTACT_ID]", d.ContactID)
	params.Set("fields[STAGE_ID]", d.StageID)
	params.Set("fields[CURRENCY_ID]", d.Currency)
	// сумма пересчитается от товаров
	params.Set("fields[OPPORTUNITY]", "0")

	var newID id
	if err := c.call(ctx, "crm.deal.add", params, &newID); err != nil {
		return "", err
	}
	return string(newID), nil
}

type ProductRow struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
}

func (c *Client) SetProductRows(ctx context.Context, dealID string, rows []ProductRow) error {
	params := url.Values{}
	params.Set("id", dealID)
	for i, r := range rows {
		prefix := fmt.Sprintf("rows[%d]", i)
		params.Set(prefix+"[PRODUCT_NAME]", r.Name)
		params.Set(prefix+"[PRICE]", r.Price.String())
		params.Set(prefix+"[QUANTITY]", fmt.Sprint(r.Quantity))
		params.Set(prefix+"[MEASURE_CODE]", fmt.Sprint(MeasurePiece))
	}
	return c.call(ctx, "crm.deal.productrows.set", params, nil)
}
