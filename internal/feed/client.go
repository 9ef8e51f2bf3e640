package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/finacct/balance-service/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Client talks to the bank aggregator. The transaction sync endpoint is JSON;
// the balance endpoint is the aggregator's legacy XML gateway.
type Client struct {
	baseURL  string
	clientID string
	secret   string
	client   *http.Client
	log      *logrus.Logger
}

// NewClient initializes a new aggregator client.
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL:  cfg.AggregatorURL,
		clientID: cfg.AggregatorClientID,
		secret:   cfg.AggregatorSecret,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type syncRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
	ItemID   string `json:"item_id"`
	Cursor   string `json:"cursor,omitempty"`
}

type syncError struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// SyncTransactions requests one page of incremental changes for an item.
func (c *Client) SyncTransactions(ctx context.Context, itemID, cursor string) (*Page, error) {
	payload, err := json.Marshal(syncRequest{
		ClientID: c.clientID,
		Secret:   c.secret,
		ItemID:   itemID,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions/sync", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sync request failed: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sync response: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode == http.StatusConflict {
		var apiErr syncError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorCode == "MUTATION_DURING_PAGINATION" {
			return nil, fmt.Errorf("%w: item %s", ErrPaginationMutation, itemID)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sync returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode sync page: %w", err)
	}
	c.log.Debugf("Synced page for item %s: %d added, %d modified, %d removed",
		itemID, len(page.Added), len(page.Modified), len(page.Removed))
	return &page, nil
}

// buildBalanceRequest creates the XML request for the balance gateway.
func (c *Client) buildBalanceRequest(accountID string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<BalanceRequest>
			<ClientID>%s</ClientID>
			<Secret>%s</Secret>
			<AccountID>%s</AccountID>
			<AsOf>%s</AsOf>
		</BalanceRequest>`, c.clientID, c.secret, accountID, time.Now().Format("2006-01-02"))
}

// sendBalanceRequest posts the XML request to the gateway.
func (c *Client) sendBalanceRequest(ctx context.Context, xmlRequest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/accounts/balance", bytes.NewBufferString(xmlRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to create balance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: balance request failed: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: balance gateway returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read balance response: %v", ErrUpstreamUnavailable, err)
	}

	c.log.Debugf("Balance gateway XML response: %s", string(body))
	return body, nil
}

// parseBalanceResponse extracts the current balance from the gateway XML.
func (c *Client) parseBalanceResponse(rawBody []byte) (decimal.Decimal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance XML: %w", err)
	}

	balanceElement := doc.FindElement("//BalanceResponse/Current")
	if balanceElement == nil {
		return decimal.Zero, fmt.Errorf("no balance element found in XML")
	}

	balance, err := decimal.NewFromString(balanceElement.Text())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance %q: %w", balanceElement.Text(), err)
	}
	return balance, nil
}

// GetAccountBalance retrieves the aggregator's reported balance for an account.
func (c *Client) GetAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	xmlRequest := c.buildBalanceRequest(accountID)
	body, err := c.sendBalanceRequest(ctx, xmlRequest)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := c.parseBalanceResponse(body)
	if err != nil {
		return decimal.Zero, err
	}

	c.log.Debugf("Reported balance for account %s: %s", accountID, balance)
	return balance, nil
}

// Compile-time interface checks.
var (
	_ BalanceSource   = (*Client)(nil)
	_ TransactionFeed = (*Client)(nil)
)
