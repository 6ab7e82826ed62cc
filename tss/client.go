// Package tss は外部のテーブルセッションサーバーとの通信を担当する。
package tss

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client はテーブルセッションサーバー(TSS)のHTTPクライアント。
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateTable はTSSにテーブルIDの発行を依頼する。
// このIDが返るまでテーブル行は永続化されない。
func (c *Client) CreateTable(ctx context.Context, boardID string) (string, error) {
	form := url.Values{}
	form.Set("board", boardID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/tables/", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", errors.New("tss returned status " + resp.Status)
	}

	var body struct {
		TableID string `json:"tableId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.TableID == "" {
		return "", errors.New("tss returned empty table id")
	}
	return body.TableID, nil
}
