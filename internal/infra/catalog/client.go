// Package catalog talks to the external problem search API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domain "squad_recommender/internal/domain/catalog"
)

const searchPath = "/search/problem"

// tierLetters are the tier groups from Bronze to Ruby, five tiers each.
var tierLetters = []string{"b", "s", "g", "p", "d", "r"}

// Client queries the search endpoint of a solved.ac compatible API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Count int `json:"count"`
	Items []struct {
		ProblemID int    `json:"problemId"`
		TitleKo   string `json:"titleKo"`
		Level     int    `json:"level"`
		Tags      []struct {
			Key string `json:"key"`
		} `json:"tags"`
	} `json:"items"`
}

// TierCode converts a numeric tier (1 = Bronze V, 30 = Ruby I) to its short code.
func TierCode(tier int) string {
	if tier < 1 || tier > 30 {
		return strconv.Itoa(tier)
	}
	group := (tier - 1) / 5
	step := 5 - (tier-1)%5
	return fmt.Sprintf("%s%d", tierLetters[group], step)
}

// BuildQuery renders q in the search query language: the tier range, one
// negated solved-by term per handle, and an any-of tag group.
func BuildQuery(q domain.Query) string {
	terms := []string{fmt.Sprintf("*%s..%s", TierCode(q.MinTier), TierCode(q.MaxTier))}
	for _, h := range q.Handles {
		terms = append(terms, "!@"+h)
	}
	if len(q.Tags) > 0 {
		tags := make([]string, len(q.Tags))
		for i, t := range q.Tags {
			tags[i] = "#" + t
		}
		terms = append(terms, "("+strings.Join(tags, " | ")+")")
	}
	return strings.Join(terms, " ")
}

// Recommend returns up to q.Count unsolved problems in the API's random order.
func (c *Client) Recommend(ctx context.Context, q domain.Query) ([]domain.ProblemInfo, error) {
	params := url.Values{}
	params.Set("query", BuildQuery(q))
	params.Set("sort", "random")
	params.Set("page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalog responded with status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	problems := make([]domain.ProblemInfo, 0, q.Count)
	for _, item := range result.Items {
		if len(problems) == q.Count {
			break
		}
		tags := make([]string, 0, len(item.Tags))
		for _, t := range item.Tags {
			tags = append(tags, t.Key)
		}
		problems = append(problems, domain.ProblemInfo{
			ExternalID: item.ProblemID,
			Title:      item.TitleKo,
			Tier:       item.Level,
			Tags:       tags,
		})
	}
	return problems, nil
}
