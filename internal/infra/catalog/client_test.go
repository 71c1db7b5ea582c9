package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "squad_recommender/internal/domain/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierCode(t *testing.T) {
	cases := map[int]string{1: "b5", 5: "b1", 6: "s5", 10: "s1", 11: "g5", 15: "g1", 20: "p1", 25: "d1", 30: "r1"}
	for tier, want := range cases {
		assert.Equal(t, want, TierCode(tier), tier)
	}
}

func TestBuildQuery(t *testing.T) {
	q := domain.Query{Handles: []string{"alice", "bob"}, MinTier: 6, MaxTier: 15, Tags: []string{"dp", "graphs"}}
	assert.Equal(t, "*s5..g1 !@alice !@bob (#dp | #graphs)", BuildQuery(q))

	q = domain.Query{Handles: []string{"alice"}, MinTier: 1, MaxTier: 10}
	assert.Equal(t, "*b5..s1 !@alice", BuildQuery(q))
}

const searchBody = `{
  "count": 3,
  "items": [
    {"problemId": 1753, "titleKo": "Shortest Path", "level": 12, "tags": [{"key": "graphs"}, {"key": "dijkstra"}]},
    {"problemId": 9095, "titleKo": "1, 2, 3 Add", "level": 7, "tags": [{"key": "dp"}]},
    {"problemId": 2557, "titleKo": "Hello World", "level": 1, "tags": []}
  ]
}`

func TestRecommendParsesAndTruncates(t *testing.T) {
	var gotQuery, gotSort string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/problem", r.URL.Path)
		gotQuery = r.URL.Query().Get("query")
		gotSort = r.URL.Query().Get("sort")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)
	problems, err := client.Recommend(context.Background(), domain.Query{
		Handles: []string{"alice"}, Count: 2, MinTier: 6, MaxTier: 15, Tags: []string{"dp"},
	})
	require.NoError(t, err)

	assert.Equal(t, "*s5..g1 !@alice (#dp)", gotQuery)
	assert.Equal(t, "random", gotSort)
	require.Len(t, problems, 2)
	assert.Equal(t, domain.ProblemInfo{ExternalID: 1753, Title: "Shortest Path", Tier: 12, Tags: []string{"graphs", "dijkstra"}}, problems[0])
	assert.Equal(t, 9095, problems[1].ExternalID)
}

func TestRecommendReturnsFewerWhenCatalogIsShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	problems, err := NewClient(srv.URL, time.Second).Recommend(context.Background(), domain.Query{Count: 10, MinTier: 1, MaxTier: 30})
	require.NoError(t, err)
	assert.Len(t, problems, 3)
}

func TestRecommendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Recommend(context.Background(), domain.Query{Count: 1, MinTier: 1, MaxTier: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer bad.Close()
	_, err = NewClient(bad.URL, time.Second).Recommend(context.Background(), domain.Query{Count: 1, MinTier: 1, MaxTier: 5})
	assert.Error(t, err)
}

func TestRecommendTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond).Recommend(context.Background(), domain.Query{Count: 1, MinTier: 1, MaxTier: 5})
	assert.Error(t, err)
}
