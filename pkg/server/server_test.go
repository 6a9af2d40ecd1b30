package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/config"
	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/ingest"
	"github.com/soundprediction/go-servicegraph/pkg/qa"
	"github.com/soundprediction/go-servicegraph/pkg/server"
	"github.com/soundprediction/go-servicegraph/pkg/server/dto"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAsker records the last call and replies from a fixed table.
type fakeAsker struct {
	strategy  qa.Strategy
	question  string
	requestID string
}

func (f *fakeAsker) Ask(ctx context.Context, strategy qa.Strategy, question string) *qa.Answer {
	f.strategy, f.question = strategy, question
	f.requestID = types.ContextString(ctx, types.ContextKeyRequestID)

	a := &qa.Answer{Strategy: strategy, Question: question}
	switch question {
	case "nothing":
		a.Err = types.NewError(types.KindNoMatch, "retrieve", types.ErrNoMatch)
	case "offline":
		a.Err = types.NewError(types.KindServiceUnavailable, "chat", errors.New("connection refused"))
	default:
		a.Text = "Replace the seal."
		a.Cypher = "MATCH (p:Problem) RETURN p.text"
		a.Matches = []types.ProblemMatch{{Text: "leak", Score: 0.91}}
	}
	return a
}

type downGraph struct{ *driver.MemoryDriver }

func (downGraph) VerifyConnectivity(ctx context.Context) error {
	return errors.New("dial tcp: connection refused")
}

func newTestServer(t *testing.T, deps server.Dependencies) http.Handler {
	t.Helper()
	srv := server.New(config.ServerConfig{Host: "127.0.0.1", Port: 0, Mode: "test"}, deps, nil)
	srv.Setup()
	return srv.Handler()
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	h := newTestServer(t, server.Dependencies{Asker: &fakeAsker{}, Graph: driver.NewMemoryDriver()})

	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.NotEmpty(t, rec.Header().Get(server.RequestIDHeader))

	rec = do(h, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, server.Dependencies{Asker: &fakeAsker{}, Graph: downGraph{driver.NewMemoryDriver()}})
	rec = do(down, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestAskJSON(t *testing.T) {
	asker := &fakeAsker{}
	h := newTestServer(t, server.Dependencies{Asker: asker, DefaultStrategy: qa.StrategyVector})

	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantStrategy qa.Strategy
		wantAnswer   string
		wantKind     string
	}{
		{name: "default strategy", body: `{"question":"oil leak"}`, wantStatus: http.StatusOK,
			wantStrategy: qa.StrategyVector, wantAnswer: "Replace the seal."},
		{name: "alias", body: `{"question":"oil leak","strategy":"structured"}`, wantStatus: http.StatusOK,
			wantStrategy: qa.StrategyCypher, wantAnswer: "Replace the seal."},
		{name: "no match", body: `{"question":"nothing"}`, wantStatus: http.StatusOK,
			wantStrategy: qa.StrategyVector, wantAnswer: qa.NoMatchMessage, wantKind: string(types.KindNoMatch)},
		{name: "service down", body: `{"question":"offline","strategy":"cypher"}`, wantStatus: http.StatusServiceUnavailable,
			wantStrategy: qa.StrategyCypher, wantKind: string(types.KindServiceUnavailable)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(server.RequestIDHeader, "req-1")
			rec := do(h, req)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			var resp dto.AskResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.wantStrategy), resp.Strategy)
			assert.Equal(t, tt.wantKind, resp.ErrorKind)
			if tt.wantAnswer != "" {
				assert.Equal(t, tt.wantAnswer, resp.Answer)
			}
			assert.Equal(t, tt.wantStrategy, asker.strategy)
			assert.Equal(t, "req-1", asker.requestID)
		})
	}
}

func TestAskJSONRejectsBadInput(t *testing.T) {
	h := newTestServer(t, server.Dependencies{Asker: &fakeAsker{}})

	for _, body := range []string{`{}`, `{"question":"leak","strategy":"guess"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := do(h, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestIndexAndFormAsk(t *testing.T) {
	h := newTestServer(t, server.Dependencies{Asker: &fakeAsker{}, DefaultStrategy: qa.StrategyCypher})

	rec := do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="question"`)
	assert.Contains(t, rec.Body.String(), `value="cypher" checked`)

	form := url.Values{"question": {"oil leak"}, "strategy": {"vector"}}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = do(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Replace the seal.")
	assert.Contains(t, body, `value="vector" checked`)
	assert.Contains(t, body, "oil leak")
}

func TestStats(t *testing.T) {
	mem := driver.NewMemoryDriver()
	p := ingest.NewPipeline(ingest.NewWriter(mem, nil), nil, nil)
	_, err := p.Run(context.Background(), []types.ServiceRecord{{SRRefNo: "SR-1", ProblemReported: "leak"}}, ingest.Options{})
	require.NoError(t, err)

	h := newTestServer(t, server.Dependencies{Asker: &fakeAsker{}, Graph: mem})
	rec := do(h, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats types.GraphStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.NodesByLabel[string(types.LabelServiceRequest)])
	assert.EqualValues(t, 1, stats.NodesByLabel[string(types.LabelProblem)])
}

const csvBody = "SR ref no,SR date,commission date,machine model,serial number,component serial number," +
	"sub assembly,problem,problem summary,problem reported,failure mode,cause,corrective action," +
	"product category,assigned account,Name,type of activity,defect no,make,complaint category\n" +
	"SR-1,2024-01-02,2020-05-01,HX-200,1,C-1,pump,pump leaking,leak at seal,leak,wear,seal worn," +
	"replace seal,hydraulics,north,Acme Corp,repair,D-1,Acme,mechanical\n" +
	"SR-2,2024-01-03,2021-02-01,CV-9,2,C-2,belt,belt stuck,jam,jam,blockage,debris," +
	"clean rollers,conveyors,south,Beta Ltd,repair,D-2,Beta,mechanical\n"

func TestIngestCSV(t *testing.T) {
	mem := driver.NewMemoryDriver()
	p := ingest.NewPipeline(ingest.NewWriter(mem, nil), nil, nil)
	h := newTestServer(t, server.Dependencies{Asker: &fakeAsker{}, Graph: mem, Ingester: p})

	req := httptest.NewRequest(http.MethodPost, "/ingest?wipe=true", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv")
	rec := do(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp dto.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Rows)
	assert.Equal(t, 2, resp.Written)
	assert.NotEmpty(t, resp.RunID)

	// the same file as a multipart upload
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "records.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req = httptest.NewRequest(http.MethodPost, "/ingest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = do(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stats, err := mem.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.NodesByLabel[string(types.LabelServiceRequest)])
}

func TestIngestRejectsMalformedCSV(t *testing.T) {
	mem := driver.NewMemoryDriver()
	h := newTestServer(t, server.Dependencies{
		Asker:    &fakeAsker{},
		Graph:    mem,
		Ingester: ingest.NewPipeline(ingest.NewWriter(mem, nil), nil, nil),
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("a,b\n1,2\n"))
	req.Header.Set("Content-Type", "text/csv")
	rec := do(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.KindMalformedInput))
}

func TestIngestNotRegisteredWithoutIngester(t *testing.T) {
	h := newTestServer(t, server.Dependencies{Asker: &fakeAsker{}})
	rec := do(h, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(csvBody)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
