package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
	"github.com/ekaya-inc/nlq2sql/pkg/repositories"
	"github.com/ekaya-inc/nlq2sql/pkg/services"
	nlqsql "github.com/ekaya-inc/nlq2sql/pkg/sql"
	"github.com/ekaya-inc/nlq2sql/pkg/translate"
)

const handlerSkeleton = "SELECT COUNT(*) FROM <SCHEMA>.person WHERE gender_source_value = '<ARG-GENDER><0>'"

type nlqFixture struct {
	mux      *http.ServeMux
	detector *mockDetector
	executor *mockExecutor
}

func newNLQFixture(t *testing.T, withExecutor bool) *nlqFixture {
	t.Helper()

	f := &nlqFixture{
		detector: &mockDetector{table: models.EntityTable{
			models.CategoryGender: {{BeginOffset: 9, EndOffset: 14, Text: "women"}},
		}},
		executor: &mockExecutor{},
	}

	cfg := services.PipelineConfig{
		Detector:   f.detector,
		Resolver:   &mockResolver{},
		Translator: translate.NewMockTranslator(handlerSkeleton),
		Renderer:   nlqsql.NewRenderer(nlqsql.DefaultTemplates("omop"), zap.NewNop()),
		RowLimit:   10,
	}
	if withExecutor {
		cfg.Executor = f.executor
	}

	repo, err := repositories.NewFileFeedbackRepository(t.TempDir())
	require.NoError(t, err)

	handler := NewNLQHandler(
		services.NewPipelineService(cfg, zap.NewNop()),
		services.NewCorrectionService(&mockResolver{}, zap.NewNop()),
		services.NewFeedbackService(repo, zap.NewNop()),
		zap.NewNop(),
	)

	f.mux = http.NewServeMux()
	handler.RegisterRoutes(f.mux)
	return f
}

func (f *nlqFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, code, body["error"])
}

func TestNLQHandler_Query(t *testing.T) {
	f := newNLQFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/v1/query", `{"question":"How many women?","execute":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeBody[services.PipelineResult](t, rec)
	assert.Equal(t, "How many <ARG-GENDER><0>?", result.GeneralizedQuestion)
	assert.Equal(t, handlerSkeleton, result.SQLSkeleton)
	assert.Equal(t, "SELECT COUNT(*) FROM omop.person WHERE gender_source_value = 'WOMEN'", result.RenderedSQL)
	require.NotNil(t, result.Result)
	assert.Equal(t, 1, result.Result.RowCount)
	assert.Len(t, f.executor.queries, 1)
	assert.Equal(t, "WOMEN", result.Entities[models.CategoryGender][0].QueryArg)
}

func TestNLQHandler_QueryWithoutDatasource(t *testing.T) {
	f := newNLQFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/v1/query", `{"question":"How many women?","execute":true}`)
	assertError(t, rec, http.StatusServiceUnavailable, "no_datasource")

	rec = f.do(t, http.MethodPost, "/api/v1/query", `{"question":"How many women?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[services.PipelineResult](t, rec).Result)
}

func TestNLQHandler_Detect(t *testing.T) {
	f := newNLQFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/v1/detect", `{"question":"How many women?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[EntitiesResponse](t, rec)
	assert.Equal(t, "women", resp.Entities[models.CategoryGender][0].Text)
	assert.Empty(t, resp.Entities[models.CategoryGender][0].Placeholder)

	assertError(t, f.do(t, http.MethodPost, "/api/v1/detect", `{"question":""}`), http.StatusBadRequest, "invalid_request")
	assertError(t, f.do(t, http.MethodPost, "/api/v1/detect", `not json`), http.StatusBadRequest, "invalid_request")

	f.detector.err = apperrors.ErrDetectorFailed
	assertError(t, f.do(t, http.MethodPost, "/api/v1/detect", `{"question":"How many women?"}`), http.StatusBadGateway, "detection_failed")
}

func TestNLQHandler_Process(t *testing.T) {
	f := newNLQFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/v1/process",
		`{"entities":{"STATE":[{"Text":"ohio"},{"Text":"texas"}]},"start":{"STATE":2}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	states := decodeBody[EntitiesResponse](t, rec).Entities[models.CategoryState]
	require.Len(t, states, 2)
	assert.Equal(t, "<ARG-STATE><2>", states[0].Placeholder)
	assert.Equal(t, "<ARG-STATE><3>", states[1].Placeholder)
	assert.Equal(t, "TEXAS", states[1].QueryArg)

	rec = f.do(t, http.MethodPost, "/api/v1/process", `{"entities":{"PROCEDURE":[{"Text":"x-ray"}]}}`)
	assertError(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestNLQHandler_ProcessReturnsNextOrdinals(t *testing.T) {
	f := newNLQFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/v1/process",
		`{"entities":{"STATE":[{"Text":"ohio"}]},"start":{"STATE":2,"DRUG":4}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	next := decodeBody[EntitiesResponse](t, rec).Next
	assert.Equal(t, 3, next[models.CategoryState])
	assert.Equal(t, 4, next[models.CategoryDrug])
}

func TestNLQHandler_RejectsNullEntities(t *testing.T) {
	f := newNLQFixture(t, false)
	null := `{"GENDER":[null]}`

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "process", path: "/api/v1/process", body: `{"entities":` + null + `}`},
		{name: "rewrite", path: "/api/v1/rewrite", body: `{"question":"women","entities":` + null + `}`},
		{name: "render", path: "/api/v1/render", body: `{"sql_skeleton":"SELECT '<ARG-GENDER><0>'","entities":` + null + `}`},
		{name: "add", path: "/api/v1/entities/add", body: `{"question":"women on aspirin","entities":` + null + `,"category":"DRUG","text":"aspirin"}`},
		{name: "remove", path: "/api/v1/entities/remove", body: `{"entities":` + null + `,"text":"women"}`},
		{name: "override", path: "/api/v1/entities/override", body: `{"entities":` + null + `,"placeholder":"<ARG-GENDER><0>","query_arg":"F"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, f.do(t, http.MethodPost, tt.path, tt.body), http.StatusBadRequest, "invalid_request")
		})
	}
}

func TestNLQHandler_Rewrite(t *testing.T) {
	f := newNLQFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/v1/rewrite",
		`{"question":"Women in Ohio","entities":{"GENDER":[{"Text":"women","Placeholder":"<ARG-GENDER><0>"}],"STATE":[{"Text":"Ohio","Placeholder":"<ARG-STATE><0>"}]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<ARG-GENDER><0> in <ARG-STATE><0>", decodeBody[RewriteResponse](t, rec).GeneralizedQuestion)
}

func TestNLQHandler_Render(t *testing.T) {
	f := newNLQFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/v1/render",
		`{"sql_skeleton":"SELECT * FROM <SCHEMA>.location WHERE state = '<ARG-STATE><0>'","entities":{"STATE":[{"Text":"Ohio","Placeholder":"<ARG-STATE><0>","Query-arg":"OH"}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SELECT * FROM omop.location WHERE state = 'OH'", decodeBody[RenderResponse](t, rec).RenderedSQL)

	rec = f.do(t, http.MethodPost, "/api/v1/render",
		`{"sql_skeleton":"SELECT * FROM <SCHEMA>.drug_exposure WHERE x = <ARG-DRUG><0>","entities":{}}`)
	assertError(t, rec, http.StatusUnprocessableEntity, "render_failed")

	rec = f.do(t, http.MethodPost, "/api/v1/render", `{"sql_skeleton":"  "}`)
	assertError(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestNLQHandler_Corrections(t *testing.T) {
	f := newNLQFixture(t, false)
	entities := `{"GENDER":[{"Text":"women","Placeholder":"<ARG-GENDER><0>","Query-arg":"F","Options":[{"Code":"F","Score":1}]}]}`

	rec := f.do(t, http.MethodPost, "/api/v1/entities/add",
		`{"question":"women on aspirin","entities":`+entities+`,"category":"drug","text":"aspirin"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := decodeBody[EntitiesResponse](t, rec)
	assert.Equal(t, "<ARG-GENDER><0> on <ARG-DRUG><0>", added.GeneralizedQuestion)
	assert.Equal(t, "ASPIRIN", added.Entities[models.CategoryDrug][0].QueryArg)

	rec = f.do(t, http.MethodPost, "/api/v1/entities/add",
		`{"question":"women on aspirin","entities":`+entities+`,"category":"procedure","text":"aspirin"}`)
	assertError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = f.do(t, http.MethodPost, "/api/v1/entities/remove",
		`{"question":"women on aspirin","entities":`+entities+`,"text":"Women"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	removed := decodeBody[EntitiesResponse](t, rec)
	assert.Empty(t, removed.Entities[models.CategoryGender])
	assert.Equal(t, "women on aspirin", removed.GeneralizedQuestion)

	rec = f.do(t, http.MethodPost, "/api/v1/entities/remove", `{"entities":`+entities+`,"text":"men"}`)
	assertError(t, rec, http.StatusNotFound, "not_found")

	rec = f.do(t, http.MethodPost, "/api/v1/entities/override",
		`{"entities":`+entities+`,"placeholder":"<ARG-GENDER><0>","query_arg":"M"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "M", decodeBody[EntitiesResponse](t, rec).Entities[models.CategoryGender][0].QueryArg)
}

func TestNLQHandler_CorrectionsRetireRemovedOrdinals(t *testing.T) {
	f := newNLQFixture(t, false)
	question := "patients with diabetes, asthma or copd"
	entities := `{"CONDITION":[` +
		`{"Text":"diabetes","Placeholder":"<ARG-CONDITION><0>","Query-arg":"DIABETES"},` +
		`{"Text":"asthma","Placeholder":"<ARG-CONDITION><1>","Query-arg":"ASTHMA"}]}`

	rec := f.do(t, http.MethodPost, "/api/v1/entities/remove",
		`{"question":"`+question+`","entities":`+entities+`,"text":"asthma"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	removed := decodeBody[EntitiesResponse](t, rec)
	assert.Equal(t, 2, removed.Next[models.CategoryCondition])

	table, err := json.Marshal(removed.Entities)
	require.NoError(t, err)
	start, err := json.Marshal(removed.Next)
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/api/v1/entities/add",
		`{"question":"`+question+`","entities":`+string(table)+`,"start":`+string(start)+`,"category":"CONDITION","text":"copd"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := decodeBody[EntitiesResponse](t, rec)

	conditions := added.Entities[models.CategoryCondition]
	require.Len(t, conditions, 2)
	assert.Equal(t, "<ARG-CONDITION><2>", conditions[1].Placeholder)
	assert.Equal(t, "patients with <ARG-CONDITION><0>, asthma or <ARG-CONDITION><2>", added.GeneralizedQuestion)
	assert.Equal(t, 3, added.Next[models.CategoryCondition])
}

func TestNLQHandler_Feedback(t *testing.T) {
	f := newNLQFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/v1/feedback",
		`{"input":"How many women?","generalized_input":"How many <ARG-GENDER><0>?",`+
			`"args original":{"GENDER":[{"Text":"women","Placeholder":"<ARG-GENDER><0>","Query-arg":"F"}]},`+
			`"sql_skeleton":"SELECT 1","correct":false}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody[FeedbackResponse](t, rec).ID

	rec = f.do(t, http.MethodGet, "/api/v1/feedback/"+id.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	fb := decodeBody[models.Feedback](t, rec)
	assert.Equal(t, "How many women?", fb.Question)
	assert.Equal(t, "F", fb.CorrectedEntities[models.CategoryGender][0].QueryArg)

	rec = f.do(t, http.MethodGet, "/api/v1/feedback?correct=false&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Feedback](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/v1/feedback?correct=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assertError(t, f.do(t, http.MethodGet, "/api/v1/feedback?correct=maybe", ""), http.StatusBadRequest, "invalid_request")
	assertError(t, f.do(t, http.MethodGet, "/api/v1/feedback/not-a-uuid", ""), http.StatusBadRequest, "invalid_request")
	assertError(t, f.do(t, http.MethodGet, "/api/v1/feedback/00000000-0000-0000-0000-000000000001", ""), http.StatusNotFound, "not_found")
	assertError(t, f.do(t, http.MethodPost, "/api/v1/feedback", `{"correct":true}`), http.StatusBadRequest, "invalid_request")
}

var _ datasource.QueryExecutor = (*mockExecutor)(nil)
