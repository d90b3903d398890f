package geoprocessing_test

import (
	"context"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/geoportal/geoprocessing"
	"github.com/pscheid92/geoportal/internal/portaltest"
	"github.com/pscheid92/geoportal/jobs"
	"github.com/pscheid92/geoportal/portal"
)

const gpPath = "/gp/rest/services/Packaging/GPServer"

func newToolbox(srv *portaltest.Server) *geoprocessing.Toolbox {
	client := portal.New(srv.RestURL())
	return geoprocessing.New(client, srv.URL+gpPath,
		geoprocessing.WithPollInterval(time.Millisecond))
}

func TestSubmitJob(t *testing.T) {
	srv := portaltest.New(t)

	var gotTool string
	srv.JSONFunc(gpPath+"/CreateMapArea/submitJob", func(c echo.Context) any {
		gotTool = c.FormValue("mapItemId")
		return map[string]any{"jobId": "gp1", "jobStatus": "esriJobSubmitted"}
	})

	tb := newToolbox(srv)

	params := portal.NewParams()
	params.Set("mapItemId", "abc")
	job, err := tb.SubmitJob(context.Background(), "CreateMapArea", params)
	require.NoError(t, err)

	assert.Equal(t, "gp1", job.ID)
	assert.Equal(t, srv.URL+gpPath+"/CreateMapArea/jobs/gp1", job.StatusURL)
	assert.Equal(t, "abc", gotTool)
}

func TestSubmitJobWithoutJobID(t *testing.T) {
	srv := portaltest.New(t)
	srv.JSON(gpPath+"/Broken/submitJob", map[string]any{})

	tb := newToolbox(srv)

	_, err := tb.SubmitJob(context.Background(), "Broken", portal.NewParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job id")
}

func TestRunAndResultFromParamURL(t *testing.T) {
	srv := portaltest.New(t)
	srv.JSON(gpPath+"/CreateMapArea/submitJob",
		map[string]any{"jobId": "gp2", "jobStatus": "esriJobSubmitted"})
	srv.Script(gpPath+"/CreateMapArea/jobs/gp2",
		map[string]any{"jobId": "gp2", "jobStatus": "esriJobExecuting"},
		map[string]any{
			"jobId":     "gp2",
			"jobStatus": "esriJobSucceeded",
			"results": map[string]any{
				"mapAreaItemId": map[string]any{"paramUrl": "results/mapAreaItemId"},
			},
		},
	)
	srv.JSON(gpPath+"/CreateMapArea/jobs/gp2/results/mapAreaItemId", map[string]any{
		"paramName": "mapAreaItemId",
		"dataType":  "GPString",
		"value":     "item123",
	})

	tb := newToolbox(srv)

	info, job, err := tb.Run(context.Background(), "CreateMapArea", portal.NewParams())
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, info.Status)

	var itemID string
	require.NoError(t, tb.Result(context.Background(), job, info, "mapAreaItemId", &itemID))
	assert.Equal(t, "item123", itemID)
}

func TestResultInlineValue(t *testing.T) {
	srv := portaltest.New(t)
	srv.JSON(gpPath+"/Estimate/submitJob",
		map[string]any{"jobId": "gp3", "jobStatus": "esriJobSubmitted"})
	srv.JSON(gpPath+"/Estimate/jobs/gp3", map[string]any{
		"jobId":     "gp3",
		"jobStatus": "esriJobSucceeded",
		"results": map[string]any{
			"count": map[string]any{"value": 42},
		},
	})

	tb := newToolbox(srv)

	info, job, err := tb.Run(context.Background(), "Estimate", portal.NewParams())
	require.NoError(t, err)

	var count int
	require.NoError(t, tb.Result(context.Background(), job, info, "count", &count))
	assert.Equal(t, 42, count)

	err = tb.Result(context.Background(), job, info, "missing", &count)
	require.Error(t, err)
}

func TestRunSurfacesJobFailure(t *testing.T) {
	srv := portaltest.New(t)
	srv.JSON(gpPath+"/SetupMapArea/submitJob",
		map[string]any{"jobId": "gp4", "jobStatus": "esriJobSubmitted"})
	srv.JSON(gpPath+"/SetupMapArea/jobs/gp4", map[string]any{
		"jobId":     "gp4",
		"jobStatus": "esriJobFailed",
		"messages": []map[string]string{
			{"type": "esriJobMessageTypeError", "description": "packaging failed"},
		},
	})

	tb := newToolbox(srv)

	_, _, err := tb.Run(context.Background(), "SetupMapArea", portal.NewParams())
	require.Error(t, err)

	var failed *jobs.FailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.MessageText(), "packaging failed")
}
