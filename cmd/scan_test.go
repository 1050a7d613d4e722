package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpeldep/internal/config"
	"github.com/xkilldash9x/scalpeldep/internal/model"
)

func TestCollectTargets_MergesArgsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.example.com\n\nhttps://b.example.com\n"), 0o644))

	sc := &config.ScanConfig{Targets: []string{"https://cli.example.com"}, TargetFile: path}
	targets, err := collectTargets(sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cli.example.com", "https://a.example.com", "https://b.example.com"}, targets)
}

func TestCollectTargets_ErrorsOnMissingFile(t *testing.T) {
	sc := &config.ScanConfig{TargetFile: "/does/not/exist.txt"}
	_, err := collectTargets(sc)
	require.Error(t, err)
}

func TestExitStatus_AllFailedReturnsCode2(t *testing.T) {
	reports := []*model.TargetReport{
		{URL: "https://a.example.com", Status: model.StatusError},
		{URL: "https://b.example.com", Status: model.StatusError},
	}
	err := exitStatus(reports)
	require.Error(t, err)
	ec, ok := err.(exitCodeError)
	require.True(t, ok)
	assert.Equal(t, 2, ec.code)
}

func TestExitStatus_CriticalFindingReturnsCode3(t *testing.T) {
	reports := []*model.TargetReport{
		{
			URL:    "https://a.example.com",
			Status: model.StatusOK,
			Findings: []model.Finding{
				{Name: "@acme/internal", Severity: model.SeverityCritical},
			},
		},
	}
	err := exitStatus(reports)
	require.Error(t, err)
	ec, ok := err.(exitCodeError)
	require.True(t, ok)
	assert.Equal(t, 3, ec.code)
}

func TestExitStatus_CleanScanReturnsNil(t *testing.T) {
	reports := []*model.TargetReport{
		{URL: "https://a.example.com", Status: model.StatusOK},
	}
	require.NoError(t, exitStatus(reports))
}

func TestExitStatus_AllTimedOutReturnsCode2(t *testing.T) {
	reports := []*model.TargetReport{
		{URL: "https://a.example.com", Status: model.StatusTimedOut},
		{URL: "https://b.example.com", Status: model.StatusError},
	}
	err := exitStatus(reports)
	require.Error(t, err)
	ec, ok := err.(exitCodeError)
	require.True(t, ok)
	assert.Equal(t, 2, ec.code)
}

func TestExitStatus_OneTimedOutAmongSuccessesReturnsNil(t *testing.T) {
	reports := []*model.TargetReport{
		{URL: "https://a.example.com", Status: model.StatusTimedOut},
		{URL: "https://b.example.com", Status: model.StatusOK},
	}
	require.NoError(t, exitStatus(reports))
}
