package agent

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/catalog"
	"github.com/t77yq/installer-project/internal/download"
	"github.com/t77yq/installer-project/internal/installer"
	"github.com/t77yq/installer-project/internal/model"
	"github.com/t77yq/installer-project/internal/testutil"
)

type alwaysOKDownloader struct{}

func (alwaysOKDownloader) Fetch(_ context.Context, _, dest string, onProgress download.ProgressFunc) error {
	if onProgress != nil {
		onProgress(100)
	}
	return os.WriteFile(dest, []byte("installer"), 0o755)
}

type alwaysOKRunner struct{}

func (alwaysOKRunner) Run(context.Context, string, []string) error { return nil }

func TestPipeline_InstallPythonAndAnaconda(t *testing.T) {
	logger := zap.NewNop()
	cat := catalog.New(logger, map[string]*model.SoftwareSpec{
		"python": {
			Platforms: map[string]*model.PlatformSpec{
				"testos": {URL: "https://example.com/python.exe"},
			},
		},
		"anaconda": {
			Dependencies: []string{"python"},
			Platforms: map[string]*model.PlatformSpec{
				"testos": {URL: "https://example.com/anaconda.exe"},
			},
		},
	})

	rec := testutil.NewEventRecorder()
	exec := installer.New(logger, installer.Config{DownloadDir: t.TempDir()},
		alwaysOKDownloader{}, rec, nil)
	exec.SetRunner(alwaysOKRunner{})
	exec.SetPlatform("testos")

	a := New(logger, cat, exec, rec, &fakeSpeaker{})

	require.Equal(t, []string{"python", "anaconda"},
		a.Interpret("install python and anaconda"))

	a.Run(context.Background(), "install python and anaconda")

	require.Eventually(t, func() bool {
		for _, item := range []string{"python", "anaconda"} {
			seq := rec.StatusSequence(item)
			if len(seq) == 0 || seq[len(seq)-1] != model.StatusInstalled {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond, "both items must reach Installed")

	for _, item := range []string{"python", "anaconda"} {
		assert.Equal(t, []model.InstallStatus{
			model.StatusDownloading,
			model.StatusDownloaded,
			model.StatusInstalling,
			model.StatusInstalled,
		}, rec.StatusSequence(item))
	}
}
