package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readGenerated(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestGenerateControllerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	files, err := GenerateController(&ControllerOptions{
		Name:      "user-profile",
		Package:   "controllers",
		Actions:   []string{"index", "show"},
		OutputDir: dir,
		WithTest:  true,
	})
	require.NoError(t, err)
	require.Len(t, files, 2)

	source := readGenerated(t, filepath.Join(dir, "user_profile_controller.go"))
	assert.Contains(t, source, "package controllers")
	assert.Contains(t, source, "type UserProfileController struct")
	assert.Contains(t, source, "arbor.BaseController")
	assert.Contains(t, source, `c.RegisterAction("index", c.Index)`)
	assert.Contains(t, source, `c.RegisterAction("show", c.Show)`)
	assert.Contains(t, source, "func (c *UserProfileController) Show(ctx context.Context")

	test := readGenerated(t, filepath.Join(dir, "user_profile_controller_test.go"))
	assert.Contains(t, test, "func TestUserProfileControllerActions")
	assert.Contains(t, test, `RunAction(context.Background(), "show"`)
}

func TestGenerateControllerDefaults(t *testing.T) {
	dir := t.TempDir()
	_, err := GenerateController(&ControllerOptions{Name: "site", OutputDir: dir})
	require.NoError(t, err)

	source := readGenerated(t, filepath.Join(dir, "site_controller.go"))
	assert.Contains(t, source, "package controllers")
	assert.Contains(t, source, `c.RegisterAction("index", c.Index)`)
}

func TestGenerateControllerViaCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "generate", "controller",
		"--name", "user-profile",
		"--output", dir,
		"--actions", "index,show",
		"--tests=false")
	require.NoError(t, err)
	assert.Contains(t, out, "user_profile_controller.go")

	assert.FileExists(t, filepath.Join(dir, "user_profile_controller.go"))
	assert.NoFileExists(t, filepath.Join(dir, "user_profile_controller_test.go"))
}

func TestGenerateControllerRequiresName(t *testing.T) {
	_, err := execute(t, "generate", "controller")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestIdentifierHelpers(t *testing.T) {
	assert.Equal(t, "UserProfile", pascalIdent("user-profile"))
	assert.Equal(t, "AdminPanel", pascalIdent("admin_panel"))
	assert.Equal(t, "Site", pascalIdent("site"))
	assert.Equal(t, "user_profile", snakeIdent("user-profile"))
	assert.Equal(t, "panel_reports", snakeIdent("panel/reports"))
}
