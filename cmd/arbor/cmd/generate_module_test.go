package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateModuleWritesScaffolding(t *testing.T) {
	dir := t.TempDir()
	files, err := GenerateModule(&ModuleOptions{
		Name:           "admin",
		OutputDir:      dir,
		WithController: true,
	})
	require.NoError(t, err)
	require.Len(t, files, 4)

	source := readGenerated(t, filepath.Join(dir, "admin", "module.go"))
	assert.Contains(t, source, "package admin")
	assert.Contains(t, source, "type AdminModule struct")
	assert.Contains(t, source, "arbor.Module")
	assert.Contains(t, source, "func NewAdminModule(args []any, props map[string]any)")

	config := readGenerated(t, filepath.Join(dir, "admin", "admin.yaml"))
	assert.Contains(t, config, "modules:")
	assert.Contains(t, config, "controllerNamespace: app/modules/admin/controllers")

	assert.FileExists(t, filepath.Join(dir, "admin", "controllers", "site_controller.go"))
	assert.FileExists(t, filepath.Join(dir, "admin", "controllers", "site_controller_test.go"))
}

func TestGenerateModulePackageDefaults(t *testing.T) {
	dir := t.TempDir()
	_, err := GenerateModule(&ModuleOptions{
		Name:      "user-admin",
		OutputDir: dir,
	})
	require.NoError(t, err)

	source := readGenerated(t, filepath.Join(dir, "user_admin", "module.go"))
	assert.Contains(t, source, "package user_admin")
	assert.Contains(t, source, "type UserAdminModule struct")
}

func TestGenerateModuleViaCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "generate", "module",
		"--name", "billing",
		"--output", dir,
		"--with-controller=false")
	require.NoError(t, err)
	assert.Contains(t, out, "module.go")

	assert.FileExists(t, filepath.Join(dir, "billing", "module.go"))
	assert.FileExists(t, filepath.Join(dir, "billing", "billing.yaml"))
	assert.NoFileExists(t, filepath.Join(dir, "billing", "controllers", "site_controller.go"))
}

func TestGenerateModuleRequiresName(t *testing.T) {
	_, err := execute(t, "generate", "module")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}
