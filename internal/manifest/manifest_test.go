package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	m, err := FromMap(map[string]interface{}{
		"package_name": "com.example.app",
		"permissions":  []string{"android.permission.CAMERA"},
	})
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", m.PackageName)
	assert.Equal(t, []string{"android.permission.CAMERA"}, m.Permissions)
	assert.False(t, m.HasInstrumentation())
}

func TestFromMapPermissionsOptional(t *testing.T) {
	m, err := FromMap(map[string]interface{}{"package_name": "com.example.app"})
	require.NoError(t, err)
	assert.Empty(t, m.Permissions)
}

func TestFromMapUntypedPermissions(t *testing.T) {
	m, err := FromMap(map[string]interface{}{
		"package_name": "com.example.app",
		"permissions":  []interface{}{"android.permission.READ_CONTACTS", "android.permission.SEND_SMS"},
	})
	require.NoError(t, err)
	assert.Len(t, m.Permissions, 2)
}

func TestFromMapRejectsMissingPackageName(t *testing.T) {
	_, err := FromMap(map[string]interface{}{"permissions": []string{"android.permission.CAMERA"}})
	assert.ErrorIs(t, err, ErrNoPackageName)

	_, err = FromMap(map[string]interface{}{"package_name": ""})
	assert.ErrorIs(t, err, ErrNoPackageName)
}

func TestFromYAML(t *testing.T) {
	doc := []byte(`
package_name: com.example.app
permissions:
  - android.permission.CAMERA
  - android.permission.RECORD_AUDIO
instrumentation:
  target_package: com.example.target
  runner: androidx.test.runner.AndroidJUnitRunner
`)
	m, err := FromYAML(doc)
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", m.PackageName)
	assert.Len(t, m.Permissions, 2)
	require.True(t, m.HasInstrumentation())
	assert.Equal(t, "com.example.target", m.Instrumentation.TargetPackage)
	assert.Equal(t, "androidx.test.runner.AndroidJUnitRunner", m.Instrumentation.Runner)
}

func TestFromYAMLRejectsMissingPackageName(t *testing.T) {
	_, err := FromYAML([]byte("permissions: [android.permission.CAMERA]"))
	assert.ErrorIs(t, err, ErrNoPackageName)
}

func TestFromJSON(t *testing.T) {
	doc := []byte(`{
		"package_name": "com.example.app",
		"permissions": ["android.permission.CAMERA"],
		"instrumentation": {
			"target_package": "com.example.target",
			"runner": "androidx.test.runner.AndroidJUnitRunner"
		}
	}`)
	m, err := FromJSON(doc)
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", m.PackageName)
	require.True(t, m.HasInstrumentation())
	assert.Equal(t, "androidx.test.runner.AndroidJUnitRunner", m.Instrumentation.Runner)
}

func TestFromJSONRejectsMissingPackageName(t *testing.T) {
	_, err := FromJSON([]byte(`{"permissions": []}`))
	assert.ErrorIs(t, err, ErrNoPackageName)
}

func TestHasInstrumentationRequiresBothFields(t *testing.T) {
	m := Manifest{
		PackageName:     "com.example.test",
		Instrumentation: &Instrumentation{Runner: "androidx.test.runner.AndroidJUnitRunner"},
	}
	assert.False(t, m.HasInstrumentation())

	m.Instrumentation.TargetPackage = "com.example.target"
	assert.True(t, m.HasInstrumentation())
}
