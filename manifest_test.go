package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePackageJSON(t *testing.T) {
	pkg, err := DecodePackageJSON(map[string]any{
		"name":    "app",
		"version": "1.2.3",
		"dependencies": map[string]any{
			"react": "^18.0.0",
		},
		"devDependencies": map[string]any{
			"typescript": "~5.4.0",
		},
		"peerDependencies": map[string]any{
			"react-dom": "^18.0.0",
		},
		"scripts": map[string]any{
			"build": "tsc",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"react": "^18.0.0"}, pkg.Dependencies)
	assert.Equal(t, map[string]string{"typescript": "~5.4.0"}, pkg.DevDependencies)
	assert.Equal(t, map[string]string{"react-dom": "^18.0.0"}, pkg.PeerDependencies)
}

func TestDecodePackageJSONWithoutDependencies(t *testing.T) {
	pkg, err := DecodePackageJSON(map[string]any{
		"name": "app",
	})
	require.NoError(t, err)

	assert.Nil(t, pkg.Dependencies)
	assert.Nil(t, pkg.DevDependencies)
	assert.Nil(t, pkg.PeerDependencies)
}

func TestDecodeTsConfig(t *testing.T) {
	tsconfig, err := DecodeTsConfig(map[string]any{
		"compilerOptions": map[string]any{
			"module":           "esnext",
			"moduleResolution": "bundler",
			"target":           "es2022",
			"strict":           true,
			"outDir":           "dist",
		},
		"include": []any{"src/**/*"},
	})
	require.NoError(t, err)

	require.NotNil(t, tsconfig.CompilerOptions)
	assert.Equal(t, "esnext", tsconfig.CompilerOptions.Module)
	assert.Equal(t, "bundler", tsconfig.CompilerOptions.ModuleResolution)
	assert.Equal(t, "es2022", tsconfig.CompilerOptions.Target)
}

func TestDecodeTsConfigWithoutCompilerOptions(t *testing.T) {
	tsconfig, err := DecodeTsConfig(map[string]any{
		"extends": "../tsconfig.base.json",
	})
	require.NoError(t, err)

	assert.Nil(t, tsconfig.CompilerOptions)
}

func TestDecodedRecordsFeedHasher(t *testing.T) {
	pkg, err := DecodePackageJSON(map[string]any{
		"dependencies": map[string]any{"react": "^18.0.0"},
	})
	require.NoError(t, err)

	tsconfig, err := DecodeTsConfig(map[string]any{
		"compilerOptions": map[string]any{"target": "es2022"},
	})
	require.NoError(t, err)

	base := NewTargetHasher("20.0.0")
	withManifests := NewTargetHasher("20.0.0")
	withManifests.HashPackageJSON(pkg)
	withManifests.HashTsConfig(tsconfig)

	assert.NotEqual(t, base.ToHash(), withManifests.ToHash())
}
