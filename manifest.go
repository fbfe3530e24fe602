package fingerprint

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Task is the slice of a task definition that feeds the hasher.
type Task struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Deps    []string `mapstructure:"deps"`
	Target  string   `mapstructure:"target"`
}

// Project carries the owning project's dependency identifiers.
// DependsOn must be pre-sorted by the project source.
type Project struct {
	DependsOn []string `mapstructure:"dependsOn"`
}

// PackageJSON carries the dependency maps of a `package.json` manifest.
// Each map is name -> version range; nil maps are valid and merge as empty.
type PackageJSON struct {
	Dependencies     map[string]string `mapstructure:"dependencies"`
	DevDependencies  map[string]string `mapstructure:"devDependencies"`
	PeerDependencies map[string]string `mapstructure:"peerDependencies"`
}

// TsConfig carries the compiler options of a `tsconfig.json` equivalent.
type TsConfig struct {
	CompilerOptions *CompilerOptions `mapstructure:"compilerOptions"`
}

// CompilerOptions holds the compiler options that can alter compiled output.
// Empty fields are treated as absent.
type CompilerOptions struct {
	Module           string `mapstructure:"module"`
	ModuleResolution string `mapstructure:"moduleResolution"`
	Target           string `mapstructure:"target"`
}

// DecodePackageJSON converts an already-parsed manifest document into a
// PackageJSON record. The caller owns parsing the file; this only maps the
// loosely-typed document onto the record, tolerating extra fields.
func DecodePackageJSON(document map[string]any) (*PackageJSON, error) {
	pkg := &PackageJSON{}
	if err := decodeDocument(document, pkg); err != nil {
		return nil, fmt.Errorf("failed to decode package manifest: %w", err)
	}
	return pkg, nil
}

// DecodeTsConfig converts an already-parsed tsconfig document into a
// TsConfig record, tolerating extra fields and stringifying scalar values.
func DecodeTsConfig(document map[string]any) (*TsConfig, error) {
	tsconfig := &TsConfig{}
	if err := decodeDocument(document, tsconfig); err != nil {
		return nil, fmt.Errorf("failed to decode tsconfig: %w", err)
	}
	return tsconfig, nil
}

func decodeDocument(document map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(document)
}
