// Package config loads confts project files and validates compiled output
// against CUE schemas.
//
// # Project file
//
// A confts.yaml next to the sources sets the defaults for every command:
//
//	entry: src/app.conf.ts
//	format: yaml
//	macro: true
//	schema:
//	  file: schema.cue
//	  definition: "#Config"
//	policy:
//	  paths: [policies]
//	history:
//	  enabled: true
//
// Fields are checked with validator struct tags after decoding. Relative paths
// are resolved against the directory of the project file with Project.Resolve.
//
// # Schemas
//
// SchemaRegistry compiles .cue files once and unifies the JSON rendering of a
// build with a definition. Definitions are closed, so unknown keys in the
// output are reported alongside type and constraint violations:
//
//	sr := config.NewSchemaRegistry()
//	if err := sr.RegisterFile("schema.cue"); err != nil {
//	    return err
//	}
//	err := sr.Validate(ctx, "schema.cue", "#Config", jsonBytes)
//
// A failed check returns *SchemaError listing each violation with its path.
package config
