// Package engine runs confts builds.
//
// A build moves a Request through fixed stages:
//
//  1. load - parse the entry file and every file it imports
//  2. compile - fold enums, check macro imports and evaluate the default export
//  3. render - encode the value as JSON or YAML
//  4. schema - unify the output with a CUE definition, when one is requested
//  5. policy - evaluate rego deny and warn rules, when policies are loaded
//
// Each stage gets a tracing span and a duration metric. A failing stage stops the
// build with a *BuildError naming the stage; IsCompileError, IsSchemaError and
// IsPolicyError classify it. Successful and failed builds are both written to the
// history store together with the files they depended on.
//
// In advisory policy mode deny messages are returned as warnings instead of
// failing the build.
//
// BuildAll runs independent requests on a bounded worker pool.
package engine
