package installer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installs(deps []Dependency) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, d.Install)
	}
	return out
}

func TestExtractDependenciesExcludesLocalAndBuiltin(t *testing.T) {
	source := `
		const _ = require("lodash");
		import "./local";
		import "fs";
	`
	deps := ExtractDependencies(source)
	assert.Equal(t, []string{"lodash"}, installs(deps))
}

func TestExtractDependenciesForms(t *testing.T) {
	source := `
		import axios from "axios";
		import { format } from "date-fns";
		import * as R from "ramda";
		export { pick } from "just-pick";
		const chalk = await import("chalk");
		const yaml = require('js-yaml');
	`
	deps := ExtractDependencies(source)
	assert.ElementsMatch(t,
		[]string{"axios", "date-fns", "ramda", "just-pick", "chalk", "js-yaml"},
		installs(deps))
}

func TestExtractDependenciesScopedAndDeepImports(t *testing.T) {
	source := `
		const a = require("@aws-sdk/client-s3");
		const b = require("@scope/pkg/deep/path");
		const c = require("lodash/fp");
	`
	deps := ExtractDependencies(source)
	assert.ElementsMatch(t, []string{"@aws-sdk/client-s3", "@scope/pkg", "lodash"}, installs(deps))

	// Deep imports keep their original specifier as the request.
	for _, d := range deps {
		if d.Install == "lodash" {
			assert.Equal(t, []string{"lodash/fp"}, d.Requests)
		}
	}
}

func TestExtractDependenciesNodePrefixAndPaths(t *testing.T) {
	source := `
		require("node:crypto");
		require("/abs/path");
		require("../up");
		require("path");
		import "node:fs/promises";
	`
	assert.Empty(t, ExtractDependencies(source))
}

func TestExtractDependenciesDeduplicates(t *testing.T) {
	source := `
		require("lodash");
		require("lodash");
		import "lodash";
	`
	deps := ExtractDependencies(source)
	require.Len(t, deps, 1)
	assert.Equal(t, "lodash", deps[0].Install)
	assert.Equal(t, []string{"lodash"}, deps[0].Requests)
}

func TestExtractDependenciesNeverExecutes(t *testing.T) {
	// Computed specifiers are under-detected by design.
	source := `const mod = require(someVariable);`
	assert.Empty(t, ExtractDependencies(source))
}
