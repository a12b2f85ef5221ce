package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmapper/internal/config"
)

func TestReportValidation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	result := &config.ValidationResult{
		Warnings: []config.ValidationWarning{{Field: "server.max_rows", Message: "large"}},
	}
	require.NoError(t, reportValidation(logger, result))
	assert.Contains(t, buf.String(), "configuration warning")

	result.Errors = []config.ValidationError{{Field: "mapping.files", Message: "at least one mapping file is required"}}
	err := reportValidation(logger, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 error(s)")
	assert.Contains(t, buf.String(), "mapping.files")
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "sqlmapper dev (none)", versionString())
}
