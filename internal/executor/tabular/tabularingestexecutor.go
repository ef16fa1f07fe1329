/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package tabular provides the executor for tabular data ingestion nodes.
package tabular

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/asgardeo/conduit/internal/executor/common"
	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/interpolate"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/storage/artifact"
	"github.com/asgardeo/conduit/internal/system/config"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "TabularIngestExecutor"

// Ingestion modes.
const (
	ModeURL      = "url"
	ModeText     = "text"
	ModeArtifact = "artifact"
)

// Output modes.
const (
	OutputRecords = "records"
	OutputRows    = "rows"
)

const contentTypeCSV = "text/csv"

// Config is the tabular_ingest node configuration.
type Config struct {
	Mode           string `json:"mode" validate:"required,oneof=url text artifact"`
	URL            string `json:"url" validate:"required_if=Mode url"`
	Text           string `json:"text" validate:"required_if=Mode text"`
	ArtifactID     string `json:"artifactId" validate:"required_if=Mode artifact"`
	Delimiter      string `json:"delimiter"`
	HasHeader      *bool  `json:"hasHeader"`
	OutputMode     string `json:"outputMode" validate:"required,oneof=records rows"`
	MaxInlineRows  *int   `json:"maxInlineRows" validate:"omitempty,min=0"`
	PreviewRows    *int   `json:"previewRows" validate:"omitempty,min=0,max=1000"`
	SkipEmptyLines *bool  `json:"skipEmptyLines"`
	TrimSpace      bool   `json:"trimSpace"`
	Persist        *bool  `json:"persist"`
	TimeoutSeconds int    `json:"timeoutSeconds" validate:"min=1,max=300"`
}

// Output is the data returned by a successful ingestion.
type Output struct {
	Headers     []string `json:"headers,omitempty"`
	Rows        any      `json:"rows"`
	Preview     any      `json:"preview"`
	RowCount    int      `json:"rowCount"`
	ColumnCount int      `json:"columnCount"`
	Truncated   bool     `json:"truncated"`
	ContentHash string   `json:"contentHash"`
	Size        int64    `json:"size"`
	ArtifactID  string   `json:"artifactId,omitempty"`
	Duplicate   bool     `json:"duplicate"`
	// DuplicateOf is the artifact that first carried the same content.
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

// TabularIngestExecutor fetches or accepts delimited text and parses it into rows or records.
type TabularIngestExecutor struct {
	guard        *urlguard.Guard
	limiter      *httpclient.TenantLimiter
	store        artifact.StoreInterface
	defaults     Config
	maxBytes     int64
	maxRedirects int
}

var _ model.NodeExecutorInterface = (*TabularIngestExecutor)(nil)

// NewTabularIngestExecutor creates an executor. store may be nil, in which case content is
// neither persisted nor checked for duplicates.
func NewTabularIngestExecutor(guard *urlguard.Guard, limiter *httpclient.TenantLimiter,
	store artifact.StoreInterface, cfg config.IngestionConfig, httpCfg config.HTTPConfig) *TabularIngestExecutor {
	hasHeader, skipEmpty, persist := true, true, true
	maxInline, preview := cfg.MaxInlineRows, cfg.PreviewRows
	return &TabularIngestExecutor{
		guard:   guard,
		limiter: limiter,
		store:   store,
		defaults: Config{
			Delimiter:      ",",
			HasHeader:      &hasHeader,
			OutputMode:     OutputRecords,
			MaxInlineRows:  &maxInline,
			PreviewRows:    &preview,
			SkipEmptyLines: &skipEmpty,
			Persist:        &persist,
			TimeoutSeconds: httpCfg.TimeoutSeconds,
		},
		maxBytes:     cfg.MaxBytes,
		maxRedirects: httpCfg.MaxRedirects,
	}
}

// GetType returns the node type handled by the executor.
func (e *TabularIngestExecutor) GetType() constants.NodeType {
	return constants.NodeTypeTabularIngest
}

// Execute ingests the configured content.
func (e *TabularIngestExecutor) Execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	return common.SafeExecute(e.GetType(), func() *model.NodeResult {
		return e.execute(ctx, rawConfig, execCtx)
	})
}

func (e *TabularIngestExecutor) execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	logger := common.NodeLogger(loggerComponentName, e.GetType(), execCtx)

	var cfg Config
	defaults := e.defaults
	if err := common.DecodeConfig(rawConfig, &defaults, &cfg); err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}
	delimiter, err := parseDelimiter(cfg.Delimiter)
	if err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}

	content, failure := e.load(ctx, cfg, execCtx)
	if failure != nil {
		return failure
	}

	parsed, err := parse(content, parseOptions{
		delimiter:      delimiter,
		hasHeader:      *cfg.HasHeader,
		records:        cfg.OutputMode == OutputRecords,
		maxInline:      *cfg.MaxInlineRows,
		preview:        *cfg.PreviewRows,
		skipEmptyLines: *cfg.SkipEmptyLines,
		trimSpace:      cfg.TrimSpace,
	})
	if err != nil {
		return common.FailureFromError(err, "Failed to parse delimited content")
	}

	sum := sha256.Sum256(content)
	parsed.ContentHash = hex.EncodeToString(sum[:])
	parsed.Size = int64(len(content))

	if err := e.record(ctx, cfg, execCtx, content, parsed); err != nil {
		logger.Error("Failed to persist ingested content", log.Error(err))
		return model.Failure(constants.ErrorTypeExecution, "Failed to persist ingested content")
	}

	logger.Debug("Ingested tabular content", log.Int("rows", parsed.RowCount),
		log.Bool("truncated", parsed.Truncated), log.Bool("duplicate", parsed.Duplicate))
	return model.Success(parsed)
}

// load returns the raw content for the configured mode, bounded by the byte ceiling.
func (e *TabularIngestExecutor) load(ctx context.Context, cfg Config,
	execCtx *model.ExecutionContext) ([]byte, *model.NodeResult) {
	root := execCtx.InterpolationContext()

	switch cfg.Mode {
	case ModeText:
		text, err := interpolate.InterpolateString("text", cfg.Text, root, interpolate.ContextGeneral)
		if err != nil {
			return nil, common.FailureFromError(err, "Failed to resolve the inline content")
		}
		if e.maxBytes > 0 && int64(len(text)) > e.maxBytes {
			return nil, model.Failure(constants.ErrorTypeValidation, "Content exceeds the maximum allowed size")
		}
		return []byte(text), nil

	case ModeArtifact:
		if e.store == nil {
			return nil, model.Failure(constants.ErrorTypeValidation, "Artifact storage is not configured")
		}
		id, err := interpolate.InterpolateString("artifactId", cfg.ArtifactID, root, interpolate.ContextGeneral)
		if err != nil {
			return nil, common.FailureFromError(err, "Failed to resolve the artifact id")
		}
		meta, data, err := e.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				return nil, model.Failure(constants.ErrorTypeValidation, fmt.Sprintf("Artifact %q not found", id))
			}
			return nil, model.Failure(constants.ErrorTypeExecution, "Failed to load the artifact")
		}
		if e.maxBytes > 0 && meta.Size > e.maxBytes {
			return nil, model.Failure(constants.ErrorTypeValidation, "Content exceeds the maximum allowed size")
		}
		return data, nil

	default:
		return e.fetch(ctx, cfg, execCtx, root)
	}
}

func (e *TabularIngestExecutor) fetch(ctx context.Context, cfg Config, execCtx *model.ExecutionContext,
	root map[string]any) ([]byte, *model.NodeResult) {
	target, err := interpolate.InterpolateString("url", cfg.URL, root, interpolate.ContextAuto)
	if err != nil {
		return nil, common.FailureFromError(err, "Failed to resolve the source URL")
	}
	validation := e.guard.Validate(target)
	if !validation.IsValid {
		return nil, model.Failure(constants.ErrorTypePolicy, validation.Error)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, validation.SanitizedURL, nil)
	if err != nil {
		return nil, model.Failure(constants.ErrorTypeRequestSetup, "Failed to build the request")
	}
	req.Header.Set("Accept", contentTypeCSV+", text/plain;q=0.9, */*;q=0.5")

	client := common.NewOutboundClient(e.guard, e.limiter, execCtx, common.OutboundOptions{
		Timeout:         timeout,
		FollowRedirects: true,
		MaxRedirects:    e.maxRedirects,
	})
	resp, err := client.Do(req)
	if err != nil {
		return nil, common.FailureFromTransportError(err, timeout)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.Failure(constants.ErrorTypeHTTPStatus,
			fmt.Sprintf("Request failed with status code %d", resp.StatusCode)).
			WithField("statusCode", resp.StatusCode)
	}
	body, err := common.ReadLimited(resp.Body, e.maxBytes)
	if err != nil {
		if errors.Is(err, common.ErrResponseTooLarge) {
			return nil, model.Failure(constants.ErrorTypeValidation, "Content exceeds the maximum allowed size")
		}
		return nil, common.FailureFromTransportError(err, timeout)
	}
	return body, nil
}

// record persists the raw content and flags content that was ingested before.
func (e *TabularIngestExecutor) record(ctx context.Context, cfg Config, execCtx *model.ExecutionContext,
	content []byte, out *Output) error {
	if e.store == nil {
		return nil
	}
	if !*cfg.Persist || cfg.Mode == ModeArtifact {
		existing, err := e.store.FindByHash(ctx, out.ContentHash)
		switch {
		case err == nil:
			out.Duplicate = cfg.Mode != ModeArtifact || existing.ID != cfg.ArtifactID
			if out.Duplicate {
				out.DuplicateOf = existing.ID
			}
			if cfg.Mode == ModeArtifact {
				out.ArtifactID = cfg.ArtifactID
			}
			return nil
		case errors.Is(err, artifact.ErrNotFound):
			return nil
		default:
			return err
		}
	}

	metadata := map[string]string{"source": cfg.Mode}
	if execCtx != nil {
		metadata["runId"] = execCtx.RunID
		metadata["stepId"] = execCtx.StepID
	}
	stored, err := e.store.Put(ctx, artifact.NewArtifact{
		Name:        "ingest-" + out.ContentHash[:12] + ".csv",
		ContentType: contentTypeCSV,
		Data:        content,
		Metadata:    metadata,
	})
	if err != nil {
		return err
	}
	out.ArtifactID = stored.ID
	out.Duplicate = stored.Duplicate
	if stored.Duplicate {
		out.DuplicateOf = stored.FirstID
	}
	return nil
}

// parseDelimiter accepts a single character or the aliases "tab" and "\t".
func parseDelimiter(d string) (rune, error) {
	switch strings.ToLower(d) {
	case "", ",":
		return ',', nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, &common.ConfigError{Message: "Invalid node configuration: delimiter must be a single character"}
	}
	return r, nil
}

type parseOptions struct {
	delimiter      rune
	hasHeader      bool
	records        bool
	maxInline      int
	preview        int
	skipEmptyLines bool
	trimSpace      bool
}

// parse streams the content and keeps only the rows needed for the inline and preview slices.
func parse(content []byte, opts parseOptions) (*Output, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))))
	reader.Comma = opts.delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	keep := opts.maxInline
	if opts.preview > keep {
		keep = opts.preview
	}

	out := &Output{}
	var kept [][]string
	columns := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, &common.ConfigError{Message: fmt.Sprintf("Malformed delimited content at line %d: %v",
					parseErr.Line, parseErr.Err)}
			}
			return nil, err
		}
		if opts.trimSpace {
			for i := range record {
				record[i] = strings.TrimSpace(record[i])
			}
		}
		if opts.skipEmptyLines && isBlank(record) {
			continue
		}
		if opts.hasHeader && out.Headers == nil {
			out.Headers = headerNames(record)
			columns = len(out.Headers)
			continue
		}

		out.RowCount++
		if len(record) > columns {
			columns = len(record)
		}
		if len(kept) < keep {
			kept = append(kept, record)
		}
	}
	out.ColumnCount = columns
	out.Truncated = out.RowCount > opts.maxInline

	inline := kept[:min(len(kept), opts.maxInline)]
	preview := kept[:min(len(kept), opts.preview)]
	if opts.records {
		out.Rows = toRecords(inline, out.Headers)
		out.Preview = toRecords(preview, out.Headers)
	} else {
		out.Rows = nonNil(inline)
		out.Preview = nonNil(preview)
	}
	return out, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// headerNames fills blank names and disambiguates duplicates. A generated suffix never reuses a
// name that appears elsewhere in the header.
func headerNames(record []string) []string {
	names := make([]string, len(record))
	used := make(map[string]struct{}, len(record))
	for i, raw := range record {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = columnName(i)
		}
		names[i] = name
	}
	taken := make(map[string]struct{}, len(names))
	for _, name := range names {
		taken[name] = struct{}{}
	}
	for i, name := range names {
		if _, dup := used[name]; dup {
			base := name
			for n := 2; ; n++ {
				name = base + "_" + strconv.Itoa(n)
				_, inUse := used[name]
				_, inHeader := taken[name]
				if !inUse && !inHeader {
					break
				}
			}
			names[i] = name
		}
		used[name] = struct{}{}
	}
	return names
}

func columnName(i int) string {
	return "column_" + strconv.Itoa(i+1)
}

// toRecords maps each row onto the header names. Missing cells are empty strings and extra cells
// get positional names.
func toRecords(rows [][]string, headers []string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		for i := len(headers); i < len(row); i++ {
			rec[columnName(i)] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

func nonNil(rows [][]string) [][]string {
	if rows == nil {
		return [][]string{}
	}
	return rows
}
