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

// Package filetransfer provides the executor that uploads stored artifacts to remote endpoints
// over SFTP, FTP or HTTP.
package filetransfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/asgardeo/conduit/internal/executor/common"
	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/interpolate"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/storage/artifact"
	"github.com/asgardeo/conduit/internal/system/config"
	sysconst "github.com/asgardeo/conduit/internal/system/constants"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "FileTransferExecutor"

// Supported protocols.
const (
	ProtocolSFTP = "sftp"
	ProtocolFTP  = "ftp"
	ProtocolHTTP = "http"
)

// Transfer modes.
const (
	ModeBinary = "binary"
	ModeASCII  = "ascii"
)

var defaultPorts = map[string]int{ProtocolSFTP: 22, ProtocolFTP: 21}

// Config is the file_transfer node configuration.
type Config struct {
	ArtifactID     string `json:"artifactId" validate:"required"`
	Protocol       string `json:"protocol" validate:"required,oneof=sftp ftp http"`
	Host           string `json:"host" validate:"required_unless=Protocol http"`
	Port           int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	PrivateKey     string `json:"privateKey"`
	Passphrase     string `json:"passphrase"`
	HostKey        string `json:"hostKey"`
	RemotePath     string `json:"remotePath" validate:"required_unless=Protocol http"`
	URL            string `json:"url" validate:"required_if=Protocol http"`
	Method         string `json:"method" validate:"omitempty,oneof=PUT POST"`
	CreateDirs     *bool  `json:"createDirs"`
	Mode           string `json:"mode" validate:"omitempty,oneof=binary ascii"`
	TimeoutSeconds int    `json:"timeoutSeconds" validate:"min=1,max=3600"`
}

// upload is one resolved transfer.
type upload struct {
	cfg        Config
	remotePath string
	data       []byte
	meta       *artifact.Artifact
	timeout    time.Duration
}

// uploader sends an upload over one protocol and returns the number of bytes written.
type uploader func(ctx context.Context, u *upload) (int64, error)

// FileTransferExecutor uploads artifacts from the artifact store.
type FileTransferExecutor struct {
	guard    *urlguard.Guard
	limiter  *httpclient.TenantLimiter
	store    artifact.StoreInterface
	defaults Config
	maxRedir int
	logger   *log.Logger
}

var _ model.NodeExecutorInterface = (*FileTransferExecutor)(nil)

// NewFileTransferExecutor creates an executor reading artifacts from store.
func NewFileTransferExecutor(guard *urlguard.Guard, limiter *httpclient.TenantLimiter,
	store artifact.StoreInterface, httpCfg config.HTTPConfig) *FileTransferExecutor {
	createDirs := true
	return &FileTransferExecutor{
		guard:   guard,
		limiter: limiter,
		store:   store,
		defaults: Config{
			Method:         http.MethodPut,
			CreateDirs:     &createDirs,
			Mode:           ModeBinary,
			TimeoutSeconds: 60,
		},
		maxRedir: httpCfg.MaxRedirects,
		logger:   log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
}

// GetType returns the node type handled by the executor.
func (e *FileTransferExecutor) GetType() constants.NodeType {
	return constants.NodeTypeFileTransfer
}

// Execute uploads the configured artifact.
func (e *FileTransferExecutor) Execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	return common.SafeExecute(e.GetType(), func() *model.NodeResult {
		return e.execute(ctx, rawConfig, execCtx)
	})
}

func (e *FileTransferExecutor) execute(ctx context.Context, rawConfig map[string]any,
	execCtx *model.ExecutionContext) *model.NodeResult {
	logger := common.NodeLogger(loggerComponentName, e.GetType(), execCtx)

	var cfg Config
	defaults := e.defaults
	if err := common.DecodeConfig(normalize(rawConfig), &defaults, &cfg); err != nil {
		return common.FailureFromError(err, "Invalid node configuration")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPorts[cfg.Protocol]
	}

	root := execCtx.InterpolationContext()
	artifactID, err := interpolate.InterpolateString("artifactId", cfg.ArtifactID, root, interpolate.ContextGeneral)
	if err != nil {
		return common.FailureFromError(err, "Failed to resolve the artifact id")
	}

	var remotePath string
	var send uploader
	switch cfg.Protocol {
	case ProtocolHTTP:
		target, err := interpolate.InterpolateString("url", cfg.URL, root, interpolate.ContextAuto)
		if err != nil {
			return common.FailureFromError(err, "Failed to resolve the upload URL")
		}
		validation := e.guard.Validate(target)
		if !validation.IsValid {
			return model.Failure(constants.ErrorTypePolicy, validation.Error)
		}
		remotePath = validation.SanitizedURL
		send = e.httpUploader(execCtx)
	default:
		if err := e.checkHost(cfg); err != nil {
			return common.FailureFromError(err, "Transfer target is not allowed")
		}
		remotePath, err = resolveRemotePath(cfg.RemotePath, root)
		if err != nil {
			return common.FailureFromError(err, "Invalid remote path")
		}
		if cfg.Protocol == ProtocolSFTP {
			if _, err := hostKeyCallback(cfg.HostKey, e.guard.AllowInternal()); err != nil {
				return common.FailureFromError(err, "Invalid host key")
			}
			send = e.sftpUpload
		} else {
			send = e.ftpUpload
		}
	}

	if e.store == nil {
		return model.Failure(constants.ErrorTypeValidation, "Artifact storage is not configured")
	}
	meta, data, err := e.store.Get(ctx, artifactID)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return model.Failure(constants.ErrorTypeValidation, fmt.Sprintf("Artifact %q not found", artifactID))
		}
		logger.Error("Failed to load artifact", log.String("artifactId", artifactID), log.Error(err))
		return model.Failure(constants.ErrorTypeExecution, "Failed to load the artifact")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	transferCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	written, err := send(transferCtx, &upload{cfg: cfg, remotePath: remotePath, data: data, meta: meta,
		timeout: timeout})
	if err != nil {
		logger.Debug("File transfer failed", log.String("protocol", cfg.Protocol),
			log.String(log.LoggerKeyHostname, cfg.Host), log.Error(err))
		return classifyTransferError(transferCtx, err, timeout)
	}

	logger.Debug("File transfer completed", log.String("protocol", cfg.Protocol),
		log.String(log.LoggerKeyHostname, cfg.Host), log.Int64("bytes", written))
	res := model.Success(map[string]any{
		"artifactId": meta.ID,
		"bytes":      written,
		"size":       humanize.Bytes(uint64(written)),
		"mode":       cfg.Mode,
		"protocol":   cfg.Protocol,
		"remotePath": remotePath,
		"sha256":     meta.SHA256,
	})
	res.Duration = time.Since(start)
	return res
}

// checkHost applies the outbound policy to an SFTP or FTP target. The protocol's own well-known
// port is exempt from the service port blocklist.
func (e *FileTransferExecutor) checkHost(cfg Config) error {
	port := cfg.Port
	if port == defaultPorts[cfg.Protocol] {
		port = 0
	}
	return e.guard.ValidateHost(cfg.Host, port)
}

func (e *FileTransferExecutor) httpUploader(execCtx *model.ExecutionContext) uploader {
	return func(ctx context.Context, u *upload) (int64, error) {
		req, err := http.NewRequestWithContext(ctx, u.cfg.Method, u.remotePath, bytes.NewReader(u.data))
		if err != nil {
			return 0, err
		}
		contentType := u.meta.ContentType
		if contentType == "" {
			contentType = sysconst.ContentTypeOctetStream
		}
		req.Header.Set(sysconst.ContentTypeHeaderName, contentType)
		req.ContentLength = int64(len(u.data))

		client := common.NewOutboundClient(e.guard, e.limiter, execCtx, common.OutboundOptions{
			Timeout:         u.timeout,
			FollowRedirects: false,
			MaxRedirects:    e.maxRedir,
		})
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return 0, &statusError{code: resp.StatusCode}
		}
		return int64(len(u.data)), nil
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("Upload failed with status code %d", e.code)
}

// errAuthentication is returned when the remote server rejects the credentials.
var errAuthentication = errors.New("Authentication with the remote server failed")

// errHostKey is returned when the SSH host key does not match the pinned key.
var errHostKey = errors.New("Host key verification failed")

func classifyTransferError(ctx context.Context, err error, timeout time.Duration) *model.NodeResult {
	var status *statusError
	switch {
	case errors.As(err, &status):
		return model.Failure(constants.ErrorTypeHTTPStatus, status.Error()).WithField("statusCode", status.code)
	case errors.Is(err, errAuthentication), errors.Is(err, errHostKey):
		return model.Failure(constants.ErrorTypeExecution, err.Error())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return model.Failure(constants.ErrorTypeNoResponse, fmt.Sprintf("No response received within %s", timeout))
	}
	var policyErr *urlguard.PolicyError
	if errors.As(err, &policyErr) {
		return model.Failure(constants.ErrorTypePolicy, policyErr.Message)
	}
	var remote *remoteError
	if errors.As(err, &remote) {
		return model.Failure(constants.ErrorTypeExecution, remote.Error())
	}
	return common.FailureFromTransportError(err, timeout)
}

// remoteError is a failure reported by the remote server after the session was established.
type remoteError struct {
	op string
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("Remote server rejected the %s operation", e.op)
}

// resolveRemotePath interpolates and cleans the remote path.
func resolveRemotePath(raw string, root map[string]any) (string, error) {
	p, err := interpolate.InterpolateString("remotePath", raw, root, interpolate.ContextGeneral)
	if err != nil {
		return "", err
	}
	if strings.ContainsAny(p, "\x00\r\n") {
		return "", &common.ConfigError{Message: "Invalid node configuration: remotePath contains control characters"}
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "/" || strings.HasSuffix(p, "/") {
		return "", &common.ConfigError{Message: "Invalid node configuration: remotePath must name a file"}
	}
	return cleaned, nil
}

// parentDirs returns the directories leading to p, outermost first.
func parentDirs(p string) []string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return nil
	}
	var dirs []string
	for d := dir; d != "." && d != "/"; d = path.Dir(d) {
		dirs = append([]string{d}, dirs...)
	}
	return dirs
}

func normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for _, key := range []string{"protocol", "mode"} {
		if s, ok := out[key].(string); ok {
			out[key] = strings.ToLower(strings.TrimSpace(s))
		}
	}
	if s, ok := out["method"].(string); ok {
		out["method"] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
