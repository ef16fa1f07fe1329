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

package filetransfer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/ssh"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/storage/artifact"
	"github.com/asgardeo/conduit/internal/system/config"
	sysconst "github.com/asgardeo/conduit/internal/system/constants"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
)

const (
	sftpUser     = "deploy"
	sftpPassword = "s3cret"
	payload      = "id,total\nA-1,40\n"
)

type FileTransferExecutorTestSuite struct {
	suite.Suite
	store      *artifact.Store
	artifactID string
	executor   *FileTransferExecutor
	execCtx    *model.ExecutionContext
}

func TestFileTransferExecutorSuite(t *testing.T) {
	suite.Run(t, new(FileTransferExecutorTestSuite))
}

func (suite *FileTransferExecutorTestSuite) SetupTest() {
	store, err := artifact.NewStore(config.StorageConfig{InMemory: true})
	require.NoError(suite.T(), err)
	suite.store = store

	stored, err := store.Put(context.Background(), artifact.NewArtifact{
		Name: "orders.csv", ContentType: "text/csv", Data: []byte(payload),
	})
	require.NoError(suite.T(), err)
	suite.artifactID = stored.ID

	suite.executor = NewFileTransferExecutor(urlguard.NewGuard(urlguard.Options{AllowInternal: true}),
		httpclient.NewTenantLimiter(100, 100), store, config.DefaultConfig().HTTP)
	suite.execCtx = &model.ExecutionContext{
		RunID:  "run-9",
		StepID: "upload",
		Data:   map[string]any{"export": map[string]any{"id": stored.ID}},
		Input:  map[string]any{"day": "2026-10-19"},
	}
}

func (suite *FileTransferExecutorTestSuite) TearDownTest() {
	_ = suite.store.Close()
}

// startSFTPServer serves an in-memory SFTP file system over SSH with password authentication.
func startSFTPServer(t *testing.T) (string, ssh.PublicKey, func(string) []byte) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	serverConfig := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == sftpUser && string(pass) == sftpPassword {
				return nil, nil
			}
			return nil, errors.New("password rejected")
		},
	}
	serverConfig.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = listener.Close()
	})

	handlers := sftp.InMemHandler()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, serverConfig, handlers)
		}
	}()

	addr := listener.Addr().String()
	read := func(p string) []byte {
		client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
			User:            sftpUser,
			Auth:            []ssh.AuthMethod{ssh.Password(sftpPassword)},
			HostKeyCallback: ssh.FixedHostKey(signer.PublicKey()),
		})
		require.NoError(t, err)
		defer client.Close()
		sftpClient, err := sftp.NewClient(client)
		require.NoError(t, err)
		defer sftpClient.Close()
		f, err := sftpClient.Open(p)
		require.NoError(t, err)
		defer f.Close()
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		return data
	}
	return addr, signer.PublicKey(), read
}

func serveSSH(conn net.Conn, cfg *ssh.ServerConfig, handlers sftp.Handlers) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)
	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				_ = req.Reply(req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp", nil)
			}
		}(requests)
		server := sftp.NewRequestServer(channel, handlers)
		go func() {
			_ = server.Serve()
			_ = server.Close()
		}()
	}
}

func sftpConfig(addr string) map[string]any {
	host, port, _ := net.SplitHostPort(addr)
	return map[string]any{
		"artifactId": "{{export.id}}",
		"protocol":   "SFTP",
		"host":       host,
		"port":       port,
		"username":   sftpUser,
		"password":   sftpPassword,
		"remotePath": "/exports/{{input.day}}/orders.csv",
	}
}

func (suite *FileTransferExecutorTestSuite) TestSFTPUploadWithPinnedKey() {
	addr, hostKey, read := startSFTPServer(suite.T())
	cfg := sftpConfig(addr)
	cfg["hostKey"] = string(ssh.MarshalAuthorizedKey(hostKey))

	res := suite.executor.Execute(context.Background(), cfg, suite.execCtx)

	require.True(suite.T(), res.IsSuccess(), res.Error)
	data := res.Data.(map[string]any)
	assert.Equal(suite.T(), int64(len(payload)), data["bytes"])
	assert.Equal(suite.T(), "16 B", data["size"])
	assert.Equal(suite.T(), ModeBinary, data["mode"])
	assert.Equal(suite.T(), ProtocolSFTP, data["protocol"])
	assert.Equal(suite.T(), "/exports/2026-10-19/orders.csv", data["remotePath"])
	assert.Equal(suite.T(), payload, string(read("/exports/2026-10-19/orders.csv")))
}

// sftpDirExists reports whether path is a directory on the test server.
func sftpDirExists(t *testing.T, addr string, hostKey ssh.PublicKey, path string) bool {
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            sftpUser,
		Auth:            []ssh.AuthMethod{ssh.Password(sftpPassword)},
		HostKeyCallback: ssh.FixedHostKey(hostKey),
	})
	require.NoError(t, err)
	defer client.Close()
	sftpClient, err := sftp.NewClient(client)
	require.NoError(t, err)
	defer sftpClient.Close()
	info, err := sftpClient.Stat(path)
	return err == nil && info.IsDir()
}

func (suite *FileTransferExecutorTestSuite) TestSFTPCreateDirsDisabled() {
	addr, hostKey, read := startSFTPServer(suite.T())
	cfg := sftpConfig(addr)
	cfg["hostKey"] = string(ssh.MarshalAuthorizedKey(hostKey))
	cfg["createDirs"] = false

	res := suite.executor.Execute(context.Background(), cfg, suite.execCtx)

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), payload, string(read("/exports/2026-10-19/orders.csv")))
	assert.False(suite.T(), sftpDirExists(suite.T(), addr, hostKey, "/exports/2026-10-19"))

	cfg["createDirs"] = true
	cfg["remotePath"] = "/archive/orders.csv"
	res = suite.executor.Execute(context.Background(), cfg, suite.execCtx)
	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.True(suite.T(), sftpDirExists(suite.T(), addr, hostKey, "/archive"))
}

func (suite *FileTransferExecutorTestSuite) TestSFTPFingerprintPin() {
	addr, hostKey, _ := startSFTPServer(suite.T())
	cfg := sftpConfig(addr)
	cfg["hostKey"] = ssh.FingerprintSHA256(hostKey)
	res := suite.executor.Execute(context.Background(), cfg, suite.execCtx)
	require.True(suite.T(), res.IsSuccess(), res.Error)

	_, other, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(suite.T(), err)
	otherSigner, err := ssh.NewSignerFromKey(other)
	require.NoError(suite.T(), err)
	cfg["hostKey"] = ssh.FingerprintSHA256(otherSigner.PublicKey())

	res = suite.executor.Execute(context.Background(), cfg, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeExecution, res.ErrorType)
	assert.Equal(suite.T(), "Host key verification failed", res.Error)
}

func (suite *FileTransferExecutorTestSuite) TestSFTPWrongPassword() {
	addr, _, _ := startSFTPServer(suite.T())
	cfg := sftpConfig(addr)
	cfg["password"] = "wrong"

	res := suite.executor.Execute(context.Background(), cfg, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeExecution, res.ErrorType)
	assert.Equal(suite.T(), "Authentication with the remote server failed", res.Error)
}

func (suite *FileTransferExecutorTestSuite) TestHTTPUpload() {
	var received []byte
	var headers http.Header
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/denied" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		method = r.Method
		headers = r.Header
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	res := suite.executor.Execute(context.Background(), map[string]any{
		"artifactId": suite.artifactID,
		"protocol":   "http",
		"url":        server.URL + "/upload/orders.csv",
	}, suite.execCtx)

	require.True(suite.T(), res.IsSuccess(), res.Error)
	assert.Equal(suite.T(), http.MethodPut, method)
	assert.Equal(suite.T(), payload, string(received))
	assert.Equal(suite.T(), "text/csv", headers.Get(sysconst.ContentTypeHeaderName))
	assert.Equal(suite.T(), "run-9", headers.Get(sysconst.WorkflowRunIDHeaderName))

	res = suite.executor.Execute(context.Background(), map[string]any{
		"artifactId": suite.artifactID,
		"protocol":   "http",
		"method":     "post",
		"url":        server.URL + "/denied",
	}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeHTTPStatus, res.ErrorType)
	assert.Equal(suite.T(), http.StatusForbidden, res.Fields["statusCode"])
}

func (suite *FileTransferExecutorTestSuite) TestPolicy() {
	production := NewFileTransferExecutor(urlguard.NewGuard(urlguard.Options{}), httpclient.NewTenantLimiter(0, 0),
		suite.store, config.DefaultConfig().HTTP)

	base := map[string]any{
		"artifactId": suite.artifactID,
		"protocol":   "sftp",
		"host":       "files.example.com",
		"username":   sftpUser,
		"password":   sftpPassword,
		"remotePath": "/in/orders.csv",
	}
	res := production.Execute(context.Background(), base, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
	assert.Contains(suite.T(), res.Error, "hostKey is required")

	for _, host := range []string{"10.0.0.7", "169.254.169.254", "localhost"} {
		cfg := map[string]any{}
		for k, v := range base {
			cfg[k] = v
		}
		cfg["host"] = host
		res = production.Execute(context.Background(), cfg, suite.execCtx)
		assert.Equal(suite.T(), constants.ErrorTypePolicy, res.ErrorType, host)
	}

	res = production.Execute(context.Background(), map[string]any{
		"artifactId": suite.artifactID, "protocol": "ftp", "host": "metadata.google.internal",
		"remotePath": "/x.csv",
	}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypePolicy, res.ErrorType)

	res = production.Execute(context.Background(), map[string]any{
		"artifactId": suite.artifactID, "protocol": "http", "url": "http://127.0.0.1/upload",
	}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypePolicy, res.ErrorType)
}

func (suite *FileTransferExecutorTestSuite) TestWellKnownPortExemption() {
	production := NewFileTransferExecutor(urlguard.NewGuard(urlguard.Options{}), nil, suite.store,
		config.DefaultConfig().HTTP)
	assert.NoError(suite.T(), production.checkHost(Config{Protocol: ProtocolSFTP, Host: "files.example.com", Port: 22}))
	assert.Error(suite.T(), production.checkHost(Config{Protocol: ProtocolFTP, Host: "files.example.com", Port: 22}))
	assert.Error(suite.T(), production.checkHost(Config{Protocol: ProtocolSFTP, Host: "files.example.com", Port: 6379}))
}

func (suite *FileTransferExecutorTestSuite) TestArtifactNotFound() {
	res := suite.executor.Execute(context.Background(), map[string]any{
		"artifactId": "missing", "protocol": "http", "url": "http://127.0.0.1:1/upload",
	}, suite.execCtx)
	assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType)
	assert.Equal(suite.T(), `Artifact "missing" not found`, res.Error)
}

func (suite *FileTransferExecutorTestSuite) TestInvalidConfig() {
	for _, cfg := range []map[string]any{
		{"protocol": "sftp", "host": "h", "remotePath": "/a"},
		{"artifactId": "x", "protocol": "scp", "host": "h", "remotePath": "/a"},
		{"artifactId": "x", "protocol": "sftp", "remotePath": "/a"},
		{"artifactId": "x", "protocol": "ftp", "host": "h", "remotePath": "/dir/"},
		{"artifactId": "x", "protocol": "ftp", "host": "h", "remotePath": "/a", "mode": "ebcdic"},
		{"artifactId": "x", "protocol": "http"},
	} {
		res := suite.executor.Execute(context.Background(), cfg, suite.execCtx)
		assert.Equal(suite.T(), constants.ErrorTypeValidation, res.ErrorType, cfg)
	}
}

func (suite *FileTransferExecutorTestSuite) TestPathHelpers() {
	assert.Equal(suite.T(), []string{"/a", "/a/b"}, parentDirs("/a/b/c.csv"))
	assert.Equal(suite.T(), []string{"out"}, parentDirs("out/c.csv"))
	assert.Nil(suite.T(), parentDirs("/c.csv"))

	p, err := resolveRemotePath("/in/../out//{{input.day}}.csv", map[string]any{"input": map[string]any{"day": "d1"}})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "/out/d1.csv", p)
}

func (suite *FileTransferExecutorTestSuite) TestFTPCodes() {
	err := &textproto.Error{Code: 550, Msg: "exists"}
	assert.True(suite.T(), isFTPCode(err, 550, 521))
	assert.False(suite.T(), isFTPCode(err, 530))
	assert.False(suite.T(), isFTPCode(errors.New("plain"), 550))
}
