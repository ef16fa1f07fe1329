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
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/asgardeo/conduit/internal/executor/common"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
	"github.com/asgardeo/conduit/internal/system/log"
)

// sftpUpload opens an SSH session through the guarded dialer and writes the artifact.
func (e *FileTransferExecutor) sftpUpload(ctx context.Context, u *upload) (int64, error) {
	hostKey, err := hostKeyCallback(u.cfg.HostKey, e.guard.AllowInternal())
	if err != nil {
		return 0, err
	}
	auth, err := authMethods(u.cfg)
	if err != nil {
		return 0, err
	}

	addr := net.JoinHostPort(u.cfg.Host, strconv.Itoa(u.cfg.Port))
	dial := httpclient.NewGuardedDialContext(e.guard, &net.Dialer{Timeout: u.timeout}, nil)
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	// Closing the connection unblocks any pending SSH or SFTP call when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            u.cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         u.timeout,
	})
	if err != nil {
		_ = conn.Close()
		return 0, classifySSHError(err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer func() {
		_ = client.Close()
	}()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return 0, &remoteError{op: "sftp session"}
	}
	defer func() {
		_ = sftpClient.Close()
	}()

	if *u.cfg.CreateDirs {
		if dirs := parentDirs(u.remotePath); len(dirs) > 0 {
			if err := sftpClient.MkdirAll(dirs[len(dirs)-1]); err != nil {
				return 0, &remoteError{op: "mkdir"}
			}
		}
	}

	f, err := sftpClient.Create(u.remotePath)
	if err != nil {
		return 0, &remoteError{op: "create"}
	}
	written, err := f.ReadFrom(bytes.NewReader(u.data))
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		return written, &remoteError{op: "write"}
	}
	return written, nil
}

func authMethods(cfg Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(cfg.PrivateKey), []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		}
		if err != nil {
			return nil, &common.ConfigError{Message: "Invalid node configuration: privateKey could not be parsed"}
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, &common.ConfigError{Message: "Invalid node configuration: password or privateKey is required"}
	}
	return methods, nil
}

// hostKeyCallback pins the server key. hostKey is either an authorized_keys line or a
// "SHA256:" fingerprint. Without a pinned key the server key is only accepted in non-production mode.
func hostKeyCallback(hostKey string, allowUnpinned bool) (ssh.HostKeyCallback, error) {
	hostKey = strings.TrimSpace(hostKey)
	switch {
	case hostKey == "":
		if !allowUnpinned {
			return nil, &common.ConfigError{Message: "Invalid node configuration: hostKey is required"}
		}
		logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			logger.Warn("Accepting unpinned SSH host key in non-production mode",
				log.String(log.LoggerKeyHostname, hostname),
				log.String("fingerprint", ssh.FingerprintSHA256(key)))
			return nil
		}, nil
	case strings.HasPrefix(hostKey, "SHA256:"):
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if subtle.ConstantTimeCompare([]byte(ssh.FingerprintSHA256(key)), []byte(hostKey)) != 1 {
				return errHostKey
			}
			return nil
		}, nil
	default:
		pinned, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hostKey))
		if err != nil {
			return nil, &common.ConfigError{Message: "Invalid node configuration: hostKey could not be parsed"}
		}
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if !bytes.Equal(pinned.Marshal(), key.Marshal()) {
				return errHostKey
			}
			return nil
		}, nil
	}
}

func classifySSHError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, errHostKey.Error()):
		return errHostKey
	case strings.Contains(msg, "unable to authenticate"):
		return errAuthentication
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return err
		}
		return &remoteError{op: "ssh handshake"}
	}
}
