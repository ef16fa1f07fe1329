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
	"errors"
	"net"
	"net/textproto"
	"strconv"
	"sync"

	"github.com/jlaffaye/ftp"

	httpclient "github.com/asgardeo/conduit/internal/system/http"
)

// connTracker records every connection opened for one FTP session so that all of them,
// including passive data connections, can be torn down when the transfer context ends.
type connTracker struct {
	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

func (t *connTracker) add(c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = c.Close()
		return
	}
	t.conns = append(t.conns, c)
}

func (t *connTracker) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, c := range t.conns {
		_ = c.Close()
	}
}

// ftpUpload stores the artifact over FTP. Control and passive data connections both go through
// the guarded dialer, so a PASV reply cannot point the data connection at an internal address.
func (e *FileTransferExecutor) ftpUpload(ctx context.Context, u *upload) (int64, error) {
	dial := httpclient.NewGuardedDialContext(e.guard, &net.Dialer{Timeout: u.timeout}, nil)
	tracker := &connTracker{}
	stop := context.AfterFunc(ctx, tracker.closeAll)
	defer stop()

	addr := net.JoinHostPort(u.cfg.Host, strconv.Itoa(u.cfg.Port))
	c, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(u.timeout),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			conn, err := dial(ctx, network, address)
			if err != nil {
				return nil, err
			}
			tracker.add(conn)
			return conn, nil
		}))
	if err != nil {
		return 0, err
	}
	defer func() {
		if quitErr := c.Quit(); quitErr != nil {
			tracker.closeAll()
		}
	}()

	username := u.cfg.Username
	if username == "" {
		username = "anonymous"
	}
	if err := c.Login(username, u.cfg.Password); err != nil {
		if isFTPCode(err, 530) {
			return 0, errAuthentication
		}
		return 0, remoteOrContext(ctx, "login")
	}

	transferType := ftp.TransferTypeBinary
	if u.cfg.Mode == ModeASCII {
		transferType = ftp.TransferTypeASCII
	}
	if err := c.Type(transferType); err != nil {
		return 0, remoteOrContext(ctx, "type")
	}

	if *u.cfg.CreateDirs {
		for _, dir := range parentDirs(u.remotePath) {
			// 550 and 521 are returned for directories that already exist.
			if err := c.MakeDir(dir); err != nil && !isFTPCode(err, 550, 521) {
				return 0, remoteOrContext(ctx, "mkdir")
			}
		}
	}

	if err := c.Stor(u.remotePath, bytes.NewReader(u.data)); err != nil {
		return 0, remoteOrContext(ctx, "store")
	}
	return int64(len(u.data)), nil
}

func isFTPCode(err error, codes ...int) bool {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		return false
	}
	for _, code := range codes {
		if protoErr.Code == code {
			return true
		}
	}
	return false
}

func remoteOrContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return &remoteError{op: op}
}
