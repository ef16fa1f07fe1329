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

package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/conduit/internal/system/config"
)

type CertTestSuite struct {
	suite.Suite
	home string
}

func TestCertSuite(t *testing.T) {
	suite.Run(t, new(CertTestSuite))
}

func (suite *CertTestSuite) SetupTest() {
	suite.home = suite.T().TempDir()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(suite.T(), err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(suite.T(), err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(suite.T(), err)

	dir := filepath.Join(suite.home, "security")
	require.NoError(suite.T(), os.MkdirAll(dir, 0o700))
	require.NoError(suite.T(), os.WriteFile(filepath.Join(dir, "server.cert"),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(suite.T(), os.WriteFile(filepath.Join(dir, "server.key"),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
}

func (suite *CertTestSuite) TestGetTLSConfig() {
	cfg := config.DefaultConfig()
	cfg.Security.CertFile = "security/server.cert"
	cfg.Security.KeyFile = filepath.Join(suite.home, "security/server.key")

	tlsConfig, err := GetTLSConfig(cfg, suite.home)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), tlsConfig.Certificates, 1)
	assert.Equal(suite.T(), uint16(tls.VersionTLS12), tlsConfig.MinVersion)
}

func (suite *CertTestSuite) TestMissingFiles() {
	cfg := config.DefaultConfig()
	_, err := GetTLSConfig(cfg, suite.home)
	assert.Error(suite.T(), err)

	cfg.Security.CertFile = "security/missing.cert"
	cfg.Security.KeyFile = "security/server.key"
	_, err = GetTLSConfig(cfg, suite.home)
	assert.ErrorContains(suite.T(), err, "certificate file not found")
}
