// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/Azure/iothub-client-go/errors"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	// DefaultSASTokenLifetime is how long generated SAS tokens stay valid.
	DefaultSASTokenLifetime = time.Hour

	aesGcmNonce = 12
	pbkdf2Iter  = 10000
)

// credentials are the x509 files configured through client options.
type credentials struct {
	certFile     string
	keyFile      string
	passwordFile string
	caFile       string
}

// sasResource is the token audience of the device or module.
func (s *settings) sasResource() string {
	r := s.hostName + "/devices/" + url.PathEscape(s.deviceID)
	if s.moduleID != "" {
		r += "/modules/" + url.PathEscape(s.moduleID)
	}
	return r
}

// password returns the MQTT password: a fresh SAS token when a key is known,
// the configured token otherwise, and nothing for x509.
func (s *settings) password(now time.Time, ttl time.Duration) ([]byte, error) {
	switch {
	case s.x509:
		return nil, nil
	case s.sas != "":
		return []byte(s.sas), nil
	}

	token, err := signSAS(
		s.sasResource(),
		s.sharedAccessKey,
		s.sharedAccessKeyName,
		now.Add(ttl),
	)
	if err != nil {
		return nil, err
	}
	return []byte(token), nil
}

// signSAS builds a shared access signature for resource, signed with the
// base64-encoded key.
func signSAS(resource, key, keyName string, expiry time.Time) (string, error) {
	k, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", &errors.Error{
			Message:      "SharedAccessKey is not valid base64",
			Kind:         errors.ConfigurationInvalid,
			NestedError:  err,
			PropertyName: "SharedAccessKey",
		}
	}

	sr := url.QueryEscape(resource)
	se := strconv.FormatInt(expiry.Unix(), 10)

	mac := hmac.New(sha256.New, k)
	mac.Write([]byte(sr + "\n" + se))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	token := fmt.Sprintf(
		"SharedAccessSignature sr=%s&sig=%s&se=%s",
		sr,
		url.QueryEscape(sig),
		se,
	)
	if keyName != "" {
		token += "&skn=" + url.QueryEscape(keyName)
	}
	return token, nil
}

// tlsConfig builds the TLS configuration for a connection to host.
func (c *credentials) tlsConfig(host string, x509Auth bool) (*tls.Config, error) {
	config := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}

	if c.caFile != "" {
		pool, err := loadCACertPool(c.caFile)
		if err != nil {
			return nil, &errors.Error{
				Message:       "cannot load trusted certificates",
				Kind:          errors.ConfigurationInvalid,
				NestedError:   err,
				PropertyName:  OptionTrustedCerts,
				PropertyValue: c.caFile,
			}
		}
		config.RootCAs = pool
	}

	if !x509Auth {
		return config, nil
	}

	if c.certFile == "" || c.keyFile == "" {
		return nil, &errors.Error{
			Message: "x509 authentication requires " +
				OptionX509Certificate + " and " + OptionX509PrivateKey,
			Kind:         errors.ConfigurationInvalid,
			PropertyName: OptionX509Certificate,
		}
	}

	var cert tls.Certificate
	var err error
	if c.passwordFile != "" {
		cert, err = loadX509KeyPairWithPassword(
			c.certFile,
			c.keyFile,
			c.passwordFile,
		)
	} else {
		cert, err = tls.LoadX509KeyPair(c.certFile, c.keyFile)
	}
	if err != nil {
		return nil, &errors.Error{
			Message:      "x509 key pair cannot be loaded",
			Kind:         errors.ConfigurationInvalid,
			NestedError:  err,
			PropertyName: OptionX509PrivateKey,
		}
	}
	config.Certificates = []tls.Certificate{cert}
	return config, nil
}

func loadCACertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return pool, nil
}

// decryptPEMBlock decrypts a key encrypted with AES-GCM under a PBKDF2
// derived key. The block starts with an 8-byte salt and a 12-byte nonce.
func decryptPEMBlock(block *pem.Block, password []byte) ([]byte, error) {
	if len(block.Bytes) < 8+aesGcmNonce {
		return nil, fmt.Errorf("encrypted PEM block is too short")
	}

	salt := block.Bytes[:8]
	key := pbkdf2.Key(password, salt, pbkdf2Iter, 32, sha3.New256)

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, err
	}

	encrypted := block.Bytes[8:]
	nonce, ciphertext := encrypted[:aesGcmNonce], encrypted[aesGcmNonce:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func loadX509KeyPairWithPassword(
	certFile,
	keyFile,
	passwordFile string,
) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	password, err := os.ReadFile(passwordFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, fmt.Errorf(
			"failed to decode PEM block containing private key",
		)
	}

	// x509.DecryptPEMBlock is deprecated as insecure; see
	// https://github.com/golang/go/issues/8860.
	der, err := decryptPEMBlock(block, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.X509KeyPair(certPEM, pem.EncodeToMemory(&pem.Block{
		Type:  block.Type,
		Bytes: der,
	}))
}
