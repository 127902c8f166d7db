/*
DESCRIPTION
  Package auth loads service secrets and signs and verifies the tokens
  the host LMS presents on behalf of its users.

AUTHORS
  Open LMS (https://www.openlms.net)

LICENSE
  Copyright (C) 2018-2026 Open LMS (https://www.openlms.net)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/ausocean/utils/filemap"
)

// The URL scheme that represents a Google Storage bucket.
const gsbScheme = "gs://"

// Secret names.
const (
	SecretJWT           = "jwtSecret"     // Hex-encoded HMAC key for host tokens.
	SecretCookie        = "cookieSecret"  // Base64 key for cookie encryption.
	SecretHostDSN       = "hostDSN"       // Optional host database DSN.
	SecretRedisPassword = "redisPassword" // Optional Redis password.
)

// SecretsURL returns the secrets location for a service, which is held
// in the <SERVICE>_SECRETS environment variable.
func SecretsURL(service string) (string, error) {
	ev := strings.ToUpper(service) + "_SECRETS"
	url := os.Getenv(ev)
	if url == "" {
		return "", errors.New(ev + " environment variable not defined")
	}
	return url, nil
}

// GetSecrets reads secrets from either a file or a Google Storage
// object given by the <SERVICE>_SECRETS environment variable. Each
// line is a colon-separated key and value. All keys are required.
func GetSecrets(ctx context.Context, service string, keys []string) (map[string]string, error) {
	url, err := SecretsURL(service)
	if err != nil {
		return nil, err
	}

	var b []byte
	if strings.HasPrefix(url, gsbScheme) {
		b, err = readBucket(ctx, url)
	} else {
		b, err = os.ReadFile(url)
	}
	if err != nil {
		return nil, err
	}

	s := strings.ReplaceAll(string(b), "\r", "")
	m := filemap.Split(s, "\n", ":")
	for _, k := range keys {
		if m[k] == "" {
			return m, fmt.Errorf("missing key %s", k)
		}
	}
	return m, nil
}

// readBucket reads the object at gs://<bucket_name>/<object_name>.
func readBucket(ctx context.Context, url string) ([]byte, error) {
	path, ok := strings.CutPrefix(url, gsbScheme)
	bucket, object, found := strings.Cut(path, "/")
	if !ok || !found || bucket == "" || object == "" {
		return nil, fmt.Errorf("invalid GSB URL %s", url)
	}

	clt, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot create GSB client: %w", err)
	}
	defer clt.Close()

	r, err := clt.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot create GSB reader: %w", err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read GSB: %w", err)
	}
	return b, nil
}

// HexSecret decodes a hex-encoded secret from secrets.
func HexSecret(secrets map[string]string, key string) ([]byte, error) {
	v, ok := secrets[key]
	if !ok || v == "" {
		return nil, fmt.Errorf("missing key %s", key)
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", key, err)
	}
	return b, nil
}
