// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sops_test

import (
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database/sops"
)

func setupAgeKey(t *testing.T) {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	t.Setenv(sops.EnvAgeRecipients, identity.Recipient().String())
	t.Setenv("SOPS_AGE_KEY", identity.String())
	t.Setenv(sops.EnvGcpKmsResourceId, "")
	t.Setenv(sops.EnvAwsKmsKeyArns, "")
}

func TestEncryptDecryptAge(t *testing.T) {
	setupAgeKey(t)
	plain := []byte(`{"id":"abc","name":"day one"}`)
	encrypted, err := sops.Encrypt(plain)
	require.NoError(t, err)
	assert.NotContains(t, string(encrypted), "day one")

	decrypted, err := sops.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)
}

func TestEncryptRequiresKeys(t *testing.T) {
	t.Setenv(sops.EnvAgeRecipients, "")
	t.Setenv(sops.EnvGcpKmsResourceId, "")
	t.Setenv(sops.EnvAwsKmsKeyArns, "")
	_, err := sops.Encrypt([]byte(`{}`))
	require.Error(t, err)
}

func TestDecryptPlaintextFails(t *testing.T) {
	_, err := sops.Decrypt([]byte(`{"id":"abc"}`))
	require.Error(t, err)
}
